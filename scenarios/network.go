package scenarios

import (
	"context"
	"strings"
	"sync"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/network"

	"github.com/grafana/devtools-scenarios/cdp"
	"github.com/grafana/devtools-scenarios/harness"
)

// networkBufferSize is the buffer for network payloads, such as response
// bodies, kept by the browser.
const networkBufferSize = 100000000

func enableNetwork() harness.Action {
	return network.Enable().WithMaxTotalBufferSize(networkBufferSize)
}

func networkThrottling(t NetworkThrottlingTarget) Scenario {
	return Scenario{
		Name:        "network-throttling",
		Description: "loads a page under emulated 3G network conditions",
		Run: func(s *harness.Session, r *Report) error {
			conditions := network.EmulateNetworkConditions(t.Offline, t.LatencyMs, t.DownloadBs, t.UploadBs).
				WithConnectionType(network.ConnectionTypeCellular3g)
			if err := r.Step("emulate conditions", func() error {
				return s.Run(enableNetwork(), conditions)
			}); err != nil {
				return err
			}
			r.Set("conditions", map[string]interface{}{
				"offline":            t.Offline,
				"latencyMs":          t.LatencyMs,
				"downloadThroughput": t.DownloadBs,
				"uploadThroughput":   t.UploadBs,
				"connectionType":     network.ConnectionTypeCellular3g.String(),
			})

			defer disable(s, r, network.Disable())
			return r.Step("navigate", func() error {
				return s.Navigate(t.URL)
			})
		},
	}
}

func responseInspection(t ResponseInspectionTarget) Scenario {
	return Scenario{
		Name:        "response-inspection",
		Description: "reads the body of the first response the page receives",
		Run: func(s *harness.Session, r *Report) error {
			var (
				once     sync.Once
				mu       sync.Mutex
				captured *network.EventResponseReceived
			)
			stop := s.On(func(evt *cdp.Event) {
				ev, ok := evt.Data.(*network.EventResponseReceived)
				if !ok || ev.Response == nil {
					return
				}
				once.Do(func() {
					mu.Lock()
					captured = ev
					mu.Unlock()
				})
			}, cdproto.EventNetworkResponseReceived)
			defer stop()

			if err := s.Run(enableNetwork()); err != nil {
				return err
			}
			defer disable(s, r, network.Disable())

			if err := r.Step("navigate", func() error {
				return s.Navigate(t.URL)
			}); err != nil {
				return err
			}

			var first *network.EventResponseReceived
			if err := s.Wait.Until("for a response", func(context.Context) (bool, error) {
				mu.Lock()
				defer mu.Unlock()
				first = captured
				return first != nil, nil
			}); err != nil {
				return err
			}
			r.Set("requestId", first.RequestID.String())
			r.Set("url", first.Response.URL)
			r.Set("status", first.Response.Status)

			var body []byte
			if err := r.Step("get response body", func() error {
				var err error
				body, err = network.GetResponseBody(first.RequestID).Do(s.Context())
				return err
			}); err != nil {
				return err
			}
			r.Set("bodyLength", len(body))
			r.Logf("response of %q: %s", first.Response.URL, body)

			if body == nil {
				return assertionf("response body of %q is null", first.Response.URL)
			}
			if !strings.Contains(string(body), t.BodyContains) {
				return assertionf("response body of %q does not contain %q", first.Response.URL, t.BodyContains)
			}

			return nil
		},
	}
}

func urlBlocking(t URLBlockingTarget) Scenario {
	return Scenario{
		Name:        "url-blocking",
		Description: "blocks a resource of the page and checks the browser reports it blocked",
		Run: func(s *harness.Session, r *Report) error {
			var (
				mu       sync.Mutex
				urls     = make(map[network.RequestID]string)
				failures []loadingFailure
			)
			stop := s.On(func(evt *cdp.Event) {
				mu.Lock()
				defer mu.Unlock()

				switch ev := evt.Data.(type) {
				case *network.EventRequestWillBeSent:
					if ev.Request != nil {
						urls[ev.RequestID] = ev.Request.URL
					}
				case *network.EventLoadingFailed:
					failures = append(failures, loadingFailure{
						URL:       urls[ev.RequestID],
						ErrorText: ev.ErrorText,
						Reason:    ev.BlockedReason,
					})
				}
			}, cdproto.EventNetworkRequestWillBeSent, cdproto.EventNetworkLoadingFailed)

			if err := r.Step("block url", func() error {
				return s.Run(enableNetwork(), network.SetBlockedURLS([]string{t.Blocked}))
			}); err != nil {
				stop()
				return err
			}
			defer disable(s, r, network.Disable())

			if err := r.Step("navigate", func() error {
				return s.Navigate(t.URL)
			}); err != nil {
				stop()
				return err
			}

			blocked := blockedURLMatcher(t.Blocked)
			waitErr := s.Wait.Until("for "+t.Blocked+" to fail", func(context.Context) (bool, error) {
				mu.Lock()
				defer mu.Unlock()
				for _, f := range failures {
					if blocked.MatchString(f.URL) {
						return true, nil
					}
				}
				return false, nil
			})
			stop()

			mu.Lock()
			defer mu.Unlock()
			r.Set("failures", failures)
			if err := checkBlocked(failures, t.Blocked); err != nil {
				return err
			}

			return waitErr
		},
	}
}

// disable runs a domain's disable command at the end of a scenario.
// Failures are logged and otherwise ignored.
func disable(s *harness.Session, r *Report, action harness.Action) {
	if err := s.Run(action); err != nil {
		r.logger.Debugf("scenario:"+r.name, "disabling domain: %v", err)
	}
}
