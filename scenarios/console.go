package scenarios

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto"
	cdplog "github.com/chromedp/cdproto/log"

	"github.com/grafana/devtools-scenarios/cdp"
	"github.com/grafana/devtools-scenarios/harness"
)

func consoleLog(t ConsoleLogTarget) Scenario {
	return Scenario{
		Name:        "console-log",
		Description: "checks the severity of the log entries added by a page",
		Run: func(s *harness.Session, r *Report) error {
			want, err := parseLogLevel(t.Level)
			if err != nil {
				return err
			}

			if err := s.Run(cdplog.Enable()); err != nil {
				return err
			}
			defer disable(s, r, cdplog.Disable())

			if err := r.Step("navigate", func() error {
				return s.Navigate(t.URL)
			}); err != nil {
				return err
			}

			var (
				mu      sync.Mutex
				entries []*cdplog.Entry
			)
			stop := s.On(func(evt *cdp.Event) {
				ev, ok := evt.Data.(*cdplog.EventEntryAdded)
				if !ok || ev.Entry == nil {
					return
				}
				r.Logf("[%s] %s: %s", ev.Entry.Level, ev.Entry.Source, ev.Entry.Text)
				mu.Lock()
				entries = append(entries, ev.Entry)
				mu.Unlock()
			}, cdproto.EventLogEntryAdded)

			if err := r.Step("trigger", func() error {
				el, err := s.Wait.UntilClickable(t.Trigger)
				if err != nil {
					return err
				}
				return el.Click()
			}); err != nil {
				stop()
				return err
			}

			waitErr := s.Wait.Until("for a log entry", func(context.Context) (bool, error) {
				mu.Lock()
				defer mu.Unlock()
				return len(entries) > 0, nil
			})
			stop()
			if waitErr != nil && !isTimeout(waitErr) {
				return waitErr
			}

			mu.Lock()
			defer mu.Unlock()
			r.Set("entries", len(entries))

			return checkLogLevels(entries, want)
		},
	}
}
