package scenarios

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/grafana/devtools-scenarios/cdp/cdptest"
	"github.com/grafana/devtools-scenarios/common"
	"github.com/grafana/devtools-scenarios/harness"
	"github.com/grafana/devtools-scenarios/log"
	"github.com/grafana/devtools-scenarios/storage"
	"github.com/grafana/devtools-scenarios/trace"
)

// newFakeBrowser returns a DevTools endpoint with pages loading instantly.
// navigateEvents are emitted by every navigation, before the load event.
func newFakeBrowser(t *testing.T, navigateEvents ...cdptest.Event) *cdptest.Server {
	t.Helper()

	srv := cdptest.NewServer(t)
	srv.HandleResult("Target.createTarget", `{"targetId":"T1"}`)
	srv.HandleResult("Target.attachToTarget", `{"sessionId":"S1"}`)
	events := append(navigateEvents, cdptest.Event{Method: cdproto.EventPageLoadEventFired, Params: `{"timestamp":1}`})
	srv.HandleResult("Page.navigate", `{"frameId":"F1","loaderId":"L1"}`, events...)
	// Every element is there and clickable unless a test says otherwise.
	handleEvaluate(srv, func(expr string) (string, []cdptest.Event) {
		if strings.Contains(expr, "click()") {
			return "true", nil
		}
		return `"clickable"`, nil
	})

	return srv
}

// handleEvaluate answers Runtime.evaluate with the JSON value returned by
// fn, followed by its events.
func handleEvaluate(srv *cdptest.Server, fn func(expression string) (string, []cdptest.Event)) {
	srv.Handle("Runtime.evaluate", func(msg *cdproto.Message) cdptest.Reply {
		value, events := fn(gjson.GetBytes(msg.Params, "expression").String())
		return cdptest.Reply{
			Result: `{"result":{"type":"object","value":` + value + `}}`,
			Events: events,
		}
	})
}

func newTestRunner(t *testing.T, srv *cdptest.Server) *Runner {
	t.Helper()

	cfg := harness.NewConfig()
	cfg.WSURL = srv.WSURL()
	cfg.WaitTimeout = 300 * time.Millisecond
	cfg.NavigationTimeout = time.Second
	cfg.PollInterval = 10 * time.Millisecond

	return &Runner{Config: cfg, Logger: log.NewNullLogger()}
}

func testTargets() Targets {
	t := DefaultTargets()
	t.Geolocation.URL = "http://geo.test:8080/geolocation"
	t.ResponseInspection.URL = "http://api.test/employee/1"
	t.URLBlocking.URL = "http://blog.test/"
	t.URLBlocking.Blocked = "http://blog.test/pop-up.png"
	t.CodeCoverage.Script = "app-bootstrap"
	return t
}

func runScenario(t *testing.T, r *Runner, name string) Result {
	t.Helper()

	sc, ok := Lookup(Catalog(testTargets()), name)
	require.True(t, ok, name)
	res := r.RunOne(context.Background(), sc)
	assert.Equal(t, name, res.Name)
	assert.NotEmpty(t, res.RunID)

	return res
}

func requirePassed(t *testing.T, res Result) {
	t.Helper()
	require.True(t, res.Passed, "scenario %q failed: %s", res.Name, res.Error)
	assert.Empty(t, res.Error)
}

func requireFailed(t *testing.T, res Result, contains string) {
	t.Helper()
	require.False(t, res.Passed, "scenario %q should fail", res.Name)
	assert.Contains(t, res.Error, contains)
}

func TestRunnerGeolocation(t *testing.T) {
	t.Parallel()

	// geoPage displays the emulated location when its button is clicked.
	// When stuck, it ignores location changes after the first one.
	geoPage := func(srv *cdptest.Server, stuck bool) {
		var (
			mu        sync.Mutex
			overrides int
			current   [2]float64
			shown     *[2]float64
		)
		srv.Handle("Emulation.setGeolocationOverride", func(msg *cdproto.Message) cdptest.Reply {
			mu.Lock()
			defer mu.Unlock()
			overrides++
			if !stuck || overrides == 1 {
				current = [2]float64{
					gjson.GetBytes(msg.Params, "latitude").Float(),
					gjson.GetBytes(msg.Params, "longitude").Float(),
				}
			}
			return cdptest.Reply{}
		})
		handleEvaluate(srv, func(expr string) (string, []cdptest.Event) {
			mu.Lock()
			defer mu.Unlock()
			switch {
			case strings.Contains(expr, "click()"):
				loc := current
				shown = &loc
				return "true", nil
			case strings.Contains(expr, "innerText") && shown == nil:
				return `""`, nil
			case strings.Contains(expr, "innerText") && strings.Contains(expr, "lat-value"):
				return fmt.Sprintf(`"%v"`, shown[0]), nil
			case strings.Contains(expr, "innerText"):
				return fmt.Sprintf(`"%v"`, shown[1]), nil
			}
			return `"clickable"`, nil
		})
	}

	t.Run("changed", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t)
		geoPage(srv, false)

		res := runScenario(t, newTestRunner(t, srv), "geolocation")
		requirePassed(t, res)
		assert.Equal(t, coordinates{Latitude: "27.1751", Longitude: "78.0421"}, res.Details["before"])
		assert.Equal(t, coordinates{Latitude: "51.5055", Longitude: "0.0754"}, res.Details["after"])

		grants := srv.Received("Browser.grantPermissions")
		require.Len(t, grants, 1)
		assert.Empty(t, grants[0].SessionID, "permissions are granted by the browser target")
		assert.Equal(t, "http://geo.test:8080", gjson.GetBytes(grants[0].Params, "origin").String())
		assert.Equal(t, "geolocation", gjson.GetBytes(grants[0].Params, "permissions.0").String())
		assert.Len(t, srv.Received("Emulation.setGeolocationOverride"), 2)
	})

	t.Run("unchanged", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t)
		geoPage(srv, true)

		res := runScenario(t, newTestRunner(t, srv), "geolocation")
		requireFailed(t, res, `displayed latitude "27.1751" unchanged`)
		assert.Len(t, srv.Received("Target.closeTarget"), 1)
	})
}

func TestRunnerNetworkThrottling(t *testing.T) {
	t.Parallel()

	srv := newFakeBrowser(t)
	res := runScenario(t, newTestRunner(t, srv), "network-throttling")
	requirePassed(t, res)

	enable := srv.Received("Network.enable")
	require.Len(t, enable, 1)
	assert.EqualValues(t, 100000000, gjson.GetBytes(enable[0].Params, "maxTotalBufferSize").Int())

	cond := srv.Received("Network.emulateNetworkConditions")
	require.Len(t, cond, 1)
	params := gjson.ParseBytes(cond[0].Params)
	assert.False(t, params.Get("offline").Bool())
	assert.EqualValues(t, 100, params.Get("latency").Int())
	assert.EqualValues(t, 1000, params.Get("downloadThroughput").Int())
	assert.EqualValues(t, 2000, params.Get("uploadThroughput").Int())
	assert.Equal(t, "cellular3g", params.Get("connectionType").String())
	assert.Len(t, srv.Received("Network.disable"), 1)
}

func TestRunnerResponseInspection(t *testing.T) {
	t.Parallel()

	responses := []cdptest.Event{
		{Method: cdproto.EventNetworkResponseReceived, Params: `{"requestId":"R1","response":{"url":"http://api.test/employee/1","status":200}}`},
		{Method: cdproto.EventNetworkResponseReceived, Params: `{"requestId":"R2","response":{"url":"http://api.test/favicon.ico","status":404}}`},
	}

	t.Run("contains", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t, responses...)
		srv.HandleResult("Network.getResponseBody", `{"body":"{\"status\":\"success\",\"data\":{\"id\":1}}","base64Encoded":false}`)

		res := runScenario(t, newTestRunner(t, srv), "response-inspection")
		requirePassed(t, res)
		assert.Equal(t, "R1", res.Details["requestId"])
		assert.EqualValues(t, 200, res.Details["status"])

		bodies := srv.Received("Network.getResponseBody")
		require.Len(t, bodies, 1)
		assert.Equal(t, "R1", gjson.GetBytes(bodies[0].Params, "requestId").String())
	})

	t.Run("missing", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t, responses...)
		srv.HandleResult("Network.getResponseBody", `{"body":"{\"status\":\"error\"}","base64Encoded":false}`)

		res := runScenario(t, newTestRunner(t, srv), "response-inspection")
		requireFailed(t, res, `does not contain "id"`)
	})

	t.Run("no_body", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t, responses...)
		srv.Handle("Network.getResponseBody", func(*cdproto.Message) cdptest.Reply {
			return cdptest.Reply{Error: &cdproto.Error{Code: -32000, Message: "No resource with given identifier found"}}
		})

		res := runScenario(t, newTestRunner(t, srv), "response-inspection")
		requireFailed(t, res, "get response body: No resource with given identifier found")
	})
}

func TestRunnerCookies(t *testing.T) {
	t.Parallel()

	cookiesPage := func(srv *cdptest.Server, clears bool) {
		var (
			mu      sync.Mutex
			cleared bool
		)
		srv.Handle("Network.clearBrowserCookies", func(*cdproto.Message) cdptest.Reply {
			mu.Lock()
			defer mu.Unlock()
			cleared = clears
			return cdptest.Reply{}
		})
		srv.Handle("Storage.getCookies", func(*cdproto.Message) cdptest.Reply {
			mu.Lock()
			defer mu.Unlock()
			if cleared {
				return cdptest.Reply{Result: `{"cookies":[]}`}
			}
			return cdptest.Reply{Result: `{"cookies":[` +
				`{"name":"_ga","value":"GA1.1","domain":".google.com","path":"/"},` +
				`{"name":"NID","value":"x","domain":"ads.google.com","path":"/"}]}`}
		})
	}

	t.Run("cleared", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t)
		cookiesPage(srv, true)

		res := runScenario(t, newTestRunner(t, srv), "cookies")
		requirePassed(t, res)
		assert.Equal(t, []string{"NID", "_ga"}, res.Details["cookies"])
		assert.Equal(t, map[string]int{"google.com": 2}, res.Details["sites"])
		assert.Equal(t, 0, res.Details["cookiesAfterClear"])

		for _, m := range srv.Received("Storage.getCookies") {
			assert.Empty(t, m.SessionID)
		}
	})

	t.Run("not_cleared", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t)
		cookiesPage(srv, false)

		res := runScenario(t, newTestRunner(t, srv), "cookies")
		requireFailed(t, res, "2 cookies left after clearing")
	})

	t.Run("name_case", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t)
		var cleared atomic.Bool
		srv.Handle("Network.clearBrowserCookies", func(*cdproto.Message) cdptest.Reply {
			cleared.Store(true)
			return cdptest.Reply{}
		})
		srv.Handle("Storage.getCookies", func(*cdproto.Message) cdptest.Reply {
			if cleared.Load() {
				return cdptest.Reply{Result: `{"cookies":[]}`}
			}
			return cdptest.Reply{Result: `{"cookies":[` +
				`{"name":"_GA","value":"GA1.1","domain":".google.com","path":"/"}]}`}
		})

		res := runScenario(t, newTestRunner(t, srv), "cookies")
		requirePassed(t, res)
		assert.Equal(t, []string{"_GA"}, res.Details["cookies"])
	})

	t.Run("no_cookie", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t)
		srv.HandleResult("Storage.getCookies", `{"cookies":[]}`)

		res := runScenario(t, newTestRunner(t, srv), "cookies")
		requireFailed(t, res, `cookie "_ga" not found`)
		assert.Empty(t, srv.Received("Network.clearBrowserCookies"))
	})
}

func TestRunnerPerformanceMetrics(t *testing.T) {
	t.Parallel()

	t.Run("metrics", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t)
		srv.HandleResult("Performance.getMetrics", `{"metrics":[{"name":"Nodes","value":42},{"name":"JSHeapUsedSize","value":1024}]}`)

		res := runScenario(t, newTestRunner(t, srv), "performance-metrics")
		requirePassed(t, res)
		assert.Equal(t, map[string]float64{"Nodes": 42, "JSHeapUsedSize": 1024}, res.Details["metrics"])

		enable := srv.Received("Performance.enable")
		require.Len(t, enable, 1)
		assert.Equal(t, "timeTicks", gjson.GetBytes(enable[0].Params, "timeDomain").String())
		assert.Len(t, srv.Received("Performance.disable"), 1)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t)
		srv.HandleResult("Performance.getMetrics", `{"metrics":[]}`)

		res := runScenario(t, newTestRunner(t, srv), "performance-metrics")
		requireFailed(t, res, "no performance metric")
	})
}

func TestRunnerConsoleLog(t *testing.T) {
	t.Parallel()

	// consolePage adds a log entry of level when its trigger is clicked.
	consolePage := func(srv *cdptest.Server, level string) {
		handleEvaluate(srv, func(expr string) (string, []cdptest.Event) {
			if !strings.Contains(expr, "click()") {
				return `"clickable"`, nil
			}
			if level == "" {
				return "true", nil
			}
			return "true", []cdptest.Event{{
				Method: cdproto.EventLogEntryAdded,
				Params: `{"entry":{"source":"network","level":"` + level + `","text":"Failed to load resource","timestamp":1}}`,
			}}
		})
	}

	tests := []struct {
		name    string
		level   string
		wantErr string
	}{
		{name: "error", level: "error"},
		{name: "warning", level: "warning", wantErr: `has level "warning", want "error"`},
		{name: "none", wantErr: "no log entry was added"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newFakeBrowser(t)
			consolePage(srv, tt.level)

			res := runScenario(t, newTestRunner(t, srv), "console-log")
			if tt.wantErr != "" {
				requireFailed(t, res, tt.wantErr)
				return
			}
			requirePassed(t, res)
			assert.Equal(t, 1, res.Details["entries"])
			assert.Equal(t, []string{
				"Log.enable", "Page.navigate", "Log.disable",
			}, filterMethods(srv.Methods(), "Log.", "Page.navigate"))
		})
	}
}

func TestRunnerURLBlocking(t *testing.T) {
	t.Parallel()

	const blocked = "http://blog.test/pop-up.png"
	request := cdptest.Event{
		Method: cdproto.EventNetworkRequestWillBeSent,
		Params: `{"requestId":"R2","request":{"url":"` + blocked + `","method":"GET"}}`,
	}

	t.Run("blocked", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t, request, cdptest.Event{
			Method: cdproto.EventNetworkLoadingFailed,
			Params: `{"requestId":"R2","errorText":"net::ERR_BLOCKED_BY_CLIENT","blockedReason":"inspector"}`,
		})

		res := runScenario(t, newTestRunner(t, srv), "url-blocking")
		requirePassed(t, res)

		set := srv.Received("Network.setBlockedURLs")
		require.Len(t, set, 1)
		assert.Equal(t, blocked, gjson.GetBytes(set[0].Params, "urls.0").String())
	})

	t.Run("other_reason", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t, request, cdptest.Event{
			Method: cdproto.EventNetworkLoadingFailed,
			Params: `{"requestId":"R2","errorText":"net::ERR_CONNECTION_REFUSED"}`,
		})

		res := runScenario(t, newTestRunner(t, srv), "url-blocking")
		requireFailed(t, res, "net::ERR_CONNECTION_REFUSED")
	})

	t.Run("loaded", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t, request)

		res := runScenario(t, newTestRunner(t, srv), "url-blocking")
		requireFailed(t, res, "did not fail")
	})

	t.Run("wildcard_pattern", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t, request, cdptest.Event{
			Method: cdproto.EventNetworkLoadingFailed,
			Params: `{"requestId":"R2","errorText":"net::ERR_BLOCKED_BY_CLIENT","blockedReason":"inspector"}`,
		})

		targets := testTargets()
		targets.URLBlocking.Blocked = "*pop-up.png"
		sc, ok := Lookup(Catalog(targets), "url-blocking")
		require.True(t, ok)

		res := newTestRunner(t, srv).RunOne(context.Background(), sc)
		requirePassed(t, res)

		set := srv.Received("Network.setBlockedURLs")
		require.Len(t, set, 1)
		assert.Equal(t, "*pop-up.png", gjson.GetBytes(set[0].Params, "urls.0").String())
	})
}

func TestRunnerDeviceEmulation(t *testing.T) {
	t.Parallel()

	devicePage := func(srv *cdptest.Server, width int) {
		handleEvaluate(srv, func(expr string) (string, []cdptest.Event) {
			switch {
			case strings.Contains(expr, "navigator.userAgent"):
				return fmt.Sprintf(`{"userAgent":%q,"width":%d,"devicePixelRatio":3}`,
					common.SafariIPhoneUserAgent, width), nil
			case strings.Contains(expr, "innerText"):
				return `"Start free"`, nil
			}
			return `"clickable"`, nil
		})
	}

	t.Run("mobile", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t)
		devicePage(srv, 375)

		res := runScenario(t, newTestRunner(t, srv), "device-emulation")
		requirePassed(t, res)
		assert.Equal(t, "Start free", res.Details["elementText"])

		metrics := srv.Received("Emulation.setDeviceMetricsOverride")
		require.Len(t, metrics, 1)
		params := gjson.ParseBytes(metrics[0].Params)
		assert.EqualValues(t, 375, params.Get("width").Int())
		assert.EqualValues(t, 812, params.Get("height").Int())
		assert.EqualValues(t, 3, params.Get("deviceScaleFactor").Int())
		assert.True(t, params.Get("mobile").Bool())

		// Overrides are in place before the page loads.
		methods := srv.Methods()
		assert.Less(t, indexOf(methods, "Emulation.setUserAgentOverride"), indexOf(methods, "Page.navigate"))
		assert.Less(t, indexOf(methods, "Emulation.setDeviceMetricsOverride"), indexOf(methods, "Page.navigate"))
	})

	t.Run("desktop_layout", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t)
		devicePage(srv, 1280)

		res := runScenario(t, newTestRunner(t, srv), "device-emulation")
		requireFailed(t, res, "screen 1280 pixels wide, want 375")
	})

	t.Run("element_hidden", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t)
		handleEvaluate(srv, func(string) (string, []cdptest.Event) { return `"hidden"`, nil })

		res := runScenario(t, newTestRunner(t, srv), "device-emulation")
		requireFailed(t, res, "element is hidden")
	})
}

func TestRunnerTimezoneEmulation(t *testing.T) {
	t.Parallel()

	timezonePage := func(srv *cdptest.Server, timezone string) {
		handleEvaluate(srv, func(expr string) (string, []cdptest.Event) {
			switch {
			case strings.Contains(expr, "resolvedOptions"):
				return fmt.Sprintf("%q", timezone), nil
			case strings.Contains(expr, "innerText"):
				return `"a few seconds ago"`, nil
			}
			return `"clickable"`, nil
		})
	}

	t.Run("casey", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t)
		timezonePage(srv, "Antarctica/Casey")

		res := runScenario(t, newTestRunner(t, srv), "timezone-emulation")
		requirePassed(t, res)
		assert.Equal(t, "Antarctica/Casey", res.Details["timezone"])

		tz := srv.Received("Emulation.setTimezoneOverride")
		require.Len(t, tz, 1)
		assert.Equal(t, "Antarctica/Casey", gjson.GetBytes(tz[0].Params, "timezoneId").String())
	})

	t.Run("utc", func(t *testing.T) {
		t.Parallel()

		srv := newFakeBrowser(t)
		timezonePage(srv, "UTC")

		res := runScenario(t, newTestRunner(t, srv), "timezone-emulation")
		requireFailed(t, res, `page resolves timezone "UTC", want "Antarctica/Casey"`)
		assert.Equal(t, "UTC", res.Details["timezone"])
	})
}

func TestRunnerCodeCoverage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		coverage string
		wantErr  string
	}{
		{
			name:     "matched",
			coverage: `[{"scriptId":"1","url":"http://x.test/app-bootstrap.js","functions":[]},{"scriptId":"2","url":"","functions":[]}]`,
		},
		{
			name:     "unmatched",
			coverage: `[{"scriptId":"2","url":"http://x.test/vendor.js","functions":[]}]`,
			wantErr:  `no covered script matches "app-bootstrap"`,
		},
		{
			name:     "empty",
			coverage: `[]`,
			wantErr:  "empty coverage",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := newFakeBrowser(t)
			srv.HandleResult("Profiler.getBestEffortCoverage", `{"result":`+tt.coverage+`}`)

			res := runScenario(t, newTestRunner(t, srv), "code-coverage")
			assert.Len(t, srv.Received("Profiler.disable"), 1)
			if tt.wantErr != "" {
				requireFailed(t, res, tt.wantErr)
				return
			}
			requirePassed(t, res)
			assert.Equal(t, 1, res.Details["matched"])

			interval := srv.Received("Profiler.setSamplingInterval")
			require.Len(t, interval, 1)
			assert.EqualValues(t, 30, gjson.GetBytes(interval[0].Params, "interval").Int())
		})
	}
}

func TestRunnerTracesAndPersists(t *testing.T) {
	t.Parallel()

	srv := newFakeBrowser(t,
		cdptest.Event{
			Method: cdproto.EventNetworkRequestWillBeSent,
			Params: `{"requestId":"R2","request":{"url":"http://blog.test/pop-up.png","method":"GET"}}`,
		},
		cdptest.Event{
			Method: cdproto.EventNetworkLoadingFailed,
			Params: `{"requestId":"R2","errorText":"net::ERR_BLOCKED_BY_CLIENT","blockedReason":"inspector"}`,
		},
	)

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	fs := afero.NewMemMapFs()
	r := newTestRunner(t, srv)
	r.Tracer = trace.NewTracer(r.Logger, tp, nil)
	r.Persister = &storage.LocalFilePersister{Fs: fs, BaseDir: "/artifacts"}

	sc, ok := Lookup(Catalog(testTargets()), "url-blocking")
	require.True(t, ok)
	results := r.Run(context.Background(), sc)
	require.Len(t, results, 1)
	requirePassed(t, results[0])

	var scenarioSpan sdktrace.ReadOnlySpan
	var steps []string
	for _, s := range rec.Ended() {
		if s.Name() == "url-blocking" {
			scenarioSpan = s
			continue
		}
		steps = append(steps, s.Name())
	}
	require.NotNil(t, scenarioSpan)
	assert.Equal(t, []string{"block url", "navigate"}, steps)

	var events []string
	for _, e := range scenarioSpan.Events() {
		events = append(events, e.Name)
	}
	assert.Equal(t, []string{cdproto.EventNetworkRequestWillBeSent, cdproto.EventNetworkLoadingFailed}, events)

	data, err := afero.ReadFile(fs, "/artifacts/url-blocking.json")
	require.NoError(t, err)
	doc := gjson.ParseBytes(data)
	assert.Equal(t, "url-blocking", doc.Get("name").String())
	assert.Equal(t, results[0].RunID, doc.Get("runId").String())
	assert.True(t, doc.Get("passed").Bool())
	assert.Equal(t, "inspector", doc.Get("details.failures.0.blockedReason").String())
}

func TestRunnerFailureScreenshot(t *testing.T) {
	t.Parallel()

	srv := newFakeBrowser(t)
	srv.HandleResult("Performance.getMetrics", `{"metrics":[]}`)
	srv.HandleResult("Page.captureScreenshot", `{"data":"`+base64.StdEncoding.EncodeToString([]byte("png"))+`"}`)

	fs := afero.NewMemMapFs()
	r := newTestRunner(t, srv)
	r.Persister = &storage.LocalFilePersister{Fs: fs, BaseDir: "/artifacts"}

	res := runScenario(t, r, "performance-metrics")
	requireFailed(t, res, "no performance metric")
	assert.Equal(t, "performance-metrics.png", res.Screenshot)

	data, err := afero.ReadFile(fs, "/artifacts/performance-metrics.png")
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))

	doc, err := afero.ReadFile(fs, "/artifacts/performance-metrics.json")
	require.NoError(t, err)
	assert.Equal(t, "performance-metrics.png", gjson.GetBytes(doc, "screenshot").String())

	// Screenshots are taken before teardown.
	methods := srv.Methods()
	assert.Less(t, indexOf(methods, "Page.captureScreenshot"), indexOf(methods, "Target.closeTarget"))
}

func TestRunnerSetupFailure(t *testing.T) {
	t.Parallel()

	srv := newFakeBrowser(t)
	srv.Handle("Target.createTarget", func(*cdproto.Message) cdptest.Reply {
		return cdptest.Reply{Error: &cdproto.Error{Code: -32000, Message: "Failed to open a new tab"}}
	})

	res := runScenario(t, newTestRunner(t, srv), "cookies")
	requireFailed(t, res, "setting up session")
	assert.Contains(t, res.Error, "Failed to open a new tab")
	assert.Empty(t, srv.Received("Page.navigate"))
}

func TestRunnerPanickingScenario(t *testing.T) {
	t.Parallel()

	srv := newFakeBrowser(t)
	r := newTestRunner(t, srv)

	results := r.Run(context.Background(),
		Scenario{Name: "panics", Run: func(*harness.Session, *Report) error { panic("boom") }},
		Scenario{Name: "passes", Run: func(*harness.Session, *Report) error { return nil }},
	)
	require.Len(t, results, 2)
	requireFailed(t, results[0], "scenario panicked: boom")
	requirePassed(t, results[1])
	assert.NotEqual(t, results[0].RunID, results[1].RunID)
	assert.Len(t, srv.Received("Target.closeTarget"), 2, "every session is torn down")
}

func TestRunnerCanceled(t *testing.T) {
	t.Parallel()

	srv := newFakeBrowser(t)
	r := newTestRunner(t, srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := r.Run(ctx, Scenario{Name: "never", Run: func(*harness.Session, *Report) error { return nil }})
	require.Len(t, results, 1)
	requireFailed(t, results[0], "not run: context canceled")
	assert.Empty(t, srv.Methods())
}

func filterMethods(methods []string, prefixes ...string) []string {
	var kept []string
	for _, m := range methods {
		for _, p := range prefixes {
			if strings.HasPrefix(m, p) {
				kept = append(kept, m)
				break
			}
		}
	}
	return kept
}

func indexOf(methods []string, method string) int {
	for i, m := range methods {
		if m == method {
			return i
		}
	}
	return -1
}
