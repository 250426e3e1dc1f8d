package scenarios

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/grafana/devtools-scenarios/browserprocess"
	"github.com/grafana/devtools-scenarios/cdp"
	"github.com/grafana/devtools-scenarios/harness"
	"github.com/grafana/devtools-scenarios/log"
	"github.com/grafana/devtools-scenarios/storage"
	"github.com/grafana/devtools-scenarios/trace"
)

// Result is the outcome of a scenario run.
type Result struct {
	Name     string                 `json:"name"`
	RunID    string                 `json:"runId"`
	Passed   bool                   `json:"passed"`
	Error    string                 `json:"error,omitempty"`
	Details  map[string]interface{} `json:"details,omitempty"`

	// Screenshot is the artifact path of the page as it was when the
	// scenario failed.
	Screenshot string        `json:"screenshot,omitempty"`
	Started    time.Time     `json:"started"`
	Duration   time.Duration `json:"duration"`
}

// ResultPersister stores results as JSON documents, and failure
// screenshots.
type ResultPersister interface {
	storage.FilePersister
	PersistJSON(ctx context.Context, path string, v interface{}) error
}

// Runner runs scenarios, each in a session of its own.
type Runner struct {
	Config harness.Config
	Logger *log.Logger
	// Tracer is optional.
	Tracer *trace.Tracer
	// Persister, when set, receives a <scenario>.json document per run and
	// a <scenario>.png screenshot per failed run.
	Persister ResultPersister
}

// Run runs scenarios one after the other. Scenarios not started before ctx
// is done fail with the context error.
func (r *Runner) Run(ctx context.Context, scenarios ...Scenario) []Result {
	results := make([]Result, 0, len(scenarios))
	for _, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			results = append(results, Result{
				Name:  sc.Name,
				Error: fmt.Sprintf("not run: %v", err),
			})
			continue
		}
		results = append(results, r.RunOne(ctx, sc))
	}

	return results
}

// RunOne sets up a session, runs sc in it and tears the session down.
func (r *Runner) RunOne(ctx context.Context, sc Scenario) Result {
	tracer := r.Tracer
	if tracer == nil {
		tracer = trace.NewTracer(r.Logger, noop.NewTracerProvider(), nil)
	}

	runID := uuid.NewString()
	ctx = browserprocess.WithRunID(ctx, runID)
	ctx = tracer.TraceScenario(ctx, runID, sc.Name)

	r.Logger.Infof("Runner:RunOne", "running %q runID:%q", sc.Name, runID)
	started := time.Now()
	rep := newReport(ctx, runID, sc.Name, r.Logger, tracer)
	shot, err := r.run(ctx, sc, runID, tracer, rep)
	tracer.EndScenario(runID, err)

	res := Result{
		Name:       sc.Name,
		RunID:      runID,
		Passed:     err == nil,
		Details:    rep.Details(),
		Screenshot: shot,
		Started:    started,
		Duration:   time.Since(started),
	}
	if err != nil {
		res.Error = err.Error()
		r.Logger.Errorf("Runner:RunOne", "%q failed: %v", sc.Name, err)
	} else {
		r.Logger.Infof("Runner:RunOne", "%q passed in %s", sc.Name, res.Duration)
	}

	if r.Persister != nil {
		if perr := r.Persister.PersistJSON(ctx, sc.Name+".json", res); perr != nil {
			r.Logger.Warnf("Runner:RunOne", "persisting result of %q: %v", sc.Name, perr)
		}
	}

	return res
}

func (r *Runner) run(
	ctx context.Context, sc Scenario, runID string, tracer *trace.Tracer, rep *Report,
) (shot string, err error) {
	observe := harness.WithEventObserver(func(evt *cdp.Event) {
		tracer.AddEvent(runID, string(evt.Name), attribute.String("session.id", string(evt.SessionID())))
	})
	s, err := harness.NewSession(ctx, r.Config, r.Logger, observe)
	if err != nil {
		return "", fmt.Errorf("setting up session: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("scenario panicked: %v", p)
		}
		if err != nil {
			shot = r.screenshot(ctx, s, sc.Name)
		}
		if cerr := s.Close(); cerr != nil {
			r.Logger.Warnf("Runner:run", "tearing down %q: %v", sc.Name, cerr)
			if err == nil {
				err = fmt.Errorf("tearing down session: %w", cerr)
			}
		}
	}()

	return "", sc.Run(s, rep)
}

// screenshot persists the page of a failed scenario and returns its path.
func (r *Runner) screenshot(ctx context.Context, s *harness.Session, name string) string {
	if r.Persister == nil {
		return ""
	}

	buf, err := s.Screenshot(harness.ImageFormatPNG)
	if err != nil {
		r.Logger.Debugf("Runner:screenshot", "capturing %q: %v", name, err)
		return ""
	}
	path := name + ".png"
	if err := r.Persister.Persist(ctx, path, bytes.NewReader(buf)); err != nil {
		r.Logger.Warnf("Runner:screenshot", "persisting %q: %v", path, err)
		return ""
	}

	return path
}
