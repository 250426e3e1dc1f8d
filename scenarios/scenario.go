// Package scenarios holds the browser scenarios and the runner giving each
// of them a fresh session.
package scenarios

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/codes"

	"github.com/grafana/devtools-scenarios/harness"
	"github.com/grafana/devtools-scenarios/log"
	"github.com/grafana/devtools-scenarios/trace"
)

// Scenario drives a session and asserts on what the browser reports.
type Scenario struct {
	Name        string
	Description string
	Run         func(s *harness.Session, r *Report) error
}

// Report collects the observations of a scenario run.
type Report struct {
	ctx    context.Context
	runID  string
	name   string
	logger *log.Logger
	tracer *trace.Tracer

	mu      sync.Mutex
	details map[string]interface{}
}

func newReport(ctx context.Context, runID, name string, logger *log.Logger, tracer *trace.Tracer) *Report {
	return &Report{
		ctx:     ctx,
		runID:   runID,
		name:    name,
		logger:  logger,
		tracer:  tracer,
		details: make(map[string]interface{}),
	}
}

// Set records an observation.
func (r *Report) Set(key string, value interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.details[key] = value
}

// Details returns a copy of the observations.
func (r *Report) Details() map[string]interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := make(map[string]interface{}, len(r.details))
	for k, v := range r.details {
		d[k] = v
	}
	return d
}

// Logf logs an informational message about the scenario.
func (r *Report) Logf(format string, args ...interface{}) {
	r.logger.Infof("scenario:"+r.name, format, args...)
}

// Step runs fn in its own trace span.
func (r *Report) Step(name string, fn func() error) error {
	r.logger.Debugf("scenario:"+r.name, "step %q", name)

	var err error
	if r.tracer == nil {
		err = fn()
	} else {
		_, span := r.tracer.TraceStep(r.ctx, r.runID, name)
		err = fn()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	return nil
}

// Catalog returns every scenario, driving the pages of t.
func Catalog(t Targets) []Scenario {
	return []Scenario{
		geolocation(t.Geolocation),
		networkThrottling(t.NetworkThrottling),
		responseInspection(t.ResponseInspection),
		cookies(t.Cookies),
		performanceMetrics(t.Performance),
		consoleLog(t.ConsoleLog),
		urlBlocking(t.URLBlocking),
		deviceEmulation(t.DeviceEmulation),
		timezoneEmulation(t.TimezoneEmulation),
		codeCoverage(t.CodeCoverage),
	}
}

// Lookup finds the scenario called name.
func Lookup(catalog []Scenario, name string) (Scenario, bool) {
	for _, sc := range catalog {
		if sc.Name == name {
			return sc, true
		}
	}
	return Scenario{}, false
}

// Match returns the scenarios whose name matches pattern, in catalog order.
func Match(catalog []Scenario, pattern string) ([]Scenario, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid scenario pattern %q: %w", pattern, err)
	}

	var matched []Scenario
	for _, sc := range catalog {
		if re.MatchString(sc.Name) {
			matched = append(matched, sc)
		}
	}
	if len(matched) == 0 {
		return nil, fmt.Errorf("no scenario matches %q, have %v", pattern, Names(catalog))
	}

	return matched, nil
}

// Names returns the sorted scenario names.
func Names(catalog []Scenario) []string {
	names := make([]string, 0, len(catalog))
	for _, sc := range catalog {
		names = append(names, sc.Name)
	}
	sort.Strings(names)
	return names
}
