package scenarios

import (
	"sort"

	"github.com/chromedp/cdproto/performance"

	"github.com/grafana/devtools-scenarios/harness"
)

func performanceMetrics(t PageTarget) Scenario {
	return Scenario{
		Name:        "performance-metrics",
		Description: "collects the browser's runtime performance metrics of a page",
		Run: func(s *harness.Session, r *Report) error {
			if err := s.Run(performance.Enable().WithTimeDomain(performance.EnableTimeDomainTimeTicks)); err != nil {
				return err
			}
			defer disable(s, r, performance.Disable())

			if err := r.Step("navigate", func() error {
				return s.Navigate(t.URL)
			}); err != nil {
				return err
			}

			var metrics []*performance.Metric
			if err := r.Step("get metrics", func() error {
				var err error
				metrics, err = performance.GetMetrics().Do(s.Context())
				return err
			}); err != nil {
				return err
			}

			values := metricValues(metrics)
			names := make([]string, 0, len(values))
			for name := range values {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				r.Logf("%s:%v", name, values[name])
			}
			r.Set("metrics", values)

			if len(metrics) == 0 {
				return assertionf("no performance metric reported for %q", t.URL)
			}

			return nil
		},
	}
}
