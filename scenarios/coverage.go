package scenarios

import (
	"github.com/chromedp/cdproto/profiler"

	"github.com/grafana/devtools-scenarios/harness"
)

func codeCoverage(t CodeCoverageTarget) Scenario {
	return Scenario{
		Name:        "code-coverage",
		Description: "collects the best-effort JavaScript coverage of a page",
		Run: func(s *harness.Session, r *Report) error {
			if err := s.Run(profiler.Enable()); err != nil {
				return err
			}
			defer disable(s, r, profiler.Disable())

			if err := r.Step("navigate", func() error {
				return s.Navigate(t.URL)
			}); err != nil {
				return err
			}

			var coverage []*profiler.ScriptCoverage
			if err := r.Step("get coverage", func() error {
				if err := s.Run(profiler.SetSamplingInterval(t.SamplingInterval)); err != nil {
					return err
				}
				var err error
				coverage, err = profiler.GetBestEffortCoverage().Do(s.Context())
				return err
			}); err != nil {
				return err
			}

			urls, matched := coveredScripts(coverage, t.Script)
			for _, c := range coverage {
				r.logger.Debugf("scenario:"+r.name, "script:%q functions:%d", c.URL, len(c.Functions))
			}
			r.Set("scripts", len(coverage))
			if t.Script != "" {
				r.Set("matched", matched)
			}

			switch {
			case coverage == nil:
				return assertionf("no coverage reported for %q", t.URL)
			case len(coverage) == 0:
				return assertionf("empty coverage reported for %q", t.URL)
			case t.Script != "" && matched == 0:
				return assertionf("no covered script matches %q in %v", t.Script, urls)
			}

			return nil
		},
	}
}
