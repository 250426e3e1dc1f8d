package scenarios

import (
	"context"

	"github.com/chromedp/cdproto/network"
	cdpstorage "github.com/chromedp/cdproto/storage"

	"github.com/grafana/devtools-scenarios/harness"
)

func cookies(t CookiesTarget) Scenario {
	return Scenario{
		Name:        "cookies",
		Description: "lists the browser cookies set by a page, then clears them",
		Run: func(s *harness.Session, r *Report) error {
			if err := s.Run(enableNetwork()); err != nil {
				return err
			}
			defer disable(s, r, network.Disable())

			if err := r.Step("navigate", func() error {
				return s.Navigate(t.URL)
			}); err != nil {
				return err
			}

			// Cookies may be set by scripts after the page has loaded.
			var all []*network.Cookie
			waitErr := s.Wait.Until("for cookie "+t.Cookie, func(context.Context) (bool, error) {
				var err error
				all, err = cdpstorage.GetCookies().Do(s.BrowserContext())
				return hasCookie(all, t.Cookie), err
			})
			r.Set("cookies", cookieNames(all))
			r.Set("sites", cookieSites(all))
			r.Logf("%d cookies before clearing: %v", len(all), cookieNames(all))
			if !hasCookie(all, t.Cookie) {
				if waitErr != nil && !isTimeout(waitErr) {
					return waitErr
				}
				return assertionf("cookie %q not found in %v", t.Cookie, cookieNames(all))
			}

			var left []*network.Cookie
			if err := r.Step("clear cookies", func() error {
				if err := s.Run(network.ClearBrowserCookies()); err != nil {
					return err
				}
				var err error
				left, err = cdpstorage.GetCookies().Do(s.BrowserContext())
				return err
			}); err != nil {
				return err
			}
			r.Set("cookiesAfterClear", len(left))
			if len(left) != 0 {
				return assertionf("%d cookies left after clearing: %v", len(left), cookieNames(left))
			}

			return nil
		},
	}
}
