package scenarios

import (
	"context"
	"fmt"
	"net/url"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"

	"github.com/grafana/devtools-scenarios/common"
	"github.com/grafana/devtools-scenarios/harness"
)

func geolocation(t GeolocationTarget) Scenario {
	return Scenario{
		Name:        "geolocation",
		Description: "overrides the geolocation and checks the page displays the new coordinates",
		Run: func(s *harness.Session, r *Report) error {
			if err := r.Step("grant permission", func() error {
				origin, err := originOf(t.URL)
				if err != nil {
					return err
				}
				return s.Browser().Browser.GrantPermissions(
					s.BrowserContext(), origin, cdpbrowser.PermissionTypeGeolocation)
			}); err != nil {
				return err
			}

			var before coordinates
			if err := r.Step("read baseline", func() error {
				if err := s.Run(overrideGeolocation(t.Baseline)); err != nil {
					return err
				}
				if err := s.Navigate(t.URL); err != nil {
					return err
				}
				var err error
				before, err = locate(s, t, coordinates{})
				return err
			}); err != nil {
				return err
			}
			r.Set("before", before)
			r.Logf("baseline location displayed as %+v", before)

			var after coordinates
			if err := r.Step("read override", func() error {
				if err := s.Run(overrideGeolocation(t.Override)); err != nil {
					return err
				}
				var err error
				after, err = locate(s, t, before)
				return err
			}); err != nil {
				return err
			}
			r.Set("after", after)
			r.Logf("overridden location displayed as %+v", after)

			return checkCoordinatesChanged(before, after)
		},
	}
}

func overrideGeolocation(g common.Geolocation) harness.Action {
	return emulation.SetGeolocationOverride().
		WithLatitude(g.Latitude).
		WithLongitude(g.Longitude).
		WithAccuracy(g.Accuracy)
}

// locate asks the page for the location and waits until it displays
// coordinates other than previous.
func locate(s *harness.Session, t GeolocationTarget, previous coordinates) (coordinates, error) {
	btn, err := s.Wait.UntilClickable(t.WhereAmI)
	if err != nil {
		return coordinates{}, err
	}
	if err := btn.Click(); err != nil {
		return coordinates{}, err
	}

	var shown coordinates
	err = s.Wait.Until(fmt.Sprintf("for %s to change from %q", t.Latitude, previous.Latitude),
		func(context.Context) (bool, error) {
			lat, err := textOf(s, t.Latitude)
			if err != nil {
				return false, err
			}
			lng, err := textOf(s, t.Longitude)
			if err != nil {
				return false, err
			}
			shown = coordinates{Latitude: lat, Longitude: lng}
			return lat != "" && lat != previous.Latitude, nil
		})
	if isTimeout(err) && previous != (coordinates{}) {
		// Left to checkCoordinatesChanged.
		return shown, nil
	}

	return shown, err
}

func textOf(s *harness.Session, l harness.Locator) (string, error) {
	el, err := s.Find(l)
	if err != nil {
		return "", err
	}
	return el.Text()
}

func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing %q: %w", rawURL, err)
	}
	return u.Scheme + "://" + u.Host, nil
}
