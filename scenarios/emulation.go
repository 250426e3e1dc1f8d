package scenarios

import (
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"

	"github.com/grafana/devtools-scenarios/harness"
)

func deviceEmulation(t DeviceEmulationTarget) Scenario {
	return Scenario{
		Name:        "device-emulation",
		Description: "loads a page as " + t.Device.Name + " and waits for its mobile layout",
		Run: func(s *harness.Session, r *Report) error {
			d := t.Device
			if err := r.Step("emulate device", func() error {
				return s.Run(
					enableNetwork(),
					emulation.SetUserAgentOverride(d.UserAgent),
					emulation.SetDeviceMetricsOverride(d.Viewport.Width, d.Viewport.Height, d.DeviceScaleFactor, d.IsMobile).
						WithScale(1),
				)
			}); err != nil {
				return err
			}
			defer disable(s, r, network.Disable())
			r.Set("device", d)

			if err := r.Step("navigate", func() error {
				return s.Navigate(t.URL)
			}); err != nil {
				return err
			}

			el, err := s.Wait.UntilClickable(t.Element)
			if err != nil {
				return err
			}
			text, err := el.Text()
			if err != nil {
				return err
			}
			r.Set("elementText", text)

			seen, err := s.Eval(`({
				userAgent: navigator.userAgent,
				width: screen.width,
				devicePixelRatio: window.devicePixelRatio,
			})`)
			if err != nil {
				return err
			}
			r.Set("seen", seen.Value())

			if ua := seen.Get("userAgent").String(); ua != d.UserAgent {
				return assertionf("page sees user agent %q, want %q", ua, d.UserAgent)
			}
			if w := seen.Get("width").Int(); w != d.Viewport.Width {
				return assertionf("page sees a screen %d pixels wide, want %d", w, d.Viewport.Width)
			}
			if dpr := seen.Get("devicePixelRatio").Float(); dpr != d.DeviceScaleFactor {
				return assertionf("page sees a device pixel ratio of %v, want %v", dpr, d.DeviceScaleFactor)
			}

			return nil
		},
	}
}

func timezoneEmulation(t TimezoneEmulationTarget) Scenario {
	return Scenario{
		Name:        "timezone-emulation",
		Description: "loads a page in the " + t.Timezone + " timezone",
		Run: func(s *harness.Session, r *Report) error {
			if err := r.Step("emulate timezone", func() error {
				return s.Run(enableNetwork(), emulation.SetTimezoneOverride(t.Timezone))
			}); err != nil {
				return err
			}
			defer disable(s, r, network.Disable())

			if err := r.Step("navigate", func() error {
				return s.Navigate(t.URL)
			}); err != nil {
				return err
			}

			el, err := s.Wait.UntilClickable(t.Element)
			if err != nil {
				return err
			}
			text, err := el.Text()
			if err != nil {
				return err
			}
			r.Set("elementText", text)

			tz, err := s.Eval(`Intl.DateTimeFormat().resolvedOptions().timeZone`)
			if err != nil {
				return err
			}
			r.Set("timezone", tz.String())
			if tz.String() != t.Timezone {
				return assertionf("page resolves timezone %q, want %q", tz.String(), t.Timezone)
			}

			return nil
		},
	}
}
