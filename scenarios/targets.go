package scenarios

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/grafana/devtools-scenarios/common"
	"github.com/grafana/devtools-scenarios/harness"
)

// Targets are the pages the scenarios drive and the elements they wait for.
type Targets struct {
	Geolocation        GeolocationTarget        `yaml:"geolocation"`
	NetworkThrottling  NetworkThrottlingTarget  `yaml:"networkThrottling"`
	ResponseInspection ResponseInspectionTarget `yaml:"responseInspection"`
	Cookies            CookiesTarget            `yaml:"cookies"`
	Performance        PageTarget               `yaml:"performanceMetrics"`
	ConsoleLog         ConsoleLogTarget         `yaml:"consoleLog"`
	URLBlocking        URLBlockingTarget        `yaml:"urlBlocking"`
	DeviceEmulation    DeviceEmulationTarget    `yaml:"deviceEmulation"`
	TimezoneEmulation  TimezoneEmulationTarget  `yaml:"timezoneEmulation"`
	CodeCoverage       CodeCoverageTarget       `yaml:"codeCoverage"`
}

// PageTarget is a page to navigate to.
type PageTarget struct {
	URL string `yaml:"url"`
}

// GeolocationTarget is a page showing the browser's location on request.
type GeolocationTarget struct {
	URL       string          `yaml:"url"`
	WhereAmI  harness.Locator `yaml:"whereAmI"`
	Latitude  harness.Locator `yaml:"latitude"`
	Longitude harness.Locator `yaml:"longitude"`

	// Baseline is in effect before the override, so that the page shows a
	// location even where the browser has no location provider.
	Baseline common.Geolocation `yaml:"baseline"`
	Override common.Geolocation `yaml:"override"`
}

// NetworkThrottlingTarget is a page loaded under emulated network conditions.
type NetworkThrottlingTarget struct {
	URL        string  `yaml:"url"`
	Offline    bool    `yaml:"offline"`
	LatencyMs  float64 `yaml:"latencyMs"`
	DownloadBs float64 `yaml:"downloadThroughput"`
	UploadBs   float64 `yaml:"uploadThroughput"`
}

// ResponseInspectionTarget is an endpoint whose response body is checked.
type ResponseInspectionTarget struct {
	URL          string `yaml:"url"`
	BodyContains string `yaml:"bodyContains"`
}

// CookiesTarget is a page setting the named cookie.
type CookiesTarget struct {
	URL    string `yaml:"url"`
	Cookie string `yaml:"cookie"`
}

// ConsoleLogTarget is a page whose Trigger element makes the browser log
// entries of Level.
type ConsoleLogTarget struct {
	URL     string          `yaml:"url"`
	Trigger harness.Locator `yaml:"trigger"`
	Level   string          `yaml:"level"`
}

// URLBlockingTarget is a page loading the Blocked resource.
type URLBlockingTarget struct {
	URL     string `yaml:"url"`
	Blocked string `yaml:"blocked"`
}

// DeviceEmulationTarget is a page showing Element on Device.
type DeviceEmulationTarget struct {
	URL     string          `yaml:"url"`
	Element harness.Locator `yaml:"element"`
	Device  common.Device   `yaml:"device"`
}

// TimezoneEmulationTarget is a page showing Element in Timezone.
type TimezoneEmulationTarget struct {
	URL      string          `yaml:"url"`
	Element  harness.Locator `yaml:"element"`
	Timezone string          `yaml:"timezone"`
}

// CodeCoverageTarget is a page whose scripts are covered. When Script is
// set, at least one covered script URL must contain it.
type CodeCoverageTarget struct {
	URL              string `yaml:"url"`
	Script           string `yaml:"script"`
	SamplingInterval int64  `yaml:"samplingInterval"`
}

// DefaultTargets returns the public pages the scenarios were written for.
func DefaultTargets() Targets {
	return Targets{
		Geolocation: GeolocationTarget{
			URL:       "https://the-internet.herokuapp.com/geolocation",
			WhereAmI:  harness.ByTagName("button"),
			Latitude:  harness.ByID("lat-value"),
			Longitude: harness.ByID("long-value"),
			Baseline:  common.Geolocation{Latitude: 27.1751, Longitude: 78.0421, Accuracy: 1},
			Override:  common.Geolocation{Latitude: 51.5055, Longitude: 0.0754, Accuracy: 1},
		},
		NetworkThrottling: NetworkThrottlingTarget{
			URL:        "https://seleniumconf.co.uk",
			LatencyMs:  100,
			DownloadBs: 1000,
			UploadBs:   2000,
		},
		ResponseInspection: ResponseInspectionTarget{
			URL:          "http://dummy.restapiexample.com/api/v1/employee/1",
			BodyContains: "id",
		},
		Cookies: CookiesTarget{
			URL:    "https://ads.google.com/intl/en_IN/home/",
			Cookie: "_ga",
		},
		Performance: PageTarget{
			URL: "https://testproject.io/",
		},
		ConsoleLog: ConsoleLogTarget{
			URL:     "https://devtools.glitch.me/console/log.html",
			Trigger: harness.ByID("network"),
			Level:   "error",
		},
		URLBlocking: URLBlockingTarget{
			URL:     "https://blog.testproject.io/2019/11/26/next-generation-front-end-testing-using-webdriver-and-devtools-part-1/",
			Blocked: "https://blog.testproject.io/wp-content/uploads/2019/10/pop-up-illustration.png",
		},
		DeviceEmulation: DeviceEmulationTarget{
			URL:     "https://testproject.io/",
			Element: harness.ByClassName("button-orange"),
			Device:  common.IPhoneX(),
		},
		TimezoneEmulation: TimezoneEmulationTarget{
			URL:      "https://momentjs.com/",
			Element:  harness.ByClassName("comment"),
			Timezone: "Antarctica/Casey",
		},
		CodeCoverage: CodeCoverageTarget{
			URL:              "https://github.com/",
			SamplingInterval: 30,
		},
	}
}

// LoadTargets reads a YAML file from fs. Fields missing from the file keep
// their default value; unknown fields are an error.
func LoadTargets(fs afero.Fs, path string) (Targets, error) {
	t := DefaultTargets()

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return t, fmt.Errorf("reading targets: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return t, fmt.Errorf("parsing targets %q: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("invalid targets %q: %w", path, err)
	}

	return t, nil
}

// Validate checks the locations and devices of t.
func (t *Targets) Validate() error {
	if err := t.Geolocation.Baseline.Validate(); err != nil {
		return fmt.Errorf("geolocation baseline: %w", err)
	}
	if err := t.Geolocation.Override.Validate(); err != nil {
		return fmt.Errorf("geolocation override: %w", err)
	}
	if t.Geolocation.Baseline == t.Geolocation.Override {
		return errors.New("geolocation override must differ from the baseline")
	}
	if err := t.DeviceEmulation.Device.Validate(); err != nil {
		return fmt.Errorf("device emulation: %w", err)
	}
	if _, err := parseLogLevel(t.ConsoleLog.Level); err != nil {
		return fmt.Errorf("console log: %w", err)
	}
	if t.CodeCoverage.SamplingInterval <= 0 {
		return fmt.Errorf("code coverage: invalid sampling interval %d", t.CodeCoverage.SamplingInterval)
	}

	return nil
}
