package harness

import (
	"fmt"
	"time"

	"github.com/grafana/devtools-scenarios/common"
	"github.com/grafana/devtools-scenarios/log"
)

const (
	envWaitTimeout       = "DEVTOOLS_WAIT_TIMEOUT"
	envNavigationTimeout = "DEVTOOLS_NAVIGATION_TIMEOUT"
	envWSURL             = "DEVTOOLS_WS_URL"

	// DefaultWaitTimeout bounds UI readiness polling.
	DefaultWaitTimeout = 3 * time.Second
	// DefaultNavigationTimeout bounds waiting for a page load.
	DefaultNavigationTimeout = 30 * time.Second
	// DefaultPollInterval is the UI readiness polling interval.
	DefaultPollInterval = 100 * time.Millisecond
)

// Config configures sessions.
type Config struct {
	Launch *common.LaunchOptions

	WaitTimeout       time.Duration
	NavigationTimeout time.Duration
	PollInterval      time.Duration

	// WSURL, when set, connects to an already running browser instead of
	// launching one. Teardown then closes the page but not the browser.
	WSURL string
	// TmpDir is where user data directories are created.
	TmpDir string
}

// NewConfig returns the default configuration.
func NewConfig() Config {
	return Config{
		Launch:            common.NewLaunchOptions(),
		WaitTimeout:       DefaultWaitTimeout,
		NavigationTimeout: DefaultNavigationTimeout,
		PollInterval:      DefaultPollInterval,
	}
}

// ParseEnv overrides the configuration with the DEVTOOLS_* environment
// variables found by lookup.
func (c *Config) ParseEnv(lookup log.LookupFunc) error {
	if c.Launch == nil {
		c.Launch = common.NewLaunchOptions()
	}
	if err := c.Launch.Parse(lookup); err != nil {
		return err
	}

	for _, d := range []struct {
		env string
		dst *time.Duration
	}{
		{envWaitTimeout, &c.WaitTimeout},
		{envNavigationTimeout, &c.NavigationTimeout},
	} {
		v, ok := lookup(d.env)
		if !ok || v == "" {
			continue
		}
		t, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", d.env, err)
		}
		*d.dst = t
	}
	if v, ok := lookup(envWSURL); ok {
		c.WSURL = v
	}

	return c.Validate()
}

// Validate checks that the timeouts are usable.
func (c *Config) Validate() error {
	switch {
	case c.WaitTimeout <= 0:
		return fmt.Errorf("wait timeout must be positive, got %s", c.WaitTimeout)
	case c.NavigationTimeout <= 0:
		return fmt.Errorf("navigation timeout must be positive, got %s", c.NavigationTimeout)
	case c.PollInterval <= 0:
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}

	return nil
}
