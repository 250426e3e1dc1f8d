package common

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/guregu/null.v3"
)

const (
	envExecutablePath = "DEVTOOLS_EXECUTABLE_PATH"
	envHeadless       = "DEVTOOLS_HEADLESS"
	envArgs           = "DEVTOOLS_ARGS"
	envTimeout        = "DEVTOOLS_TIMEOUT"

	// DefaultLaunchTimeout bounds the time the browser may take to report
	// its DevTools URL.
	DefaultLaunchTimeout = 30 * time.Second
)

// defaultArgs are passed to every browser we launch.
var defaultArgs = []string{ //nolint:gochecknoglobals
	"--disable-background-networking",
	"--disable-background-timer-throttling",
	"--disable-backgrounding-occluded-windows",
	"--disable-default-apps",
	"--disable-dev-shm-usage",
	"--disable-extensions",
	"--disable-renderer-backgrounding",
	"--disable-sync",
	"--disable-translate",
	"--metrics-recording-only",
	"--mute-audio",
	"--no-default-browser-check",
	"--no-first-run",
	"--password-store=basic",
	"--use-mock-keychain",
}

// LaunchOptions configures how the browser process is started.
type LaunchOptions struct {
	ExecutablePath string
	// Headless defaults to true when not set.
	Headless null.Bool
	Args     []string
	Env      []string
	Timeout  time.Duration
}

// NewLaunchOptions returns the default launch options.
func NewLaunchOptions() *LaunchOptions {
	return &LaunchOptions{
		Timeout: DefaultLaunchTimeout,
	}
}

// Parse overrides the options with the DEVTOOLS_* environment variables
// found by lookup.
func (l *LaunchOptions) Parse(lookup func(string) (string, bool)) error {
	if v, ok := lookup(envExecutablePath); ok && v != "" {
		l.ExecutablePath = v
	}
	if v, ok := lookup(envHeadless); ok && v != "" {
		var b null.Bool
		if err := b.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("parsing %s: %w", envHeadless, err)
		}
		l.Headless = b
	}
	if v, ok := lookup(envArgs); ok && v != "" {
		l.Args = append(l.Args, strings.Fields(v)...)
	}
	if v, ok := lookup(envTimeout); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", envTimeout, err)
		}
		if d <= 0 {
			return fmt.Errorf("parsing %s: timeout must be positive, got %s", envTimeout, d)
		}
		l.Timeout = d
	}

	return nil
}

// IsHeadless reports whether the browser runs without a window.
func (l *LaunchOptions) IsHeadless() bool {
	if !l.Headless.Valid {
		return true
	}
	return l.Headless.Bool
}

// BrowserArgs returns the command line for a browser using dataDir as its
// user data directory. User supplied args are appended last so that they
// win over the defaults.
func (l *LaunchOptions) BrowserArgs(dataDir string) []string {
	args := make([]string, 0, len(defaultArgs)+len(l.Args)+6)
	args = append(args, defaultArgs...)
	if l.IsHeadless() {
		args = append(args, "--headless=new", "--hide-scrollbars")
	}
	args = append(args,
		"--remote-debugging-port=0",
		"--user-data-dir="+dataDir,
	)
	for _, a := range l.Args {
		if !strings.HasPrefix(a, "-") {
			a = "--" + a
		}
		args = append(args, a)
	}

	return append(args, "about:blank")
}
