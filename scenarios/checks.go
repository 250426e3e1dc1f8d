package scenarios

import (
	"net"
	"regexp"
	"sort"
	"strings"

	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/performance"
	"github.com/chromedp/cdproto/profiler"
	"github.com/pkg/errors"
	"golang.org/x/net/publicsuffix"

	"github.com/grafana/devtools-scenarios/harness"
)

// errAssertion marks failures of what a scenario checks, as opposed to
// failures driving the browser.
var errAssertion = errors.New("assertion failed")

func assertionf(format string, args ...interface{}) error {
	return errors.Wrapf(errAssertion, format, args...)
}

// IsAssertion reports whether err is a failed check of a scenario.
func IsAssertion(err error) bool {
	return errors.Is(err, errAssertion)
}

func isTimeout(err error) bool {
	return errors.Is(err, harness.ErrWaitTimeout)
}

// coordinates are the location a page displays.
type coordinates struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

func checkCoordinatesChanged(before, after coordinates) error {
	if before.Latitude == "" || before.Longitude == "" {
		return assertionf("no location displayed before the override: %+v", before)
	}
	if after.Latitude == before.Latitude {
		return assertionf("displayed latitude %q unchanged after the override", after.Latitude)
	}
	if after.Longitude == before.Longitude {
		return assertionf("displayed longitude %q unchanged after the override", after.Longitude)
	}
	return nil
}

// logLevels maps the level names accepted in targets, including the
// java.util.logging names, to the browser's log levels.
var logLevels = map[string]cdplog.Level{ //nolint:gochecknoglobals
	"verbose": cdplog.LevelVerbose,
	"fine":    cdplog.LevelVerbose,
	"info":    cdplog.LevelInfo,
	"warning": cdplog.LevelWarning,
	"error":   cdplog.LevelError,
	"severe":  cdplog.LevelError,
}

func parseLogLevel(s string) (cdplog.Level, error) {
	l, ok := logLevels[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", errors.Errorf("unknown log level %q", s)
	}
	return l, nil
}

func checkLogLevels(entries []*cdplog.Entry, want cdplog.Level) error {
	if len(entries) == 0 {
		return assertionf("no log entry was added")
	}
	for _, e := range entries {
		if e.Level != want {
			return assertionf("log entry %q from %s has level %q, want %q", e.Text, e.Source, e.Level, want)
		}
	}
	return nil
}

// hasCookie reports whether a cookie named name exists, ignoring case.
func hasCookie(cookies []*network.Cookie, name string) bool {
	for _, c := range cookies {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

// cookieSites counts cookies by registrable domain, e.g. "google.com" for
// a cookie of ".ads.google.com".
func cookieSites(cookies []*network.Cookie) map[string]int {
	sites := make(map[string]int)
	for _, c := range cookies {
		sites[cookieSite(c.Domain)]++
	}
	return sites
}

func cookieSite(domain string) string {
	host := strings.TrimPrefix(domain, ".")
	if net.ParseIP(host) != nil {
		return host
	}
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return site
}

func cookieNames(cookies []*network.Cookie) []string {
	names := make([]string, 0, len(cookies))
	for _, c := range cookies {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names
}

// loadingFailure is a failed request as reported by Network.loadingFailed.
type loadingFailure struct {
	URL       string                `json:"url"`
	ErrorText string                `json:"errorText"`
	Reason    network.BlockedReason `json:"blockedReason"`
}

// blockedURLMatcher matches URLs the way Network.setBlockedURLs patterns
// do: '*' matches any run of characters and the rest is literal.
func blockedURLMatcher(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile("^" + strings.Join(parts, ".*") + "$")
}

func checkBlocked(failures []loadingFailure, pattern string) error {
	blocked := blockedURLMatcher(pattern)

	var n int
	for _, f := range failures {
		if !blocked.MatchString(f.URL) {
			continue
		}
		n++
		if f.Reason != network.BlockedReasonInspector {
			return assertionf("loading %q failed with reason %q (%s), want %q",
				f.URL, f.Reason, f.ErrorText, network.BlockedReasonInspector)
		}
	}
	if n == 0 {
		return assertionf("loading %q did not fail", pattern)
	}
	return nil
}

func metricValues(metrics []*performance.Metric) map[string]float64 {
	values := make(map[string]float64, len(metrics))
	for _, m := range metrics {
		values[m.Name] = m.Value
	}
	return values
}

// coveredScripts returns the URLs of the covered scripts and how many of
// them contain fragment.
func coveredScripts(coverage []*profiler.ScriptCoverage, fragment string) ([]string, int) {
	urls := make([]string, 0, len(coverage))
	var matched int
	for _, c := range coverage {
		urls = append(urls, c.URL)
		if fragment != "" && strings.Contains(c.URL, fragment) {
			matched++
		}
	}
	return urls, matched
}
