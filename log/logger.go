// Package log provides the category based logger used across the harness.
package log

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	envLogLevel          = "DEVTOOLS_LOG"
	envLogCategoryFilter = "DEVTOOLS_LOG_CATEGORY_FILTER"
	envLogCaller         = "DEVTOOLS_LOG_CALLER"
)

// Logger is a logrus logger that tags every entry with a category and the
// time elapsed since the previous entry.
type Logger struct {
	*logrus.Logger

	ctx            context.Context
	mu             sync.Mutex
	lastLogCall    int64
	debugOverride  bool
	categoryFilter *regexp.Regexp
}

// NewNullLogger returns a logger that discards everything.
func NewNullLogger() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewLogger(context.Background(), log, false, nil)
}

// NewLogger wraps logger. When debugOverride is set, entries below the
// logger level are still printed. categoryFilter, if not nil, restricts
// output to the matching categories.
func NewLogger(ctx context.Context, logger *logrus.Logger, debugOverride bool, categoryFilter *regexp.Regexp) *Logger {
	return &Logger{
		ctx:            ctx,
		Logger:         logger,
		debugOverride:  debugOverride,
		categoryFilter: categoryFilter,
	}
}

// LookupFunc looks up environment variables.
type LookupFunc func(key string) (string, bool)

// NewFromEnv creates a logger writing to out configured by the DEVTOOLS_LOG*
// environment variables.
func NewFromEnv(ctx context.Context, out io.Writer, lookup LookupFunc) (*Logger, error) {
	lg := logrus.New()
	lg.SetOutput(out)
	lg.SetLevel(logrus.InfoLevel)

	var filter *regexp.Regexp
	if v, ok := lookup(envLogCategoryFilter); ok && v != "" {
		re, err := regexp.Compile(v)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", envLogCategoryFilter, err)
		}
		filter = re
	}

	l := NewLogger(ctx, lg, false, filter)
	if v, ok := lookup(envLogLevel); ok && v != "" {
		if err := l.SetLevel(v); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", envLogLevel, err)
		}
	}
	if v, ok := lookup(envLogCaller); ok && v != "" && v != "false" {
		l.ReportCaller()
	}

	return l, nil
}

// Tracef logs a trace message.
func (l *Logger) Tracef(category string, msg string, args ...interface{}) {
	l.Logf(logrus.TraceLevel, category, msg, args...)
}

// Debugf logs a debug message.
func (l *Logger) Debugf(category string, msg string, args ...interface{}) {
	l.Logf(logrus.DebugLevel, category, msg, args...)
}

// Errorf logs an error message.
func (l *Logger) Errorf(category string, msg string, args ...interface{}) {
	l.Logf(logrus.ErrorLevel, category, msg, args...)
}

// Infof logs an info message.
func (l *Logger) Infof(category string, msg string, args ...interface{}) {
	l.Logf(logrus.InfoLevel, category, msg, args...)
}

// Warnf logs a warning message.
func (l *Logger) Warnf(category string, msg string, args ...interface{}) {
	l.Logf(logrus.WarnLevel, category, msg, args...)
}

// Logf logs a message at level under category.
func (l *Logger) Logf(level logrus.Level, category string, msg string, args ...interface{}) {
	if l == nil || l.Logger == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// don't log if the current log level isn't in the required level.
	if l.Logger.GetLevel() < level && !l.debugOverride {
		return
	}
	if l.categoryFilter != nil && !l.categoryFilter.MatchString(category) {
		return
	}

	now := time.Now().UnixNano() / int64(time.Millisecond)
	elapsed := now - l.lastLogCall
	if elapsed == now {
		elapsed = 0
	}
	defer func() {
		l.lastLogCall = now
	}()

	entry := l.Logger.WithFields(logrus.Fields{
		"category": category,
		"elapsed":  fmt.Sprintf("%d ms", elapsed),
	})
	if l.Logger.GetLevel() < level && l.debugOverride {
		entry.Printf(msg, args...)
		return
	}
	entry.Logf(level, msg, args...)
}

// SetLevel sets the logger level from a level string.
// Accepted values are the logrus level names.
func (l *Logger) SetLevel(level string) error {
	pl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.Logger.SetLevel(pl)
	return nil
}

// DebugMode returns true if the logger level is set to Debug or higher.
func (l *Logger) DebugMode() bool {
	return l.Logger.GetLevel() >= logrus.DebugLevel
}

// ReportCaller adds source file and function names to the log entries.
func (l *Logger) ReportCaller() {
	const mod = "github.com/grafana/devtools-scenarios"

	strip := func(s string) string {
		if !strings.Contains(s, mod) {
			return s
		}
		s = strings.TrimPrefix(s, mod)
		if i := strings.Index(s, "/"); i >= 0 {
			s = s[i+1:]
		}
		return s
	}
	l.Logger.SetFormatter(&logrus.TextFormatter{
		CallerPrettyfier: func(f *runtime.Frame) (string, string) {
			return strip(f.Function), fmt.Sprintf("%s:%d", strip(f.File), f.Line)
		},
	})
	l.Logger.SetReportCaller(true)
}
