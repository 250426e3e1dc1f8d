// Package harness provides scoped browser sessions: each one launches (or
// connects to) a browser, attaches a DevTools session to a fresh page and
// tears everything down on Close.
package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto"
	cdpexec "github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
	"github.com/tidwall/gjson"

	"github.com/grafana/devtools-scenarios/browserprocess"
	"github.com/grafana/devtools-scenarios/cdp"
	"github.com/grafana/devtools-scenarios/common"
	"github.com/grafana/devtools-scenarios/log"
	"github.com/grafana/devtools-scenarios/storage"
)

const (
	teardownTimeout     = 5 * time.Second
	browserCloseTimeout = 5 * time.Second
)

// Action is a step sent to the browser, such as a cdproto command.
type Action interface {
	Do(ctx context.Context) error
}

// ActionFunc adapts a function to an Action.
type ActionFunc func(ctx context.Context) error

// Do calls f(ctx).
func (f ActionFunc) Do(ctx context.Context) error { return f(ctx) }

// EventObserver is told about every event delivered to a listener.
type EventObserver func(evt *cdp.Event)

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithEventObserver sets an observer of the events delivered to listeners.
func WithEventObserver(o EventObserver) SessionOption {
	return func(s *Session) { s.observer = o }
}

var _ cdpexec.Executor = &Session{}

// Session is a live browser with a DevTools session attached to one page.
// It is owned by a single scenario and must be closed.
type Session struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config
	logger *log.Logger

	browserProc *common.BrowserProcess
	dataDir     *storage.Dir
	client      *cdp.Client

	targetID  target.ID
	sessionID target.SessionID

	observer EventObserver

	listenersMu sync.Mutex
	listeners   []func()
	listenersWg sync.WaitGroup

	closeOnce sync.Once
	closeErr  error

	// Wait polls the page for UI conditions.
	Wait *Waiter
}

// NewSession starts a browser, or connects to cfg.WSURL, opens a blank page
// and attaches a DevTools session to it. The session is torn down when
// setup fails.
func NewSession(ctx context.Context, cfg Config, logger *log.Logger, opts ...SessionOption) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Launch == nil {
		cfg.Launch = common.NewLaunchOptions()
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		ctx:    sctx,
		cancel: cancel,
		cfg:    cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Wait = newWaiter(s, cfg.WaitTimeout, cfg.PollInterval)

	if err := s.setup(); err != nil {
		if cerr := s.Close(); cerr != nil {
			s.logger.Debugf("Session:setup", "tearing down after failed setup: %v", cerr)
		}
		return nil, err
	}

	return s, nil
}

func (s *Session) setup() error {
	wsURL := s.cfg.WSURL
	if wsURL == "" {
		var err error
		if wsURL, err = s.launch(); err != nil {
			return err
		}
	}

	s.client = cdp.NewClient(s.ctx, s.logger)
	if err := s.client.Connect(wsURL); err != nil {
		return fmt.Errorf("connecting to browser: %w", err)
	}

	var err error
	if s.targetID, err = s.client.Target.CreateTarget(s.ctx, "about:blank"); err != nil {
		return err
	}
	if s.sessionID, err = s.client.Target.AttachToTarget(s.ctx, s.targetID); err != nil {
		return err
	}
	s.ctx = cdpexec.WithExecutor(cdp.WithSessionID(s.ctx, s.sessionID), s)
	s.logger.Debugf("Session:setup", "targetID:%v sid:%v", s.targetID, s.sessionID)

	if err := s.client.Page.Enable(s.ctx); err != nil {
		return err
	}
	if err := s.client.Runtime.Enable(s.ctx); err != nil {
		return err
	}

	return nil
}

func (s *Session) launch() (string, error) {
	path, err := common.FindExecutable(s.cfg.Launch.ExecutablePath)
	if err != nil {
		return "", err
	}

	s.dataDir = &storage.Dir{}
	if err := s.dataDir.Make(s.cfg.TmpDir, ""); err != nil {
		return "", err
	}

	proc, err := common.NewBrowserProcess(
		s.ctx, path, s.cfg.Launch.BrowserArgs(s.dataDir.Dir), s.cfg.Launch.Env,
		s.dataDir, s.cfg.Launch.Timeout, s.logger,
	)
	if err != nil {
		return "", fmt.Errorf("launching browser %q: %w", path, err)
	}
	s.browserProc = proc
	browserprocess.Register(s.ctx, s.logger, proc.Pid())

	return proc.WsURL(), nil
}

// Context returns the session's context. cdproto actions run with it are
// sent to the session's page.
func (s *Session) Context() context.Context {
	return s.ctx
}

// BrowserContext returns a context whose cdproto actions are sent to the
// browser target instead of the session's page.
func (s *Session) BrowserContext() context.Context {
	return cdpexec.WithExecutor(cdp.WithSessionID(s.ctx, ""), s.client)
}

// TargetID returns the ID of the session's page.
func (s *Session) TargetID() target.ID {
	return s.targetID
}

// Execute implements cdp.Executor, sending commands to the session's page.
func (s *Session) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	return s.client.Execute(cdp.WithSessionID(ctx, s.sessionID), method, params, res)
}

// Run performs actions in order and stops at the first failure.
func (s *Session) Run(actions ...Action) error {
	for _, a := range actions {
		if err := a.Do(s.ctx); err != nil {
			return err
		}
	}

	return nil
}

// Navigate loads url in the session's page and waits for its load event.
func (s *Session) Navigate(url string) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.NavigationTimeout)
	defer cancel()

	// Subscribe before navigating, so a fast load can't be missed.
	loaded, unsubscribe := s.client.Subscribe(ctx, cdproto.EventPageLoadEventFired)
	defer unsubscribe()

	if _, err := s.client.Page.Navigate(ctx, url); err != nil {
		return err
	}

	select {
	case _, ok := <-loaded:
		if !ok {
			return fmt.Errorf("navigating to %q: %w", url, cdp.ErrConnectionClosed)
		}
		s.logger.Debugf("Session:Navigate", "loaded url:%q", url)
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("navigating to %q: load event not fired within %s: %w",
				url, s.cfg.NavigationTimeout, ErrWaitTimeout)
		}
		return ctx.Err()
	}
}

// Eval evaluates expression in the page and returns its JSON value.
func (s *Session) Eval(expression string) (gjson.Result, error) {
	return s.eval(s.ctx, expression)
}

// Browser returns the browser level CDP client.
func (s *Session) Browser() *cdp.Client {
	return s.client
}

// Close tears the session down: listeners are cancelled, the page is closed
// and the browser is shut down and removed from disk. It runs every step
// even when some fail and is safe to call more than once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.teardown()
	})
	return s.closeErr
}

func (s *Session) teardown() error {
	var errs []error

	s.listenersMu.Lock()
	cancels := s.listeners
	s.listeners = nil
	s.listenersMu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}

	// The session context may already be done, so teardown commands use
	// their own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if s.client != nil && s.targetID != "" && s.browserProc == nil {
		if err := s.client.Target.CloseTarget(ctx, s.targetID); err != nil {
			errs = append(errs, err)
		}
	}
	if s.client != nil && s.browserProc != nil {
		if err := s.client.Browser.Close(ctx); err != nil && !errors.Is(err, cdp.ErrConnectionClosed) {
			s.logger.Debugf("Session:teardown", "closing browser gracefully: %v", err)
		}
	}
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Debugf("Session:teardown", "closing CDP connection: %v", err)
		}
	}
	s.listenersWg.Wait()

	switch {
	case s.browserProc != nil:
		select {
		case <-s.browserProc.Done():
		case <-time.After(browserCloseTimeout):
			s.logger.Warnf("Session:teardown", "browser pid:%d did not exit, killing it", s.browserProc.Pid())
		}
		s.browserProc.Terminate()
		browserprocess.Unregister(s.ctx, s.browserProc.Pid())
	case s.dataDir != nil:
		// The browser never started, so nothing else will remove it.
		if err := s.dataDir.Cleanup(); err != nil {
			errs = append(errs, err)
		}
	}

	s.cancel()

	return errors.Join(errs...)
}
