package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
)

// ErrWaitTimeout is returned when a UI condition isn't met in time.
var ErrWaitTimeout = errors.New("timed out waiting")

// Element states reported by the page.
const (
	stateMissing   = "missing"
	stateHidden    = "hidden"
	stateDisabled  = "disabled"
	stateClickable = "clickable"
)

// Waiter polls the page until a condition holds or its timeout expires.
type Waiter struct {
	s        *Session
	timeout  time.Duration
	interval time.Duration
}

func newWaiter(s *Session, timeout, interval time.Duration) *Waiter {
	return &Waiter{s: s, timeout: timeout, interval: interval}
}

// Timeout returns how long the waiter polls.
func (w *Waiter) Timeout() time.Duration {
	return w.timeout
}

// Until polls cond until it returns true. It fails on the first error of
// cond, and with ErrWaitTimeout when the timeout expires. cond is always
// called at least once.
func (w *Waiter) Until(desc string, cond func(ctx context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(w.s.ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		ok, err := cond(ctx)
		switch {
		case ok:
			return nil
		case err != nil && ctx.Err() == nil:
			return err
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w %s for %s", ErrWaitTimeout, w.timeout, desc)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// UntilClickable waits for the element located by l to be present, visible
// and enabled.
func (w *Waiter) UntilClickable(l Locator) (*Element, error) {
	return w.untilState(l, stateClickable)
}

// UntilPresent waits for the element located by l to be in the document.
func (w *Waiter) UntilPresent(l Locator) (*Element, error) {
	return w.untilState(l, stateHidden, stateDisabled, stateClickable)
}

func (w *Waiter) untilState(l Locator, want ...string) (*Element, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	last := stateMissing
	err := w.Until(l.String(), func(ctx context.Context) (bool, error) {
		res, err := w.s.eval(ctx, elementStateJS(l))
		if err != nil {
			return false, err
		}
		last = res.String()
		for _, s := range want {
			if last == s {
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w (element is %s)", err, last)
	}

	return &Element{s: w.s, locator: l}, nil
}

// Find returns the element located by l without waiting for it.
func (s *Session) Find(l Locator) (*Element, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	res, err := s.eval(s.ctx, elementStateJS(l))
	if err != nil {
		return nil, err
	}
	if res.String() == stateMissing {
		return nil, fmt.Errorf("no element found for %s", l)
	}

	return &Element{s: s, locator: l}, nil
}

// Element is an element of the session's page, located again on every use.
type Element struct {
	s       *Session
	locator Locator
}

// Locator returns the element's locator.
func (e *Element) Locator() Locator {
	return e.locator
}

// Text returns the rendered text of the element.
func (e *Element) Text() (string, error) {
	res, err := e.s.eval(e.s.ctx, `(() => {
		const el = `+e.locator.query()+`;
		if (!el) return null;
		return el.innerText ?? el.textContent;
	})()`)
	if err != nil {
		return "", err
	}
	if res.Type == gjson.Null {
		return "", fmt.Errorf("getting text: no element found for %s", e.locator)
	}

	return res.String(), nil
}

// Click clicks the element.
func (e *Element) Click() error {
	res, err := e.s.eval(e.s.ctx, `(() => {
		const el = `+e.locator.query()+`;
		if (!el) return false;
		el.scrollIntoView({block: "center"});
		el.click();
		return true;
	})()`)
	if err != nil {
		return err
	}
	if !res.Bool() {
		return fmt.Errorf("clicking: no element found for %s", e.locator)
	}

	return nil
}

func elementStateJS(l Locator) string {
	return `(() => {
		const el = ` + l.query() + `;
		if (!el) return "` + stateMissing + `";
		const style = window.getComputedStyle(el);
		if (style.visibility === "hidden" || style.display === "none" || el.getClientRects().length === 0) {
			return "` + stateHidden + `";
		}
		if (el.disabled) return "` + stateDisabled + `";
		return "` + stateClickable + `";
	})()`
}

func (s *Session) eval(ctx context.Context, expression string) (gjson.Result, error) {
	raw, err := s.client.Runtime.Evaluate(ctx, expression)
	if err != nil {
		return gjson.Result{}, err
	}

	return gjson.ParseBytes(raw), nil
}
