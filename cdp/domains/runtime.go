package domains

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpr "github.com/chromedp/cdproto/runtime"
	"github.com/mailru/easyjson"
)

// Runtime exposes the CDP Runtime domain actions.
type Runtime interface {
	Enable(context.Context) error
	Evaluate(ctx context.Context, expression string) (easyjson.RawMessage, error)
}

var _ Runtime = &runtime{}

type runtime struct {
	exec cdp.Executor
}

// NewRuntime returns a new CDP Runtime domain wrapper.
func NewRuntime(exec cdp.Executor) Runtime {
	return &runtime{exec}
}

func (r *runtime) Enable(ctx context.Context) error {
	action := cdpr.Enable()
	if err := action.Do(cdp.WithExecutor(ctx, r.exec)); err != nil {
		return fmt.Errorf("enabling runtime CDP domain: %w", err)
	}

	return nil
}

// Evaluate evaluates expression in the page, awaiting it if it is a promise,
// and returns the result as JSON. Thrown exceptions are returned as errors.
func (r *runtime) Evaluate(ctx context.Context, expression string) (easyjson.RawMessage, error) {
	action := cdpr.Evaluate(expression).
		WithReturnByValue(true).
		WithAwaitPromise(true)

	res, exception, err := action.Do(cdp.WithExecutor(ctx, r.exec))
	switch {
	case err != nil:
		return nil, fmt.Errorf("evaluating %q: %w", expression, err)
	case exception != nil:
		return nil, fmt.Errorf("evaluating %q: %w", expression, exception)
	case res == nil:
		return nil, nil
	}

	return res.Value, nil
}
