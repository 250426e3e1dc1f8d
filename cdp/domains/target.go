package domains

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpt "github.com/chromedp/cdproto/target"
)

// Target exposes the CDP Target domain actions used to open and attach to
// pages.
type Target interface {
	CreateTarget(ctx context.Context, url string) (cdpt.ID, error)
	AttachToTarget(ctx context.Context, id cdpt.ID) (cdpt.SessionID, error)
	CloseTarget(ctx context.Context, id cdpt.ID) error
}

var _ Target = &target{}

type target struct {
	exec cdp.Executor
}

// NewTarget returns a new CDP Target domain wrapper.
func NewTarget(exec cdp.Executor) Target {
	return &target{exec}
}

func (t *target) CreateTarget(ctx context.Context, url string) (cdpt.ID, error) {
	action := cdpt.CreateTarget(url)
	id, err := action.Do(cdp.WithExecutor(ctx, t.exec))
	if err != nil {
		return "", fmt.Errorf("creating target for %q: %w", url, err)
	}

	return id, nil
}

// AttachToTarget attaches to id in flat mode, so that commands for the
// returned session are sent over the browser connection.
func (t *target) AttachToTarget(ctx context.Context, id cdpt.ID) (cdpt.SessionID, error) {
	action := cdpt.AttachToTarget(id).WithFlatten(true)
	sid, err := action.Do(cdp.WithExecutor(ctx, t.exec))
	if err != nil {
		return "", fmt.Errorf("attaching to target %v: %w", id, err)
	}

	return sid, nil
}

func (t *target) CloseTarget(ctx context.Context, id cdpt.ID) error {
	action := cdpt.CloseTarget(id)
	if err := action.Do(cdp.WithExecutor(ctx, t.exec)); err != nil {
		return fmt.Errorf("closing target %v: %w", id, err)
	}

	return nil
}
