package domains

import (
	"context"
	"fmt"

	cdpb "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
)

// Browser exposes the CDP Browser domain actions used by the harness.
type Browser interface {
	Close(ctx context.Context) error
	GetVersion(ctx context.Context) (
		protocolVersion, product, revision, userAgent, jsVersion string, err error,
	)
	GrantPermissions(ctx context.Context, origin string, perms ...cdpb.PermissionType) error
}

var _ Browser = &browser{}

type browser struct {
	exec cdp.Executor
}

// NewBrowser returns a new CDP Browser domain wrapper.
func NewBrowser(exec cdp.Executor) Browser {
	return &browser{exec}
}

func (b *browser) Close(ctx context.Context) error {
	action := cdpb.Close()
	return action.Do(cdp.WithExecutor(ctx, b.exec))
}

func (b *browser) GetVersion(ctx context.Context) (
	protocolVersion, product, revision, userAgent, jsVersion string, err error,
) {
	action := cdpb.GetVersion()
	return action.Do(cdp.WithExecutor(ctx, b.exec))
}

// GrantPermissions grants perms to origin. An empty origin grants them to
// all origins.
func (b *browser) GrantPermissions(ctx context.Context, origin string, perms ...cdpb.PermissionType) error {
	action := cdpb.GrantPermissions(perms)
	if origin != "" {
		action = action.WithOrigin(origin)
	}
	if err := action.Do(cdp.WithExecutor(ctx, b.exec)); err != nil {
		return fmt.Errorf("granting permissions %v to %q: %w", perms, origin, err)
	}

	return nil
}
