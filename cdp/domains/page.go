package domains

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	cdpp "github.com/chromedp/cdproto/page"
)

// Page exposes all the CDP Page domain actions.
type Page interface {
	Enable(context.Context) error
	Navigate(ctx context.Context, url string) (frameID string, err error)
}

var _ Page = &page{}

type page struct {
	exec cdp.Executor
}

// NewPage returns a new CDP Page domain wrapper.
func NewPage(exec cdp.Executor) Page {
	return &page{exec}
}

func (p *page) Enable(ctx context.Context) error {
	action := cdpp.Enable()
	if err := action.Do(cdp.WithExecutor(ctx, p.exec)); err != nil {
		return fmt.Errorf("enabling page CDP domain: %w", err)
	}

	return nil
}

// Navigate starts navigating the top frame to url. A navigation the browser
// refuses (DNS failure, blocked request) is reported as an error carrying
// the browser's error text.
func (p *page) Navigate(ctx context.Context, url string) (string, error) {
	action := cdpp.Navigate(url)

	frameID, _, errorText, err := action.Do(cdp.WithExecutor(ctx, p.exec))
	if err != nil {
		return "", fmt.Errorf("navigating to %q: %w", url, err)
	}
	if errorText != "" {
		return "", fmt.Errorf("navigating to %q: %s", url, errorText)
	}

	return frameID.String(), nil
}
