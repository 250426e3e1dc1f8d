package cdp

import (
	"context"

	"github.com/chromedp/cdproto/target"
)

type ctxKey int

const (
	ctxKeySessionID ctxKey = iota
)

// WithSessionID returns a context that routes commands executed with it to
// the given target session.
func WithSessionID(ctx context.Context, sessionID target.SessionID) context.Context {
	return context.WithValue(ctx, ctxKeySessionID, sessionID)
}

// GetSessionID returns the target session ID stored in ctx, if any.
func GetSessionID(ctx context.Context) target.SessionID {
	if sid, ok := ctx.Value(ctxKeySessionID).(target.SessionID); ok {
		return sid
	}
	return ""
}
