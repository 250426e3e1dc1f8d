package browserprocess

import (
	"context"
)

type ctxKey int

const (
	ctxKeyRunID ctxKey = iota
)

// WithRunID saves the current scenario run ID to the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, ctxKeyRunID, runID)
}

// GetRunID returns the current scenario run ID from the context.
func GetRunID(ctx context.Context) string {
	rID, _ := ctx.Value(ctxKeyRunID).(string)
	return rID
}
