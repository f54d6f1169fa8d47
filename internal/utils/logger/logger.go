package logutils

import (
	"context"

	"github.com/danilofalcao/ai-relay/internal/constants"
	"github.com/danilofalcao/ai-relay/internal/server/logger"
)

// FromContext retrieves the logger from the context. Contexts without one get
// the fallback logger so callers never have to nil-check.
func FromContext(ctx context.Context) *logger.Logger {
	if lgr, ok := ctx.Value(constants.LoggerKey).(*logger.Logger); ok && lgr != nil {
		return lgr
	}
	return logger.Fallback
}

// ContextWithLogger adds a logger to the context
func ContextWithLogger(ctx context.Context, lgr *logger.Logger) context.Context {
	return context.WithValue(ctx, constants.LoggerKey, lgr)
}
