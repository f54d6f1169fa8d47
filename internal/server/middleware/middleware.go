package middleware

import (
	"context"
	"net/http"
)

type Params struct {
	Cors CorsOptions
}

func Wrap(ctx context.Context, handler http.Handler, params Params) http.Handler {
	// These middlewares will be executed in the reverse order of their
	// wrapping. i.e. the last wrap operation will be the first one executed
	// on a request.
	handler = withCors(handler, params.Cors)
	handler = withLogging(handler)
	handler = withContext(ctx, handler)
	return handler
}
