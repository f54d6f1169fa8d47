package middleware

import (
	"context"
	"net/http"

	"github.com/danilofalcao/ai-relay/internal/utils"
	contextutils "github.com/danilofalcao/ai-relay/internal/utils/context"
	logutils "github.com/danilofalcao/ai-relay/internal/utils/logger"
)

const RequestIDHeader = "X-Request-ID"

// withContext takes the server's logger and a request ID and sets them on the
// request's context.
func withContext(srvCtx context.Context, next http.Handler) http.Handler {
	lgr := logutils.FromContext(srvCtx)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = utils.GenerateRequestID()
		}
		ctx := logutils.ContextWithLogger(r.Context(), lgr)
		ctx = contextutils.WithRequestID(ctx, requestID)
		w.Header().Set(RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
