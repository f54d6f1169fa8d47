package middleware

import (
	"net/http"
	"slices"
	"strings"

	logutils "github.com/danilofalcao/ai-relay/internal/utils/logger"
)

// CorsOptions describes the single origin allowed to call the relay from a browser
type CorsOptions struct {
	AllowedOrigin  string
	AllowedMethods []string
	AllowedHeaders []string
}

// withCors rejects cross-origin requests from anywhere but the allowed origin
// and answers preflights itself. Requests without an Origin header are not
// cross-origin and pass through untouched.
func withCors(next http.Handler, opts CorsOptions) http.Handler {
	allowedMethods := strings.Join(opts.AllowedMethods, ", ")
	allowedHeaders := strings.Join(opts.AllowedHeaders, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Add("Vary", "Origin")
		if origin != opts.AllowedOrigin {
			logutils.FromContext(ctx).Warnf(ctx, "Rejected request from origin %s", origin)
			http.Error(w, "Origin not allowed", http.StatusForbidden)
			return
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)

		reqMethod := r.Header.Get("Access-Control-Request-Method")
		if r.Method != http.MethodOptions || reqMethod == "" {
			next.ServeHTTP(w, r)
			return
		}

		// preflight
		if !slices.Contains(opts.AllowedMethods, strings.ToUpper(reqMethod)) {
			logutils.FromContext(ctx).Warnf(ctx, "Rejected preflight for method %s", reqMethod)
			http.Error(w, "Method not allowed", http.StatusForbidden)
			return
		}
		for _, h := range strings.Split(r.Header.Get("Access-Control-Request-Headers"), ",") {
			h = strings.TrimSpace(h)
			if h == "" {
				continue
			}
			if !slices.ContainsFunc(opts.AllowedHeaders, func(a string) bool { return strings.EqualFold(a, h) }) {
				logutils.FromContext(ctx).Warnf(ctx, "Rejected preflight for header %s", h)
				http.Error(w, "Header not allowed", http.StatusForbidden)
				return
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
		w.WriteHeader(http.StatusNoContent)
	})
}
