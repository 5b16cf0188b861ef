package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/EcommerceGo/pkg/logger"
)

// RequestLogger stores a request-scoped logger in the context, enriched with
// correlation_id, user_id, trace_id and span_id. Handlers fetch it with
// logger.FromContext. Mount it after RequestLogging, Tracing and the auth
// middleware so those fields are present.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if uid := UserIDFromContext(ctx); uid != "" {
				ctx = logger.WithUserID(ctx, uid)
			}
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
