package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ddmuddatsir/marketin-website-sub000/pkg/logger"
)

// SessionFunc reports the browser profile and signed-in user the request acts for.
// Either value may be empty.
type SessionFunc func(ctx context.Context) (profileID, userID string)

// RequestLogger returns middleware that builds a request-scoped logger enriched
// with correlation_id, profile_id, user_id, trace_id and span_id, and stores it
// in context via logger.NewContext.
//
// Mount it after RequestLogging (which sets correlation_id) and Tracing (which
// sets the span context).
func RequestLogger(base *slog.Logger, session SessionFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if session != nil {
				profileID, userID := session(ctx)
				if profileID != "" {
					ctx = logger.WithProfileID(ctx, profileID)
				}
				if userID != "" {
					ctx = logger.WithUserID(ctx, userID)
				}
			}

			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
