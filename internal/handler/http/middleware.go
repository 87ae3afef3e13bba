package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/domain"
	apperrors "github.com/ddmuddatsir/marketin-website-sub000/pkg/errors"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const collectionKey contextKey = "collection"

// CollectionCtx resolves the {kind} URL parameter to its collection and stores
// it in the request context. Unknown kinds are rejected with 404.
func (h *Handler) CollectionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "kind")
		kind, err := domain.ParseKind(raw)
		if err != nil {
			h.writeError(w, r, apperrors.NotFound("collection", raw))
			return
		}
		c, ok := h.collections[kind]
		if !ok {
			h.writeError(w, r, apperrors.NotFound("collection", raw))
			return
		}
		ctx := context.WithValue(r.Context(), collectionKey, c)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func collectionFromContext(ctx context.Context) Collection {
	c, _ := ctx.Value(collectionKey).(Collection)
	return c
}

// ContentTypeJSON enforces that requests with a body have Content-Type: application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > 0 || r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			ct := r.Header.Get("Content-Type")
			if ct != "" && !strings.HasPrefix(ct, "application/json") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":{"code":"UNSUPPORTED_MEDIA_TYPE","message":"Content-Type must be application/json"}}`))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
