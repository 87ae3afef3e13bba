package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ddmuddatsir/marketin-website-sub000/pkg/health"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/middleware"
)

// RouterConfig holds the cross-cutting settings of the local API.
type RouterConfig struct {
	ServiceName    string
	APIKey         string
	CORS           middleware.CORSConfig
	RequestTimeout time.Duration
}

// NewRouter creates a chi router with all sync API routes registered.
func NewRouter(h *Handler, healthHandler *health.Handler, logger *slog.Logger, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger, h.SessionInfo))
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKey(cfg.APIKey))

		// Request/response endpoints share compression and a deadline; the
		// state stream is long-lived and opts out of both.
		api := func(r chi.Router) {
			r.Use(chimw.Compress(5))
			r.Use(chimw.Timeout(cfg.RequestTimeout))
			r.Use(ContentTypeJSON)
		}

		r.Route("/session", func(r chi.Router) {
			api(r)
			r.Get("/", h.GetSession)
			r.Put("/network", h.PutNetwork)
			r.Put("/identity", h.PutIdentity)
			r.Delete("/identity", h.DeleteIdentity)
			r.Put("/identity/loading", h.PutIdentityLoading)
		})

		r.Route("/{kind}", func(r chi.Router) {
			r.Use(h.CollectionCtx)

			r.Get("/stream", h.Stream)

			r.Group(func(r chi.Router) {
				api(r)
				r.Get("/", h.GetCollection)
				r.Delete("/", h.ClearCollection)

				r.Post("/items", h.AddItem)
				r.Put("/items/{productId}", h.UpdateQuantity)
				r.Delete("/items/{productId}", h.RemoveItem)
				r.Post("/items/{productId}/increase", h.IncreaseQuantity)
				r.Post("/items/{productId}/decrease", h.DecreaseQuantity)
			})
		})
	})

	return r
}
