package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/ddmuddatsir/marketin-website-sub000/internal/cache"
	cacheredis "github.com/ddmuddatsir/marketin-website-sub000/internal/cache/redis"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/cache/sqlite"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/catalog"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/config"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/domain"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/engine"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/event"
	handler "github.com/ddmuddatsir/marketin-website-sub000/internal/handler/http"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/monitor"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/profile"
	"github.com/ddmuddatsir/marketin-website-sub000/internal/remote"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/database"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/health"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/httpclient"
	pkgkafka "github.com/ddmuddatsir/marketin-website-sub000/pkg/kafka"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/middleware"
	"github.com/ddmuddatsir/marketin-website-sub000/pkg/tracing"
)

// ServiceName identifies the sync agent in logs, metrics and traces.
const ServiceName = "cartsync"

// App wires together all dependencies and runs the sync agent.
type App struct {
	cfg             *config.Config
	logger          *slog.Logger
	profile         profile.Profile
	monitor         *monitor.Monitor
	engines         []*engine.Engine
	producer        *pkgkafka.Producer
	closeBackend    func() error
	tracingShutdown func(context.Context) error
	router          http.Handler
	httpServer      *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Tracing.
	tracingCfg := tracing.DefaultConfig(ServiceName)
	tracingCfg.Environment = cfg.Environment
	tracingCfg.OTLPEndpoint = cfg.OTELEndpoint
	tracingCfg.SampleRate = cfg.OTELSampleRate
	tracingCfg.Enabled = cfg.OTELEnabled
	tracingShutdown, err := tracing.InitTracer(ctx, tracingCfg)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	// Browser profile scoping the cache keys.
	prof, err := profile.LoadOrCreate(cfg.ProfilePath)
	if err != nil {
		logger.Warn("profile not persisted, using an ephemeral one",
			slog.String("path", cfg.ProfilePath),
			slog.String("error", err.Error()),
		)
	}
	logger.Info("profile loaded", slog.String("profile_id", prof.ID))

	healthHandler := health.NewHandler()

	// Local cache backend.
	backend, closeBackend, err := OpenBackend(ctx, cfg, logger, healthHandler)
	if err != nil {
		_ = tracingShutdown(context.Background())
		return nil, err
	}

	mon := monitor.New(true, logger)

	// Remote store and catalog clients. Adds are not idempotent, so the remote
	// client never retries on its own.
	remoteHTTP := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.Config{
			Timeout:         cfg.RemoteTimeout,
			MaxRetries:      0,
			RetryWaitMin:    time.Second,
			RetryWaitMax:    5 * time.Second,
			MaxConnsPerHost: 16,
		}),
		httpclient.DefaultCircuitBreakerConfig("cart-service"),
		logger,
	)
	var limiter *rate.Limiter
	if cfg.RemoteRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RemoteRateLimit), cfg.RemoteBurst)
	}
	remoteClient := remote.NewClient(remoteHTTP, cfg.RemoteURL, mon.Token, limiter, logger)

	catalogHTTPCfg := httpclient.DefaultConfig()
	catalogHTTPCfg.Timeout = cfg.RemoteTimeout
	catalogHTTPCfg.MaxRetries = 2
	catalogHTTP := httpclient.NewCircuitBreakerClient(
		httpclient.New(catalogHTTPCfg),
		httpclient.DefaultCircuitBreakerConfig("product-catalog"),
		logger,
	)
	catalogClient := catalog.NewClient(catalogHTTP, cfg.CatalogURL, cfg.CatalogTTL, logger)
	mon.Subscribe(func(t monitor.Transition) {
		if t.Purge {
			catalogClient.Purge()
		}
	})

	// Event publishing.
	var (
		producer  *pkgkafka.Producer
		publisher engine.Publisher = engine.NopPublisher{}
	)
	if cfg.KafkaEnabled {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(producer, prof.ID, logger)
		healthHandler.RegisterNonCritical("kafka", producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Sync engines.
	engines := make([]*engine.Engine, 0, 2)
	collections := make([]handler.Collection, 0, 2)
	for _, kind := range []domain.Kind{domain.KindCart, domain.KindWishlist} {
		l := logger.With(slog.String("kind", string(kind)))
		e, err := engine.New(engine.Options{
			Kind:           kind,
			Remote:         remoteClient,
			Cache:          cache.NewStore(backend, prof.ID, kind, l),
			Monitor:        mon,
			Catalog:        catalogClient,
			Publisher:      publisher,
			Logger:         l,
			ConfirmTimeout: cfg.ConfirmTimeout,
		})
		if err != nil {
			for _, started := range engines {
				started.Close()
			}
			_ = closeBackend()
			_ = tracingShutdown(context.Background())
			return nil, fmt.Errorf("create %s engine: %w", kind, err)
		}
		engines = append(engines, e)
		collections = append(collections, e)
	}

	tokens := monitor.NewTokenParser(cfg.JWTSecret)
	if !tokens.Verifies() {
		logger.Warn("JWT_SECRET is not set, identity tokens are decoded without verification")
	}

	h := handler.NewHandler(handler.Options{
		Collections:   collections,
		Session:       mon,
		Tokens:        tokens,
		ProfileID:     prof.ID,
		WaitTimeout:   cfg.WaitTimeout,
		StreamOrigins: handler.OriginPatterns(cfg.CORSOrigins),
		Logger:        logger,
	})

	corsCfg := middleware.DefaultCORSConfig(cfg.CORSOrigins...)
	corsCfg.Environment = cfg.Environment
	router := handler.NewRouter(h, healthHandler, logger, handler.RouterConfig{
		ServiceName:    ServiceName,
		APIKey:         cfg.APIKey,
		CORS:           corsCfg,
		RequestTimeout: cfg.RequestTimeout,
	})

	// State streams are long-lived, so there is no server-wide write timeout;
	// request handlers are bounded by the router instead.
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &App{
		cfg:             cfg,
		logger:          logger,
		profile:         prof,
		monitor:         mon,
		engines:         engines,
		producer:        producer,
		closeBackend:    closeBackend,
		tracingShutdown: tracingShutdown,
		router:          router,
		httpServer:      httpServer,
	}, nil
}

// Handler returns the HTTP handler serving the local API.
func (a *App) Handler() http.Handler {
	return a.router
}

// ProfileID returns the browser profile the agent syncs for.
func (a *App) ProfileID() string {
	return a.profile.ID
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	// Pending confirmations settle as rolled back; the cache keeps the last state.
	for _, e := range a.engines {
		e.Close()
	}

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		}
	}

	if err := a.closeBackend(); err != nil {
		a.logger.Error("cache backend close error", slog.String("error", err.Error()))
	}

	if err := a.tracingShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracing shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}

// OpenBackend opens the configured cache backend. Health checks are registered on
// healthHandler when it is not nil. The returned func releases the backend.
func OpenBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger, healthHandler *health.Handler) (cache.Backend, func() error, error) {
	noop := func() error { return nil }

	switch cfg.CacheBackend {
	case config.BackendMemory:
		return cache.NewMemoryBackend(cfg.CacheQuota), noop, nil

	case config.BackendFile:
		dir, err := profile.ExpandPath(cfg.CacheDir)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve cache dir: %w", err)
		}
		b, err := cache.NewFileBackend(dir, cfg.CacheQuota)
		if err != nil {
			return nil, nil, fmt.Errorf("open file cache: %w", err)
		}
		logger.Info("using file cache", slog.String("dir", dir))
		return b, noop, nil

	case config.BackendSQLite:
		path, err := profile.ExpandPath(cfg.CacheSQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("resolve sqlite path: %w", err)
		}
		b, err := sqlite.Open(ctx, path, cfg.CacheQuota)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite cache: %w", err)
		}
		database.SetSlowQueryLogging(100*time.Millisecond, logger)
		if err := database.RegisterDBMetrics(prometheus.DefaultRegisterer, b.DB(), ServiceName); err != nil {
			logger.Warn("sqlite metrics not registered", slog.String("error", err.Error()))
		}
		if healthHandler != nil {
			healthHandler.RegisterCritical("sqlite", b.Ping)
		}
		logger.Info("using sqlite cache", slog.String("path", path))
		return b, b.Close, nil

	case config.BackendRedis:
		client, err := database.NewRedisClient(ctx, database.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("open redis cache: %w", err)
		}
		if healthHandler != nil {
			healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			})
		}
		return cacheredis.NewBackend(client, cfg.CacheRedisKey, cfg.CacheRedisTTL, cfg.CacheQuota), client.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}
