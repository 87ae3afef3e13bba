package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	pkgconfig "github.com/ddmuddatsir/marketin-website-sub000/pkg/config"
)

// Cache backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config holds all configuration for the sync agent.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort       int           `env:"SYNC_HTTP_PORT" envDefault:"8090"`
	APIKey         string        `env:"SYNC_API_KEY" envDefault:""`
	CORSOrigins    []string      `env:"SYNC_CORS_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	RequestTimeout time.Duration `env:"SYNC_REQUEST_TIMEOUT" envDefault:"30s"`
	WaitTimeout    time.Duration `env:"SYNC_WAIT_TIMEOUT" envDefault:"10s"`

	// Browser profile
	ProfilePath string `env:"SYNC_PROFILE_PATH" envDefault:"~/.config/cartsync/profile.toml"`

	// Local cache
	CacheBackend    string        `env:"SYNC_CACHE_BACKEND" envDefault:"file"`
	CacheDir        string        `env:"SYNC_CACHE_DIR" envDefault:"~/.cache/cartsync"`
	CacheSQLitePath string        `env:"SYNC_CACHE_SQLITE_PATH" envDefault:"~/.cache/cartsync/cache.db"`
	CacheQuota      int           `env:"SYNC_CACHE_QUOTA_BYTES" envDefault:"5242880"`
	CacheRedisTTL   time.Duration `env:"SYNC_CACHE_REDIS_TTL" envDefault:"720h"`
	CacheRedisKey   string        `env:"SYNC_CACHE_REDIS_PREFIX" envDefault:"cartsync:"`

	// Redis
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Remote cart/wishlist service
	RemoteURL       string        `env:"SYNC_REMOTE_URL" envDefault:"http://localhost:8003"`
	RemoteTimeout   time.Duration `env:"SYNC_REMOTE_TIMEOUT" envDefault:"10s"`
	RemoteRateLimit float64       `env:"SYNC_REMOTE_RATE_LIMIT" envDefault:"10"`
	RemoteBurst     int           `env:"SYNC_REMOTE_BURST" envDefault:"20"`
	ConfirmTimeout  time.Duration `env:"SYNC_CONFIRM_TIMEOUT" envDefault:"15s"`

	// Product catalog
	CatalogURL string        `env:"SYNC_CATALOG_URL" envDefault:"http://localhost:8001"`
	CatalogTTL time.Duration `env:"SYNC_CATALOG_TTL" envDefault:"10m"`

	// Identity tokens. Without a secret tokens are decoded but not verified.
	JWTSecret string `env:"JWT_SECRET" envDefault:""`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadWith(nil)
}

// LoadWith reads configuration from environment variables with overrides applied
// on top, as set by command-line flags.
func LoadWith(overrides map[string]string) (*Config, error) {
	environ := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environ[k] = v
		}
	}
	for k, v := range overrides {
		environ[k] = v
	}

	cfg := &Config{}
	if err := pkgconfig.LoadFrom(cfg, environ); err != nil {
		return nil, fmt.Errorf("load cartsync config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.CacheBackend {
	case BackendMemory, BackendFile, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("SYNC_CACHE_BACKEND must be one of memory, file, sqlite, redis; got %q", c.CacheBackend)
	}
	if c.CacheQuota < 0 {
		return fmt.Errorf("SYNC_CACHE_QUOTA_BYTES must not be negative")
	}
	if err := checkURL("SYNC_REMOTE_URL", c.RemoteURL); err != nil {
		return err
	}
	if err := checkURL("SYNC_CATALOG_URL", c.CatalogURL); err != nil {
		return err
	}
	if c.RemoteRateLimit < 0 {
		return fmt.Errorf("SYNC_REMOTE_RATE_LIMIT must not be negative")
	}
	if c.ConfirmTimeout <= 0 || c.RequestTimeout <= 0 || c.WaitTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.OTELSampleRate)
	}
	return nil
}

func checkURL(name, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", name, raw)
	}
	return nil
}
