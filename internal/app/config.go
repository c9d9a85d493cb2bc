package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STOCKROOM_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STOCKROOM_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Storage     string `default:"postgres" usage:"Storage backend: postgres or memory"`
	Auth        AuthConfig
	Paging      PagingConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Health      HealthConfig
	Graceful    GracefulConfig
}

// AuthConfig controls API key protection of catalog writes.
type AuthConfig struct {
	Enabled bool   `default:"false" usage:"Require an api_key header on product writes" flag:"auth-enabled"`
	Pepper  string `usage:"HMAC pepper for API key hashing (STOCKROOM_AUTH_PEPPER)" flag:"auth-pepper"`
}

// PagingConfig controls the skip/limit query parameters of list routes.
type PagingConfig struct {
	DefaultLimit int `default:"100"  usage:"Page size when limit is omitted"`
	MaxLimit     int `default:"1000" usage:"Largest accepted limit"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// HealthConfig controls background health checks.
type HealthConfig struct {
	Interval time.Duration `default:"10s" usage:"Health check interval" flag:"health-interval"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, flags and YAML
// config files, then applies platform defaults and validates the result.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "STOCKROOM",
		Files:     []string{"config.yaml", "/etc/stockroom/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(acfg aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, acfg).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, errors.Wrap(err, "validate config")
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database URL is required: set STOCKROOM_DATABASE_URL or DATABASE_URL")
		}
	case StorageMemory:
		if c.Auth.Enabled {
			return errors.New("auth requires postgres storage")
		}
	default:
		return errors.Errorf("unknown storage %q", c.Storage)
	}
	if c.Auth.Enabled && c.Auth.Pepper == "" {
		return errors.New("auth pepper is required when auth is enabled")
	}
	if c.Paging.DefaultLimit <= 0 || c.Paging.MaxLimit < c.Paging.DefaultLimit {
		return errors.Errorf("invalid paging: default %d, max %d", c.Paging.DefaultLimit, c.Paging.MaxLimit)
	}
	return nil
}
