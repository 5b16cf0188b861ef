package config

import (
	"errors"
	"fmt"

	pkgconfig "github.com/utafrali/EcommerceGo/pkg/config"
	"github.com/utafrali/EcommerceGo/pkg/database"
	"github.com/utafrali/EcommerceGo/pkg/tracing"
)

const serviceName = "cart-service"

// Config holds all configuration for the cart service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"CART_HTTP_PORT" envDefault:"8003"`

	Redis database.RedisConfig

	// Cart TTL in hours (default: 7 days)
	CartTTL int `env:"CART_TTL_HOURS" envDefault:"168"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWTSecret switches the API from trusting X-User-ID (behind the gateway)
	// to validating bearer tokens itself.
	JWTSecret string `env:"JWT_SECRET"`

	// Per-user rate limit on the cart API; 0 disables it. The default burst
	// fits a login push of a full cart: a fetch, a clear and one add per line.
	RateLimitRPS   float64 `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int     `env:"RATE_LIMIT_BURST" envDefault:"60"`

	// Proxies whose X-Forwarded-For header is trusted for the per-IP limit.
	TrustedProxies []string `env:"TRUSTED_PROXY_CIDRS" envSeparator:","`

	// Browser origins allowed to call the cart API; empty disables CORS.
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	PprofCIDRs  []string `env:"PPROF_ALLOWED_CIDRS" envSeparator:","`

	Tracing tracing.Config
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = serviceName
	}
	cfg.Tracing.Environment = cfg.Environment
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
	if c.Redis.Addr == "" {
		return errors.New("REDIS_ADDR is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.CartTTL < 1 {
		return fmt.Errorf("invalid CART_TTL_HOURS: %d", c.CartTTL)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return errors.New("OTEL_SAMPLE_RATE must be between 0.0 and 1.0")
	}
	return nil
}
