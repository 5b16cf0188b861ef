package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load parses environment variables into cfg using its `env` tags.
//
//	type Config struct {
//	    Port     int    `env:"CART_HTTP_PORT" envDefault:"8003"`
//	    LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// LoadPrefixed is Load with every tag prefixed, e.g. "CARTSYNC_".
func LoadPrefixed(prefix string, cfg any) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("parse %s config: %w", prefix, err)
	}
	return nil
}
