package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// LoadFrom fills cfg from environ using the struct's `env` and `envDefault`
// tags. Callers pass the process environment with any overrides already
// applied, so flag values can take precedence over variables:
//
//	type Config struct {
//	    Port int `env:"SYNC_HTTP_PORT" envDefault:"8090"`
//	}
func LoadFrom(cfg any, environ map[string]string) error {
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
