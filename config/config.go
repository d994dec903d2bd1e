// Package config loads process configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Config holds everything the api process needs. The identity store and the
// domain store are separate databases with separate connection strings.
type Config struct {
	HTTPAddr           string `env:"HTTP_ADDR" envDefault:":8080"`
	DomainDBURL        string `env:"DOMAIN_DATABASE_URL,required,notEmpty"`
	DomainDBMaxConns   int32  `env:"DOMAIN_DB_MAX_CONNS" envDefault:"8"`
	IdentityDBURL      string `env:"IDENTITY_DATABASE_URL,required,notEmpty"`
	IdentityDBMaxConns int32  `env:"IDENTITY_DB_MAX_CONNS" envDefault:"4"`
	JWTSecret          string `env:"JWT_SECRET,required,notEmpty"`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout    int    `env:"SHUTDOWN_TIMEOUT_SECONDS" envDefault:"15"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}
