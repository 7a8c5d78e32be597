// Package config loads service configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime settings for the service.
type Config struct {
	Port    string `env:"PORT" envDefault:"8080"`
	Storage string `env:"STORAGE" envDefault:"postgres"` // postgres or memory

	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"postgres"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"postgres"`
	DBName     string `env:"DB_NAME" envDefault:"campusrec"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	// Shared secret and issuer for identity tokens minted by the
	// external identity provider.
	TokenSecret string `env:"TOKEN_SECRET" envDefault:"dev-secret"`
	TokenIssuer string `env:"TOKEN_ISSUER" envDefault:"campus-identity"`
}

// Load reads a .env file when present, then parses the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.Storage != "postgres" && cfg.Storage != "memory" {
		return Config{}, fmt.Errorf("STORAGE must be postgres or memory, got %q", cfg.Storage)
	}
	return cfg, nil
}

// DSN builds a libpq-compatible connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}
