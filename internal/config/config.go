// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/jason-s-yu/renaissance/internal/auth"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the settings shared by the worker and replay binaries.
type Config struct {
	// DatabaseURL selects Postgres when set; otherwise SQLitePath is used.
	DatabaseURL string `env:"RENAISSANCE_DATABASE_URL"`
	SQLitePath  string `env:"RENAISSANCE_SQLITE_PATH" envDefault:"renaissance.db"`

	// RedisAddr selects the Redis queue when set; otherwise jobs stay in
	// process.
	RedisAddr     string `env:"RENAISSANCE_REDIS_ADDR"`
	RedisPassword string `env:"RENAISSANCE_REDIS_PASSWORD"`
	QueueKey      string `env:"RENAISSANCE_QUEUE_KEY" envDefault:"renaissance:apply"`

	Workers      int    `env:"RENAISSANCE_WORKERS" envDefault:"4"`
	ApplyRetries int    `env:"RENAISSANCE_APPLY_RETRIES" envDefault:"5"`
	LogLevel     string `env:"RENAISSANCE_LOG_LEVEL" envDefault:"info"`
	LogJSON      bool   `env:"RENAISSANCE_LOG_JSON" envDefault:"true"`

	JWTSecret  string `env:"RENAISSANCE_JWT_SECRET"`
	CatalogDir string `env:"RENAISSANCE_CATALOG_DIR"`
}

// Load reads an optional .env file, then parses the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return Parse()
}

// Parse parses the environment without touching .env.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("RENAISSANCE_WORKERS must be positive, got %d", c.Workers)
	}
	if c.ApplyRetries < 0 {
		return fmt.Errorf("RENAISSANCE_APPLY_RETRIES must not be negative, got %d", c.ApplyRetries)
	}
	if c.DatabaseURL == "" && strings.TrimSpace(c.SQLitePath) == "" {
		return errors.New("one of RENAISSANCE_DATABASE_URL or RENAISSANCE_SQLITE_PATH is required")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("RENAISSANCE_LOG_LEVEL: %w", err)
	}
	return nil
}

// Logger builds the process logger.
func (c Config) Logger() *logrus.Logger {
	log := logrus.New()
	if lvl, err := logrus.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(lvl)
	}
	if c.LogJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// Verifier returns the bearer token verifier, or nil when no JWT secret is
// configured.
func (c Config) Verifier() (*auth.Verifier, error) {
	if c.JWTSecret == "" {
		return nil, nil
	}
	return auth.NewVerifier(c.JWTSecret)
}
