// Package config reads the server settings from the environment.
package config

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Store backends.
const (
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds everything cmd/server needs to start.
type Config struct {
	Port          string
	WebOrigin     string
	Store         string
	RedisURL      string
	DatabaseURL   string
	SessionSecret []byte
	AbsenceGrace  time.Duration
	SweepInterval time.Duration
	LogLevel      string
	LogFormat     string
	SecureCookies bool
	Development   bool

	// EphemeralSecret is set when SessionSecret was generated for this process.
	EphemeralSecret bool
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(k, d string) string {
		if v, ok := lookup(k); ok && v != "" {
			return v
		}
		return d
	}

	cfg := &Config{
		Port:        get("PORT", "8080"),
		WebOrigin:   get("WEB_ORIGIN", "http://localhost:3000"),
		Store:       get("STORE", StoreRedis),
		RedisURL:    get("REDIS_URL", "redis://127.0.0.1:6379"),
		DatabaseURL: get("DATABASE_URL", ""),
		LogLevel:    get("LOG_LEVEL", "info"),
		LogFormat:   get("LOG_FORMAT", "json"),
		Development: get("APP_ENV", "development") == "development",
	}

	if cfg.Store != StoreRedis && cfg.Store != StoreMemory {
		return nil, fmt.Errorf("STORE: unknown backend %q", cfg.Store)
	}

	var err error
	if cfg.AbsenceGrace, err = duration(get("ABSENCE_GRACE", "5m")); err != nil {
		return nil, fmt.Errorf("ABSENCE_GRACE: %w", err)
	}
	if cfg.SweepInterval, err = duration(get("SWEEP_INTERVAL", "30s")); err != nil {
		return nil, fmt.Errorf("SWEEP_INTERVAL: %w", err)
	}
	if cfg.SecureCookies, err = strconv.ParseBool(get("SECURE_COOKIES", "false")); err != nil {
		return nil, fmt.Errorf("SECURE_COOKIES: %w", err)
	}

	if s := get("SESSION_SECRET", ""); s != "" {
		cfg.SessionSecret = []byte(s)
	} else if cfg.Development {
		cfg.SessionSecret = make([]byte, 32)
		cfg.EphemeralSecret = true
		if _, err := rand.Read(cfg.SessionSecret); err != nil {
			return nil, fmt.Errorf("SESSION_SECRET: %w", err)
		}
	} else {
		return nil, errors.New("SESSION_SECRET is required outside development")
	}
	return cfg, nil
}

func duration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", s)
	}
	return d, nil
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c *Config) Logger() (*logrus.Logger, error) {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	log.SetLevel(lvl)
	switch c.LogFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		return nil, fmt.Errorf("LOG_FORMAT: unknown format %q", c.LogFormat)
	}
	return log, nil
}
