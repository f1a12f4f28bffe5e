/*
config.go - Process configuration from the environment

PURPOSE:
  Collects everything the server needs at startup into one Config value.
  Values come from environment variables, optionally seeded from a .env
  file. Variables already set in the environment win over the file.

ENVIRONMENT:
  DATABASE_URL          SQLite DSN or path (required, ":memory:" allowed)
  PORT                  HTTP port (default 5000)
  HOST                  Listen host (default 0.0.0.0)
  CORS_ALLOWED_ORIGINS  Comma separated origin allow-list
  LOG_LEVEL             logrus level (default info)
  LOG_FORMAT            text | json (default text)

STARTUP POLICY:
  A missing DATABASE_URL is fatal. The server must not serve traffic
  without persistence.
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultAllowedOrigins are the deployments that call this API.
var DefaultAllowedOrigins = []string{
	"https://lucrodb-production.up.railway.app",
	"https://lucrodb-1-pee1.onrender.com",
	"http://localhost:5000",
}

// ErrDatabaseURLMissing is returned by Load when DATABASE_URL is unset.
var ErrDatabaseURLMissing = errors.New("DATABASE_URL is not set")

// Config is the server configuration.
type Config struct {
	DatabaseURL    string
	Host           string
	Port           int
	AllowedOrigins []string
	LogLevel       string
	LogFormat      string
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads envFile (if it exists) and then the process environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s file: %w", envFile, err)
		}
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup builds a Config from an environment lookup function.
func FromLookup(lookup func(string) (string, bool)) (Config, error) {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}

	cfg := Config{
		DatabaseURL:    get("DATABASE_URL", ""),
		Host:           get("HOST", "0.0.0.0"),
		AllowedOrigins: DefaultAllowedOrigins,
		LogLevel:       get("LOG_LEVEL", "info"),
		LogFormat:      get("LOG_FORMAT", "text"),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, ErrDatabaseURLMissing
	}

	port, err := strconv.Atoi(get("PORT", "5000"))
	if err != nil || port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid PORT %q", get("PORT", ""))
	}
	cfg.Port = port

	if origins := get("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		cfg.AllowedOrigins = splitList(origins)
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
