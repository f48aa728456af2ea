// Package config loads agent configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

const (
	defaultModel        = "claude-sonnet-4-20250514"
	defaultDBHost       = "localhost"
	defaultDBPort       = "5432"
	defaultDBUser       = "postgres"
	defaultMaxRetries   = 3
	defaultQueryTimeout = 30 * time.Second
	defaultLimit        = 100
	defaultMaxTokens    = 1024
)

// Config holds everything the agent needs to talk to Postgres and the
// model provider.
type Config struct {
	DatabaseURL   string
	AnthropicKey  string
	Model         string
	MaxTokens     int
	MaxRetries    int
	QueryTimeout  time.Duration
	DefaultLimit  int
	KnowledgeFile string
}

// FromEnv creates a Config from environment variables. DATABASE_URL wins;
// otherwise the URL is composed from the DB_* variables.
func FromEnv() (Config, error) {
	cfg := Config{
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		AnthropicKey:  os.Getenv("ANTHROPIC_API_KEY"),
		Model:         getEnvOrDefault("NLSQL_MODEL", defaultModel),
		MaxTokens:     defaultMaxTokens,
		MaxRetries:    defaultMaxRetries,
		QueryTimeout:  defaultQueryTimeout,
		DefaultLimit:  defaultLimit,
		KnowledgeFile: os.Getenv("KNOWLEDGE_FILE"),
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = composeDatabaseURL()
	}

	var err error
	if cfg.MaxRetries, err = getEnvInt("MAX_RETRIES", defaultMaxRetries); err != nil {
		return Config{}, err
	}
	if cfg.MaxTokens, err = getEnvInt("NLSQL_MAX_TOKENS", defaultMaxTokens); err != nil {
		return Config{}, err
	}
	if cfg.DefaultLimit, err = getEnvInt("DEFAULT_LIMIT", defaultLimit); err != nil {
		return Config{}, err
	}
	seconds, err := getEnvInt("QUERY_TIMEOUT", int(defaultQueryTimeout/time.Second))
	if err != nil {
		return Config{}, err
	}
	cfg.QueryTimeout = time.Duration(seconds) * time.Second

	return cfg, cfg.Validate()
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.AnthropicKey == "" {
		return errors.New("ANTHROPIC_API_KEY is required")
	}
	if c.MaxRetries < 0 {
		return errors.New("MAX_RETRIES must not be negative")
	}
	if c.QueryTimeout <= 0 {
		return errors.New("QUERY_TIMEOUT must be positive")
	}
	if c.DefaultLimit <= 0 {
		return errors.New("DEFAULT_LIMIT must be positive")
	}
	return nil
}

// composeDatabaseURL builds a postgres URL from the DB_* variables,
// matching how a docker-compose Postgres instance is usually addressed.
func composeDatabaseURL() string {
	name := os.Getenv("DB_NAME")
	if name == "" {
		return ""
	}
	host := getEnvOrDefault("DB_HOST", defaultDBHost)
	port := getEnvOrDefault("DB_PORT", defaultDBPort)
	user := getEnvOrDefault("DB_USER", defaultDBUser)

	u := &url.URL{
		Scheme: "postgres",
		Host:   host + ":" + port,
		Path:   "/" + name,
	}
	if pass := os.Getenv("DB_PASSWORD"); pass != "" {
		u.User = url.UserPassword(user, pass)
	} else {
		u.User = url.User(user)
	}
	return u.String()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, value)
	}
	return n, nil
}
