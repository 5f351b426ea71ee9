// Package config resolves the kiosk settings. Sources are applied in order
// defaults, YAML file, environment; command flags are applied last by the
// commands themselves.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime settings for the kiosk
type Config struct {
	// APIURL is the base URL of the face search API
	APIURL string `yaml:"api_url"`
	// GuestSession is sent as the guest_session cookie on every API call
	GuestSession string `yaml:"guest_session"`

	PollInterval   time.Duration `yaml:"poll_interval"`
	PollTimeout    time.Duration `yaml:"poll_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// RateLimit caps outbound API requests per second, 0 disables it
	RateLimit float64 `yaml:"rate_limit"`

	LedgerPath     string   `yaml:"ledger"`
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`

	// SessionTTL closes API sessions left unused this long, 0 keeps them
	SessionTTL time.Duration `yaml:"session_ttl"`

	// ListSessions routes GET /api/sessions for debugging
	ListSessions bool `yaml:"list_sessions"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		APIURL:         "http://localhost:8000",
		PollInterval:   3 * time.Second,
		PollTimeout:    10 * time.Minute,
		RequestTimeout: 30 * time.Second,
		LedgerPath:     "orders.parquet",
		Port:           "8888",
		AllowedOrigins: []string{"*"},
		SessionTTL:     30 * time.Minute,
	}
}

// Load builds the configuration from defaults, the optional YAML file at
// path and FACEKIOSK_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("FACEKIOSK_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("FACEKIOSK_GUEST_SESSION"); v != "" {
		c.GuestSession = v
	}
	if v := os.Getenv("FACEKIOSK_LEDGER"); v != "" {
		c.LedgerPath = v
	}
	if v := os.Getenv("FACEKIOSK_PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("FACEKIOSK_ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = strings.Split(v, ",")
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"FACEKIOSK_POLL_INTERVAL", &c.PollInterval},
		{"FACEKIOSK_POLL_TIMEOUT", &c.PollTimeout},
		{"FACEKIOSK_REQUEST_TIMEOUT", &c.RequestTimeout},
		{"FACEKIOSK_SESSION_TTL", &c.SessionTTL},
	}
	for _, d := range durations {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.env, err)
		}
		*d.dst = parsed
	}

	if v := os.Getenv("FACEKIOSK_RATE_LIMIT"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid FACEKIOSK_RATE_LIMIT: %w", err)
		}
		c.RateLimit = parsed
	}
	if v := os.Getenv("FACEKIOSK_LIST_SESSIONS"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid FACEKIOSK_LIST_SESSIONS: %w", err)
		}
		c.ListSessions = parsed
	}
	return nil
}

// Validate rejects settings the kiosk cannot run with
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("api_url is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.PollTimeout < 0 {
		return fmt.Errorf("poll_timeout must not be negative, got %s", c.PollTimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("session_ttl must not be negative, got %s", c.SessionTTL)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit must not be negative, got %v", c.RateLimit)
	}
	return nil
}
