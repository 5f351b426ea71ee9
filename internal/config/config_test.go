package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.PollTimeout)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "8888", cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.False(t, cfg.ListSessions)
}

func TestLoadPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kiosk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_url: http://search.park.local
poll_interval: 2s
poll_timeout: 5m
rate_limit: 4
allowed_origins:
  - http://kiosk.park.local
`), 0644))

	t.Setenv("FACEKIOSK_POLL_INTERVAL", "1500ms")
	t.Setenv("FACEKIOSK_GUEST_SESSION", "17")
	t.Setenv("FACEKIOSK_SESSION_TTL", "5m")
	t.Setenv("FACEKIOSK_LIST_SESSIONS", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://search.park.local", cfg.APIURL)
	assert.Equal(t, 1500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, 5*time.Minute, cfg.PollTimeout)
	assert.Equal(t, 4.0, cfg.RateLimit)
	assert.Equal(t, "17", cfg.GuestSession)
	assert.Equal(t, []string{"http://kiosk.park.local"}, cfg.AllowedOrigins)
	assert.Equal(t, 5*time.Minute, cfg.SessionTTL)
	assert.True(t, cfg.ListSessions)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  string
		val  string
	}{
		{"unparsable duration", "FACEKIOSK_POLL_INTERVAL", "soon"},
		{"zero interval", "FACEKIOSK_POLL_INTERVAL", "0s"},
		{"negative timeout", "FACEKIOSK_POLL_TIMEOUT", "-1m"},
		{"bad rate", "FACEKIOSK_RATE_LIMIT", "fast"},
		{"negative session ttl", "FACEKIOSK_SESSION_TTL", "-5m"},
		{"bad list flag", "FACEKIOSK_LIST_SESSIONS", "maybe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.env, tt.val)
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
