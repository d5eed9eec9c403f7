package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_SOURCE", "postgresql://localhost/credits")
	t.Setenv("SESSION_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 72*time.Hour, cfg.ScanTTL)
	assert.Equal(t, 5*time.Minute, cfg.TimestampSkew)
	assert.Empty(t, cfg.ScanKeyFile)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DB_SOURCE", "postgresql://localhost/credits")
	t.Setenv("SESSION_SECRET", "secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("TIMESTAMP_SKEW", "2m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 2*time.Minute, cfg.TimestampSkew)
}
