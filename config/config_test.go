package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8470, cfg.Server.Port)
	assert.Equal(t, "libraries", cfg.Libraries.Root)
	assert.Equal(t, "default", cfg.Libraries.Default)
	assert.Equal(t, "info", cfg.Observability.LogLevel)
}

func TestNew_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9000")
	t.Setenv("LIBRARIES_ROOT", "/data/libraries")
	t.Setenv("DEFAULT_LIBRARY", "herculaneum")
	t.Setenv("SERVER_READ_TIMEOUT", "15s")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/data/libraries", cfg.Libraries.Root)
	assert.Equal(t, "herculaneum", cfg.Libraries.Default)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
}

func TestNew_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("SERVER_READ_TIMEOUT", "soon")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 8470, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestValidate_ProductionRequiresSecret(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := New()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT secret")
}

func TestServerConfig_Address(t *testing.T) {
	c := ServerConfig{Host: "127.0.0.1", Port: 8470}
	assert.Equal(t, "127.0.0.1:8470", c.Address())
}
