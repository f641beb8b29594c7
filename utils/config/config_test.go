package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/api", cfg.Server.BasePath)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 2*time.Second, cfg.Telemetry.BroadcastInterval)
	assert.Equal(t, 5, cfg.RateLimit.AuthLimit)
	assert.Equal(t, 1000, cfg.RateLimit.APILimit)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.True(t, cfg.Features.Workloads)
	assert.True(t, cfg.Features.Logs)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("VIGIL_BROADCAST_INTERVAL", "500ms")
	t.Setenv("VIGIL_RATE_LIMIT_AUTH", "3")
	t.Setenv("VIGIL_WORKLOADS_ENABLED", "false")
	t.Setenv("VIGIL_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.Telemetry.BroadcastInterval)
	assert.Equal(t, 3, cfg.RateLimit.AuthLimit)
	assert.False(t, cfg.Features.Workloads)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
}

func TestLoad_InvalidValueFallsBackToDefault(t *testing.T) {
	t.Setenv("VIGIL_SESSION_TTL", "forever")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Setenv("VIGIL_SERVER_MODE", "turbo")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoad_AdminCredentialsMustBePaired(t *testing.T) {
	t.Setenv("VIGIL_ADMIN_USERNAME", "admin")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vigil.env")
	require.NoError(t, os.WriteFile(path, []byte("VIGIL_HISTORY_LENGTH=42\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("VIGIL_HISTORY_LENGTH") })

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Telemetry.HistoryLength)
}
