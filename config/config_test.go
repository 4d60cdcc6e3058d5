package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitDefaults(t *testing.T) {
	Init()
	cfg := Get()

	require.Equal(t, 8080, cfg.APIServerPort)
	require.True(t, cfg.RegistrationEnabled)
	require.Equal(t, 7, cfg.SyncMaxChunkDays)
	require.Equal(t, 100, cfg.SyncPageDelayMs)
	require.NotEmpty(t, cfg.JWTSecret)
}

func TestInitFromEnv(t *testing.T) {
	t.Setenv("API_SERVER_PORT", "9090")
	t.Setenv("REGISTRATION_ENABLED", "false")
	t.Setenv("SYNC_MAX_CHUNK_DAYS", "30")
	t.Setenv("SYNC_PAGE_DELAY_MS", "250")
	t.Setenv("JWT_SECRET", "  test-secret  ")

	Init()
	cfg := Get()

	require.Equal(t, 9090, cfg.APIServerPort)
	require.False(t, cfg.RegistrationEnabled)
	require.Equal(t, 30, cfg.SyncMaxChunkDays)
	require.Equal(t, 250, cfg.SyncPageDelayMs)
	require.Equal(t, "test-secret", cfg.JWTSecret)
}

func TestInitIgnoresInvalidValues(t *testing.T) {
	t.Setenv("API_SERVER_PORT", "not-a-port")
	t.Setenv("SYNC_MAX_CHUNK_DAYS", "-3")
	t.Setenv("SYNC_PAGE_DELAY_MS", "0")

	Init()
	cfg := Get()

	require.Equal(t, 8080, cfg.APIServerPort)
	require.Equal(t, 7, cfg.SyncMaxChunkDays)
	require.Equal(t, 0, cfg.SyncPageDelayMs) // zero disables the inter-page delay
}
