package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

func TestDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "release", cfg.Mode)
	require.Equal(t, time.Second, cfg.PromptDelay)
	require.Equal(t, 15*time.Second, cfg.ConnectTimeout)
	require.Equal(t, domain.DefaultRoomPrefix, cfg.RoomPrefix)
	require.Equal(t, "en", cfg.Language)
	require.Equal(t, time.Hour, cfg.Redis.TTL)
	require.Empty(t, cfg.Redis.Addr)
}

func TestFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: debug
port: 9090
signal_url: wss://signal.example/ws
language: ja
prompt_delay: 250ms
ice_servers:
  - stun:one.example:3478
redis:
  addr: localhost:6379
  ttl: 5m
`), 0o600))
	t.Setenv("VOICE_PORT", "9191")
	t.Setenv("VOICE_REDIS_DB", "2")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Mode)
	require.Equal(t, 9191, cfg.Port)
	require.Equal(t, "wss://signal.example/ws", cfg.SignalURL)
	require.Equal(t, "ja", cfg.Language)
	require.Equal(t, 250*time.Millisecond, cfg.PromptDelay)
	require.Equal(t, []string{"stun:one.example:3478"}, cfg.ICEServers)
	require.Equal(t, "localhost:6379", cfg.Redis.Addr)
	require.Equal(t, 2, cfg.Redis.DB)
	require.Equal(t, 5*time.Minute, cfg.Redis.TTL)
}

func TestValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("language: fr\nsignal_url: \"\"\n"), 0o600))

	_, err := LoadFile(path)
	require.ErrorIs(t, err, domain.ErrUnsupportedLanguage)
	require.ErrorContains(t, err, "signal_url is required")
}
