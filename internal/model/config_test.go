package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/api", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Realtime.ReconnectDelay())
	assert.Equal(t, 5*time.Second, cfg.Notifications.DismissAfter())
	assert.Equal(t, time.Second, cfg.Navigation.SettleDelay())
	assert.Equal(t, "keep", cfg.Notifications.ConfirmPolicy)
	assert.Equal(t, "samples", cfg.Notifications.OfflineFallback)
	assert.True(t, cfg.Notifications.Desktop)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `user_id: 42
api:
  base_url: http://example.test/api/
realtime:
  reconnect_delay_ms: 250
notifications:
  confirm_policy: Rollback
  offline_fallback: bogus
display:
  locale: vi-VN
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))
	t.Setenv("WORKNOTIFY_REALTIME_URL", "ws://example.test/ws")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, int64(42), cfg.UserID)
	assert.Equal(t, "http://example.test/api", cfg.API.BaseURL)
	assert.Equal(t, "ws://example.test/ws", cfg.Realtime.URL)
	assert.Equal(t, 250*time.Millisecond, cfg.Realtime.ReconnectDelay())
	assert.Equal(t, "rollback", cfg.Notifications.ConfirmPolicy)
	assert.Equal(t, "samples", cfg.Notifications.OfflineFallback)
	assert.Equal(t, "vi-VN", cfg.Display.Locale)
	assert.Equal(t, 4*time.Second, cfg.Realtime.Heartbeat())
}

func TestLoadConfigMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("user_id: [unterminated"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfigRoundTripDropsToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultAppConfig()
	cfg.UserID = 7
	cfg.API.Token = "secret"
	cfg.Display.Locale = "vi"

	require.NoError(t, SaveConfig(path, cfg))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(7), loaded.UserID)
	assert.Equal(t, "vi", loaded.Display.Locale)
	assert.Empty(t, loaded.API.Token)
}

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("user_id: 42\nlog:\n  level: warn\n"), 0o644))

	newFlags := func() *pflag.FlagSet {
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.Int64("user", 0, "")
		fs.String("log-level", "", "")
		return fs
	}

	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--user", "7"}))
	cfg, err := LoadConfigWithFlags(path, fs)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.UserID)
	assert.Equal(t, "warn", cfg.Log.Level, "unset flags leave the file value")

	fs = newFlags()
	require.NoError(t, fs.Parse(nil))
	cfg, err = LoadConfigWithFlags(path, fs)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.UserID)
}
