package settings

import (
	"errors"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/worknotify/internal/keys"
	"github.com/nhle/worknotify/internal/model"
)

type fakeTokens struct {
	saved map[int64]string
	err   error
}

func (f *fakeTokens) SetToken(userID int64, token string) error {
	if f.err != nil {
		return f.err
	}
	if f.saved == nil {
		f.saved = make(map[int64]string)
	}
	f.saved[userID] = token
	return nil
}

func baseConfig(t *testing.T) *model.AppConfig {
	t.Helper()
	cfg, err := model.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	cfg.UserID = 7
	return cfg
}

func TestValidators(t *testing.T) {
	assert.NoError(t, validateUserID("42"))
	assert.Error(t, validateUserID("0"))
	assert.Error(t, validateUserID("abc"))

	http := validateURL("http", "https")
	assert.NoError(t, http("https://example.com/api"))
	assert.Error(t, http(""))
	assert.Error(t, http("ws://example.com"))
	assert.Error(t, http("not a url"))

	ws := validateURL("ws", "wss")
	assert.NoError(t, ws("wss://example.com/ws"))
	assert.EqualError(t, ws("http://example.com"), "URL must start with ws:// or wss://")
}

func TestApply(t *testing.T) {
	base := baseConfig(t)
	f := &fields{
		userID:   " 12 ",
		baseURL:  "http://api.example.com/api/",
		wsURL:    "ws://api.example.com/ws",
		locale:   "vi",
		theme:    "dark",
		policy:   "rollback",
		fallback: "empty",
		desktop:  false,
		sound:    true,
	}

	got := f.apply(base)
	assert.Equal(t, int64(12), got.UserID)
	assert.Equal(t, "http://api.example.com/api", got.API.BaseURL)
	assert.Equal(t, "ws://api.example.com/ws", got.Realtime.URL)
	assert.Equal(t, "vi", got.Display.Locale)
	assert.Equal(t, "rollback", got.Notifications.ConfirmPolicy)
	assert.Equal(t, "empty", got.Notifications.OfflineFallback)
	assert.False(t, got.Notifications.Desktop)
	assert.Equal(t, base.Realtime.HeartbeatMs, got.Realtime.HeartbeatMs, "untouched fields kept")
	assert.Equal(t, int64(7), base.UserID, "base not modified")
}

func TestSaveWritesConfigAndToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	tokens := &fakeTokens{}
	m := New(path, tokens, keys.DefaultKeyMap(), 100, 40)
	m.Edit(baseConfig(t))
	m.values.userID = "9"
	m.values.token = "secret"

	msg := m.save()().(SavedMsg)
	require.NoError(t, msg.Err)
	assert.Equal(t, "secret", msg.Token)
	assert.Equal(t, "secret", tokens.saved[9])

	loaded, err := model.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, int64(9), loaded.UserID)
	assert.Empty(t, loaded.API.Token)
}

func TestSaveWithoutTokenKeepsStored(t *testing.T) {
	tokens := &fakeTokens{err: errors.New("should not be called")}
	m := New(filepath.Join(t.TempDir(), "config.yaml"), tokens, keys.DefaultKeyMap(), 100, 40)
	m.Edit(baseConfig(t))

	msg := m.save()().(SavedMsg)
	assert.NoError(t, msg.Err)
	assert.Empty(t, msg.Token)
}

func TestTokenStoreError(t *testing.T) {
	tokens := &fakeTokens{err: errors.New("locked")}
	m := New(filepath.Join(t.TempDir(), "config.yaml"), tokens, keys.DefaultKeyMap(), 100, 40)
	m.Edit(baseConfig(t))
	m.values.token = "secret"

	msg := m.save()().(SavedMsg)
	assert.ErrorContains(t, msg.Err, "locked")
}

func TestEscCloses(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "config.yaml"), nil, keys.DefaultKeyMap(), 100, 40)
	m.Edit(baseConfig(t))
	require.True(t, m.Active())
	assert.Contains(t, m.View(), "User ID")

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, DoneMsg{}, cmd())
	assert.False(t, m.Active())
}
