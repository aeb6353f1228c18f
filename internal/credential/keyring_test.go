package credential

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestVault(env map[string]string) *Vault {
	v := NewVault(keyring.NewArrayKeyring(nil))
	v.getenv = func(k string) string { return env[k] }
	return v
}

func TestTokenRoundTrip(t *testing.T) {
	v := newTestVault(nil)

	tok, err := v.Token(42)
	require.NoError(t, err)
	assert.Empty(t, tok)

	require.NoError(t, v.SetToken(42, "secret"))
	tok, err = v.Token(42)
	require.NoError(t, err)
	assert.Equal(t, "secret", tok)

	other, err := v.Token(7)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, v.DeleteToken(42))
	require.NoError(t, v.DeleteToken(42))
	tok, err = v.Token(42)
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestTokenEnvironmentOverride(t *testing.T) {
	v := newTestVault(map[string]string{TokenEnv: "from-env"})
	require.NoError(t, v.SetToken(42, "stored"))

	tok, err := v.Token(42)
	require.NoError(t, err)
	assert.Equal(t, "from-env", tok)
}

func TestGetMissingKeyWrapsNotFound(t *testing.T) {
	v := newTestVault(nil)
	_, err := v.Get("nothing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), `"nothing"`)
}
