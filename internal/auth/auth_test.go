package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvProvider_Key_Success(t *testing.T) {
	t.Setenv(EnvVar, "  sb_test_key_123 ")

	key, err := EnvProvider{}.Key()
	require.NoError(t, err)
	assert.Equal(t, "sb_test_key_123", key)
}

func TestEnvProvider_Key_Missing(t *testing.T) {
	t.Setenv("OPSDASH_TEST_KEY", "")

	key, err := EnvProvider{Var: "OPSDASH_TEST_KEY"}.Key()
	assert.ErrorIs(t, err, ErrNoKey)
	assert.Empty(t, key)
	assert.Contains(t, err.Error(), "OPSDASH_TEST_KEY")
}

func TestFileProvider_Key(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "api_key")
	require.NoError(t, os.WriteFile(path, []byte("file-key\nignored\n"), 0o600))

	key, err := FileProvider{Path: path}.Key()
	require.NoError(t, err)
	assert.Equal(t, "file-key", key)

	_, err = FileProvider{Path: filepath.Join(dir, "missing")}.Key()
	assert.ErrorIs(t, err, ErrNoKey)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("\n"), 0o600))
	_, err = FileProvider{Path: empty}.Key()
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestCommandProvider_Key(t *testing.T) {
	_, err := CommandProvider{}.Key()
	assert.ErrorIs(t, err, ErrNoKey)

	_, err = CommandProvider{Command: "opsdash-no-such-binary"}.Key()
	assert.ErrorIs(t, err, ErrNoKey)

	// echo is available wherever the tests run; skip otherwise.
	if _, err := os.Stat("/bin/echo"); err != nil {
		t.Skip("no /bin/echo")
	}
	key, err := CommandProvider{Command: "/bin/echo cmd-key"}.Key()
	require.NoError(t, err)
	assert.Equal(t, "cmd-key", key)
}

func TestGetKey_FallbackOrder(t *testing.T) {
	t.Setenv(EnvVar, "")
	path := filepath.Join(t.TempDir(), "api_key")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))

	key, err := GetKey(EnvProvider{}, FileProvider{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "from-file", key)

	t.Setenv(EnvVar, "from-env")
	key, err = GetKey(EnvProvider{}, FileProvider{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "from-env", key, "earlier providers win")
}

func TestGetKey_AllFail(t *testing.T) {
	t.Setenv(EnvVar, "")

	key, err := GetKey(EnvProvider{}, FileProvider{Path: filepath.Join(t.TempDir(), "api_key")})
	require.Error(t, err)
	assert.Empty(t, key)
	assert.ErrorIs(t, err, ErrNoKey)
	assert.Contains(t, err.Error(), EnvVar)
	assert.Contains(t, err.Error(), "api_key")
}

func TestKeyProvider_Interface(t *testing.T) {
	var _ KeyProvider = EnvProvider{}
	var _ KeyProvider = FileProvider{}
	var _ KeyProvider = CommandProvider{}
}
