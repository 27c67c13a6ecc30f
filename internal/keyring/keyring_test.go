package keyring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	zkr "github.com/zalando/go-keyring"
)

func TestMasterKeyFromKeychain(t *testing.T) {
	zkr.MockInit()
	t.Setenv("KEEPER_KEYRING_DISABLED", "")

	first, err := MasterKey("")
	require.NoError(t, err)
	require.Len(t, first, KeySize)

	second, err := MasterKey("")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	require.NoError(t, Delete())
}

func TestMasterKeyFileFallback(t *testing.T) {
	t.Setenv("KEEPER_KEYRING_DISABLED", "1")
	path := filepath.Join(t.TempDir(), "keys", "sealing.key")

	first, err := MasterKey(path)
	require.NoError(t, err)
	require.Len(t, first, KeySize)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := MasterKey(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMasterKeyFallbackRequiresPath(t *testing.T) {
	t.Setenv("KEEPER_KEYRING_DISABLED", "1")
	_, err := MasterKey("")
	require.Error(t, err)
}

func TestMasterKeyRejectsMalformedFile(t *testing.T) {
	t.Setenv("KEEPER_KEYRING_DISABLED", "1")
	path := filepath.Join(t.TempDir(), "sealing.key")
	require.NoError(t, os.WriteFile(path, []byte("zz"), 0o600))

	_, err := MasterKey(path)
	require.Error(t, err)
}
