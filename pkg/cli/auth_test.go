package cli

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func TestAuth_Keyring(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()

	out, err := runApp(t, dir, "", "auth", "--token", "abc")
	require.NoError(t, err)
	assert.Contains(t, out, "Token saved")

	token, err := getSourceToken(dir)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
	assert.NoFileExists(t, filepath.Join(dir, tokenFileName))

	_, err = runApp(t, dir, "", "auth", "--clear")
	require.NoError(t, err)

	token, err = getSourceToken(dir)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestAuth_Stdin(t *testing.T) {
	keyring.MockInit()
	dir := t.TempDir()

	_, err := runApp(t, dir, "from-stdin\n", "auth")
	require.NoError(t, err)

	token, err := getSourceToken(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-stdin", token)

	_, err = runApp(t, dir, "\n", "auth")
	assert.Error(t, err)
}

func TestAuth_FileFallback(t *testing.T) {
	keyring.MockInitWithError(errors.New("no keychain"))
	t.Cleanup(keyring.MockInit)
	dir := t.TempDir()

	require.NoError(t, saveSourceToken(dir, "file-token"))

	b, err := os.ReadFile(filepath.Join(dir, tokenFileName))
	require.NoError(t, err)
	assert.Equal(t, "file-token", string(b))

	token, err := getSourceToken(dir)
	require.NoError(t, err)
	assert.Equal(t, "file-token", token)

	require.NoError(t, clearSourceToken(dir))
	assert.NoFileExists(t, filepath.Join(dir, tokenFileName))
}
