package nvm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_RoundTrip(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "state", "nvm.yml")

	store, err := Open(filename)
	require.NoError(t, err)

	_, err = store.Load(KeyCurrentLimit)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(KeyCurrentLimit, "0.05"))
	require.NoError(t, store.Save(KeyFrequency, "433"))
	require.NoError(t, store.Save(KeyFrequency, "868"))

	reopened, err := Open(filename)
	require.NoError(t, err)

	value, err := reopened.Load(KeyCurrentLimit)
	require.NoError(t, err)
	assert.Equal(t, "0.05", value)

	value, err = reopened.Load(KeyFrequency)
	require.NoError(t, err)
	assert.Equal(t, "868", value)

	payload, err := os.ReadFile(filename)
	require.NoError(t, err)
	assert.Contains(t, string(payload), "storage:")

	entries, err := os.ReadDir(filepath.Dir(filename))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestFile_Invalid(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "nvm.yml")
	require.NoError(t, os.WriteFile(filename, []byte("storage: [\n"), 0o644))

	store, err := Open(filename)
	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestFile_Empty(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "nvm.yml")
	require.NoError(t, os.WriteFile(filename, nil, 0o644))

	store, err := Open(filename)
	require.NoError(t, err)
	require.NoError(t, store.Save(KeyFrequency, "915"))
}

func TestMemory(t *testing.T) {
	var store Store = NewMemory()

	_, err := store.Load(KeyFrequency)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(KeyFrequency, "433"))
	value, err := store.Load(KeyFrequency)
	require.NoError(t, err)
	assert.Equal(t, "433", value)
}
