package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) *UploadStore {
	t.Helper()
	store, err := NewUploadStore(filepath.Join(t.TempDir(), "uploads"), zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestUploadStore_SaveAndDelete(t *testing.T) {
	store := newTestStore(t)

	path, err := store.Save([]byte("fake image bytes"), ".jpg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, store.BaseDir()))
	assert.True(t, strings.HasSuffix(path, ".jpg"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("fake image bytes"), content)

	require.NoError(t, store.Delete(path))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestUploadStore_SaveNormalizesExtension(t *testing.T) {
	store := newTestStore(t)

	path, err := store.Save([]byte("x"), "PDF")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".pdf"))

	path, err = store.Save([]byte("x"), ".PNG")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".png"))
}

func TestUploadStore_SameNameNeverCollides(t *testing.T) {
	store := newTestStore(t)

	first, err := store.Save([]byte("one"), ".jpg")
	require.NoError(t, err)
	second, err := store.Save([]byte("two"), ".jpg")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	content, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), content)
}

func TestUploadStore_DeleteMissingIsNoError(t *testing.T) {
	store := newTestStore(t)

	assert.NoError(t, store.Delete(""))
	assert.NoError(t, store.Delete(filepath.Join(store.BaseDir(), "gone.jpg")))
}

func TestUploadStore_DeleteRejectsOutsidePaths(t *testing.T) {
	store := newTestStore(t)

	victim := filepath.Join(t.TempDir(), "victim.txt")
	require.NoError(t, os.WriteFile(victim, []byte("keep me"), 0644))

	assert.Error(t, store.Delete(victim))
	assert.Error(t, store.Delete(filepath.Join(store.BaseDir(), "..", "victim.txt")))
	assert.Error(t, store.Delete("/etc/passwd"))

	_, err := os.Stat(victim)
	assert.NoError(t, err)
}
