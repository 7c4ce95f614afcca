package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	_, err = store.SaveStream("reports/a.csv", strings.NewReader("id,name\n"))
	require.NoError(t, err)

	f, err := store.Open("reports/a.csv")
	require.NoError(t, err)
	data, _ := io.ReadAll(f)
	_ = f.Close()
	assert.Equal(t, "id,name\n", string(data))

	require.NoError(t, store.Delete("reports/a.csv"))
	require.NoError(t, store.Delete("reports/a.csv"))
}

func TestLocalStorageKeepsPathsInsideRoot(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	_, err = store.Save("../../etc/evil", []byte("x"))
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "etc", "evil"))
}

func TestLocalStorageCleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	require.NoError(t, err)

	_, err = store.Save("old.pdf", []byte("x"))
	require.NoError(t, err)
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.pdf"), old, old))
	_, err = store.Save("new.pdf", []byte("y"))
	require.NoError(t, err)

	deleted, err := store.CleanupOlderThan(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"old.pdf"}, deleted)
	assert.FileExists(t, filepath.Join(dir, "new.pdf"))
}
