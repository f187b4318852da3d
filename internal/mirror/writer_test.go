package mirror

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/siteone-mirror/crawler/internal/status"
)

func TestLocalWriterWritesFileUnderRoot(t *testing.T) {
	dir := t.TempDir()
	store := status.NewMemoryStore()
	w, err := NewLocalWriter(dir, store, false)
	require.NoError(t, err)

	require.NoError(t, w.Write("/a/b/index.html", []byte("hello")))

	got, err := os.ReadFile(filepath.Join(dir, "a", "b", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestLocalWriterFirstWriterWins(t *testing.T) {
	dir := t.TempDir()
	store := status.NewMemoryStore()
	w, err := NewLocalWriter(dir, store, false)
	require.NoError(t, err)

	require.NoError(t, w.Write("/page.html", []byte("first")))
	require.NoError(t, w.Write("/page.html", []byte("second")))

	got, err := os.ReadFile(filepath.Join(dir, "page.html"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(got))

	notices := store.Notices()
	require.Len(t, notices, 1)
	assert.Contains(t, notices[0].Message, "already written")
}

func TestNewWriterPicksLocalForBarePath(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)
	_, ok := w.(*LocalWriter)
	assert.True(t, ok)
}

func TestNewWriterRejectsUnknownScheme(t *testing.T) {
	_, err := NewWriter("gcs:bucket")
	assert.Error(t, err)
}
