package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpoolSaveAndRemove(t *testing.T) {
	spool, err := NewSpool(t.TempDir())
	require.NoError(t, err)

	path, err := spool.Save("statement.csv", strings.NewReader("date,description,amount\n"))
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "date,description,amount\n", string(content))
	assert.True(t, strings.HasSuffix(path, "_statement.csv"))

	require.NoError(t, spool.Remove(path))
	assert.NoFileExists(t, path)

	// Removing again is not an error.
	assert.NoError(t, spool.Remove(path))
}

func TestSpoolSanitizesFilenames(t *testing.T) {
	spool, err := NewSpool(t.TempDir())
	require.NoError(t, err)

	path, err := spool.Save("../../etc/passwd", strings.NewReader("x"))
	require.NoError(t, err)
	defer spool.Remove(path)

	assert.NotContains(t, filepath.Base(path), "..")
	assert.NotContains(t, filepath.Base(path), "/")
}

func TestSweepOlderThan(t *testing.T) {
	dir := t.TempDir()
	spool, err := NewSpool(dir)
	require.NoError(t, err)

	stale := filepath.Join(dir, "stale.csv")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh, err := spool.Save("fresh.csv", strings.NewReader("new"))
	require.NoError(t, err)

	removed, err := spool.SweepOlderThan(24 * time.Hour)
	require.NoError(t, err)

	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}
