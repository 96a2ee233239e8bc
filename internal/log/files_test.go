package log

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, []byte("log"), 0o600))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	expired := filepath.Join(dir, "devicesync-2024-01-01-090000.log")
	recent := filepath.Join(dir, "devicesync-2024-06-01-090000.log")
	other := filepath.Join(dir, "notes.txt")

	touch(t, expired, now.AddDate(0, 0, -20))
	touch(t, recent, now.AddDate(0, 0, -1))
	touch(t, other, now.AddDate(0, 0, -30))

	pruned, err := Prune(dir, now.AddDate(0, 0, -14))
	require.NoError(t, err)
	assert.Equal(t, []string{expired}, pruned)

	assert.NoFileExists(t, expired)
	assert.FileExists(t, recent)
	assert.FileExists(t, other)
}

func TestOpenRunFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Logs")
	now := time.Date(2024, 6, 1, 9, 5, 7, 0, time.Local)

	fh, err := OpenRunFile(dir, 14, now)
	require.NoError(t, err)
	defer fh.Close()

	assert.DirExists(t, dir)
	assert.Equal(t, filepath.Join(dir, "devicesync-2024-06-01-090507.log"), fh.Name())

	_, err = fh.WriteString("line\n")
	assert.NoError(t, err)
}

func TestOpenRunFileNotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	_, err := OpenRunFile(path, 14, time.Now())
	assert.ErrorIs(t, err, ErrLogDir)
}
