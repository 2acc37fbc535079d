package output

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

var runTime = time.Date(2026, 10, 17, 22, 5, 41, 0, time.UTC)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	w, err := NewWriter(Config{Root: t.TempDir()}, nil)
	require.NoError(t, err)
	return w
}

// =============================================================================
// Writer Tests
// =============================================================================

func TestNewWriter_RootRequired(t *testing.T) {
	_, err := NewWriter(Config{Root: "  "}, nil)
	assert.ErrorIs(t, err, ErrRootRequired)
}

func TestDirFor_MinuteResolution(t *testing.T) {
	w := newTestWriter(t)
	assert.Equal(t, filepath.Join(w.Root(), "2026_10_17_22_05"), w.DirFor(runTime))
	assert.Equal(t, w.DirFor(runTime), w.DirFor(runTime.Add(18*time.Second)))
}

func TestDirFor_Location(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	w, err := NewWriter(Config{Root: t.TempDir(), Location: loc}, nil)
	require.NoError(t, err)

	assert.Equal(t, "2026_10_18_00_05", filepath.Base(w.DirFor(runTime)))
}

func TestWrite_CreatesDirectoryAndFiles(t *testing.T) {
	w := newTestWriter(t)
	docs := []Document{
		{Filename: "solo.yaml", Content: []byte("services: {}\n")},
		{Filename: "app-group.yaml", Content: []byte("services:\n  web: {}\n")},
	}

	result, err := w.Write(context.Background(), runTime, docs)
	require.NoError(t, err)
	assert.Equal(t, []string{"solo.yaml", "app-group.yaml"}, result.Written)
	assert.Empty(t, result.Failed)

	data, err := os.ReadFile(filepath.Join(result.Dir, "app-group.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "services:\n  web: {}\n", string(data))

	// No temporary files remain.
	entries, err := os.ReadDir(result.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestWrite_SameMinuteOverwrites(t *testing.T) {
	w := newTestWriter(t)
	ctx := context.Background()

	_, err := w.Write(ctx, runTime, []Document{{Filename: "a.yaml", Content: []byte("first")}})
	require.NoError(t, err)
	result, err := w.Write(ctx, runTime.Add(10*time.Second), []Document{{Filename: "a.yaml", Content: []byte("second")}})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(result.Dir, "a.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestWrite_FailureIsolated(t *testing.T) {
	w := newTestWriter(t)
	dir := w.DirFor(runTime)
	// A directory where a document should go makes that one rename fail.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "blocked.yaml", "child"), 0o755))

	docs := []Document{
		{Filename: "first.yaml", Content: []byte("1")},
		{Filename: "blocked.yaml", Content: []byte("2")},
		{Filename: "../escape.yaml", Content: []byte("3")},
		{Filename: "last.yaml", Content: []byte("4")},
	}
	result, err := w.Write(context.Background(), runTime, docs)
	require.NoError(t, err)

	assert.Equal(t, []string{"first.yaml", "last.yaml"}, result.Written)
	require.Len(t, result.Failed, 2)
	assert.Equal(t, "blocked.yaml", result.Failed[0].Filename)
	assert.ErrorIs(t, result.Failed[0].Err, ErrWriteDocument)
	assert.ErrorIs(t, result.Failed[1].Err, ErrInvalidFilename)

	_, statErr := os.Stat(filepath.Join(w.Root(), "escape.yaml"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestWrite_DirectoryFailure(t *testing.T) {
	root := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(root, []byte("x"), 0o644))
	w, err := NewWriter(Config{Root: root}, nil)
	require.NoError(t, err)

	_, err = w.Write(context.Background(), runTime, []Document{{Filename: "a.yaml"}})
	assert.ErrorIs(t, err, ErrCreateDir)
}

func TestWrite_Cancelled(t *testing.T) {
	w := newTestWriter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := w.Write(ctx, runTime, []Document{{Filename: "a.yaml"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, result.Written)
}
