package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsMissingBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, func(context.Context, Job) {})
	require.Error(t, err)
}

func TestWithinBaseRejectsTraversal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := New(Config{BaseDir: dir, Paths: []string{dir}}, func(context.Context, Job) {})
	require.NoError(t, err)
	defer w.Close()

	assert.True(t, w.withinBase(filepath.Join(dir, "a.txt")))
	assert.False(t, w.withinBase(filepath.Join(dir, "..", "outside.txt")))
}

func TestExtensionAllowed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w, err := New(Config{BaseDir: dir, Paths: []string{dir}, Extensions: []string{".md", ".txt"}}, func(context.Context, Job) {})
	require.NoError(t, err)
	defer w.Close()

	assert.True(t, w.extensionAllowed("notes.md"))
	assert.True(t, w.extensionAllowed("notes.TXT"))
	assert.False(t, w.extensionAllowed("notes.pdf"))
}

func TestStartDispatchesDebouncedCreateEvent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	var mu sync.Mutex
	var got []Job
	sink := func(_ context.Context, job Job) {
		mu.Lock()
		got = append(got, job)
		mu.Unlock()
	}

	w, err := New(Config{BaseDir: dir, Paths: []string{dir}, Debounce: 50 * time.Millisecond}, sink)
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))

	path := filepath.Join(dir, "new.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, path, got[0].Path)
}
