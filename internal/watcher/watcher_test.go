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

type recorder struct {
	mu       sync.Mutex
	contents []string
}

func (r *recorder) handle(content []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contents = append(r.contents, string(content))
}

func (r *recorder) latest() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.contents) == 0 {
		return "", false
	}
	return r.contents[len(r.contents)-1], true
}

func TestFileWatcher_DeliversChangedContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "working_cv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cv:\n  name: Ada\n"), 0o600))

	rec := &recorder{}
	w, err := New(path, rec.handle, nil)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	// Give the watch loop a moment to come up before mutating.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("cv:\n  name: Alan\n"), 0o600))

	require.Eventually(t, func() bool {
		latest, ok := rec.latest()
		return ok && latest == "cv:\n  name: Alan\n"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "working_cv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cv: {}\n"), 0o600))

	rec := &recorder{}
	w, err := New(path, rec.handle, nil)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o600))
	time.Sleep(100 * time.Millisecond)

	_, ok := rec.latest()
	assert.False(t, ok, "changes to sibling files must not reach the handler")
}

func TestFileWatcher_AtomicReplace(t *testing.T) {
	// Editors typically write a temp file and rename it over the target.
	dir := t.TempDir()
	path := filepath.Join(dir, "working_cv.yaml")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	rec := &recorder{}
	w, err := New(path, rec.handle, nil)
	require.NoError(t, err)
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	tmp := filepath.Join(dir, ".working_cv.yaml.swp")
	require.NoError(t, os.WriteFile(tmp, []byte("new"), 0o600))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool {
		latest, ok := rec.latest()
		return ok && latest == "new"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileWatcher_MissingDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope", "working_cv.yaml"), func([]byte) {}, nil)
	assert.Error(t, err)
}
