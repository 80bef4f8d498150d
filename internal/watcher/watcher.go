// Package watcher feeds out-of-band edits of the working CV file into the
// editing session, so an external $EDITOR drives the same debounce and render
// path as the browser editor.
package watcher

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"cvforge/internal/logging"
)

// ChangeHandler receives the full file content after each on-disk change.
type ChangeHandler func(content []byte)

// FileWatcher watches a single file for modification.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	base    string
	handler ChangeHandler
	logger  logging.Logger
}

// New creates a watcher for path. The parent directory is watched rather
// than the file itself: most editors replace files atomically via rename,
// which drops a watch registered on the inode.
func New(path string, handler ChangeHandler, logger logging.Logger) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, err
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &FileWatcher{
		watcher: fsw,
		path:    abs,
		base:    filepath.Base(abs),
		handler: handler,
		logger:  logger.WithComponent("watcher"),
	}, nil
}

// Start runs the watch loop until ctx is cancelled.
func (w *FileWatcher) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn(ctx, err, "file watcher error")
		}
	}
}

func (w *FileWatcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if filepath.Base(event.Name) != w.base {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	content, err := os.ReadFile(w.path)
	if err != nil {
		// The file may be mid-replace; the editor's follow-up event will
		// deliver the settled content.
		w.logger.Debug(ctx, "could not read changed file", "path", w.path, "error", err.Error())
		return
	}
	w.logger.Debug(ctx, "working file changed on disk", "path", w.path, "bytes", len(content))
	w.handler(content)
}

// Stop closes the underlying watcher.
func (w *FileWatcher) Stop() error {
	return w.watcher.Close()
}
