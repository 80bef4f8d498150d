// Package artifacts manages the bounded set of on-disk render output
// directories. Each render attempt gets a uniquely named directory under the
// configured root; the store retains the N most recently created directories
// and prunes the rest after each completed render.
package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"cvforge/internal/errors"
	"cvforge/internal/logging"
)

const dirPrefix = "render_"

// DefaultKeep is the default number of artifact directories retained.
const DefaultKeep = 5

// Dir is a handle to one allocated artifact directory.
type Dir struct {
	// ID is the directory name under the store root.
	ID string
	// Path is the absolute directory path.
	Path string
}

// Info describes an existing artifact directory.
type Info struct {
	ID        string
	Path      string
	CreatedAt time.Time
}

// Store owns the artifact root directory.
type Store struct {
	root   string
	keep   int
	logger logging.Logger

	mu      sync.Mutex
	counter uint64
}

// NewStore creates the artifact root if needed and returns a store retaining
// keep directories. keep < 1 falls back to DefaultKeep.
func NewStore(root string, keep int, logger logging.Logger) (*Store, error) {
	if keep < 1 {
		keep = DefaultKeep
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.NewArtifactIOError("resolving artifact root", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, errors.NewArtifactIOError("creating artifact root", err)
	}
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &Store{
		root:   abs,
		keep:   keep,
		logger: logger.WithComponent("artifacts"),
	}, nil
}

// Root returns the absolute artifact root path.
func (s *Store) Root() string { return s.root }

// Keep returns the retention bound.
func (s *Store) Keep() int { return s.keep }

// Allocate creates a fresh uniquely named directory for one render attempt.
// The name combines a timestamp with a monotonic counter so rapid sequential
// allocations within the same clock tick cannot collide.
func (s *Store) Allocate() (*Dir, error) {
	for {
		s.mu.Lock()
		s.counter++
		id := fmt.Sprintf("%s%s_%06d", dirPrefix, time.Now().UTC().Format("20060102_150405"), s.counter)
		s.mu.Unlock()

		path := filepath.Join(s.root, id)
		err := os.Mkdir(path, 0o750)
		if os.IsExist(err) {
			// Counter restarted inside the same clock second; take the next slot.
			continue
		}
		if err != nil {
			return nil, errors.NewArtifactIOError("creating artifact directory", err)
		}
		return &Dir{ID: id, Path: path}, nil
	}
}

// Finalize writes any extra payloads (e.g. the serialized source copy) into
// the directory and returns the sorted relative listing of everything the
// render attempt produced there.
func (s *Store) Finalize(d *Dir, extra map[string][]byte) ([]string, error) {
	for name, data := range extra {
		clean := filepath.Base(name)
		if err := os.WriteFile(filepath.Join(d.Path, clean), data, 0o600); err != nil {
			return nil, errors.NewArtifactIOError("writing artifact file "+clean, err)
		}
	}

	var files []string
	err := filepath.Walk(d.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(d.Path, path)
		if relErr != nil {
			return relErr
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, errors.NewArtifactIOError("listing artifact directory", err)
	}
	sort.Strings(files)
	return files, nil
}

// List returns existing artifact directories, newest first.
func (s *Store) List() ([]Info, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errors.NewArtifactIOError("reading artifact root", err)
	}

	infos := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), dirPrefix) {
			continue
		}
		fi, statErr := entry.Info()
		if statErr != nil {
			continue
		}
		infos = append(infos, Info{
			ID:        entry.Name(),
			Path:      filepath.Join(s.root, entry.Name()),
			CreatedAt: fi.ModTime(),
		})
	}

	// Names embed timestamp plus monotonic counter, so lexical order is
	// creation order even when mtimes collide within one clock tick.
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID > infos[j].ID
	})
	return infos, nil
}

// Resolve maps an artifact ID to its directory path. IDs are validated
// against the expected naming scheme so a request cannot escape the root.
func (s *Store) Resolve(id string) (string, error) {
	if !strings.HasPrefix(id, dirPrefix) || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid artifact id %q", id)
	}
	path := filepath.Join(s.root, id)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("artifact %s not found", id)
	}
	return path, nil
}

// Prune deletes the oldest directories beyond the retention bound. Failed
// renders count toward the bound too. Deletion failures are logged and
// skipped: a directory may be held open by a concurrent download or already
// be gone, and neither is fatal.
func (s *Store) Prune(ctx context.Context) (int, error) {
	infos, err := s.List()
	if err != nil {
		return 0, err
	}
	if len(infos) <= s.keep {
		return 0, nil
	}

	removed := 0
	for _, info := range infos[s.keep:] {
		if err := os.RemoveAll(info.Path); err != nil {
			s.logger.Warn(ctx, err, "could not remove artifact directory", "id", info.ID)
			continue
		}
		s.logger.Debug(ctx, "pruned artifact directory", "id", info.ID)
		removed++
	}
	return removed, nil
}
