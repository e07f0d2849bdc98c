// Package localdir implements internal/store.Writer as a local
// directory of one JSON file per index name, atomically replaced via
// write-to-temp-then-rename. Default path resolution is XDG-aware on
// Linux, Application Support on macOS, LOCALAPPDATA on Windows,
// overridable by AUGGIE_STORE_PATH.
package localdir

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"github.com/augmentcode/auggie-index/internal/model"
	"github.com/augmentcode/auggie-index/internal/sourcemeta"
	"github.com/augmentcode/auggie-index/internal/store"
)

const appName = "auggie-index"

// Store persists IndexState as one JSON file per sanitized name under
// Dir.
type Store struct {
	Dir string
}

// New creates a Store rooted at dir, creating dir if necessary. An empty
// dir selects DefaultPath().
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultPath()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("localdir: create store dir: %w", err)
	}
	return &Store{Dir: dir}, nil
}

// DefaultPath resolves the OS-appropriate default store directory,
// honoring AUGGIE_STORE_PATH first.
func DefaultPath() string {
	if override := os.Getenv("AUGGIE_STORE_PATH"); override != "" {
		return override
	}
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), appName)
		}
		return filepath.Join(home, "Library", "Application Support", appName)
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appName)
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), appName)
		}
		return filepath.Join(home, "AppData", "Local", appName)
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), ".local", "share", appName)
		}
		return filepath.Join(home, ".local", "share", appName)
	}
}

func (s *Store) keyPath(name string) string {
	return filepath.Join(s.Dir, store.SanitizeName(name)+".json")
}

func (s *Store) lockPath(name string) string {
	return filepath.Join(s.Dir, store.SanitizeName(name)+".lock")
}

// Load implements store.Reader.
func (s *Store) Load(ctx context.Context, name string) (*model.IndexState, error) {
	data, err := os.ReadFile(s.keyPath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("localdir: load %q: %w", name, err)
	}
	return decodeIndexState(data)
}

// List implements store.Reader.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("localdir: list: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), ".json") {
			names = append(names, strings.TrimSuffix(e.Name(), ".json"))
		}
	}
	return names, nil
}

// Save implements store.Writer. It acquires an advisory flock on the
// key's lock file, then writes to a ".tmp" sibling and renames over the
// target so readers never observe a half-written file.
func (s *Store) Save(ctx context.Context, name string, state *model.IndexState) error {
	lock := flock.New(s.lockPath(name))
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("localdir: acquire lock for %q: %w", name, err)
	}
	if !locked {
		return fmt.Errorf("localdir: save %q: another process holds the lock", name)
	}
	defer func() { _ = lock.Unlock() }()

	src, err := sourcemeta.Encode(state.Source)
	if err != nil {
		return fmt.Errorf("localdir: encode source metadata for %q: %w", name, err)
	}
	data, err := json.Marshal(wireIndexState{ContextState: state.ContextState, Source: src})
	if err != nil {
		return fmt.Errorf("localdir: marshal state for %q: %w", name, err)
	}

	target := s.keyPath(name)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("localdir: write temp file for %q: %w", name, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("localdir: rename temp file for %q: %w", name, err)
	}
	return nil
}

// LoadSearch implements store.SearchOnlyLoader: it decodes only the
// contextState, skipping the source-metadata decode (and its legacy
// migration) entirely, since the search path never binds a Source. A
// state whose source descriptor is unreadable therefore still searches.
func (s *Store) LoadSearch(ctx context.Context, name string) (*model.IndexState, error) {
	data, err := os.ReadFile(s.keyPath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("localdir: load %q: %w", name, err)
	}
	var wire wireIndexState
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("localdir: decode index state: %w", err)
	}
	return &model.IndexState{ContextState: wire.ContextState}, nil
}

// Delete implements store.Writer.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := os.Remove(s.keyPath(name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("localdir: delete %q: %w", name, err)
	}
	_ = os.Remove(s.lockPath(name))
	return nil
}

func decodeIndexState(data []byte) (*model.IndexState, error) {
	var wire wireIndexState
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("localdir: decode index state: %w", err)
	}
	meta, err := decodeSource(wire.Source)
	if err != nil {
		return nil, err
	}
	return &model.IndexState{ContextState: wire.ContextState, Source: meta}, nil
}
