// Package localfs implements internal/source.Source over a local
// directory tree: a filepath.WalkDir walk that skips a fixed set of
// noise directories and runs every regular file through the admission
// pipeline.
package localfs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/augmentcode/auggie-index/internal/apperrors"
	"github.com/augmentcode/auggie-index/internal/filter"
	"github.com/augmentcode/auggie-index/internal/gitignore"
	"github.com/augmentcode/auggie-index/internal/model"
	"github.com/augmentcode/auggie-index/internal/source"
	"github.com/augmentcode/auggie-index/internal/sourcemeta"
)

// defaultSkipDirs names directories never descended into regardless of
// ignore-file content.
var defaultSkipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
}

// Source walks RootPath on every FetchAll call. It never supports
// incremental updates: FetchChanges always signals "fall back to full".
type Source struct {
	RootPath       string
	IgnorePatterns []string
	MaxFileSize    int64
}

// New constructs a localfs Source from persisted metadata.
func New(cfg sourcemeta.LocalFSConfig) *Source {
	return &Source{RootPath: cfg.RootPath, IgnorePatterns: cfg.IgnorePatterns}
}

func (s *Source) augmentIgnore() *gitignore.Matcher {
	if len(s.IgnorePatterns) == 0 {
		return nil
	}
	m := gitignore.New()
	for _, p := range s.IgnorePatterns {
		m.AddPattern(p)
	}
	return m
}

func (s *Source) gitIgnore() *gitignore.Matcher {
	path := filepath.Join(s.RootPath, ".gitignore")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	m := gitignore.New()
	if err := m.AddFromFile(path); err != nil {
		return nil
	}
	return m
}

// FetchAll walks RootPath, applying the filter pipeline to every regular
// file found, streaming admitted entries on the returned channel.
func (s *Source) FetchAll(ctx context.Context) (<-chan model.FileEntry, <-chan error) {
	entries := make(chan model.FileEntry)
	errs := make(chan error, 1)

	augmentIgnore := s.augmentIgnore()
	gitIgnore := s.gitIgnore()
	opts := filter.Options{MaxSize: s.MaxFileSize}

	go func() {
		defer close(entries)
		defer close(errs)

		err := filepath.WalkDir(s.RootPath, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			rel, relErr := filepath.Rel(s.RootPath, path)
			if relErr != nil {
				return relErr
			}
			rel = filepath.ToSlash(rel)
			if rel == "." {
				return nil
			}

			if d.IsDir() {
				if defaultSkipDirs[d.Name()] {
					return filepath.SkipDir
				}
				return nil
			}

			contents, readErr := os.ReadFile(path)
			if readErr != nil {
				return readErr
			}

			res := filter.Decide(rel, contents, augmentIgnore, gitIgnore, opts)
			if !res.Admit {
				return nil
			}

			select {
			case entries <- model.FileEntry{Path: rel, Contents: string(contents)}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			errs <- err
		}
	}()

	return entries, errs
}

// FetchChanges always returns (nil, nil): LocalFS never supports
// incremental updates, forcing the Indexer to the full-index path.
func (s *Source) FetchChanges(ctx context.Context, previous sourcemeta.Metadata) (*model.FileChanges, error) {
	return nil, nil
}

// GetMetadata returns the current descriptor stamped with now.
func (s *Source) GetMetadata(ctx context.Context) (sourcemeta.Metadata, error) {
	return sourcemeta.LocalFSMetadata{
		Config:   sourcemeta.LocalFSConfig{RootPath: s.RootPath, IgnorePatterns: s.IgnorePatterns},
		SyncedAt: time.Now().UTC(),
	}, nil
}

// ListFiles performs a non-recursive listing of directory (relative to
// RootPath; empty means root).
func (s *Source) ListFiles(ctx context.Context, directory string) ([]model.FileInfo, error) {
	if strings.Contains(directory, "..") {
		return nil, apperrors.ConfigError("listFiles: path traversal in directory", nil).WithDetail("directory", directory)
	}
	dir := filepath.Join(s.RootPath, filepath.FromSlash(directory))

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("localfs: list %q: %w", directory, err)
	}

	out := make([]model.FileInfo, 0, len(entries))
	for _, e := range entries {
		if defaultSkipDirs[e.Name()] {
			continue
		}
		relPath := filepath.ToSlash(filepath.Join(directory, e.Name()))
		typ := model.FileInfoTypeFile
		if e.IsDir() {
			typ = model.FileInfoTypeDirectory
		}
		out = append(out, model.FileInfo{Path: relPath, Type: typ})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// ReadFile returns the contents at path relative to RootPath. Path
// traversal is rejected; a missing file returns (nil, nil). Line-range
// and regex slicing (ReadOptions) is applied by internal/tools.ReadFile,
// which layers on top of the raw bytes returned here.
func (s *Source) ReadFile(ctx context.Context, path string, opts source.ReadOptions) ([]byte, error) {
	if strings.Contains(path, "..") {
		return nil, apperrors.ConfigError("readFile: path traversal", nil).WithDetail("path", path)
	}
	full := filepath.Join(s.RootPath, filepath.FromSlash(path))
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("localfs: read %q: %w", path, err)
	}
	return data, nil
}
