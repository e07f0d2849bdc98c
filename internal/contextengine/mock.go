package contextengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Mock is an in-memory Engine double used by the indexer, tools, and
// webhook package tests so they never need a live service. Export/Import
// round-trip the full file map as JSON, which is enough to exercise the
// Indexer's full/incremental/unchanged logic without real embeddings.
type Mock struct {
	mu    sync.Mutex
	files map[string]string
}

var _ Engine = (*Mock)(nil)

// NewMock returns a fresh, empty Mock, equivalent to MockFactory.Create
// for tests that don't need a Factory.
func NewMock() *Mock {
	return &Mock{files: map[string]string{}}
}

// MockFactory implements Factory with Mock engines, ignoring credentials.
type MockFactory struct{}

// Create returns a fresh, empty Mock.
func (MockFactory) Create(ctx context.Context, apiToken, apiURL string) (Engine, error) {
	return &Mock{files: map[string]string{}}, nil
}

// Import rehydrates a Mock from a previously exported blob.
func (MockFactory) Import(ctx context.Context, blob []byte, apiToken, apiURL string) (Engine, error) {
	m := &Mock{files: map[string]string{}}
	if len(blob) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(blob, &m.files); err != nil {
		return nil, fmt.Errorf("contextengine: mock import: %w", err)
	}
	return m, nil
}

// AddToIndex implements Engine.
func (m *Mock) AddToIndex(ctx context.Context, entries []FileEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.files[e.Path] = e.Contents
	}
	return nil
}

// RemoveFromIndex implements Engine.
func (m *Mock) RemoveFromIndex(ctx context.Context, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range paths {
		delete(m.files, p)
	}
	return nil
}

// Search implements Engine with a trivial substring match over stored
// contents, rendered as "path: matching-line" per hit, good enough to
// exercise the tools/search contract in tests without a real ranker.
func (m *Mock) Search(ctx context.Context, query string, maxOutputLength int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var paths []string
	for p := range m.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var hits []string
	for _, p := range paths {
		for _, line := range strings.Split(m.files[p], "\n") {
			if strings.Contains(strings.ToLower(line), strings.ToLower(query)) {
				hits = append(hits, fmt.Sprintf("%s: %s", p, line))
			}
		}
	}

	out := strings.Join(hits, "\n")
	if maxOutputLength > 0 && len(out) > maxOutputLength {
		out = out[:maxOutputLength]
	}
	return out, nil
}

// Export implements Engine.
func (m *Mock) Export(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return json.Marshal(m.files)
}

// FileCount reports how many paths are currently tracked, for assertions
// in tests that want to check the Mock's state directly.
func (m *Mock) FileCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}
