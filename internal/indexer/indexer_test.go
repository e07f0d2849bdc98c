package indexer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/augmentcode/auggie-index/internal/contextengine"
	"github.com/augmentcode/auggie-index/internal/model"
	"github.com/augmentcode/auggie-index/internal/source"
	"github.com/augmentcode/auggie-index/internal/sourcemeta"
	"github.com/augmentcode/auggie-index/internal/store"
)

// fakeSource is an in-memory source.Source double driven entirely by
// test-supplied data, standing in for localfs/githost/website in unit
// tests that only care about Indexer's control flow.
type fakeSource struct {
	entries       []model.FileEntry
	changes       *model.FileChanges
	changesErr    error
	meta          sourcemeta.Metadata
	fetchAllCalls int
}

func (s *fakeSource) FetchAll(ctx context.Context) (<-chan model.FileEntry, <-chan error) {
	s.fetchAllCalls++
	entries := make(chan model.FileEntry, len(s.entries))
	errs := make(chan error, 1)
	for _, e := range s.entries {
		entries <- e
	}
	close(entries)
	close(errs)
	return entries, errs
}

func (s *fakeSource) FetchChanges(ctx context.Context, previous sourcemeta.Metadata) (*model.FileChanges, error) {
	return s.changes, s.changesErr
}

func (s *fakeSource) GetMetadata(ctx context.Context) (sourcemeta.Metadata, error) {
	return s.meta, nil
}

func (s *fakeSource) ListFiles(ctx context.Context, directory string) ([]model.FileInfo, error) {
	return nil, nil
}

func (s *fakeSource) ReadFile(ctx context.Context, path string, opts source.ReadOptions) ([]byte, error) {
	return nil, nil
}

var _ source.Source = (*fakeSource)(nil)

// fakeStore is an in-memory store.Writer double.
type fakeStore struct {
	mu    sync.Mutex
	data  map[string]*model.IndexState
	saves int
	fail  bool
}

var _ store.Writer = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{data: map[string]*model.IndexState{}}
}

func (s *fakeStore) Load(ctx context.Context, name string) (*model.IndexState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[name], nil
}

func (s *fakeStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.data {
		out = append(out, k)
	}
	return out, nil
}

func (s *fakeStore) Save(ctx context.Context, name string, state *model.IndexState) error {
	if s.fail {
		return assert.AnError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.data[name] = state
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, name)
	return nil
}

func newTestIndexer(t *testing.T) *Indexer {
	t.Helper()
	ix, err := New(Config{Factory: contextengine.MockFactory{}})
	require.NoError(t, err)
	return ix
}

// First full index of a local tree, then an unchanged re-run.
func TestIndex_FirstFullThenUnchanged(t *testing.T) {
	ix := newTestIndexer(t)
	st := newFakeStore()
	src := &fakeSource{
		entries: []model.FileEntry{
			{Path: "a.txt", Contents: "hello"},
			{Path: "sub/b.md", Contents: "x"},
		},
		changes: nil, // localfs-style: never supports incremental
		meta:    sourcemeta.LocalFSMetadata{Config: sourcemeta.LocalFSConfig{RootPath: "/tmp/proj"}, SyncedAt: time.Now().UTC()},
	}

	result, err := ix.Index(context.Background(), src, st, "proj", nil)
	require.NoError(t, err)
	assert.Equal(t, model.IndexResultTypeFull, result.Type)
	assert.Equal(t, 2, result.FilesIndexed)
	assert.Equal(t, 1, st.saves)

	firstState := st.data["proj"]

	// Re-run: localfs always returns (nil, nil) from FetchChanges, so
	// this takes the full path again, but must converge to the same
	// persisted bytes.
	result2, err := ix.Index(context.Background(), src, st, "proj", nil)
	require.NoError(t, err)
	assert.Equal(t, model.IndexResultTypeFull, result2.Type)
	assert.Equal(t, 2, src.fetchAllCalls)

	secondState := st.data["proj"]
	assert.Equal(t, firstState.ContextState, secondState.ContextState)
}

// Incremental changes on a hosted-Git style source.
func TestIndex_Incremental(t *testing.T) {
	ix := newTestIndexer(t)
	st := newFakeStore()

	prevMeta := sourcemeta.GitHubMetadata{
		Config:      sourcemeta.GitHubConfig{Owner: "acme", Repo: "widgets"},
		ResolvedRef: "AAA",
		SyncedAt:    time.Now().UTC(),
	}
	engine, err := contextengine.MockFactory{}.Create(context.Background(), "", "")
	require.NoError(t, err)
	require.NoError(t, engine.AddToIndex(context.Background(), []contextengine.FileEntry{
		{Path: "src/old.js", Contents: "old"},
		{Path: "README.old", Contents: "readme"},
	}))
	blob, err := engine.Export(context.Background())
	require.NoError(t, err)
	st.data["repo"] = &model.IndexState{ContextState: blob, Source: prevMeta}

	newMeta := prevMeta
	newMeta.ResolvedRef = "BBB"
	src := &fakeSource{
		changes: &model.FileChanges{
			Added:    []model.FileEntry{{Path: "src/new.js", Contents: "new"}},
			Modified: []model.FileEntry{{Path: "src/old.js", Contents: "updated"}},
			Removed:  []string{"README.old"},
		},
		meta: newMeta,
	}

	result, err := ix.Index(context.Background(), src, st, "repo", nil)
	require.NoError(t, err)
	assert.Equal(t, model.IndexResultTypeIncremental, result.Type)
	assert.Equal(t, 2, result.FilesIndexed)
	assert.Equal(t, 1, result.FilesRemoved)
}

// FetchChanges returning nil (force push, ignore-file change, or diff
// storm) forces the full path, regardless of which condition triggered
// it; the Indexer cannot and need not distinguish.
func TestIndex_NilChangesForcesFull(t *testing.T) {
	ix := newTestIndexer(t)
	st := newFakeStore()
	st.data["repo"] = &model.IndexState{
		ContextState: []byte(`{}`),
		Source:       sourcemeta.GitHubMetadata{ResolvedRef: "AAA"},
	}
	src := &fakeSource{
		entries: []model.FileEntry{{Path: "x.txt", Contents: "x"}},
		changes: nil,
		meta:    sourcemeta.GitHubMetadata{ResolvedRef: "CCC"},
	}

	result, err := ix.Index(context.Background(), src, st, "repo", nil)
	require.NoError(t, err)
	assert.Equal(t, model.IndexResultTypeFull, result.Type)
}

func TestIndex_EmptyChangesIsUnchangedAndSkipsSave(t *testing.T) {
	ix := newTestIndexer(t)
	st := newFakeStore()
	st.data["repo"] = &model.IndexState{
		ContextState: []byte(`{}`),
		Source:       sourcemeta.GitHubMetadata{ResolvedRef: "AAA"},
	}
	src := &fakeSource{changes: &model.FileChanges{}}

	result, err := ix.Index(context.Background(), src, st, "repo", nil)
	require.NoError(t, err)
	assert.Equal(t, model.IndexResultTypeUnchanged, result.Type)
	assert.Equal(t, 0, st.saves)
}

func TestIndex_SaveFailureDoesNotCorruptPriorState(t *testing.T) {
	ix := newTestIndexer(t)
	st := newFakeStore()
	prior := &model.IndexState{ContextState: []byte(`{"a.txt":"old"}`), Source: sourcemeta.LocalFSMetadata{}}
	st.data["proj"] = prior
	st.fail = true

	src := &fakeSource{
		entries: []model.FileEntry{{Path: "a.txt", Contents: "new"}},
		changes: nil,
		meta:    sourcemeta.LocalFSMetadata{},
	}

	_, err := ix.Index(context.Background(), src, st, "proj", nil)
	require.Error(t, err)
	assert.Same(t, prior, st.data["proj"], "a failed save must leave the prior state untouched")
}

func TestIndex_FetchChangesErrorPropagatesUnchanged(t *testing.T) {
	ix := newTestIndexer(t)
	st := newFakeStore()
	st.data["repo"] = &model.IndexState{ContextState: []byte(`{}`), Source: sourcemeta.GitHubMetadata{ResolvedRef: "AAA"}}
	src := &fakeSource{changesErr: assert.AnError}

	_, err := ix.Index(context.Background(), src, st, "repo", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}
