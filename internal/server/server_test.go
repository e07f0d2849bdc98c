package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/augmentcode/auggie-index/internal/apperrors"
	"github.com/augmentcode/auggie-index/internal/contextengine"
	"github.com/augmentcode/auggie-index/internal/indexer"
	"github.com/augmentcode/auggie-index/internal/model"
	"github.com/augmentcode/auggie-index/internal/sourcemeta"
	"github.com/augmentcode/auggie-index/internal/store"
)

// memStore is an in-memory store.Writer double.
type memStore struct {
	mu   sync.Mutex
	data map[string]*model.IndexState
}

func newMemStore() *memStore { return &memStore{data: map[string]*model.IndexState{}} }

func (s *memStore) Load(ctx context.Context, name string) (*model.IndexState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[name], nil
}

func (s *memStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.data {
		out = append(out, k)
	}
	return out, nil
}

func (s *memStore) Save(ctx context.Context, name string, state *model.IndexState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = state
	return nil
}

func (s *memStore) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, name)
	return nil
}

var _ store.Writer = (*memStore)(nil)

// seedIndex persists a state for name whose engine blob carries one
// file and whose source points at a real temp directory, so both the
// search path and the factory path work against it.
func seedIndex(t *testing.T, st *memStore, name string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644))

	engine := contextengine.NewMock()
	require.NoError(t, engine.AddToIndex(context.Background(), []contextengine.FileEntry{
		{Path: "main.go", Contents: "package main"},
	}))
	blob, err := engine.Export(context.Background())
	require.NoError(t, err)

	st.data[name] = &model.IndexState{
		ContextState: blob,
		Source:       sourcemeta.LocalFSMetadata{Config: sourcemeta.LocalFSConfig{RootPath: root}},
	}
	return root
}

func newTestServer(t *testing.T, st store.Reader, searchOnly bool) *Server {
	t.Helper()
	s, err := New(Config{
		Store:         st,
		EngineFactory: contextengine.MockFactory{},
		SearchOnly:    searchOnly,
	})
	require.NoError(t, err)
	return s
}

func TestSearchHandler_ReturnsSnippets(t *testing.T) {
	st := newMemStore()
	seedIndex(t, st, "proj")
	s := newTestServer(t, st, false)

	_, out, err := s.searchHandler(context.Background(), nil, SearchToolInput{IndexName: "proj", Query: "main"})
	require.NoError(t, err)
	assert.Equal(t, "main", out.Query)
	assert.Contains(t, out.Results, "main.go")
}

func TestSearchHandler_UnknownIndexIsNotFound(t *testing.T) {
	s := newTestServer(t, newMemStore(), false)

	_, _, err := s.searchHandler(context.Background(), nil, SearchToolInput{IndexName: "ghost", Query: "x"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindNotFound))
}

func TestListFilesHandler_ListsSourceTree(t *testing.T) {
	st := newMemStore()
	seedIndex(t, st, "proj")
	s := newTestServer(t, st, false)

	_, out, err := s.listFilesHandler(context.Background(), nil, ListFilesToolInput{IndexName: "proj"})
	require.NoError(t, err)
	require.Len(t, out.Files, 1)
	assert.Equal(t, "main.go", out.Files[0].Path)
}

func TestReadFileHandler_ReadsThroughSource(t *testing.T) {
	st := newMemStore()
	seedIndex(t, st, "proj")
	s := newTestServer(t, st, false)

	_, out, err := s.readFileHandler(context.Background(), nil, ReadFileToolInput{IndexName: "proj", Path: "main.go"})
	require.NoError(t, err)
	assert.Equal(t, "package main", out.Contents)
}

func TestSearchOnlyMode_DeniesSourceTools(t *testing.T) {
	st := newMemStore()
	seedIndex(t, st, "proj")
	s := newTestServer(t, st, true)

	_, out, err := s.searchHandler(context.Background(), nil, SearchToolInput{IndexName: "proj", Query: "main"})
	require.NoError(t, err)
	assert.Contains(t, out.Results, "main.go")

	_, _, err = s.listFilesHandler(context.Background(), nil, ListFilesToolInput{IndexName: "proj"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindSearchOnlyDenied))

	_, _, err = s.readFileHandler(context.Background(), nil, ReadFileToolInput{IndexName: "proj", Path: "main.go"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindSearchOnlyDenied))
}

func TestHTTPHandler_HealthAndAuth(t *testing.T) {
	st := newMemStore()
	s := newTestServer(t, st, false)
	h := s.HTTPHandler(HTTPConfig{APIKey: "sesame"})
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Get(srv.URL + "/indexes")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/indexes", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer sesame")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestHTTPHandler_ListIndexes(t *testing.T) {
	st := newMemStore()
	seedIndex(t, st, "proj")
	s := newTestServer(t, st, false)
	srv := httptest.NewServer(s.HTTPHandler(HTTPConfig{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/indexes")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"proj"}, body["indexes"])
}

func TestHTTPHandler_ReindexAndDelete(t *testing.T) {
	st := newMemStore()
	seedIndex(t, st, "proj")
	s := newTestServer(t, st, false)

	ix, err := indexer.New(indexer.Config{Factory: contextengine.MockFactory{}})
	require.NoError(t, err)
	srv := httptest.NewServer(s.HTTPHandler(HTTPConfig{Writer: st, Indexer: ix}))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/indexes/proj/reindex", "application/json", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result model.IndexResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	_ = resp.Body.Close()
	// LocalFS never supports incremental, so a reindex is always full.
	assert.Equal(t, model.IndexResultTypeFull, result.Type)
	assert.Equal(t, 1, result.FilesIndexed)

	resp, err = http.Post(srv.URL+"/indexes/ghost/reindex", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/indexes/proj", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_ = resp.Body.Close()

	state, err := st.Load(context.Background(), "proj")
	require.NoError(t, err)
	assert.Nil(t, state)
}
