package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/augmentcode/auggie-index/internal/contextengine"
	"github.com/augmentcode/auggie-index/internal/indexer"
	"github.com/augmentcode/auggie-index/internal/model"
	"github.com/augmentcode/auggie-index/internal/source"
	"github.com/augmentcode/auggie-index/internal/sourcemeta"
	"github.com/augmentcode/auggie-index/internal/store"
)

const testSecret = "hunter2"

// pinnedSource is a Source double standing in for the GitHub client the
// handler would otherwise construct at the pushed commit.
type pinnedSource struct {
	owner, repo, sha string
	entries          []model.FileEntry
}

func (s *pinnedSource) FetchAll(ctx context.Context) (<-chan model.FileEntry, <-chan error) {
	entries := make(chan model.FileEntry, len(s.entries))
	errs := make(chan error, 1)
	for _, e := range s.entries {
		entries <- e
	}
	close(entries)
	close(errs)
	return entries, errs
}

func (s *pinnedSource) FetchChanges(ctx context.Context, previous sourcemeta.Metadata) (*model.FileChanges, error) {
	return nil, nil
}

func (s *pinnedSource) GetMetadata(ctx context.Context) (sourcemeta.Metadata, error) {
	return sourcemeta.GitHubMetadata{
		Config:      sourcemeta.GitHubConfig{Owner: s.owner, Repo: s.repo, Ref: s.sha},
		ResolvedRef: s.sha,
	}, nil
}

func (s *pinnedSource) ListFiles(ctx context.Context, directory string) ([]model.FileInfo, error) {
	return nil, nil
}

func (s *pinnedSource) ReadFile(ctx context.Context, path string, opts source.ReadOptions) ([]byte, error) {
	return nil, nil
}

var _ source.Source = (*pinnedSource)(nil)

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

func (s *memStore) List(ctx context.Context) ([]string, error) { return nil, nil }

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

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func newTestHandler(t *testing.T, st store.Writer, opts func(*Config)) *Handler {
	t.Helper()
	ix, err := indexer.New(indexer.Config{Factory: contextengine.MockFactory{}})
	require.NoError(t, err)
	cfg := Config{
		Secret:  testSecret,
		Indexer: ix,
		Store:   st,
		NewSource: func(owner, repo, sha string) source.Source {
			return &pinnedSource{
				owner: owner, repo: repo, sha: sha,
				entries: []model.FileEntry{{Path: "main.go", Contents: "package main"}},
			}
		},
	}
	if opts != nil {
		opts(&cfg)
	}
	return New(cfg)
}

func pushBody(t *testing.T, ref, after string, deleted bool) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"ref":     ref,
		"after":   after,
		"deleted": deleted,
		"repository": map[string]any{
			"name":  "hello",
			"owner": map[string]any{"login": "octo"},
		},
	})
	require.NoError(t, err)
	return body
}

func deliver(h *Handler, event string, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	if event != "" {
		req.Header.Set("X-GitHub-Event", event)
	}
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// A signed push to refs/heads/main indexes under owner/repo/main.
func TestServeHTTP_SignedPushIndexes(t *testing.T) {
	st := newMemStore()
	h := newTestHandler(t, st, nil)

	body := pushBody(t, "refs/heads/main", "ccc0000000000000000000000000000000000000", false)
	rec := deliver(h, "push", body, sign(body))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "indexed", resp["status"])
	assert.Equal(t, "octo/hello/main", resp["index"])
	assert.Equal(t, float64(1), resp["filesIndexed"])

	state, err := st.Load(context.Background(), "octo/hello/main")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, sourcemeta.TypeGitHub, state.Source.Type())
}

func TestServeHTTP_BadSignatureIs401(t *testing.T) {
	h := newTestHandler(t, newMemStore(), nil)
	body := pushBody(t, "refs/heads/main", "ccc", false)

	rec := deliver(h, "push", body, "sha256=deadbeef")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = deliver(h, "push", body, "not-even-hex")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServeHTTP_MissingHeadersIs400(t *testing.T) {
	h := newTestHandler(t, newMemStore(), nil)
	body := pushBody(t, "refs/heads/main", "ccc", false)

	rec := deliver(h, "", body, sign(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = deliver(h, "push", body, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeHTTP_NonPushIgnored(t *testing.T) {
	h := newTestHandler(t, newMemStore(), nil)
	body := []byte(`{"zen":"Keep it logically awesome."}`)

	rec := deliver(h, "ping", body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ignored"`)
}

func TestServeHTTP_TagPushIgnored(t *testing.T) {
	h := newTestHandler(t, newMemStore(), nil)
	body := pushBody(t, "refs/tags/v1.0.0", "ccc", false)

	rec := deliver(h, "push", body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ignored"`)
}

func TestServeHTTP_BranchDeleteSkippedByDefault(t *testing.T) {
	h := newTestHandler(t, newMemStore(), nil)
	body := pushBody(t, "refs/heads/old", "0000000000000000000000000000000000000000", true)

	rec := deliver(h, "push", body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"skipped"`)
}

func TestServeHTTP_BranchDeleteRemovesIndexWhenConfigured(t *testing.T) {
	st := newMemStore()
	st.data["octo/hello/old"] = &model.IndexState{ContextState: []byte(`{}`)}

	h := newTestHandler(t, st, func(cfg *Config) { cfg.DeleteOnBranchDelete = true })
	body := pushBody(t, "refs/heads/old", "0000000000000000000000000000000000000000", true)

	rec := deliver(h, "push", body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted"`)

	state, err := st.Load(context.Background(), "octo/hello/old")
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestServeHTTP_CustomNameFunc(t *testing.T) {
	st := newMemStore()
	h := newTestHandler(t, st, func(cfg *Config) {
		cfg.Name = func(owner, repo, branch string) string { return "custom-" + branch }
	})
	body := pushBody(t, "refs/heads/main", "ccc0000000000000000000000000000000000000", false)

	rec := deliver(h, "push", body, sign(body))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"custom-main"`)
}

func TestValidSignature(t *testing.T) {
	body := []byte(`{"hello":"world"}`)

	assert.True(t, ValidSignature(testSecret, body, sign(body)))
	assert.False(t, ValidSignature(testSecret, body, "sha256=0000"))
	assert.False(t, ValidSignature(testSecret, body, "sha1=whatever"))
	assert.False(t, ValidSignature("wrong-secret", body, sign(body)))
	assert.False(t, ValidSignature(testSecret, append(body, 'x'), sign(body)))
}
