package githost

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/augmentcode/auggie-index/internal/apperrors"
	"github.com/augmentcode/auggie-index/internal/model"
	"github.com/augmentcode/auggie-index/internal/source"
	"github.com/augmentcode/auggie-index/internal/sourcemeta"
)

const (
	shaPrev = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	shaCurr = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

// fakeAPI is an in-memory api double: refs resolve from a map, the
// archive is a tar.gz built from files, and Compare/GetFile answer from
// test-supplied data.
type fakeAPI struct {
	refs       map[string]string
	files      map[string]string // archive contents, path -> data
	changed    []ChangedFile
	compareErr error
	contents   map[string]string // GetFile contents at the current ref
	tree       []string
}

func (f *fakeAPI) ResolveRef(ctx context.Context, ref string) (string, error) {
	sha, ok := f.refs[ref]
	if !ok {
		return "", fmt.Errorf("unknown ref %q", ref)
	}
	return sha, nil
}

func (f *fakeAPI) DownloadArchive(ctx context.Context, sha string) (io.ReadCloser, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for path, data := range f.files {
		hdr := &tar.Header{
			Name:     "octo-hello-" + sha[:7] + "/" + path,
			Mode:     0o644,
			Size:     int64(len(data)),
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, err
		}
		if _, err := tw.Write([]byte(data)); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return io.NopCloser(&buf), nil
}

func (f *fakeAPI) Compare(ctx context.Context, base, head string) ([]ChangedFile, error) {
	if f.compareErr != nil {
		return nil, f.compareErr
	}
	return f.changed, nil
}

func (f *fakeAPI) ListTree(ctx context.Context, ref string) ([]string, error) {
	return f.tree, nil
}

func (f *fakeAPI) GetFile(ctx context.Context, ref, path string) ([]byte, error) {
	data, ok := f.contents[path]
	if !ok {
		return nil, fmt.Errorf("no such file %q at %s", path, ref)
	}
	return []byte(data), nil
}

func (f *fakeAPI) Identity() (sourcemeta.Metadata, error) {
	return sourcemeta.GitHubMetadata{
		Config: sourcemeta.GitHubConfig{Owner: "octo", Repo: "hello", Ref: "main"},
	}, nil
}

var _ api = (*fakeAPI)(nil)

func prevMeta(sha string) sourcemeta.GitHubMetadata {
	return sourcemeta.GitHubMetadata{
		Config:      sourcemeta.GitHubConfig{Owner: "octo", Repo: "hello", Ref: "main"},
		ResolvedRef: sha,
		SyncedAt:    time.Now().UTC().Add(-time.Hour),
	}
}

func TestFetchAll_StreamsArchiveStrippingRootPrefix(t *testing.T) {
	f := &fakeAPI{
		refs: map[string]string{"main": shaCurr},
		files: map[string]string{
			"main.go":    "package main\n",
			"sub/lib.go": "package sub\n",
			"bin.dat":    "\x00\x01\x02\xff",
		},
	}
	s := newSource(f, "main")

	entries, errs := s.FetchAll(context.Background())
	var got []model.FileEntry
	for e := range entries {
		got = append(got, e)
	}
	require.NoError(t, <-errs)

	var paths []string
	for _, e := range got {
		paths = append(paths, e.Path)
	}
	assert.ElementsMatch(t, []string{"main.go", "sub/lib.go"}, paths, "binary rejected, prefix stripped")
}

func TestFetchChanges_NoPreviousRefFallsBackToFull(t *testing.T) {
	s := newSource(&fakeAPI{refs: map[string]string{"main": shaCurr}}, "main")

	changes, err := s.FetchChanges(context.Background(), sourcemeta.GitHubMetadata{
		Config: sourcemeta.GitHubConfig{Owner: "octo", Repo: "hello"},
	})
	require.NoError(t, err)
	assert.Nil(t, changes)
}

func TestFetchChanges_EqualRefsIsEmptyNotNil(t *testing.T) {
	s := newSource(&fakeAPI{refs: map[string]string{"main": shaPrev}}, "main")

	changes, err := s.FetchChanges(context.Background(), prevMeta(shaPrev))
	require.NoError(t, err)
	require.NotNil(t, changes)
	assert.True(t, changes.Empty())
}

// Mixed added/modified/removed under the storm threshold yields a
// usable incremental diff.
func TestFetchChanges_ClassifiesStatuses(t *testing.T) {
	f := &fakeAPI{
		refs: map[string]string{"main": shaCurr},
		changed: []ChangedFile{
			{Path: "src/new.js", Status: StatusAdded},
			{Path: "src/old.js", Status: StatusModified},
			{Path: "README.old", Status: StatusRemoved},
		},
		contents: map[string]string{
			"src/new.js": "export const a = 1;",
			"src/old.js": "export const b = 2;",
		},
	}
	s := newSource(f, "main")

	changes, err := s.FetchChanges(context.Background(), prevMeta(shaPrev))
	require.NoError(t, err)
	require.NotNil(t, changes)

	require.Len(t, changes.Added, 1)
	assert.Equal(t, "src/new.js", changes.Added[0].Path)
	assert.Equal(t, "export const a = 1;", changes.Added[0].Contents)
	require.Len(t, changes.Modified, 1)
	assert.Equal(t, "src/old.js", changes.Modified[0].Path)
	assert.Equal(t, []string{"README.old"}, changes.Removed)

	// removed is disjoint from added+modified by path.
	for _, e := range append(changes.Added, changes.Modified...) {
		assert.NotContains(t, changes.Removed, e.Path)
	}
}

func TestFetchChanges_RenameBecomesRemoveAndAdd(t *testing.T) {
	f := &fakeAPI{
		refs: map[string]string{"main": shaCurr},
		changed: []ChangedFile{
			{Path: "src/renamed.go", OldPath: "src/original.go", Status: StatusRenamed},
		},
		contents: map[string]string{"src/renamed.go": "package src"},
	}
	s := newSource(f, "main")

	changes, err := s.FetchChanges(context.Background(), prevMeta(shaPrev))
	require.NoError(t, err)
	require.NotNil(t, changes)
	assert.Equal(t, []string{"src/original.go"}, changes.Removed)
	require.Len(t, changes.Added, 1)
	assert.Equal(t, "src/renamed.go", changes.Added[0].Path)
}

// A compare error with no common ancestor (force push) falls back to
// full.
func TestFetchChanges_ForcePushFallsBackToFull(t *testing.T) {
	f := &fakeAPI{
		refs:       map[string]string{"main": shaCurr},
		compareErr: ErrNoCommonAncestor,
	}
	s := newSource(f, "main")

	changes, err := s.FetchChanges(context.Background(), prevMeta(shaPrev))
	require.NoError(t, err)
	assert.Nil(t, changes)
}

// A changed ignore file forces full.
func TestFetchChanges_IgnoreFileChangeFallsBackToFull(t *testing.T) {
	for _, ignore := range []string{".gitignore", "sub/.augmentignore"} {
		t.Run(ignore, func(t *testing.T) {
			f := &fakeAPI{
				refs: map[string]string{"main": shaCurr},
				changed: []ChangedFile{
					{Path: "a.go", Status: StatusModified},
					{Path: "b.go", Status: StatusModified},
					{Path: "c.go", Status: StatusModified},
					{Path: ignore, Status: StatusModified},
				},
			}
			s := newSource(f, "main")

			changes, err := s.FetchChanges(context.Background(), prevMeta(shaPrev))
			require.NoError(t, err)
			assert.Nil(t, changes)
		})
	}
}

// More than 100 changed files forces full.
func TestFetchChanges_DiffStormFallsBackToFull(t *testing.T) {
	var changed []ChangedFile
	for i := 0; i < maxChangedFiles+1; i++ {
		changed = append(changed, ChangedFile{Path: fmt.Sprintf("f%03d.go", i), Status: StatusModified})
	}
	f := &fakeAPI{refs: map[string]string{"main": shaCurr}, changed: changed}
	s := newSource(f, "main")

	changes, err := s.FetchChanges(context.Background(), prevMeta(shaPrev))
	require.NoError(t, err)
	assert.Nil(t, changes)
}

func TestFetchChanges_OtherCompareErrorPropagates(t *testing.T) {
	f := &fakeAPI{
		refs:       map[string]string{"main": shaCurr},
		compareErr: fmt.Errorf("502 bad gateway"),
	}
	s := newSource(f, "main")

	_, err := s.FetchChanges(context.Background(), prevMeta(shaPrev))
	require.Error(t, err)
}

func TestGetMetadata_StampsResolvedRefAndSyncedAt(t *testing.T) {
	s := newSource(&fakeAPI{refs: map[string]string{"main": shaCurr}}, "main")

	meta, err := s.GetMetadata(context.Background())
	require.NoError(t, err)

	gh, ok := meta.(sourcemeta.GitHubMetadata)
	require.True(t, ok)
	assert.Equal(t, shaCurr, gh.ResolvedRef)
	assert.False(t, gh.SyncedAt.IsZero())
}

func TestResolveRef_CachedPerInstance(t *testing.T) {
	f := &fakeAPI{refs: map[string]string{"main": shaCurr}}
	s := newSource(f, "main")

	first, err := s.resolveRef(context.Background())
	require.NoError(t, err)

	// Upstream moves; the instance keeps serving its pinned resolution.
	f.refs["main"] = shaPrev
	second, err := s.resolveRef(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestListFiles_NonRecursiveViewOverTree(t *testing.T) {
	f := &fakeAPI{
		refs: map[string]string{"main": shaCurr},
		tree: []string{"main.go", "src/app.go", "src/deep/x.go", "docs/guide.md"},
	}
	s := newSource(f, "main")

	infos, err := s.ListFiles(context.Background(), "")
	require.NoError(t, err)
	var paths []string
	for _, info := range infos {
		paths = append(paths, info.Path)
	}
	assert.ElementsMatch(t, []string{"main.go", "src", "docs"}, paths)

	infos, err = s.ListFiles(context.Background(), "src")
	require.NoError(t, err)
	paths = nil
	for _, info := range infos {
		paths = append(paths, info.Path)
	}
	assert.ElementsMatch(t, []string{"src/app.go", "src/deep"}, paths)
}

func TestReadFile_RejectsTraversal(t *testing.T) {
	s := newSource(&fakeAPI{refs: map[string]string{"main": shaCurr}}, "main")

	_, err := s.ReadFile(context.Background(), "../secrets", source.ReadOptions{})
	require.Error(t, err)
}

func TestHTTPJSON_ForbiddenIsNotRetriedAsRateLimit(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	_, err = httpJSON(context.Background(), srv.Client(), req, nil)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindForbidden))
	assert.Equal(t, int32(1), hits.Load(), "auth failures must not be retried")
}
