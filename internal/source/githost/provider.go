// Package githost implements internal/source.Source once, parameterized
// by a small per-host api interface, shared across GitHub, GitLab, and
// Bitbucket. Tokens are sourced from the environment at construction
// time and never persisted.
package githost

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/augmentcode/auggie-index/internal/apperrors"
	"github.com/augmentcode/auggie-index/internal/filter"
	"github.com/augmentcode/auggie-index/internal/model"
	"github.com/augmentcode/auggie-index/internal/source"
	"github.com/augmentcode/auggie-index/internal/sourcemeta"
)

// maxChangedFiles is the diff-storm threshold: a changed-file count
// above this forces a full reindex.
const maxChangedFiles = 100

// ChangeStatus discriminates one changed-file entry from a compare call.
type ChangeStatus string

const (
	StatusAdded    ChangeStatus = "added"
	StatusModified ChangeStatus = "modified"
	StatusRemoved  ChangeStatus = "removed"
	StatusRenamed  ChangeStatus = "renamed"
)

// ChangedFile is one entry in a compare response.
type ChangedFile struct {
	Path    string
	OldPath string // set only when Status == StatusRenamed
	Status  ChangeStatus
}

// ErrNoCommonAncestor signals that a compare call could not find a
// common ancestor between two refs, which is how a force push shows up
// through a compare API.
var ErrNoCommonAncestor = fmt.Errorf("githost: no common ancestor between refs")

// api is the narrow per-host surface Source drives. Each host binding
// (github, gitlab, bitbucket) implements this against its own REST
// shape; Source itself contains none of that host-specific logic.
type api interface {
	// ResolveRef resolves "HEAD"/branch/tag to a full commit SHA.
	ResolveRef(ctx context.Context, ref string) (string, error)
	// DownloadArchive streams a tar.gz of the repository at sha.
	DownloadArchive(ctx context.Context, sha string) (io.ReadCloser, error)
	// Compare returns the changed files between base and head, or
	// ErrNoCommonAncestor if base is not an ancestor of head.
	Compare(ctx context.Context, base, head string) ([]ChangedFile, error)
	// ListTree lists all blob paths at ref, recursively.
	ListTree(ctx context.Context, ref string) ([]string, error)
	// GetFile fetches file contents at ref.
	GetFile(ctx context.Context, ref, path string) ([]byte, error)
	// Identity returns the (type, config) pair this Source reports in
	// its SourceMetadata.
	Identity() (sourcemeta.Metadata, error)
}

// Source implements internal/source.Source once for every git-host
// variant, delegating host-specific calls to api.
type Source struct {
	api api
	ref string

	refCache *lru.Cache[string, string]
}

func newSource(a api, ref string) *Source {
	cache, err := lru.New[string, string](1)
	if err != nil {
		// size 1 is always a valid LRU size; this cannot fail in practice.
		panic(err)
	}
	if ref == "" {
		ref = "HEAD"
	}
	return &Source{api: a, ref: ref, refCache: cache}
}

func (s *Source) resolveRef(ctx context.Context) (string, error) {
	if sha, ok := s.refCache.Get(s.ref); ok {
		return sha, nil
	}
	sha, err := s.api.ResolveRef(ctx, s.ref)
	if err != nil {
		return "", apperrors.Transport("githost: resolve ref", err).WithDetail("ref", s.ref)
	}
	s.refCache.Add(s.ref, sha)
	return sha, nil
}

// FetchAll downloads the archive at the resolved ref and streams
// filtered entries, never buffering the whole archive in memory.
func (s *Source) FetchAll(ctx context.Context) (<-chan model.FileEntry, <-chan error) {
	entries := make(chan model.FileEntry)
	errs := make(chan error, 1)

	go func() {
		defer close(entries)
		defer close(errs)

		sha, err := s.resolveRef(ctx)
		if err != nil {
			errs <- err
			return
		}

		body, err := s.api.DownloadArchive(ctx, sha)
		if err != nil {
			errs <- apperrors.Transport("githost: download archive", err)
			return
		}
		defer func() { _ = body.Close() }()

		gz, err := gzip.NewReader(body)
		if err != nil {
			errs <- apperrors.Transport("githost: open gzip stream", err)
			return
		}
		defer func() { _ = gz.Close() }()

		tr := tar.NewReader(gz)
		var rootPrefix string

		for {
			if ctx.Err() != nil {
				errs <- ctx.Err()
				return
			}
			hdr, err := tr.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				errs <- apperrors.Transport("githost: read tar entry", err)
				return
			}
			if hdr.Typeflag != tar.TypeReg {
				continue
			}

			name := hdr.Name
			if rootPrefix == "" {
				if idx := strings.IndexByte(name, '/'); idx >= 0 {
					rootPrefix = name[:idx+1]
				}
			}
			rel := strings.TrimPrefix(name, rootPrefix)
			if rel == "" {
				continue
			}

			if hdr.Size > filter.DefaultMaxSize {
				// admission would reject on size anyway; skip reading
				// the payload per the streaming-extraction design note.
				continue
			}

			contents, err := io.ReadAll(tr)
			if err != nil {
				errs <- apperrors.Transport("githost: read tar payload", err)
				return
			}

			res := filter.Decide(rel, contents, nil, nil, filter.Options{})
			if !res.Admit {
				continue
			}

			select {
			case entries <- model.FileEntry{Path: rel, Contents: string(contents)}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return entries, errs
}

// FetchChanges diffs the previously synced commit against the current
// one, declining (nil, nil) whenever an incremental update would be
// unsound.
func (s *Source) FetchChanges(ctx context.Context, previous sourcemeta.Metadata) (*model.FileChanges, error) {
	prevRef := resolvedRefOf(previous)
	if prevRef == "" {
		return nil, nil // step 1: previous ref unknown
	}

	current, err := s.resolveRef(ctx)
	if err != nil {
		return nil, err
	}
	if current == prevRef {
		return &model.FileChanges{}, nil // step 2: equal refs, empty changes
	}

	changed, err := s.api.Compare(ctx, prevRef, current)
	if err != nil {
		if err == ErrNoCommonAncestor {
			return nil, nil // step 3: force-push analog
		}
		return nil, apperrors.Transport("githost: compare refs", err)
	}

	for _, c := range changed {
		base := basename(c.Path)
		if base == ".gitignore" || base == ".augmentignore" {
			return nil, nil // step 4: ignore-file change forces full
		}
	}

	if len(changed) > maxChangedFiles {
		return nil, nil // step 5: diff storm forces full
	}

	result := &model.FileChanges{}
	for _, c := range changed {
		switch c.Status {
		case StatusRemoved:
			result.Removed = append(result.Removed, c.Path)
		case StatusRenamed:
			result.Removed = append(result.Removed, c.OldPath)
			data, err := s.api.GetFile(ctx, current, c.Path)
			if err != nil {
				return nil, apperrors.Transport("githost: fetch renamed file", err).WithDetail("path", c.Path)
			}
			result.Added = append(result.Added, model.FileEntry{Path: c.Path, Contents: string(data)})
		case StatusAdded:
			data, err := s.api.GetFile(ctx, current, c.Path)
			if err != nil {
				return nil, apperrors.Transport("githost: fetch added file", err).WithDetail("path", c.Path)
			}
			result.Added = append(result.Added, model.FileEntry{Path: c.Path, Contents: string(data)})
		case StatusModified:
			data, err := s.api.GetFile(ctx, current, c.Path)
			if err != nil {
				return nil, apperrors.Transport("githost: fetch modified file", err).WithDetail("path", c.Path)
			}
			result.Modified = append(result.Modified, model.FileEntry{Path: c.Path, Contents: string(data)})
		}
	}

	return result, nil
}

// GetMetadata returns the current descriptor, stamped with the resolved
// ref and now.
func (s *Source) GetMetadata(ctx context.Context) (sourcemeta.Metadata, error) {
	sha, err := s.resolveRef(ctx)
	if err != nil {
		return nil, err
	}
	base, err := s.api.Identity()
	if err != nil {
		return nil, err
	}
	return stampResolvedRef(base, sha, time.Now().UTC()), nil
}

// ListFiles lists the subset of the tree directly under directory
// (non-recursive view over ListTree's recursive result).
func (s *Source) ListFiles(ctx context.Context, directory string) ([]model.FileInfo, error) {
	sha, err := s.resolveRef(ctx)
	if err != nil {
		return nil, err
	}
	paths, err := s.api.ListTree(ctx, sha)
	if err != nil {
		return nil, apperrors.Transport("githost: list tree", err)
	}

	directory = strings.Trim(directory, "/")
	seen := make(map[string]model.FileInfoType)
	for _, p := range paths {
		rel := p
		if directory != "" {
			if !strings.HasPrefix(p, directory+"/") {
				continue
			}
			rel = strings.TrimPrefix(p, directory+"/")
		}
		if idx := strings.IndexByte(rel, '/'); idx >= 0 {
			seen[rel[:idx]] = model.FileInfoTypeDirectory
		} else if rel != "" {
			seen[rel] = model.FileInfoTypeFile
		}
	}

	out := make([]model.FileInfo, 0, len(seen))
	for name, typ := range seen {
		full := name
		if directory != "" {
			full = directory + "/" + name
		}
		out = append(out, model.FileInfo{Path: full, Type: typ})
	}
	return out, nil
}

// ReadFile fetches path at the resolved ref. A path the host cannot
// serve (missing or unreadable) returns (nil, nil).
func (s *Source) ReadFile(ctx context.Context, path string, opts source.ReadOptions) ([]byte, error) {
	if strings.Contains(path, "..") {
		return nil, apperrors.ConfigError("readFile: path traversal", nil).WithDetail("path", path)
	}
	sha, err := s.resolveRef(ctx)
	if err != nil {
		return nil, err
	}
	data, err := s.api.GetFile(ctx, sha, path)
	if err != nil {
		return nil, nil
	}
	return data, nil
}

func basename(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

func resolvedRefOf(meta sourcemeta.Metadata) string {
	switch m := meta.(type) {
	case sourcemeta.GitHubMetadata:
		return m.ResolvedRef
	case sourcemeta.GitLabMetadata:
		return m.ResolvedRef
	case sourcemeta.BitbucketMetadata:
		return m.ResolvedRef
	default:
		return ""
	}
}

func stampResolvedRef(meta sourcemeta.Metadata, sha string, now time.Time) sourcemeta.Metadata {
	switch m := meta.(type) {
	case sourcemeta.GitHubMetadata:
		m.ResolvedRef = sha
		m.SyncedAt = now
		return m
	case sourcemeta.GitLabMetadata:
		m.ResolvedRef = sha
		m.SyncedAt = now
		return m
	case sourcemeta.BitbucketMetadata:
		m.ResolvedRef = sha
		m.SyncedAt = now
		return m
	default:
		return meta
	}
}

// httpJSON performs a GET request and decodes the JSON response body
// into out, retrying transient failures with exponential backoff.
func httpJSON(ctx context.Context, client *http.Client, req *http.Request, out any) (*http.Response, error) {
	const maxAttempts = 3
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(1<<uint(attempt)) * time.Second)
		}

		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			_ = resp.Body.Close()
			lastErr = apperrors.RateLimited("githost: rate limited", nil)
			continue
		}
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			_ = resp.Body.Close()
			return nil, apperrors.Forbidden("githost: request forbidden", nil)
		}

		if out != nil {
			defer func() { _ = resp.Body.Close() }()
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, fmt.Errorf("githost: decode response: %w", err)
			}
		}
		return resp, nil
	}

	return nil, lastErr
}
