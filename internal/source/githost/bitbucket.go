package githost

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/augmentcode/auggie-index/internal/sourcemeta"
)

// bitbucketAPI implements the api interface against the Bitbucket Cloud
// REST API (2.0).
type bitbucketAPI struct {
	workspace, repo, baseURL, ref string
	client                        *http.Client
	username, appPassword, token  string
}

// NewBitbucket constructs a Source backed by Bitbucket, reading
// BITBUCKET_TOKEN (OAuth bearer) or BITBUCKET_APP_PASSWORD (basic auth,
// paired with BITBUCKET_USERNAME) from the environment at construction
// time only.
func NewBitbucket(cfg sourcemeta.BitbucketConfig) *Source {
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.bitbucket.org/2.0"
	}
	a := &bitbucketAPI{
		workspace:   cfg.Workspace,
		repo:        cfg.Repo,
		baseURL:     strings.TrimSuffix(base, "/"),
		ref:         cfg.Ref,
		client:      &http.Client{Timeout: 30 * time.Second},
		username:    os.Getenv("BITBUCKET_USERNAME"),
		appPassword: os.Getenv("BITBUCKET_APP_PASSWORD"),
		token:       os.Getenv("BITBUCKET_TOKEN"),
	}
	return newSource(a, cfg.Ref)
}

func (b *bitbucketAPI) repoBase() string {
	return fmt.Sprintf("%s/repositories/%s/%s", b.baseURL, b.workspace, b.repo)
}

func (b *bitbucketAPI) newRequest(ctx context.Context, method, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "auggie-index")
	switch {
	case b.token != "":
		req.Header.Set("Authorization", "Bearer "+b.token)
	case b.appPassword != "":
		req.SetBasicAuth(b.username, b.appPassword)
	}
	return req, nil
}

func (b *bitbucketAPI) ResolveRef(ctx context.Context, ref string) (string, error) {
	u := fmt.Sprintf("%s/commit/%s", b.repoBase(), url.PathEscape(ref))
	req, err := b.newRequest(ctx, http.MethodGet, u)
	if err != nil {
		return "", err
	}
	var out struct {
		Hash string `json:"hash"`
	}
	if _, err := httpJSON(ctx, b.client, req, &out); err != nil {
		return "", err
	}
	if out.Hash == "" {
		return "", fmt.Errorf("githost: bitbucket: empty hash resolving %q", ref)
	}
	return out.Hash, nil
}

func (b *bitbucketAPI) DownloadArchive(ctx context.Context, sha string) (io.ReadCloser, error) {
	u := fmt.Sprintf("https://bitbucket.org/%s/%s/get/%s.tar.gz", b.workspace, b.repo, sha)
	req, err := b.newRequest(ctx, http.MethodGet, u)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("githost: bitbucket: download archive: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// Compare uses Bitbucket's diffstat endpoint, which reports file-level
// changes between two specs without returning patch content.
func (b *bitbucketAPI) Compare(ctx context.Context, base, head string) ([]ChangedFile, error) {
	u := fmt.Sprintf("%s/diffstat/%s..%s", b.repoBase(), url.PathEscape(head), url.PathEscape(base))
	req, err := b.newRequest(ctx, http.MethodGet, u)
	if err != nil {
		return nil, err
	}

	var out struct {
		Values []struct {
			Status string `json:"status"`
			Old    *struct {
				Path string `json:"path"`
			} `json:"old"`
			New *struct {
				Path string `json:"path"`
			} `json:"new"`
		} `json:"values"`
	}
	resp, err := httpJSON(ctx, b.client, req, &out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoCommonAncestor
	}

	changed := make([]ChangedFile, 0, len(out.Values))
	for _, v := range out.Values {
		cf := ChangedFile{}
		switch v.Status {
		case "added":
			cf.Status = StatusAdded
			cf.Path = v.New.Path
		case "removed":
			cf.Status = StatusRemoved
			cf.Path = v.Old.Path
		case "renamed":
			cf.Status = StatusRenamed
			cf.Path = v.New.Path
			cf.OldPath = v.Old.Path
		default:
			cf.Status = StatusModified
			cf.Path = v.New.Path
		}
		changed = append(changed, cf)
	}
	return changed, nil
}

func (b *bitbucketAPI) ListTree(ctx context.Context, ref string) ([]string, error) {
	u := fmt.Sprintf("%s/src/%s/?max_depth=100&pagelen=100", b.repoBase(), url.PathEscape(ref))
	req, err := b.newRequest(ctx, http.MethodGet, u)
	if err != nil {
		return nil, err
	}
	var out struct {
		Values []struct {
			Path string `json:"path"`
			Type string `json:"type"`
		} `json:"values"`
	}
	if _, err := httpJSON(ctx, b.client, req, &out); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(out.Values))
	for _, e := range out.Values {
		if e.Type == "commit_file" {
			paths = append(paths, e.Path)
		}
	}
	return paths, nil
}

func (b *bitbucketAPI) GetFile(ctx context.Context, ref, path string) ([]byte, error) {
	u := fmt.Sprintf("%s/src/%s/%s", b.repoBase(), url.PathEscape(ref), path)
	req, err := b.newRequest(ctx, http.MethodGet, u)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("githost: bitbucket: get file: unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (b *bitbucketAPI) Identity() (sourcemeta.Metadata, error) {
	return sourcemeta.BitbucketMetadata{Config: sourcemeta.BitbucketConfig{Workspace: b.workspace, Repo: b.repo, BaseURL: b.baseURL, Ref: b.ref}}, nil
}
