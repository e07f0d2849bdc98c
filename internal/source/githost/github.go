package githost

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/augmentcode/auggie-index/internal/sourcemeta"
)

// githubAPI implements the api interface against the GitHub REST API.
type githubAPI struct {
	owner, repo, ref string
	client           *http.Client
	token            string
}

// NewGitHub constructs a Source backed by GitHub, reading GITHUB_TOKEN
// from the environment at construction time only.
func NewGitHub(cfg sourcemeta.GitHubConfig) *Source {
	a := &githubAPI{
		owner:  cfg.Owner,
		repo:   cfg.Repo,
		ref:    cfg.Ref,
		client: &http.Client{Timeout: 30 * time.Second},
		token:  os.Getenv("GITHUB_TOKEN"),
	}
	return newSource(a, cfg.Ref)
}

func (g *githubAPI) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "auggie-index")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	return req, nil
}

func (g *githubAPI) ResolveRef(ctx context.Context, ref string) (string, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/commits/%s", g.owner, g.repo, ref)
	req, err := g.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return "", err
	}
	var out struct {
		SHA string `json:"sha"`
	}
	if _, err := httpJSON(ctx, g.client, req, &out); err != nil {
		return "", err
	}
	if out.SHA == "" {
		return "", fmt.Errorf("githost: github: empty sha resolving %q", ref)
	}
	return out.SHA, nil
}

func (g *githubAPI) DownloadArchive(ctx context.Context, sha string) (io.ReadCloser, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/tarball/%s", g.owner, g.repo, sha)
	req, err := g.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("githost: github: download archive: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (g *githubAPI) Compare(ctx context.Context, base, head string) ([]ChangedFile, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/compare/%s...%s", g.owner, g.repo, base, head)
	req, err := g.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoCommonAncestor
	}

	var out struct {
		Status string `json:"status"`
		Files  []struct {
			Filename         string `json:"filename"`
			PreviousFilename string `json:"previous_filename"`
			Status           string `json:"status"`
		} `json:"files"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("githost: github: decode compare: %w", err)
	}
	if out.Status == "diverged" && len(out.Files) == 0 {
		return nil, ErrNoCommonAncestor
	}

	changed := make([]ChangedFile, 0, len(out.Files))
	for _, f := range out.Files {
		cf := ChangedFile{Path: f.Filename}
		switch f.Status {
		case "added":
			cf.Status = StatusAdded
		case "removed":
			cf.Status = StatusRemoved
		case "renamed":
			cf.Status = StatusRenamed
			cf.OldPath = f.PreviousFilename
		default:
			cf.Status = StatusModified
		}
		changed = append(changed, cf)
	}
	return changed, nil
}

func (g *githubAPI) ListTree(ctx context.Context, ref string) ([]string, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/git/trees/%s?recursive=1", g.owner, g.repo, ref)
	req, err := g.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	var out struct {
		Tree []struct {
			Path string `json:"path"`
			Type string `json:"type"`
		} `json:"tree"`
	}
	if _, err := httpJSON(ctx, g.client, req, &out); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(out.Tree))
	for _, e := range out.Tree {
		if e.Type == "blob" {
			paths = append(paths, e.Path)
		}
	}
	return paths, nil
}

func (g *githubAPI) GetFile(ctx context.Context, ref, path string) ([]byte, error) {
	url := fmt.Sprintf("https://api.github.com/repos/%s/%s/contents/%s?ref=%s", g.owner, g.repo, path, ref)
	req, err := g.newRequest(ctx, http.MethodGet, url)
	if err != nil {
		return nil, err
	}
	var out struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if _, err := httpJSON(ctx, g.client, req, &out); err != nil {
		return nil, err
	}
	if out.Encoding != "base64" {
		return nil, fmt.Errorf("githost: github: unexpected content encoding %q", out.Encoding)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(out.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("githost: github: decode file content: %w", err)
	}
	return decoded, nil
}

func (g *githubAPI) Identity() (sourcemeta.Metadata, error) {
	return sourcemeta.GitHubMetadata{Config: sourcemeta.GitHubConfig{Owner: g.owner, Repo: g.repo, Ref: g.ref}}, nil
}
