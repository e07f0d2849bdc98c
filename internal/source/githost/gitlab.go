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

// gitlabAPI implements the api interface against the GitLab REST API.
type gitlabAPI struct {
	projectID, baseURL, ref string
	client                  *http.Client
	token                   string
}

// NewGitLab constructs a Source backed by GitLab, reading GITLAB_TOKEN
// from the environment at construction time only.
func NewGitLab(cfg sourcemeta.GitLabConfig) *Source {
	base := cfg.BaseURL
	if base == "" {
		base = "https://gitlab.com"
	}
	a := &gitlabAPI{
		projectID: cfg.ProjectID,
		baseURL:   strings.TrimSuffix(base, "/"),
		ref:       cfg.Ref,
		client:    &http.Client{Timeout: 30 * time.Second},
		token:     os.Getenv("GITLAB_TOKEN"),
	}
	return newSource(a, cfg.Ref)
}

func (g *gitlabAPI) apiBase() string {
	return fmt.Sprintf("%s/api/v4/projects/%s", g.baseURL, url.PathEscape(g.projectID))
}

func (g *gitlabAPI) newRequest(ctx context.Context, method, u string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "auggie-index")
	if g.token != "" {
		req.Header.Set("PRIVATE-TOKEN", g.token)
	}
	return req, nil
}

func (g *gitlabAPI) ResolveRef(ctx context.Context, ref string) (string, error) {
	u := fmt.Sprintf("%s/repository/commits/%s", g.apiBase(), url.PathEscape(ref))
	req, err := g.newRequest(ctx, http.MethodGet, u)
	if err != nil {
		return "", err
	}
	var out struct {
		ID string `json:"id"`
	}
	if _, err := httpJSON(ctx, g.client, req, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("githost: gitlab: empty id resolving %q", ref)
	}
	return out.ID, nil
}

func (g *gitlabAPI) DownloadArchive(ctx context.Context, sha string) (io.ReadCloser, error) {
	u := fmt.Sprintf("%s/repository/archive.tar.gz?sha=%s", g.apiBase(), url.QueryEscape(sha))
	req, err := g.newRequest(ctx, http.MethodGet, u)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("githost: gitlab: download archive: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

func (g *gitlabAPI) Compare(ctx context.Context, base, head string) ([]ChangedFile, error) {
	u := fmt.Sprintf("%s/repository/compare?from=%s&to=%s", g.apiBase(), url.QueryEscape(base), url.QueryEscape(head))
	req, err := g.newRequest(ctx, http.MethodGet, u)
	if err != nil {
		return nil, err
	}

	var out struct {
		CompareTimeout bool `json:"compare_timeout"`
		Diffs          []struct {
			OldPath     string `json:"old_path"`
			NewPath     string `json:"new_path"`
			NewFile     bool   `json:"new_file"`
			RenamedFile bool   `json:"renamed_file"`
			DeletedFile bool   `json:"deleted_file"`
		} `json:"diffs"`
	}
	resp, err := httpJSON(ctx, g.client, req, &out)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoCommonAncestor
	}

	changed := make([]ChangedFile, 0, len(out.Diffs))
	for _, d := range out.Diffs {
		cf := ChangedFile{Path: d.NewPath}
		switch {
		case d.NewFile:
			cf.Status = StatusAdded
		case d.DeletedFile:
			cf.Status = StatusRemoved
			cf.Path = d.OldPath
		case d.RenamedFile:
			cf.Status = StatusRenamed
			cf.OldPath = d.OldPath
		default:
			cf.Status = StatusModified
		}
		changed = append(changed, cf)
	}
	return changed, nil
}

func (g *gitlabAPI) ListTree(ctx context.Context, ref string) ([]string, error) {
	u := fmt.Sprintf("%s/repository/tree?ref=%s&recursive=true&per_page=100", g.apiBase(), url.QueryEscape(ref))
	req, err := g.newRequest(ctx, http.MethodGet, u)
	if err != nil {
		return nil, err
	}
	var out []struct {
		Path string `json:"path"`
		Type string `json:"type"`
	}
	if _, err := httpJSON(ctx, g.client, req, &out); err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(out))
	for _, e := range out {
		if e.Type == "blob" {
			paths = append(paths, e.Path)
		}
	}
	return paths, nil
}

func (g *gitlabAPI) GetFile(ctx context.Context, ref, path string) ([]byte, error) {
	u := fmt.Sprintf("%s/repository/files/%s/raw?ref=%s", g.apiBase(), url.PathEscape(path), url.QueryEscape(ref))
	req, err := g.newRequest(ctx, http.MethodGet, u)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("githost: gitlab: get file: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (g *gitlabAPI) Identity() (sourcemeta.Metadata, error) {
	return sourcemeta.GitLabMetadata{Config: sourcemeta.GitLabConfig{ProjectID: g.projectID, BaseURL: g.baseURL, Ref: g.ref}}, nil
}
