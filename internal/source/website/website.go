// Package website implements internal/source.Source over a crawled
// website: FetchAll performs a breadth-first crawl from the start URL
// and emits one markdown-ish FileEntry per HTML page. Web sources never
// support incremental updates; every sync is a fresh crawl.
package website

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/temoto/robotstxt"

	"github.com/augmentcode/auggie-index/internal/apperrors"
	"github.com/augmentcode/auggie-index/internal/model"
	"github.com/augmentcode/auggie-index/internal/source"
	"github.com/augmentcode/auggie-index/internal/sourcemeta"
)

const (
	defaultMaxDepth  = 3
	defaultMaxPages  = 100
	defaultUserAgent = "auggie-index"
	pageCacheSize    = 1024
)


// Source crawls Config.URL on every FetchAll call. The page cache and
// the robots ruleset are owned by this instance and never shared.
type Source struct {
	cfg    sourcemeta.WebConfig
	client *http.Client

	pages  *lru.Cache[string, model.FileEntry] // keyed by normalized URL
	byPath map[string]string        // FileEntry path -> normalized URL
	robots *robotstxt.RobotsData
}

// New constructs a website Source from persisted metadata.
func New(cfg sourcemeta.WebConfig) *Source {
	cache, err := lru.New[string, model.FileEntry](pageCacheSize)
	if err != nil {
		panic(err)
	}
	return &Source{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		pages:  cache,
		byPath: make(map[string]string),
	}
}

func (s *Source) maxDepth() int {
	if s.cfg.MaxDepth > 0 {
		return s.cfg.MaxDepth
	}
	return defaultMaxDepth
}

func (s *Source) maxPages() int {
	if s.cfg.MaxPages > 0 {
		return s.cfg.MaxPages
	}
	return defaultMaxPages
}

func (s *Source) userAgent() string {
	if s.cfg.UserAgent != "" {
		return s.cfg.UserAgent
	}
	return defaultUserAgent
}

// normalizeURL canonicalizes a crawl target for deduplication: the
// fragment is dropped and a trailing slash is removed everywhere except
// the origin root.
func normalizeURL(u *url.URL) string {
	c := *u
	c.Fragment = ""
	c.RawFragment = ""
	if c.Path == "" {
		c.Path = "/"
	}
	if c.Path != "/" {
		c.Path = strings.TrimSuffix(c.Path, "/")
	}
	return c.String()
}

// pathForURL derives the FileEntry path for a crawled page: the URL
// pathname with its slashes escaped plus ".md"; the origin root becomes
// "index.md".
func pathForURL(u *url.URL) string {
	p := strings.Trim(u.Path, "/")
	if p == "" {
		return "index.md"
	}
	return strings.ReplaceAll(p, "/", "_") + ".md"
}

// loadRobots fetches and parses /robots.txt. Failure to fetch is not an
// error: the crawl proceeds as if robots did not exist, keeping the
// operation deterministic.
func (s *Source) loadRobots(ctx context.Context, origin *url.URL) {
	robotsURL := origin.Scheme + "://" + origin.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return
	}
	req.Header.Set("User-Agent", s.userAgent())
	resp, err := s.client.Do(req)
	if err != nil {
		return
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return
	}
	s.robots = data
}

func (s *Source) allowedByRobots(u *url.URL) bool {
	if !s.cfg.RespectRobots || s.robots == nil {
		return true
	}
	return s.robots.TestAgent(u.Path, s.userAgent())
}

// allowedByPatterns applies the include/exclude glob patterns to the
// URL path. An empty include list admits everything not excluded.
func (s *Source) allowedByPatterns(u *url.URL) bool {
	for _, pat := range s.cfg.ExcludePaths {
		if globMatch(pat, u.Path) {
			return false
		}
	}
	if len(s.cfg.IncludePaths) == 0 {
		return true
	}
	for _, pat := range s.cfg.IncludePaths {
		if globMatch(pat, u.Path) {
			return true
		}
	}
	return false
}

type queueItem struct {
	u     *url.URL
	depth int
}

// FetchAll performs the BFS crawl, streaming one FileEntry per HTML
// page. The crawl stops when MaxPages is reached or the queue drains.
func (s *Source) FetchAll(ctx context.Context) (<-chan model.FileEntry, <-chan error) {
	entries := make(chan model.FileEntry)
	errs := make(chan error, 1)

	go func() {
		defer close(entries)
		defer close(errs)

		start, err := url.Parse(s.cfg.URL)
		if err != nil || start.Host == "" {
			errs <- apperrors.ConfigError("website: invalid start URL", err).WithDetail("url", s.cfg.URL)
			return
		}

		if s.cfg.RespectRobots {
			s.loadRobots(ctx, start)
		}

		seen := map[string]bool{normalizeURL(start): true}
		queue := []queueItem{{u: start, depth: 0}}
		emitted := 0
		first := true

		for len(queue) > 0 && emitted < s.maxPages() {
			if ctx.Err() != nil {
				errs <- ctx.Err()
				return
			}

			item := queue[0]
			queue = queue[1:]

			if !s.allowedByRobots(item.u) || !s.allowedByPatterns(item.u) {
				continue
			}

			if !first && s.cfg.DelayMs > 0 {
				select {
				case <-time.After(time.Duration(s.cfg.DelayMs) * time.Millisecond):
				case <-ctx.Done():
					errs <- ctx.Err()
					return
				}
			}
			first = false

			body, fetchErr := s.fetchHTML(ctx, item.u)
			if fetchErr != nil || body == nil {
				// Non-HTML or transient failure: skip the page, keep crawling.
				continue
			}

			text, links := extractPage(body, item.u)

			entry := model.FileEntry{Path: pathForURL(item.u), Contents: text}
			norm := normalizeURL(item.u)
			s.pages.Add(norm, entry)
			s.byPath[entry.Path] = norm

			select {
			case entries <- entry:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
			emitted++

			if item.depth >= s.maxDepth() {
				continue
			}
			for _, link := range links {
				if link.Host != item.u.Host || link.Scheme != item.u.Scheme {
					continue
				}
				norm := normalizeURL(link)
				if seen[norm] {
					continue
				}
				seen[norm] = true
				queue = append(queue, queueItem{u: link, depth: item.depth + 1})
			}
		}
	}()

	return entries, errs
}

// fetchHTML fetches u and returns its body only when the response is a
// 200 with Content-Type text/html; anything else returns (nil, nil).
func (s *Source) fetchHTML(ctx context.Context, u *url.URL) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent())
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperrors.Transport("website: fetch page", err).WithDetail("url", u.String())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/html") {
		return nil, nil
	}
	return io.ReadAll(resp.Body)
}

// FetchChanges always returns (nil, nil): web sources re-crawl.
func (s *Source) FetchChanges(ctx context.Context, previous sourcemeta.Metadata) (*model.FileChanges, error) {
	return nil, nil
}

// GetMetadata returns the current descriptor stamped with now.
func (s *Source) GetMetadata(ctx context.Context) (sourcemeta.Metadata, error) {
	return sourcemeta.WebMetadata{Config: s.cfg, SyncedAt: time.Now().UTC()}, nil
}

// ListFiles lists the crawled pages. Pages are flat (their slashes are
// escaped into the filename), so any directory other than the root is
// empty. Listing before a crawl returns nothing rather than triggering
// one.
func (s *Source) ListFiles(ctx context.Context, directory string) ([]model.FileInfo, error) {
	if directory != "" && directory != "." && directory != "/" {
		return nil, nil
	}
	out := make([]model.FileInfo, 0, len(s.byPath))
	for path := range s.byPath {
		out = append(out, model.FileInfo{Path: path, Type: model.FileInfoTypeFile})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// ReadFile serves path from the crawl cache when present; otherwise it
// reconstructs the page URL from the escaped path and attempts one
// targeted fetch. A page that cannot be fetched returns (nil, nil).
func (s *Source) ReadFile(ctx context.Context, path string, opts source.ReadOptions) ([]byte, error) {
	if strings.Contains(path, "..") {
		return nil, apperrors.ConfigError("readFile: path traversal", nil).WithDetail("path", path)
	}

	if norm, ok := s.byPath[path]; ok {
		if p, ok := s.pages.Get(norm); ok {
			return []byte(p.Contents), nil
		}
	}

	target, err := s.reconstructURL(path)
	if err != nil {
		return nil, nil
	}
	body, err := s.fetchHTML(ctx, target)
	if err != nil || body == nil {
		return nil, nil
	}
	text, _ := extractPage(body, target)
	norm := normalizeURL(target)
	s.pages.Add(norm, model.FileEntry{Path: path, Contents: text})
	s.byPath[path] = norm
	return []byte(text), nil
}

// reconstructURL inverts pathForURL: "index.md" maps back to the origin
// root, everything else unescapes "_" back to "/".
func (s *Source) reconstructURL(path string) (*url.URL, error) {
	base, err := url.Parse(s.cfg.URL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("website: invalid base URL %q", s.cfg.URL)
	}
	stem := strings.TrimSuffix(path, ".md")
	if stem == path {
		return nil, fmt.Errorf("website: %q is not a crawled page path", path)
	}
	if stem == "index" {
		base.Path = "/"
		return base, nil
	}
	base.Path = "/" + strings.ReplaceAll(stem, "_", "/")
	return base, nil
}

// globMatch matches a URL path against a crawl include/exclude pattern:
// "*" matches any run of characters, "/" included (so "**" behaves the
// same), "?" matches one byte, and a pattern without wildcards matches
// as a prefix.
func globMatch(pattern, path string) bool {
	if !strings.ContainsAny(pattern, "*?") {
		return strings.HasPrefix(path, pattern)
	}
	return matchGlob(pattern, path)
}

func matchGlob(pattern, path string) bool {
	// Iterative wildcard match with backtracking over "*" (any run, "/"
	// included, which subsumes "**") and "?" (single byte).
	p, s := 0, 0
	star, mark := -1, 0
	for s < len(path) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == path[s]):
			p++
			s++
		case p < len(pattern) && pattern[p] == '*':
			star = p
			mark = s
			p++
		case star >= 0:
			p = star + 1
			mark++
			s = mark
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
