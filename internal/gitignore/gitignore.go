// Package gitignore evaluates gitignore-syntax ignore rules
// (https://git-scm.com/docs/gitignore) for the admission pipeline:
// both the .gitignore stage and the .augmentignore stage speak exactly
// this dialect. Rules are evaluated in order and the last match wins,
// so a later "!pattern" re-admits what an earlier pattern ignored.
//
// A Matcher is built once (AddPattern / AddFromFile) and then queried;
// it is not safe to add patterns concurrently with Match.
package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// Matcher holds an ordered list of parsed ignore rules.
type Matcher struct {
	rules []rule
}

// rule is one parsed pattern: its path segments plus the flags the
// syntax encodes positionally (leading "!", trailing "/", any
// non-leading "/").
type rule struct {
	segs    []string
	negate  bool
	dirOnly bool
	// rooted anchors the first segment at the path root. Per the
	// gitignore syntax a pattern containing a slash is rooted; a bare
	// name floats to any depth.
	rooted bool
}

// New returns an empty Matcher that ignores nothing.
func New() *Matcher {
	return &Matcher{}
}

// AddPattern parses one pattern line. Blank lines and comments are
// skipped; "\#" and "\!" escape the comment and negation markers; a
// trailing "\ " keeps an otherwise-trimmed space.
func (m *Matcher) AddPattern(line string) {
	keepTrailingSpace := strings.HasSuffix(line, `\ `)
	line = strings.TrimRight(line, " \t")
	if keepTrailingSpace {
		line += " "
	}

	if line == "" || (strings.HasPrefix(line, "#") && !strings.HasPrefix(line, `\#`)) {
		return
	}

	var r rule
	switch {
	case strings.HasPrefix(line, `\#`), strings.HasPrefix(line, `\!`):
		line = line[1:]
	case strings.HasPrefix(line, "!"):
		r.negate = true
		line = line[1:]
	}

	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		r.rooted = true
		line = strings.TrimPrefix(line, "/")
	}
	if line == "" {
		return
	}

	r.segs = strings.Split(line, "/")
	// A slash anywhere in the body roots the pattern; "doc/frotz" means
	// /doc/frotz. A leading "**/" explicitly un-roots it again.
	if len(r.segs) > 1 && r.segs[0] != "**" {
		r.rooted = true
	}

	m.rules = append(m.rules, r)
}

// AddFromFile parses every line of an ignore file.
func (m *Matcher) AddFromFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("gitignore: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.AddPattern(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("gitignore: read %s: %w", path, err)
	}
	return nil
}

// Match reports whether path (slash-separated, relative to the ignore
// file's root) is ignored. isDir distinguishes the path itself being a
// directory, which dir-only patterns ("build/") require for their
// final segment.
func (m *Matcher) Match(path string, isDir bool) bool {
	segs := strings.Split(strings.Trim(path, "/"), "/")

	ignored := false
	for _, r := range m.rules {
		if r.matches(segs, isDir) {
			ignored = !r.negate
		}
	}
	return ignored
}

// matches reports whether the rule applies to the path: either the
// pattern covers the whole path, or it covers a leading directory of
// it (anything under an ignored directory is ignored).
func (r rule) matches(segs []string, isDir bool) bool {
	starts := []int{0}
	if !r.rooted {
		starts = make([]int, len(segs))
		for i := range segs {
			starts[i] = i
		}
	}

	for _, start := range starts {
		for end := start + 1; end <= len(segs); end++ {
			if !matchSegments(r.segs, segs[start:end]) {
				continue
			}
			if end < len(segs) {
				// Matched a parent directory of the path.
				return true
			}
			return !r.dirOnly || isDir
		}
	}
	return false
}

// matchSegments matches a pattern segment list against a path segment
// list exactly, with "**" spanning zero or more segments.
func matchSegments(pat, segs []string) bool {
	if len(pat) == 0 {
		return len(segs) == 0
	}
	if pat[0] == "**" {
		for skip := 0; skip <= len(segs); skip++ {
			if matchSegments(pat[1:], segs[skip:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	if !wildMatch(pat[0], segs[0]) {
		return false
	}
	return matchSegments(pat[1:], segs[1:])
}

// wildMatch matches one pattern segment against one path segment:
// "*" spans any run, "?" one byte, "[a-z]"/"[abc]" a class (leading
// "!" negates it), "\x" escapes x. Neither side contains "/".
func wildMatch(pattern, s string) bool {
	p, i := 0, 0
	starP, starI := -1, 0

	for i < len(s) {
		switch {
		case p < len(pattern) && pattern[p] == '*':
			starP, starI = p, i
			p++
		case p < len(pattern) && matchOne(pattern, p, s[i]):
			p = skipOne(pattern, p)
			i++
		case starP >= 0:
			starI++
			p, i = starP+1, starI
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// matchOne reports whether the single pattern element at p matches byte c.
func matchOne(pattern string, p int, c byte) bool {
	switch pattern[p] {
	case '?':
		return true
	case '\\':
		return p+1 < len(pattern) && pattern[p+1] == c
	case '[':
		ok, _ := matchClass(pattern, p, c)
		return ok
	default:
		return pattern[p] == c
	}
}

// skipOne returns the index just past the pattern element at p.
func skipOne(pattern string, p int) int {
	switch pattern[p] {
	case '\\':
		if p+1 < len(pattern) {
			return p + 2
		}
		return p + 1
	case '[':
		if _, end := matchClass(pattern, p, 0); end > p {
			return end
		}
		return p + 1
	default:
		return p + 1
	}
}

// matchClass evaluates the character class starting at pattern[p]
// against c, returning the match result and the index just past the
// closing bracket. An unterminated class matches "[" literally.
func matchClass(pattern string, p int, c byte) (bool, int) {
	end := strings.IndexByte(pattern[p+1:], ']')
	if end < 0 {
		return c == '[', p + 1
	}
	body := pattern[p+1 : p+1+end]
	after := p + 2 + end

	negate := false
	if strings.HasPrefix(body, "!") || strings.HasPrefix(body, "^") {
		negate = true
		body = body[1:]
	}

	matched := false
	for j := 0; j < len(body); j++ {
		if j+2 < len(body) && body[j+1] == '-' {
			if body[j] <= c && c <= body[j+2] {
				matched = true
			}
			j += 2
			continue
		}
		if body[j] == c {
			matched = true
		}
	}
	return matched != negate, after
}
