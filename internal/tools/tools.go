// Package tools implements the consumer-facing query/navigation
// operations (search, list_files, read_file) as pure functions over a
// Context Engine, an optionally bound Source, and loaded index state.
// The server surface and the CLI both wrap these; neither adds
// semantics. Input/output struct pairs are kept out of the transport
// layer so the same contracts serve every consumer.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/augmentcode/auggie-index/internal/apperrors"
	"github.com/augmentcode/auggie-index/internal/contextengine"
	"github.com/augmentcode/auggie-index/internal/model"
	"github.com/augmentcode/auggie-index/internal/source"
)

// SearchInput parameterizes Search.
type SearchInput struct {
	Query           string `json:"query" jsonschema:"the semantic search query to execute"`
	MaxOutputLength int    `json:"maxOutputLength,omitempty" jsonschema:"truncate the rendered results to this many characters"`
}

// SearchOutput is the result of one Search call: the engine's rendered
// snippet string (possibly empty) echoed together with the query.
type SearchOutput struct {
	Results string `json:"results"`
	Query   string `json:"query"`
}

// Search delegates the query to the Context Engine. It never requires a
// bound Source, so it works in search-only mode.
func Search(ctx context.Context, engine contextengine.Engine, input SearchInput) (*SearchOutput, error) {
	if engine == nil {
		return nil, apperrors.ConfigError("search: no context engine bound", nil)
	}
	if input.Query == "" {
		return nil, apperrors.ConfigError("search: query is required", nil)
	}
	results, err := engine.Search(ctx, input.Query, input.MaxOutputLength)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return &SearchOutput{Results: results, Query: input.Query}, nil
}

// ListFilesInput parameterizes ListFiles.
type ListFilesInput struct {
	Directory  string `json:"directory,omitempty" jsonschema:"directory to list, relative to the source root"`
	Pattern    string `json:"pattern,omitempty" jsonschema:"glob matched against each entry's basename"`
	Depth      int    `json:"depth,omitempty" jsonschema:"how many directory levels to descend, default 2"`
	ShowHidden bool   `json:"showHidden,omitempty" jsonschema:"include entries whose basename begins with a dot"`
}

const defaultListDepth = 2

// ListFiles lists entries under the given directory, descending up to
// Depth levels via repeated non-recursive Source listings. A nil src
// means the consumer is in search-only mode, a distinguished error.
func ListFiles(ctx context.Context, src source.Source, input ListFilesInput) ([]model.FileInfo, error) {
	if src == nil {
		return nil, apperrors.SearchOnlyDenied("list_files")
	}
	depth := input.Depth
	if depth <= 0 {
		depth = defaultListDepth
	}

	var out []model.FileInfo
	if err := listRecursive(ctx, src, input.Directory, depth, input, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func listRecursive(ctx context.Context, src source.Source, dir string, depth int, input ListFilesInput, out *[]model.FileInfo) error {
	if depth == 0 {
		return nil
	}
	infos, err := src.ListFiles(ctx, dir)
	if err != nil {
		return fmt.Errorf("list_files: %w", err)
	}
	for _, info := range infos {
		base := basename(info.Path)
		if !input.ShowHidden && strings.HasPrefix(base, ".") {
			continue
		}
		if input.Pattern == "" || matchBasename(input.Pattern, base) {
			*out = append(*out, info)
		}
		if info.Type == model.FileInfoTypeDirectory {
			if err := listRecursive(ctx, src, info.Path, depth-1, input, out); err != nil {
				return err
			}
		}
	}
	return nil
}

func basename(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// matchBasename matches a glob pattern ("*", "?", "[...]") against one
// basename. A malformed pattern matches nothing.
func matchBasename(pattern, base string) bool {
	ok, err := matchGlobPattern(pattern, base)
	return err == nil && ok
}

// ReadFileInput parameterizes ReadFile. Line indices are 1-based
// inclusive; EndLine -1 means end-of-file.
type ReadFileInput struct {
	Path               string `json:"path" jsonschema:"file path relative to the source root"`
	StartLine          int    `json:"startLine,omitempty" jsonschema:"first line to return, 1-based"`
	EndLine            int    `json:"endLine,omitempty" jsonschema:"last line to return, 1-based; -1 means end of file"`
	SearchPattern      string `json:"searchPattern,omitempty" jsonschema:"restricted-regex filter; only matching lines plus context are returned"`
	ContextLinesBefore int    `json:"contextLinesBefore,omitempty" jsonschema:"context lines before each match"`
	ContextLinesAfter  int    `json:"contextLinesAfter,omitempty" jsonschema:"context lines after each match"`
	IncludeLineNumbers bool   `json:"includeLineNumbers,omitempty" jsonschema:"prefix each line with its 1-based number"`
}

// ReadFileOutput is the result of one ReadFile call. Exactly one of
// Contents and Error is meaningful; Suggestions accompanies a not-found
// Error when near-miss paths exist.
type ReadFileOutput struct {
	Contents    string   `json:"contents,omitempty"`
	Error       string   `json:"error,omitempty"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ReadFile reads one file through the bound Source, applying the line
// range, the optional search-pattern filter, and line numbering. A
// missing file is reported inside the output (with suggestions), not as
// a Go error, because callers reasonably expect "missing".
func ReadFile(ctx context.Context, src source.Source, input ReadFileInput) (*ReadFileOutput, error) {
	if src == nil {
		return nil, apperrors.SearchOnlyDenied("read_file")
	}
	if input.Path == "" {
		return nil, apperrors.ConfigError("read_file: path is required", nil)
	}

	data, err := src.ReadFile(ctx, input.Path, source.ReadOptions{
		StartLine:          input.StartLine,
		EndLine:            input.EndLine,
		SearchPattern:      input.SearchPattern,
		ContextLinesBefore: input.ContextLinesBefore,
		ContextLinesAfter:  input.ContextLinesAfter,
	})
	if err != nil {
		return nil, fmt.Errorf("read_file: %w", err)
	}
	if data == nil {
		return &ReadFileOutput{
			Error:       fmt.Sprintf("file not found: %s", input.Path),
			Suggestions: suggestPaths(ctx, src, input.Path),
		}, nil
	}

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")

	start, end, rangeErr := resolveRange(input.StartLine, input.EndLine, len(lines))
	if rangeErr != nil {
		return &ReadFileOutput{Error: rangeErr.Error()}, nil
	}
	lines = lines[start-1 : end]

	numberFor := func(i int) int { return start + i }

	if input.SearchPattern != "" {
		matcher, err := compilePattern(input.SearchPattern)
		if err != nil {
			return &ReadFileOutput{Error: fmt.Sprintf("invalid search pattern: %v", err)}, nil
		}
		rendered := renderMatches(lines, matcher, input.ContextLinesBefore, input.ContextLinesAfter, input.IncludeLineNumbers, numberFor)
		return &ReadFileOutput{Contents: rendered}, nil
	}

	if input.IncludeLineNumbers {
		numbered := make([]string, len(lines))
		for i, line := range lines {
			numbered[i] = fmt.Sprintf("%d: %s", numberFor(i), line)
		}
		lines = numbered
	}
	return &ReadFileOutput{Contents: strings.Join(lines, "\n")}, nil
}

// resolveRange maps the 1-based inclusive (startLine, endLine) request
// onto the file's line count. endLine -1 (or 0) means end-of-file.
func resolveRange(startLine, endLine, total int) (int, int, error) {
	start := startLine
	if start <= 0 {
		start = 1
	}
	end := endLine
	if end == -1 || end == 0 {
		end = total
	}
	if start > total {
		return 0, 0, fmt.Errorf("startLine %d is beyond end of file (%d lines)", start, total)
	}
	if end > total {
		end = total
	}
	if end < start {
		return 0, 0, fmt.Errorf("endLine %d precedes startLine %d", end, start)
	}
	return start, end, nil
}

// renderMatches emits matching lines plus their context windows, with
// elided regions between windows represented as "...".
func renderMatches(lines []string, match func(string) bool, before, after int, withNumbers bool, numberFor func(int) int) string {
	keep := make([]bool, len(lines))
	any := false
	for i, line := range lines {
		if !match(line) {
			continue
		}
		any = true
		lo := i - before
		if lo < 0 {
			lo = 0
		}
		hi := i + after
		if hi > len(lines)-1 {
			hi = len(lines) - 1
		}
		for j := lo; j <= hi; j++ {
			keep[j] = true
		}
	}
	if !any {
		return ""
	}

	var out []string
	elided := false
	for i, line := range lines {
		if !keep[i] {
			if !elided {
				out = append(out, "...")
				elided = true
			}
			continue
		}
		elided = false
		if withNumbers {
			out = append(out, fmt.Sprintf("%d: %s", numberFor(i), line))
		} else {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// suggestPaths lists the missing path's parent directory and returns
// entries whose basename shares a substring with the requested one, to
// steer the caller toward the likely intended file.
func suggestPaths(ctx context.Context, src source.Source, path string) []string {
	dir := ""
	base := path
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		dir = path[:idx]
		base = path[idx+1:]
	}
	infos, err := src.ListFiles(ctx, dir)
	if err != nil {
		return nil
	}
	want := stem(base)
	var suggestions []string
	for _, info := range infos {
		if info.Type != model.FileInfoTypeFile {
			continue
		}
		got := stem(basename(info.Path))
		if strings.Contains(got, want) || strings.Contains(want, got) {
			suggestions = append(suggestions, info.Path)
		}
	}
	if len(suggestions) > 5 {
		suggestions = suggestions[:5]
	}
	return suggestions
}

// stem lowercases a basename and strips its final extension, so
// "App.ts" and "app.go" compare equal when suggesting alternatives.
func stem(base string) string {
	base = strings.ToLower(base)
	if idx := strings.LastIndexByte(base, '.'); idx > 0 {
		return base[:idx]
	}
	return base
}
