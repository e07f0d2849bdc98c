package tools

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/augmentcode/auggie-index/internal/apperrors"
	"github.com/augmentcode/auggie-index/internal/contextengine"
	"github.com/augmentcode/auggie-index/internal/model"
	"github.com/augmentcode/auggie-index/internal/source"
	"github.com/augmentcode/auggie-index/internal/sourcemeta"
)

// memSource is an in-memory source.Source double holding a flat
// path→contents map, with directories inferred from the paths.
type memSource struct {
	files map[string]string
}

func (s *memSource) FetchAll(ctx context.Context) (<-chan model.FileEntry, <-chan error) {
	entries := make(chan model.FileEntry)
	errs := make(chan error, 1)
	close(entries)
	close(errs)
	return entries, errs
}

func (s *memSource) FetchChanges(ctx context.Context, previous sourcemeta.Metadata) (*model.FileChanges, error) {
	return nil, nil
}

func (s *memSource) GetMetadata(ctx context.Context) (sourcemeta.Metadata, error) {
	return nil, nil
}

func (s *memSource) ListFiles(ctx context.Context, directory string) ([]model.FileInfo, error) {
	prefix := ""
	if directory != "" {
		prefix = strings.TrimSuffix(directory, "/") + "/"
	}
	seen := map[string]model.FileInfoType{}
	for path := range s.files {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		rest := path[len(prefix):]
		if idx := strings.IndexByte(rest, '/'); idx >= 0 {
			seen[prefix+rest[:idx]] = model.FileInfoTypeDirectory
		} else {
			seen[path] = model.FileInfoTypeFile
		}
	}
	var out []model.FileInfo
	for p, typ := range seen {
		out = append(out, model.FileInfo{Path: p, Type: typ})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *memSource) ReadFile(ctx context.Context, path string, opts source.ReadOptions) ([]byte, error) {
	contents, ok := s.files[path]
	if !ok {
		return nil, nil
	}
	return []byte(contents), nil
}

var _ source.Source = (*memSource)(nil)

func testSource() *memSource {
	return &memSource{files: map[string]string{
		"main.go":           "package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n",
		"README.md":         "# Readme\n",
		".hidden":           "secret\n",
		"src/app.go":        "package src\n",
		"src/app_test.go":   "package src\n",
		"src/deep/thing.go": "package deep\n",
		"docs/guide.md":     "# Guide\n",
	}}
}

func TestSearch_DelegatesToEngine(t *testing.T) {
	engine := contextengine.NewMock()
	require.NoError(t, engine.AddToIndex(context.Background(), []contextengine.FileEntry{
		{Path: "main.go", Contents: "package main"},
	}))

	out, err := Search(context.Background(), engine, SearchInput{Query: "main"})
	require.NoError(t, err)
	assert.Equal(t, "main", out.Query)
	assert.Contains(t, out.Results, "main.go")
}

func TestSearch_RequiresQuery(t *testing.T) {
	_, err := Search(context.Background(), contextengine.NewMock(), SearchInput{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindConfig))
}

func TestListFiles_SearchOnlyDenied(t *testing.T) {
	_, err := ListFiles(context.Background(), nil, ListFilesInput{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindSearchOnlyDenied))
}

func TestListFiles_DefaultDepthTwoHidesDotfiles(t *testing.T) {
	infos, err := ListFiles(context.Background(), testSource(), ListFilesInput{})
	require.NoError(t, err)

	var paths []string
	for _, info := range infos {
		paths = append(paths, info.Path)
	}
	// Depth 2 reaches src/* and docs/* but not src/deep/thing.go; the
	// dotfile is excluded by default.
	assert.ElementsMatch(t, []string{
		"README.md", "docs", "docs/guide.md", "main.go",
		"src", "src/app.go", "src/app_test.go", "src/deep",
	}, paths)
}

func TestListFiles_ShowHiddenAndDepth(t *testing.T) {
	infos, err := ListFiles(context.Background(), testSource(), ListFilesInput{ShowHidden: true, Depth: 3})
	require.NoError(t, err)

	var paths []string
	for _, info := range infos {
		paths = append(paths, info.Path)
	}
	assert.Contains(t, paths, ".hidden")
	assert.Contains(t, paths, "src/deep/thing.go")
}

func TestListFiles_PatternMatchesBasename(t *testing.T) {
	infos, err := ListFiles(context.Background(), testSource(), ListFilesInput{Pattern: "*.go", Depth: 3})
	require.NoError(t, err)

	var paths []string
	for _, info := range infos {
		paths = append(paths, info.Path)
	}
	assert.ElementsMatch(t, []string{"main.go", "src/app.go", "src/app_test.go", "src/deep/thing.go"}, paths)
}

func TestReadFile_SearchOnlyDenied(t *testing.T) {
	_, err := ReadFile(context.Background(), nil, ReadFileInput{Path: "main.go"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindSearchOnlyDenied))
}

func TestReadFile_WholeFile(t *testing.T) {
	out, err := ReadFile(context.Background(), testSource(), ReadFileInput{Path: "main.go"})
	require.NoError(t, err)
	assert.Empty(t, out.Error)
	assert.Equal(t, "package main\n\nfunc main() {\n\tprintln(\"hi\")\n}", out.Contents)
}

func TestReadFile_LineRange(t *testing.T) {
	out, err := ReadFile(context.Background(), testSource(), ReadFileInput{Path: "main.go", StartLine: 3, EndLine: 5})
	require.NoError(t, err)
	assert.Equal(t, "func main() {\n\tprintln(\"hi\")\n}", out.Contents)
}

func TestReadFile_EndLineMinusOneMeansEOF(t *testing.T) {
	out, err := ReadFile(context.Background(), testSource(), ReadFileInput{Path: "main.go", StartLine: 3, EndLine: -1})
	require.NoError(t, err)
	assert.Equal(t, "func main() {\n\tprintln(\"hi\")\n}", out.Contents)
}

func TestReadFile_LineNumbers(t *testing.T) {
	out, err := ReadFile(context.Background(), testSource(), ReadFileInput{Path: "main.go", StartLine: 3, EndLine: 3, IncludeLineNumbers: true})
	require.NoError(t, err)
	assert.Equal(t, "3: func main() {", out.Contents)
}

func TestReadFile_SearchPatternWithContext(t *testing.T) {
	out, err := ReadFile(context.Background(), testSource(), ReadFileInput{
		Path:              "main.go",
		SearchPattern:     "println",
		ContextLinesAfter: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "...\n\tprintln(\"hi\")\n}", out.Contents)
}

func TestReadFile_SearchPatternRejectsShorthands(t *testing.T) {
	out, err := ReadFile(context.Background(), testSource(), ReadFileInput{
		Path:          "main.go",
		SearchPattern: `\d+`,
	})
	require.NoError(t, err)
	assert.Contains(t, out.Error, "invalid search pattern")
}

func TestReadFile_MissingFileSuggests(t *testing.T) {
	out, err := ReadFile(context.Background(), testSource(), ReadFileInput{Path: "src/app.ts"})
	require.NoError(t, err)
	assert.Contains(t, out.Error, "file not found")
	assert.Contains(t, out.Suggestions, "src/app.go")
}

func TestValidatePattern(t *testing.T) {
	tests := []struct {
		pattern string
		ok      bool
	}{
		{`^func [a-z]+\(`, true},
		{`foo|bar`, true},
		{`x{1,3}?`, true},
		{`\t`, true},
		{`\.`, true},
		{`\w+`, false},
		{`(?=ahead)`, false},
		{`(?<behind)`, false},
		{`[unclosed`, false},
		{`trailing\`, false},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			err := validatePattern(tt.pattern)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
