package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/augmentcode/auggie-index/internal/apperrors"
	"github.com/augmentcode/auggie-index/internal/source/localfs"
	"github.com/augmentcode/auggie-index/internal/source/website"
	"github.com/augmentcode/auggie-index/internal/sourcemeta"
)

func TestBuildSource_RequiresExactlyOne(t *testing.T) {
	_, err := buildSource(indexOptions{})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindConfig))

	_, err = buildSource(indexOptions{dir: ".", web: "https://docs.example.com"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindConfig))
}

func TestBuildSource_LocalDir(t *testing.T) {
	src, err := buildSource(indexOptions{dir: t.TempDir()})
	require.NoError(t, err)
	_, ok := src.(*localfs.Source)
	assert.True(t, ok)
}

func TestBuildSource_RejectsMissingDir(t *testing.T) {
	_, err := buildSource(indexOptions{dir: "/does/not/exist"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindConfig))
}

func TestBuildSource_GitHubShape(t *testing.T) {
	_, err := buildSource(indexOptions{github: "octo/hello"})
	require.NoError(t, err)

	_, err = buildSource(indexOptions{github: "not-owner-repo"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindConfig))
}

func TestBuildSource_BitbucketShape(t *testing.T) {
	_, err := buildSource(indexOptions{bitbucket: "ws/repo"})
	require.NoError(t, err)

	_, err = buildSource(indexOptions{bitbucket: "bare"})
	require.Error(t, err)
}

func TestBuildSource_WebCarriesCrawlFlags(t *testing.T) {
	src, err := buildSource(indexOptions{web: "https://docs.example.com", maxPages: 5, respectRobots: true})
	require.NoError(t, err)
	_, ok := src.(*website.Source)
	assert.True(t, ok)

	meta, err := src.GetMetadata(context.Background())
	require.NoError(t, err)
	web, ok := meta.(sourcemeta.WebMetadata)
	require.True(t, ok)
	assert.Equal(t, 5, web.Config.MaxPages)
	assert.True(t, web.Config.RespectRobots)
}

func TestNewRootCmd_RegistersCommands(t *testing.T) {
	root := NewRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"index", "search", "ls", "cat", "indexes", "serve", "logs"} {
		assert.Contains(t, names, want)
	}
}
