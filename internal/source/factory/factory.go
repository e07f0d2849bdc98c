// Package factory reconstructs a live Source from persisted
// SourceMetadata, so any operation that loaded an IndexState can reach
// back to the same upstream identity without external configuration.
// Secrets are read from the environment by the per-host constructors at
// this moment only; they are never part of the metadata.
package factory

import (
	"github.com/augmentcode/auggie-index/internal/apperrors"
	"github.com/augmentcode/auggie-index/internal/source"
	"github.com/augmentcode/auggie-index/internal/source/githost"
	"github.com/augmentcode/auggie-index/internal/source/localfs"
	"github.com/augmentcode/auggie-index/internal/source/website"
	"github.com/augmentcode/auggie-index/internal/sourcemeta"
)

// New produces a fresh Source targeting the upstream identity the
// metadata describes. Metadata of an unknown dynamic type is a config
// error, never a silent fallback.
func New(meta sourcemeta.Metadata) (source.Source, error) {
	switch m := meta.(type) {
	case sourcemeta.LocalFSMetadata:
		return localfs.New(m.Config), nil
	case sourcemeta.GitHubMetadata:
		return githost.NewGitHub(m.Config), nil
	case sourcemeta.GitLabMetadata:
		return githost.NewGitLab(m.Config), nil
	case sourcemeta.BitbucketMetadata:
		return githost.NewBitbucket(m.Config), nil
	case sourcemeta.WebMetadata:
		return website.New(m.Config), nil
	case nil:
		return nil, apperrors.ConfigError("factory: nil source metadata", nil)
	default:
		return nil, apperrors.ConfigError("factory: unknown source type", nil).WithDetail("type", meta.Type())
	}
}
