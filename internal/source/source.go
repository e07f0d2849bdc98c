// Package source declares the uniform Source contract every content
// origin (local directory, hosted Git provider, crawled website)
// implements. Concrete variants live in the localfs, githost, and
// website subpackages; factory assembles one from persisted metadata.
package source

import (
	"context"

	"github.com/augmentcode/auggie-index/internal/model"
	"github.com/augmentcode/auggie-index/internal/sourcemeta"
)

// ReadOptions parameterizes Source.ReadFile for the downstream tools
// layer: line-range and regex-subset filtering, so large files can be
// read in slices without the caller re-implementing pagination per
// Source variant.
type ReadOptions struct {
	StartLine          int // 1-based inclusive; 0 means "from the start"
	EndLine            int // 1-based inclusive; -1 means "end of file"
	SearchPattern      string
	ContextLinesBefore int
	ContextLinesAfter  int
}

// Source is a collaborator abstracting one content origin behind five
// operations. A Source instance is single-owner: it is not required to
// be safe for concurrent use by different consumers, though individual
// methods may be called sequentially from different goroutines provided
// the caller serializes access.
type Source interface {
	// FetchAll produces a filtered, complete snapshot of the current
	// resolved version as a stream of entries. The error channel carries
	// at most one error and is closed alongside the entry channel.
	FetchAll(ctx context.Context) (<-chan model.FileEntry, <-chan error)

	// FetchChanges returns changes since previous, or (nil, nil) to mean
	// "fall back to full reindex". It never returns a non-nil FileChanges
	// paired with a non-nil error.
	FetchChanges(ctx context.Context, previous sourcemeta.Metadata) (*model.FileChanges, error)

	// GetMetadata returns the current descriptor, including the
	// resolved ref where applicable and a freshly stamped SyncedAt.
	GetMetadata(ctx context.Context) (sourcemeta.Metadata, error)

	// ListFiles performs a non-recursive listing of directory in the
	// current resolved version. An empty directory means the root.
	ListFiles(ctx context.Context, directory string) ([]model.FileInfo, error)

	// ReadFile returns the contents at path, or (nil, nil) if the path
	// is missing or unreadable. Path traversal is rejected as an error.
	ReadFile(ctx context.Context, path string, opts ReadOptions) ([]byte, error)
}
