// Package contextengine declares the opaque semantic-search collaborator
// the Indexer and tools packages drive: Create/Import build a context,
// AddToIndex/RemoveFromIndex mutate it, Search queries it, and Export
// serializes it back to the blob a Store persists. This package does not
// implement semantic search itself (that lives in a service outside this
// module's scope), but a concrete HTTP client (HTTPEngine) and an
// in-memory test double (Mock) are provided so the rest of the module has
// something real to construct and drive.
package contextengine

import "context"

// Engine is the narrow surface the Indexer and tools package need from
// the context engine. Implementations may assume Import(Export(x)) ≡ x.
type Engine interface {
	// AddToIndex admits entries into the context, keyed by their Path.
	// Re-adding an existing path replaces its prior contents.
	AddToIndex(ctx context.Context, entries []FileEntry) error
	// RemoveFromIndex evicts the given paths from the context. Removing a
	// path not present is a no-op.
	RemoveFromIndex(ctx context.Context, paths []string) error
	// Search renders a snippet string for query, truncated to
	// maxOutputLength when positive.
	Search(ctx context.Context, query string, maxOutputLength int) (string, error)
	// Export serializes the context to an opaque blob suitable for
	// storage and later Import.
	Export(ctx context.Context) ([]byte, error)
}

// FileEntry mirrors model.FileEntry without importing internal/model, so
// this package stays a leaf the rest of the module can depend on freely.
type FileEntry struct {
	Path     string
	Contents string
}

// Factory constructs an Engine, either fresh (Create) or rehydrated from
// a previously exported blob (Import). Kept as a separate interface from
// Engine because construction needs credentials Engine methods don't.
type Factory interface {
	Create(ctx context.Context, apiToken, apiURL string) (Engine, error)
	Import(ctx context.Context, blob []byte, apiToken, apiURL string) (Engine, error)
}
