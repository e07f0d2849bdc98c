// Package store defines the Index Store contract: a keyed, read/write
// persistence interface for IndexState. Two implementations live in the
// store/localdir and store/objectstore subpackages.
package store

import (
	"context"
	"regexp"
	"strings"

	"github.com/augmentcode/auggie-index/internal/model"
)

// Reader is the read-only subset of Store, used by consumers (tools,
// read-only servers) that must never mutate a named index.
type Reader interface {
	// Load returns the IndexState for name, or (nil, nil) if absent.
	Load(ctx context.Context, name string) (*model.IndexState, error)
	// List enumerates the names currently persisted. Order is unspecified.
	List(ctx context.Context) ([]string, error)
}

// Writer extends Reader with mutation operations.
type Writer interface {
	Reader
	// Save persists state under name, atomically: either the new state
	// becomes fully readable or the prior state is left untouched.
	Save(ctx context.Context, name string, state *model.IndexState) error
	// Delete removes the named index, returning to the NONE state.
	Delete(ctx context.Context, name string) error
}

// SearchOnlyLoader is an optional optimization a Reader may implement:
// LoadSearch returns a slimmed IndexState (e.g. omitting components the
// search path never needs). Callers fall back to Load when a Reader
// doesn't implement this interface.
type SearchOnlyLoader interface {
	LoadSearch(ctx context.Context, name string) (*model.IndexState, error)
}

var (
	unsafeRune  = regexp.MustCompile(`[^A-Za-z0-9_-]+`)
	repeatedUnd = regexp.MustCompile(`_{2,}`)
)

// SanitizeName maps a user-chosen index name to a storage-safe key:
// every rune outside [A-Za-z0-9_-] becomes "_", runs of "_" collapse to
// one, and leading/trailing "_" are trimmed. Idempotent:
// SanitizeName(SanitizeName(x)) == SanitizeName(x).
func SanitizeName(name string) string {
	s := unsafeRune.ReplaceAllString(name, "_")
	s = repeatedUnd.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
