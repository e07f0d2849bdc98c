package contextengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The engine contract promises Import(Export(x)) ≡ x; assert it at the
// boundary with the in-memory double.
func TestMock_ExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	require.NoError(t, m.AddToIndex(ctx, []FileEntry{
		{Path: "a.go", Contents: "package a"},
		{Path: "b/c.md", Contents: "# C"},
	}))

	blob, err := m.Export(ctx)
	require.NoError(t, err)

	restored, err := MockFactory{}.Import(ctx, blob, "", "")
	require.NoError(t, err)

	blob2, err := restored.Export(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, string(blob), string(blob2))
}

func TestMock_RemoveThenSearch(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	require.NoError(t, m.AddToIndex(ctx, []FileEntry{
		{Path: "keep.go", Contents: "package keep"},
		{Path: "drop.go", Contents: "package drop"},
	}))
	require.NoError(t, m.RemoveFromIndex(ctx, []string{"drop.go", "never-existed.go"}))

	out, err := m.Search(ctx, "package", 0)
	require.NoError(t, err)
	assert.Contains(t, out, "keep.go")
	assert.NotContains(t, out, "drop.go")
	assert.Equal(t, 1, m.FileCount())
}

func TestMock_SearchTruncatesToMaxLength(t *testing.T) {
	ctx := context.Background()
	m := NewMock()
	require.NoError(t, m.AddToIndex(ctx, []FileEntry{
		{Path: "long.txt", Contents: "needle needle needle needle"},
	}))

	out, err := m.Search(ctx, "needle", 10)
	require.NoError(t, err)
	assert.Len(t, out, 10)
}
