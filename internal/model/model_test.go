package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeMeta struct {
	syncedAt time.Time
}

func (f fakeMeta) Type() string             { return "fake" }
func (f fakeMeta) SyncedAtTime() time.Time  { return f.syncedAt }

func TestFileChanges_Empty(t *testing.T) {
	var nilChanges *FileChanges
	assert.True(t, nilChanges.Empty())

	empty := &FileChanges{}
	assert.True(t, empty.Empty())

	withAdded := &FileChanges{Added: []FileEntry{{Path: "a.txt", Contents: "x"}}}
	assert.False(t, withAdded.Empty())

	withRemoved := &FileChanges{Removed: []string{"old.txt"}}
	assert.False(t, withRemoved.Empty())
}

func TestIndexState_RoundTripsOpaqueContextState(t *testing.T) {
	raw := []byte(`{"embedding":"opaque","nested":{"a":1}}`)
	state := IndexState{
		ContextState: raw,
		Source:       fakeMeta{syncedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	assert.Equal(t, raw, []byte(state.ContextState))
	assert.Equal(t, "fake", state.Source.Type())
}
