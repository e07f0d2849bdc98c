package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStore_Key_WithPrefix(t *testing.T) {
	s := &Store{cfg: Config{Bucket: "my-bucket", Prefix: "indexes"}}
	assert.Equal(t, "indexes/owner_repo_main.json", s.key("owner/repo/main"))
}

func TestStore_Key_NoPrefix(t *testing.T) {
	s := &Store{cfg: Config{Bucket: "my-bucket"}}
	assert.Equal(t, "owner_repo_main.json", s.key("owner/repo/main"))
}

func TestStore_Key_TrimsTrailingSlashOnPrefix(t *testing.T) {
	s := &Store{cfg: Config{Bucket: "my-bucket", Prefix: "indexes/"}}
	assert.Equal(t, "indexes/plain.json", s.key("plain"))
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}
