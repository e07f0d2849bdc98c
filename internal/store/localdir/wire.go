package localdir

import (
	"encoding/json"
	"fmt"

	"github.com/augmentcode/auggie-index/internal/sourcemeta"
)

// wireIndexState mirrors model.IndexState but leaves "source" as a raw
// message so it can be dispatched through sourcemeta.Decode, since
// encoding/json can't unmarshal directly into an interface.
type wireIndexState struct {
	ContextState json.RawMessage `json:"contextState"`
	Source       json.RawMessage `json:"source"`
}

func decodeSource(raw json.RawMessage) (sourcemeta.Metadata, error) {
	meta, err := sourcemeta.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("localdir: decode source metadata: %w", err)
	}
	return meta, nil
}
