// Package cursor provides opaque paging token encoding for event listings.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Direction indicates the paging direction relative to the logical clock.
type Direction string

const (
	// DirectionForward pages forward (clock > cursor).
	DirectionForward Direction = "fwd"
	// DirectionBackward pages backward (clock < cursor).
	DirectionBackward Direction = "bwd"
)

// Cursor is the internal state of a paging token. Tokens are positional:
// they carry the logical clock of the last event seen, so pages stay stable
// under concurrent appends.
type Cursor struct {
	// Clock is the logical clock to page from.
	Clock uint64 `json:"clock"`
	// Dir is the paging direction.
	Dir Direction `json:"dir"`
}

// Encode encodes a cursor to an opaque base64 token.
func Encode(c Cursor) (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// Decode decodes an opaque token. Returns an error if the token is invalid
// or malformed.
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, fmt.Errorf("empty token")
	}

	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("decode base64: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return Cursor{}, fmt.Errorf("unmarshal cursor: %w", err)
	}

	if c.Dir != DirectionForward && c.Dir != DirectionBackward {
		return Cursor{}, fmt.Errorf("invalid cursor direction: %q", c.Dir)
	}

	return c, nil
}

// NewForward creates a cursor paging forward from the given logical clock.
func NewForward(clock uint64) Cursor {
	return Cursor{Clock: clock, Dir: DirectionForward}
}

// NewBackward creates a cursor paging backward from the given logical clock.
func NewBackward(clock uint64) Cursor {
	return Cursor{Clock: clock, Dir: DirectionBackward}
}
