package docstore

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrBadCursor is returned for cursors not produced by QueryPage.
var ErrBadCursor = errors.New("docstore: malformed cursor")

// cursor is the position after the last document of a page: its sort key
// value and id, which breaks ties.
type cursor struct {
	Key any    `json:"k"`
	ID  string `json:"id"`
}

func encodeCursor(c cursor) string {
	raw, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(s string) (cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return cursor{}, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var c cursor
	if err := dec.Decode(&c); err != nil {
		return cursor{}, fmt.Errorf("%w: %v", ErrBadCursor, err)
	}
	// Nanosecond keys overflow float64 precision.
	if n, ok := c.Key.(json.Number); ok {
		if i, err := n.Int64(); err == nil {
			c.Key = i
		} else if f, err := n.Float64(); err == nil {
			c.Key = f
		}
	}
	return c, nil
}
