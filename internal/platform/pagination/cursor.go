package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPageToken is returned when a page token cannot be decoded back
// into a cursor.
var ErrInvalidPageToken = errors.New("pagination: invalid page_token")

// Cursor marks the last document of a page. Timestamps are serialised as
// RFC3339Nano so they survive the JSON round trip without losing precision.
type Cursor struct {
	DocID     string `json:"id"`
	Timestamp string `json:"ts,omitempty"`
}

// NewCursor builds a cursor pointing after the document with the given ID and
// sort timestamp.
func NewCursor(docID string, ts time.Time) Cursor {
	return Cursor{DocID: docID, Timestamp: ts.UTC().Format(time.RFC3339Nano)}
}

// Time parses the cursor timestamp.
func (c Cursor) Time() (time.Time, error) {
	if c.Timestamp == "" {
		return time.Time{}, fmt.Errorf("%w: timestamp missing", ErrInvalidPageToken)
	}
	ts, err := time.Parse(time.RFC3339Nano, c.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return ts, nil
}

// Encode serialises the cursor into an opaque URL-safe page token.
func (c Cursor) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("pagination: encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Decode parses a page token produced by Encode.
func Decode(token string) (Cursor, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	var cursor Cursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidPageToken, err)
	}
	return cursor, nil
}
