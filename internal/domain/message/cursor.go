package message

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cursor is a parsed "before" marker: either a timestamp or a message id.
type Cursor struct {
	Time *time.Time
	ID   *int64
}

// IsZero reports whether no cursor was given.
func (c Cursor) IsZero() bool {
	return c.Time == nil && c.ID == nil
}

var cursorLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseCursor accepts a positive integer message id or an ISO-8601
// timestamp. Integers are tried first so that "123" is never read as a year.
func ParseCursor(raw string) (Cursor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Cursor{}, nil
	}

	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if id <= 0 {
			return Cursor{}, fmt.Errorf("cursor id must be positive")
		}
		return Cursor{ID: &id}, nil
	}

	for _, layout := range cursorLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return Cursor{Time: &t}, nil
		}
	}

	return Cursor{}, fmt.Errorf("cursor %q is neither a timestamp nor a message id", raw)
}
