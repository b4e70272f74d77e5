package model

import (
	"fmt"
	"strings"
	"time"
)

// Record is one entry of an ordered source: an opaque identifier and the
// time it was last modified.
type Record struct {
	ID        string
	Timestamp time.Time
}

// Cursor returns the resumption cursor pointing at this record.
func (r Record) Cursor() *Cursor {
	return &Cursor{Timestamp: r.Timestamp, ID: r.ID}
}

func (r Record) String() string {
	return fmt.Sprintf("%s@%s", r.ID, r.Timestamp.UTC().Format(time.RFC3339Nano))
}

// Compare orders records by timestamp, then by byte-wise identifier.
// It returns -1, 0 or 1.
func Compare(a, b Record) int {
	switch {
	case a.Timestamp.Before(b.Timestamp):
		return -1
	case b.Timestamp.Before(a.Timestamp):
		return 1
	}
	return strings.Compare(a.ID, b.ID)
}

// Cursor marks a position in an ordered source.
//
// A nil *Cursor means "from the beginning". A cursor with an empty ID is a
// lower bound on the timestamp alone and is inclusive. A cursor with an ID
// means "strictly after (Timestamp, ID)".
type Cursor struct {
	Timestamp time.Time
	ID        string
}

// HasID reports whether the cursor carries an identifier component.
func (c *Cursor) HasID() bool {
	return c != nil && c.ID != ""
}

// Admits reports whether r lies after the cursor.
func (c *Cursor) Admits(r Record) bool {
	if c == nil {
		return true
	}
	if !c.HasID() {
		return !r.Timestamp.Before(c.Timestamp)
	}
	return Compare(r, Record{ID: c.ID, Timestamp: c.Timestamp}) > 0
}

func (c *Cursor) String() string {
	if c == nil {
		return "null"
	}
	if c.ID == "" {
		return c.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("%s_%s", c.Timestamp.UTC().Format(time.RFC3339Nano), c.ID)
}

// MillisLayout is the xsd:dateTime form the Fedora and Solr stores return.
const MillisLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t the way the upstream stores write it: always
// three fractional digits. Finer precision falls back to RFC 3339 with
// nanoseconds so a cursor never loses its position.
func FormatTimestamp(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()%int(time.Millisecond) != 0 {
		return t.Format(time.RFC3339Nano)
	}
	return t.Format(MillisLayout)
}

// ParseTimestamp parses an ISO 8601 instant as returned by the upstream
// stores. A missing zone designator is read as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
