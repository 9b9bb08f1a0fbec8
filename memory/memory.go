// Package memory provides an in-memory append-only table that can be paged
// through with a cursor stream.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	cursorstream "github.com/vlab-research/client-cursor-stream"
)

// Compile-time interface compliance check
var _ cursorstream.Pager[cursorstream.Record, int64] = (*Table)(nil)

// Table is a simple in-memory append-only table of records.
// This implementation is suitable for testing and demonstration purposes.
type Table struct {
	mu      sync.RWMutex
	records []cursorstream.Record
	now     func() time.Time
}

// An Option changes the default behavior of a Table.
type Option func(*Table)

// WithClock makes the table stamp appended records with times read from now.
func WithClock(now func() time.Time) Option {
	return func(t *Table) { t.now = now }
}

// NewTable creates a new, empty in-memory table.
func NewTable(opts ...Option) *Table {
	t := &Table{now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Append adds records to the end of the table and returns them as stored.
// IDs are assigned sequentially starting at 1. Records without an EventID
// get a ULID and records without a Timestamp get the current time.
func (t *Table) Append(records ...cursorstream.Record) []cursorstream.Record {
	if len(records) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	stored := make([]cursorstream.Record, len(records))
	for i, record := range records {
		record.ID = int64(len(t.records) + 1)
		if record.Timestamp.IsZero() {
			record.Timestamp = t.now()
		}
		if record.EventID == "" {
			record.EventID = ulid.MustNew(ulid.Timestamp(record.Timestamp), ulid.DefaultEntropy()).String()
		}
		t.records = append(t.records, record)
		stored[i] = record
	}
	return stored
}

// Len returns the number of records in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// Page returns up to limit records with an ID greater than cursor and a
// timestamp no later than asOf, in ID order, along with the ID of the last
// returned record. A limit of zero or less returns every matching record.
func (t *Table) Page(ctx context.Context, cursor int64, asOf time.Time, limit int) ([]cursorstream.Record, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, cursor, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	// IDs are 1-based positions, so the first candidate sits at index cursor
	start := max(cursor, 0)

	var result []cursorstream.Record
	next := cursor
	for i := start; i < int64(len(t.records)); i++ {
		record := t.records[i]
		if record.Timestamp.After(asOf) {
			continue
		}
		result = append(result, record)
		next = record.ID
		if limit > 0 && len(result) >= limit {
			break
		}
	}

	return result, next, nil
}

// Fetch returns a fetch function streaming the table in pages of limit records.
func (t *Table) Fetch(limit int) cursorstream.FetchFunc[cursorstream.Record, int64] {
	return cursorstream.FromPager[cursorstream.Record, int64](t, limit)
}
