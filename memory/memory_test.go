package memory

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	cursorstream "github.com/vlab-research/client-cursor-stream"
)

// tick returns a clock advancing by one second per call.
func tick(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

var epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func appendN(table *Table, n int) []cursorstream.Record {
	records := make([]cursorstream.Record, n)
	for i := range records {
		records[i] = cursorstream.Record{
			Key:      "survey-1",
			Type:     "ResponseRecorded",
			Data:     []byte(`{"answer": "yes"}`),
			Metadata: map[string]string{"source": "test"},
		}
	}
	return table.Append(records...)
}

func TestTable_Append(t *testing.T) {
	table := NewTable(WithClock(tick(epoch)))

	stored := appendN(table, 3)
	if len(stored) != 3 {
		t.Fatalf("Expected 3 stored records, got %d", len(stored))
	}
	if table.Len() != 3 {
		t.Fatalf("Expected table length 3, got %d", table.Len())
	}

	for i, record := range stored {
		if record.ID != int64(i+1) {
			t.Errorf("Expected record %d to have ID %d, got %d", i, i+1, record.ID)
		}
		if want := epoch.Add(time.Duration(i+1) * time.Second); !record.Timestamp.Equal(want) {
			t.Errorf("Expected record %d timestamp %v, got %v", i, want, record.Timestamp)
		}
		id, err := ulid.ParseStrict(record.EventID)
		if err != nil {
			t.Errorf("Expected record %d to have a ULID event ID, got %q: %v", i, record.EventID, err)
			continue
		}
		if ulid.Time(id.Time()).UnixMilli() != record.Timestamp.UnixMilli() {
			t.Errorf("Expected ULID time to match record timestamp for record %d", i)
		}
	}
}

func TestTable_AppendKeepsProvidedFields(t *testing.T) {
	table := NewTable()
	ts := epoch.Add(time.Hour)

	stored := table.Append(cursorstream.Record{EventID: "custom-id", Timestamp: ts, ID: 99})
	if stored[0].EventID != "custom-id" {
		t.Errorf("Expected event ID to be kept, got %q", stored[0].EventID)
	}
	if !stored[0].Timestamp.Equal(ts) {
		t.Errorf("Expected timestamp to be kept, got %v", stored[0].Timestamp)
	}
	if stored[0].ID != 1 {
		t.Errorf("Expected ID to be assigned by the table, got %d", stored[0].ID)
	}

	if got := table.Append(); got != nil {
		t.Errorf("Expected nil for an empty append, got %v", got)
	}
}

func TestTable_Page(t *testing.T) {
	ctx := context.Background()
	table := NewTable(WithClock(tick(epoch)))
	stored := appendN(table, 5)
	asOf := epoch.Add(time.Hour)

	tests := []struct {
		name     string
		cursor   int64
		limit    int
		wantIDs  []int64
		wantNext int64
	}{
		{name: "first page", cursor: 0, limit: 2, wantIDs: []int64{1, 2}, wantNext: 2},
		{name: "middle page", cursor: 2, limit: 2, wantIDs: []int64{3, 4}, wantNext: 4},
		{name: "short last page", cursor: 4, limit: 2, wantIDs: []int64{5}, wantNext: 5},
		{name: "past the end", cursor: 5, limit: 2, wantIDs: nil, wantNext: 5},
		{name: "no limit", cursor: 1, limit: 0, wantIDs: []int64{2, 3, 4, 5}, wantNext: 5},
		{name: "negative cursor", cursor: -3, limit: 1, wantIDs: []int64{1}, wantNext: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, next, err := table.Page(ctx, tt.cursor, asOf, tt.limit)
			if err != nil {
				t.Fatalf("Page failed: %v", err)
			}
			var ids []int64
			for _, r := range records {
				ids = append(ids, r.ID)
			}
			if !reflect.DeepEqual(ids, tt.wantIDs) {
				t.Errorf("Expected IDs %v, got %v", tt.wantIDs, ids)
			}
			if next != tt.wantNext {
				t.Errorf("Expected next cursor %d, got %d", tt.wantNext, next)
			}
		})
	}

	records, _, _ := table.Page(ctx, 0, asOf, 1)
	if !reflect.DeepEqual(records[0], stored[0]) {
		t.Errorf("Expected page to return the stored record, got %+v", records[0])
	}
}

func TestTable_PageRespectsAsOf(t *testing.T) {
	ctx := context.Background()
	table := NewTable(WithClock(tick(epoch)))
	appendN(table, 5)

	// records 1..3 were written at epoch+1s..epoch+3s
	records, next, err := table.Page(ctx, 0, epoch.Add(3*time.Second), 10)
	if err != nil {
		t.Fatalf("Page failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 records as of epoch+3s, got %d", len(records))
	}
	if next != 3 {
		t.Errorf("Expected next cursor 3, got %d", next)
	}
}

func TestTable_PageCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	table := NewTable()
	appendN(table, 1)

	_, next, err := table.Page(ctx, 0, time.Now(), 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if next != 0 {
		t.Errorf("Expected cursor to be unchanged, got %d", next)
	}
}

func TestTable_Stream(t *testing.T) {
	ctx := context.Background()
	table := NewTable(WithClock(tick(epoch)))
	appendN(table, 7)

	// the stream starts right after the 7th record was written
	startTime := epoch.Add(7 * time.Second)
	var got []int64
	consumer := cursorstream.Callbacks[cursorstream.Record]{
		OnData: func(r cursorstream.Record) bool {
			got = append(got, r.ID)
			if r.ID == 2 {
				// written after the stream started, must not be streamed
				appendN(table, 3)
			}
			return true
		},
		OnError: func(err error) { t.Errorf("Unexpected stream error: %v", err) },
	}.Build()

	stream := cursorstream.New(table.Fetch(3), 0, consumer, cursorstream.WithClock(func() time.Time { return startTime }))
	stream.Resume(ctx)

	want := []int64{1, 2, 3, 4, 5, 6, 7}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected IDs %v, got %v", want, got)
	}
	if stream.State() != cursorstream.Ended {
		t.Errorf("Expected stream to have ended, got %s", stream.State())
	}
	if stream.Cursor() != 7 {
		t.Errorf("Expected final cursor 7, got %d", stream.Cursor())
	}
	if table.Len() != 10 {
		t.Errorf("Expected 10 records in table, got %d", table.Len())
	}
}
