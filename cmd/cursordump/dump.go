package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	cursorstream "github.com/vlab-research/client-cursor-stream"
)

// dump writes every record after from as one JSON document per line, stopping
// early once limit records were written if limit is positive.
func dump(
	ctx context.Context,
	ll *slog.Logger,
	w io.Writer,
	fetch cursorstream.FetchFunc[cursorstream.Record, int64],
	from int64,
	buffer int,
	limit int,
) (int, error) {
	sub := cursorstream.Subscribe(ctx, fetch, from, buffer, cursorstream.WithLogger(ll))
	defer sub.Close()

	enc := json.NewEncoder(w)
	written := 0
	for record := range sub.Items() {
		if err := enc.Encode(record); err != nil {
			return written, fmt.Errorf("writing record %d: %v", record.ID, err)
		}
		written++
		if limit > 0 && written >= limit {
			ll.DebugContext(ctx, "limit reached", slog.Int("limit", limit), slog.Int64("last_id", record.ID))
			return written, nil
		}
	}
	if err := sub.Err(); err != nil {
		return written, err
	}
	return written, nil
}
