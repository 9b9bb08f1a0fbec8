package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/oklog/ulid/v2"

	cursorstream "github.com/vlab-research/client-cursor-stream"
)

// Append inserts records in a single transaction and returns them with the
// IDs and timestamps assigned by the database. Records without an EventID get
// a ULID.
func (s *Source) Append(ctx context.Context, records ...cursorstream.Record) ([]cursorstream.Record, error) {
	if len(records) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (event_id, record_key, event_type, event_data, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, COALESCE($6::timestamptz, now()))
		RETURNING id, timestamp
	`, pq.QuoteIdentifier(s.tableName)))
	if err != nil {
		return nil, s.wrapQueryError("prepare statement", err)
	}
	defer stmt.Close()

	stored := make([]cursorstream.Record, len(records))
	for i, record := range records {
		// Leave the timestamp NULL so that the database clock is used
		var timestamp any
		switch {
		case !record.Timestamp.IsZero():
			timestamp = record.Timestamp
		case s.useClientGeneratedTimestamps:
			timestamp = s.now()
		}

		if record.EventID == "" {
			record.EventID = ulid.Make().String()
		}
		if record.Data == nil {
			record.Data = []byte{}
		}

		// Convert metadata to JSON
		var metadataJSON any
		if record.Metadata != nil {
			metadataJSON, err = json.Marshal(record.Metadata)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal metadata: %w", err)
			}
		}

		err = stmt.QueryRowContext(ctx, record.EventID, record.Key, record.Type, record.Data, metadataJSON, timestamp).
			Scan(&record.ID, &record.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to insert record: %w", err)
		}
		stored[i] = record
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return stored, nil
}

// buildPageQuery returns the query and arguments for one page of records.
func (s *Source) buildPageQuery(cursor int64, asOf time.Time, limit int) (string, []any) {
	query := fmt.Sprintf(`
		SELECT id, event_id, record_key, event_type, event_data, metadata, timestamp
		FROM %s
		WHERE id > $1 AND timestamp <= $2
		ORDER BY id ASC
	`, pq.QuoteIdentifier(s.tableName))
	args := []any{cursor, asOf}

	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}
	return query, args
}

// Page returns up to limit records with an ID greater than cursor that were
// written no later than asOf, in ID order, and the ID of the last one. When no
// record matches, cursor is returned unchanged.
func (s *Source) Page(ctx context.Context, cursor int64, asOf time.Time, limit int) ([]cursorstream.Record, int64, error) {
	query, args := s.buildPageQuery(cursor, asOf, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cursor, s.wrapQueryError("query records", err)
	}
	defer rows.Close()

	var records []cursorstream.Record
	next := cursor

	for rows.Next() {
		var record cursorstream.Record
		var metadataJSON []byte

		err := rows.Scan(
			&record.ID,
			&record.EventID,
			&record.Key,
			&record.Type,
			&record.Data,
			&metadataJSON,
			&record.Timestamp,
		)
		if err != nil {
			return nil, cursor, fmt.Errorf("failed to scan record: %w", err)
		}

		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &record.Metadata); err != nil {
				return nil, cursor, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		records = append(records, record)
		next = record.ID
	}

	if err = rows.Err(); err != nil {
		return nil, cursor, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, next, nil
}

// Fetch returns a fetch function streaming the table in pages of the
// configured batch size.
func (s *Source) Fetch() cursorstream.FetchFunc[cursorstream.Record, int64] {
	return cursorstream.FromPager[cursorstream.Record, int64](s, s.batchSize)
}
