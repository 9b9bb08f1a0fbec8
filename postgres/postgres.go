// Package postgres pages through an append-only PostgreSQL table of records
// for use with a cursor stream.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	cursorstream "github.com/vlab-research/client-cursor-stream"
)

// Defaults applied by New when the corresponding Config field is unset.
const (
	DefaultTableName = "records"
	DefaultBatchSize = 100
)

// undefinedTable is the PostgreSQL error code for a missing relation.
const undefinedTable = "42P01"

// ErrTableNotFound is returned when the configured table does not exist.
var ErrTableNotFound = errors.New("records table does not exist")

// Config holds the configuration for a PostgreSQL record source.
type Config struct {
	// ConnectionString is the lib/pq connection string, used by Open
	ConnectionString string
	// TableName is the table holding the records
	TableName string
	// BatchSize is the number of records fetched per page by Fetch
	BatchSize int
	// UseClientGeneratedTimestamps stamps appended records with the client
	// clock instead of the database clock
	UseClientGeneratedTimestamps bool
}

func (c Config) withDefaults() Config {
	if c.TableName == "" {
		c.TableName = DefaultTableName
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

// Validate checks the configuration once defaults have been applied.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.BatchSize < 0 {
		return fmt.Errorf("batch size must not be negative, got %d", c.BatchSize)
	}
	return nil
}

// Compile-time interface compliance check
var _ cursorstream.Pager[cursorstream.Record, int64] = (*Source)(nil)

// Source is a PostgreSQL implementation of cursorstream.Pager over a records
// table. Cursors are record IDs.
type Source struct {
	db                           *sql.DB
	tableName                    string
	batchSize                    int
	useClientGeneratedTimestamps bool
	now                          func() time.Time
}

// New creates a source on an existing database handle.
func New(db *sql.DB, config Config) (*Source, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if db == nil {
		return nil, errors.New("database handle must not be nil")
	}
	config = config.withDefaults()

	return &Source{
		db:                           db,
		tableName:                    config.TableName,
		batchSize:                    config.BatchSize,
		useClientGeneratedTimestamps: config.UseClientGeneratedTimestamps,
		now:                          time.Now,
	}, nil
}

// Open connects to the database in config.ConnectionString and creates a
// source on it. The source owns the connection; call Close to release it.
func Open(ctx context.Context, config Config) (*Source, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return New(db, config)
}

// Close closes the database connection.
func (s *Source) Close() error {
	return s.db.Close()
}

// TableName returns the name of the records table.
func (s *Source) TableName() string {
	return s.tableName
}

// InitSchema creates the records table and its indexes if they don't exist.
func InitSchema(ctx context.Context, db *sql.DB, tableName string) error {
	if tableName == "" {
		return errors.New("table name must not be empty")
	}
	_, err := db.ExecContext(ctx, schemaQuery(tableName))
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// InitSchema creates the source's records table if it doesn't exist.
func (s *Source) InitSchema(ctx context.Context) error {
	return InitSchema(ctx, s.db, s.tableName)
}

func schemaQuery(tableName string) string {
	table := pq.QuoteIdentifier(tableName)
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		event_id VARCHAR(255) NOT NULL,
		record_key VARCHAR(255) NOT NULL,
		event_type VARCHAR(255) NOT NULL,
		event_data BYTEA NOT NULL,
		metadata JSONB,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
	);

	CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s(event_id);
	CREATE INDEX IF NOT EXISTS %s ON %s(timestamp);
	`, table,
		pq.QuoteIdentifier("idx_"+tableName+"_event_id"), table,
		pq.QuoteIdentifier("idx_"+tableName+"_timestamp"), table)
}

// wrapQueryError marks a missing table with ErrTableNotFound.
func (s *Source) wrapQueryError(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
		return fmt.Errorf("failed to %s: %w: %s: %w", op, ErrTableNotFound, s.tableName, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
