// Package cursorstream turns a paginated fetch function into a continuous,
// backpressure-aware stream of items.
//
// A fetch function receives the cursor returned by the previous call and a
// start time captured once per stream, and returns one page of items plus the
// cursor for the next call. The stream serves the items one at a time and only
// fetches again once the current page has been consumed and the consumer has
// signalled it is ready for more.
package cursorstream

import (
	"errors"
	"fmt"
	"time"
)

// Record is a row of an append-only table, as produced by the bundled memory
// and postgres sources.
type Record struct {
	// ID is the table sequence number and doubles as the pagination cursor
	ID int64 `json:"id"`
	// EventID is a unique identifier for the record
	EventID string `json:"event_id"`
	// Key groups records, e.g. a user or survey identifier
	Key string `json:"key"`
	// Type describes the kind of record
	Type string `json:"type"`
	// Data contains the payload
	Data []byte `json:"data"`
	// Metadata contains additional record information
	Metadata map[string]string `json:"metadata,omitempty"`
	// Timestamp when the record was written
	Timestamp time.Time `json:"timestamp"`
}

// Sentinel errors for common error conditions.
var (
	// ErrDone is returned by BatchBuffer.Next when the producer has no more data.
	ErrDone = errors.New("cursorstream: no more data")

	// ErrUndefinedCursor is returned by CursorResult when it is passed an undefined cursor.
	ErrUndefinedCursor = errors.New("cursorstream: cursor result needs a valid cursor")

	// ErrContractViolation matches every *ContractViolationError.
	ErrContractViolation = errors.New("cursorstream: fetch function contract violation")
)

// ContractViolationError indicates that a fetch function returned something
// other than a well-formed page of items and next cursor.
type ContractViolationError struct {
	// Got describes what the fetch function returned instead.
	Got string
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("cursorstream: fetch function did not return a 2-element page of (items, next cursor), got %s", e.Got)
}

// Is reports whether target is ErrContractViolation.
func (e *ContractViolationError) Is(target error) bool {
	return target == ErrContractViolation
}
