package cursorstream

import (
	"fmt"
	"reflect"
)

// Batch is the result of one producer call: either a (possibly empty) group
// of items, or the end-of-data marker. The zero Batch is the end-of-data
// marker.
type Batch[T any] struct {
	items []T
	more  bool
}

// NewBatch returns a batch holding items. A nil or empty slice is a valid,
// empty batch and does not end the stream.
func NewBatch[T any](items []T) Batch[T] {
	return Batch[T]{items: items, more: true}
}

// EndOfData returns the marker signalling that the source is exhausted.
func EndOfData[T any]() Batch[T] {
	return Batch[T]{}
}

// Items returns the batch items. It is nil for the end-of-data marker.
func (b Batch[T]) Items() []T { return b.items }

// Done reports whether b is the end-of-data marker.
func (b Batch[T]) Done() bool { return !b.more }

// Page is what a FetchFunc returns: a batch of items plus the cursor to pass
// to the next call. Pages are built with CursorResult or NoMoreData; the zero
// Page is rejected by the stream as a contract violation.
type Page[T, C any] struct {
	batch Batch[T]
	next  C
	set   bool
}

// CursorResult builds a page of items continuing at next. It fails with
// ErrUndefinedCursor if next is undefined (a nil pointer, interface, map,
// slice, func or channel), whether or not items is empty. Defined zero values
// such as 0 or "" are accepted.
func CursorResult[T, C any](items []T, next C) (Page[T, C], error) {
	if undefined(next) {
		return Page[T, C]{}, fmt.Errorf("%w, was passed: %v", ErrUndefinedCursor, any(next))
	}
	return Page[T, C]{batch: NewBatch(items), next: next, set: true}, nil
}

// NoMoreData returns the end-of-data page. The cursor is irrelevant once the
// source is exhausted, so it is not validated.
func NoMoreData[T, C any]() Page[T, C] {
	return Page[T, C]{set: true}
}

// Items returns the page items, nil when the page ends the stream.
func (p Page[T, C]) Items() []T { return p.batch.items }

// Next returns the cursor for the following fetch call.
func (p Page[T, C]) Next() C { return p.next }

// Done reports whether p is the end-of-data page.
func (p Page[T, C]) Done() bool { return p.batch.Done() }

// Valid reports whether p was built by CursorResult or NoMoreData.
func (p Page[T, C]) Valid() bool { return p.set }

func undefined(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
