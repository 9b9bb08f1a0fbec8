package cursorstream

import (
	"context"
	"time"
)

// Pager is a paged data source, such as a database table or a paged HTTP API.
type Pager[T, C any] interface {
	// Page returns up to limit items strictly after cursor that were written
	// no later than asOf, and the cursor positioned after the last returned
	// item. An empty result means the source is exhausted.
	Page(ctx context.Context, cursor C, asOf time.Time, limit int) (items []T, next C, err error)
}

// PagerFunc is a function adapter that implements the Pager interface.
type PagerFunc[T, C any] func(ctx context.Context, cursor C, asOf time.Time, limit int) ([]T, C, error)

// Page implements the Pager interface for PagerFunc.
func (f PagerFunc[T, C]) Page(ctx context.Context, cursor C, asOf time.Time, limit int) ([]T, C, error) {
	return f(ctx, cursor, asOf, limit)
}

// FromPager returns a FetchFunc reading pages of up to limit items from p,
// using the stream start time as the snapshot time.
func FromPager[T, C any](p Pager[T, C], limit int) FetchFunc[T, C] {
	return func(ctx context.Context, cursor C, startTime time.Time) (Page[T, C], error) {
		items, next, err := p.Page(ctx, cursor, startTime, limit)
		if err != nil {
			return Page[T, C]{}, err
		}
		if len(items) == 0 {
			return NoMoreData[T, C](), nil
		}
		return CursorResult(items, next)
	}
}
