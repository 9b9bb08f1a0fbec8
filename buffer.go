package cursorstream

import "context"

// Producer returns the next batch of items, or the end-of-data marker.
type Producer[T any] func(ctx context.Context) (Batch[T], error)

// BatchBuffer serves the items of a batch-producing function one at a time,
// calling the producer again only once the current batch is used up.
//
// A BatchBuffer is not safe for concurrent use.
type BatchBuffer[T any] struct {
	produce Producer[T]
	queue   []T
}

// NewBatchBuffer returns a buffer drawing batches from produce.
func NewBatchBuffer[T any](produce Producer[T]) *BatchBuffer[T] {
	return &BatchBuffer[T]{produce: produce}
}

// Next returns the next item.
//   - Returns (<item>, true, nil) when an item is available.
//   - Returns (zero, false, nil) when the producer returned an empty batch;
//     the following call invokes the producer again.
//   - Returns (zero, false, ErrDone) when the producer returned the end-of-data
//     marker. This is not remembered: the following call invokes the producer
//     again.
//   - Returns (zero, false, err) with the producer's error unmodified.
func (b *BatchBuffer[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if len(b.queue) == 0 {
		batch, err := b.produce(ctx)
		if err != nil {
			return zero, false, err
		}
		if batch.Done() {
			return zero, false, ErrDone
		}
		b.queue = batch.Items()
		if len(b.queue) == 0 {
			return zero, false, nil
		}
	}

	// the producer owns the batch slice, so the popped slot is left as is
	item := b.queue[0]
	b.queue = b.queue[1:]
	return item, true, nil
}

// Len returns the number of buffered items.
func (b *BatchBuffer[T]) Len() int {
	return len(b.queue)
}
