package cursorstream

import (
	"context"
	"iter"
	"sync"
)

// Collect streams every item into a slice. If the stream fails, the items
// delivered before the failure are returned along with the error.
func Collect[T, C any](ctx context.Context, fetch FetchFunc[T, C], initial C, opts ...Option) ([]T, error) {
	var (
		items []T
		err   error
	)
	consumer := Callbacks[T]{
		OnData:  func(item T) bool { items = append(items, item); return true },
		OnError: func(e error) { err = e },
	}.Build()

	New(fetch, initial, consumer, opts...).Resume(ctx)
	return items, err
}

// All returns an iterator over the items of a new stream. The stream is only
// asked for the next item once the loop body has returned, so no page is
// fetched ahead of the consumer. A failure is yielded once, with a zero item,
// and ends the iteration.
func All[T, C any](ctx context.Context, fetch FetchFunc[T, C], initial C, opts ...Option) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var (
			cur T
			got bool
			err error
		)
		consumer := Callbacks[T]{
			OnData: func(item T) bool {
				cur, got = item, true
				return false
			},
			OnError: func(e error) { err = e },
		}.Build()

		stream := New(fetch, initial, consumer, opts...)
		for {
			got = false
			stream.Resume(ctx)
			if got {
				if !yield(cur, nil) {
					return
				}
				continue
			}
			if err != nil {
				var zero T
				yield(zero, err)
			}
			return
		}
	}
}

// Subscription is a running stream delivering its items over a channel.
type Subscription[T any] struct {
	itemsCh  chan T
	errorsCh chan error
	closeCh  chan struct{}
	doneCh   chan struct{}

	closeOnce sync.Once
	err       error
}

// Subscribe starts a stream in a new goroutine and delivers its items over a
// channel with room for size items. The stream only fetches while there is
// room in the channel. An item still waiting for room when ctx is cancelled
// is dropped.
func Subscribe[T, C any](ctx context.Context, fetch FetchFunc[T, C], initial C, size int, opts ...Option) *Subscription[T] {
	if size < 0 {
		size = 0
	}
	sub := &Subscription[T]{
		itemsCh:  make(chan T, size),
		errorsCh: make(chan error, 1),
		closeCh:  make(chan struct{}),
		doneCh:   make(chan struct{}),
	}

	consumer := Callbacks[T]{
		OnData: func(item T) bool {
			select {
			case sub.itemsCh <- item:
				return true
			case <-sub.closeCh:
				return false
			case <-ctx.Done():
				return false
			}
		},
		OnError: func(err error) { sub.err = err },
	}.Build()

	stream := New(fetch, initial, consumer, opts...)
	go sub.run(ctx, stream.Resume, stream.State)
	return sub
}

func (s *Subscription[T]) run(ctx context.Context, resume func(context.Context), state func() State) {
	defer close(s.doneCh)
	defer close(s.errorsCh)
	defer close(s.itemsCh)

	resume(ctx)

	if !state().Terminal() {
		select {
		case <-s.closeCh:
			return
		default:
		}
		// paused by a cancelled context rather than by Close
		s.err = ctx.Err()
	}
	if s.err != nil {
		s.errorsCh <- s.err
	}
}

// Items returns the channel of streamed items. It is closed when the stream
// ends, fails or the subscription is closed.
func (s *Subscription[T]) Items() <-chan T {
	return s.itemsCh
}

// Errors returns a channel that receives the error that stopped the stream, if
// any, and is closed afterwards.
func (s *Subscription[T]) Errors() <-chan error {
	return s.errorsCh
}

// Done returns a channel that is closed once the subscription has stopped.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.doneCh
}

// Err blocks until the subscription has stopped and returns the error that
// stopped it, or nil if the stream ended or the subscription was closed.
func (s *Subscription[T]) Err() error {
	<-s.doneCh
	return s.err
}

// Close stops the subscription. A fetch in flight is allowed to complete.
func (s *Subscription[T]) Close() error {
	s.closeOnce.Do(func() {
		close(s.closeCh)
	})
	return nil
}
