package cursorstream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// FetchFunc fetches one page starting at cursor. startTime is captured once,
// when the stream first starts pumping, and is passed unchanged to every call
// so that sources can page through a stable snapshot.
type FetchFunc[T, C any] func(ctx context.Context, cursor C, startTime time.Time) (Page[T, C], error)

// Consumer receives the items of a Stream.
type Consumer[T any] interface {
	// OnData receives the next item and reports whether the consumer is ready
	// for more. Returning false pauses the stream until Resume is called.
	OnData(item T) bool
	// OnEnd is called once when the source is exhausted.
	OnEnd()
	// OnError is called at most once, with the error that stopped the stream.
	// OnEnd and OnError are mutually exclusive.
	OnError(err error)
}

// Callbacks assembles a Consumer out of plain functions.
type Callbacks[T any] struct {
	OnData  func(T) bool
	OnEnd   func()
	OnError func(error)
}

// Build fills in any nil functions and returns the Consumer. A nil OnData
// accepts every item and is always ready.
func (c Callbacks[T]) Build() Consumer[T] {
	if c.OnData == nil {
		c.OnData = func(T) bool { return true }
	}
	if c.OnEnd == nil {
		c.OnEnd = func() {}
	}
	if c.OnError == nil {
		c.OnError = func(error) {}
	}
	return &assembledConsumer[T]{parts: c}
}

type assembledConsumer[T any] struct {
	parts Callbacks[T]
}

func (ac *assembledConsumer[T]) OnData(item T) bool { return ac.parts.OnData(item) }
func (ac *assembledConsumer[T]) OnEnd()             { ac.parts.OnEnd() }
func (ac *assembledConsumer[T]) OnError(err error)  { ac.parts.OnError(err) }

// State is the lifecycle state of a Stream.
type State int

const (
	// Idle streams are waiting for the consumer to signal readiness.
	Idle State = iota
	// Pumping streams are fetching and emitting items.
	Pumping
	// Ended streams have delivered all items. Terminal.
	Ended
	// Failed streams stopped on an error. Terminal.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pumping:
		return "pumping"
	case Ended:
		return "ended"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no more items can be emitted in state s.
func (s State) Terminal() bool {
	return s == Ended || s == Failed
}

// Stats counts the work a Stream has done.
type Stats struct {
	// Fetches is the number of fetch function calls
	Fetches int
	// Items is the number of OnData calls, counting items the consumer
	// received but did not keep
	Items int
}

type options struct {
	ll  *slog.Logger
	now func() time.Time
}

// An Option changes the default behavior of a Stream.
type Option func(*options)

// WithLogger makes the stream log its fetches and state changes to ll.
func WithLogger(ll *slog.Logger) Option {
	return func(o *options) { o.ll = ll }
}

// WithClock makes the stream read the start time from now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// Stream drives a FetchFunc and hands the items, one at a time, to a Consumer
// that controls the pace through the return value of OnData and through
// Resume.
//
// At most one fetch is outstanding at any time and each fetch receives the
// cursor returned by the previous one. A Stream cannot be restarted once it
// has ended or failed.
type Stream[T, C any] struct {
	fetch    FetchFunc[T, C]
	consumer Consumer[T]
	buffer   *BatchBuffer[T]
	ll       *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	state     State
	resumed   bool
	started   bool
	exhausted bool
	cursor    C
	startTime time.Time
	err       error
	stats     Stats
}

// New creates an idle stream starting at cursor initial. Nothing is fetched
// until the first call to Resume.
func New[T, C any](fetch FetchFunc[T, C], initial C, consumer Consumer[T], opts ...Option) *Stream[T, C] {
	o := options{
		ll:  slog.New(slog.DiscardHandler),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Stream[T, C]{
		fetch:    fetch,
		consumer: consumer,
		ll:       o.ll,
		now:      o.now,
		cursor:   initial,
	}
	s.buffer = NewBatchBuffer(s.fetchPage)
	return s
}

// Resume signals that the consumer is ready for more items. An idle stream
// starts pumping in the calling goroutine and returns once the consumer stops
// being ready, or the stream ends or fails. If the stream is already pumping,
// for instance when Resume is called from within OnData, the signal is
// recorded and the running loop carries on. Resume on an ended or failed
// stream does nothing.
func (s *Stream[T, C]) Resume(ctx context.Context) {
	s.mu.Lock()
	switch s.state {
	case Ended, Failed:
		s.mu.Unlock()
		return
	case Pumping:
		s.resumed = true
		s.mu.Unlock()
		return
	}
	s.state = Pumping
	if !s.started {
		s.started = true
		s.startTime = s.now()
	}
	s.mu.Unlock()

	s.pump(ctx)
}

func (s *Stream[T, C]) pump(ctx context.Context) {
	for {
		item, ok, err := s.buffer.Next(ctx)
		if errors.Is(err, ErrDone) && s.endOfData() {
			s.finish(ctx, Ended, nil)
			s.consumer.OnEnd()
			return
		}
		if err != nil {
			s.finish(ctx, Failed, err)
			s.consumer.OnError(err)
			return
		}
		if !ok {
			// empty page, fetch the next one
			continue
		}

		s.mu.Lock()
		s.stats.Items++
		s.mu.Unlock()

		ready := s.consumer.OnData(item)

		s.mu.Lock()
		if ready || s.resumed {
			s.resumed = false
			s.mu.Unlock()
			continue
		}
		s.state = Idle
		s.mu.Unlock()
		return
	}
}

func (s *Stream[T, C]) finish(ctx context.Context, state State, err error) {
	s.mu.Lock()
	s.state = state
	s.err = err
	stats := s.stats
	s.mu.Unlock()

	if err != nil {
		s.ll.ErrorContext(ctx, "stream failed",
			slog.Any("err", err),
			slog.Int("fetches", stats.Fetches),
			slog.Int("items", stats.Items),
		)
		return
	}
	s.ll.DebugContext(ctx, "stream ended",
		slog.Int("fetches", stats.Fetches),
		slog.Int("items", stats.Items),
	)
}

// fetchPage calls the fetch function with the current cursor and the stream
// start time, validates the page and advances the cursor.
func (s *Stream[T, C]) fetchPage(ctx context.Context) (Batch[T], error) {
	if err := ctx.Err(); err != nil {
		return Batch[T]{}, err
	}

	s.mu.Lock()
	cursor, startTime := s.cursor, s.startTime
	s.stats.Fetches++
	s.mu.Unlock()

	s.ll.DebugContext(ctx, "fetching page",
		slog.Any("cursor", cursor),
		slog.Time("start_time", startTime),
	)
	page, err := s.fetch(ctx, cursor, startTime)
	if err != nil {
		return Batch[T]{}, err
	}
	if !page.Valid() {
		return Batch[T]{}, &ContractViolationError{Got: "a zero Page"}
	}
	if page.Done() {
		s.mu.Lock()
		s.exhausted = true
		s.mu.Unlock()
		return EndOfData[T](), nil
	}

	s.mu.Lock()
	s.cursor = page.Next()
	s.mu.Unlock()

	s.ll.DebugContext(ctx, "fetched page",
		slog.Int("items", len(page.Items())),
		slog.Any("next_cursor", page.Next()),
	)
	return page.batch, nil
}

// endOfData reports whether the fetch function returned NoMoreData. Fetch
// errors that wrap ErrDone are failures like any other.
func (s *Stream[T, C]) endOfData() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exhausted
}

// State returns the current lifecycle state.
func (s *Stream[T, C]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Cursor returns the cursor the next fetch will be called with. Items of the
// last fetched page may still be buffered, so a checkpoint taken from Cursor
// is only complete once those have been consumed; see Buffered.
func (s *Stream[T, C]) Cursor() C {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Buffered returns the number of fetched items not yet handed to the consumer.
// It must not be called while the stream is pumping in another goroutine.
func (s *Stream[T, C]) Buffered() int {
	return s.buffer.Len()
}

// StartTime returns the time captured when the stream first started pumping,
// or the zero time if it never has.
func (s *Stream[T, C]) StartTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startTime
}

// Err returns the error that made the stream fail, if any.
func (s *Stream[T, C]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns a snapshot of the stream counters.
func (s *Stream[T, C]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
