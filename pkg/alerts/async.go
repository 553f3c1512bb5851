package alerts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// DefaultQueueSize is the AsyncSink buffer used when none is given.
const DefaultQueueSize = 256

// ErrQueueFull is returned by AsyncSink.Send when the buffer is full.
var ErrQueueFull = errors.New("alert queue full")

// ErrSinkClosed is returned by AsyncSink.Send after Close.
var ErrSinkClosed = errors.New("alert sink closed")

// AsyncSink hands alerts to a slow sink from a background goroutine, so the
// caller never waits on the network. Alerts that do not fit the buffer are
// dropped with ErrQueueFull.
type AsyncSink struct {
	next   Sink
	queue  chan Alert
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncSink starts the delivery goroutine for next. Close stops it.
func NewAsyncSink(next Sink, size int, logger *slog.Logger) *AsyncSink {
	if logger == nil {
		logger = slog.Default()
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	s := &AsyncSink{
		next:   next,
		queue:  make(chan Alert, size),
		logger: logger.With("component", "alerts"),
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// Send queues alert for delivery.
func (s *AsyncSink) Send(_ context.Context, alert Alert) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}
	select {
	case s.queue <- alert:
		return nil
	default:
		return ErrQueueFull
	}
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for alert := range s.queue {
		if err := s.next.Send(context.Background(), alert); err != nil {
			s.logger.Error("alert delivery failed", "alert_id", alert.ID, "type", alert.Type, "error", err)
		}
	}
}

// Close stops accepting alerts and waits until the queued ones are delivered
// or ctx is done.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
