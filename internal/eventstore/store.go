// Package eventstore buffers closed usage events for one client session and
// hands them to a transport.Sink on Flush.
package eventstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/usagelog/internal/event"
	"github.com/loykin/usagelog/internal/metrics"
	"github.com/loykin/usagelog/internal/transport"
)

// ErrStoreClosed is returned by Open and OpenDurable after Shutdown.
var ErrStoreClosed = errors.New("event store is shut down")

// TransportError reports a failed flush. The Count records it carried are
// back in the buffer.
type TransportError struct {
	Count int
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("flush of %d records failed: %v", e.Count, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Store owns the session buffer. Create one per client session with New.
type Store struct {
	sink    transport.Sink
	session string
	clock   func() time.Time
	focus   event.FocusFunc
	client  event.ClientInfo
	logger  *slog.Logger
	timeout time.Duration

	mu     sync.Mutex
	buf    []event.Record
	closed bool

	// flushMu keeps restored batches in order.
	flushMu sync.Mutex

	schedMu sync.Mutex
	sched   *scheduler
}

// Option configures a Store.
type Option func(*Store)

func WithClock(clock func() time.Time) Option { return func(s *Store) { s.clock = clock } }

func WithFocus(f event.FocusFunc) Option { return func(s *Store) { s.focus = f } }

func WithClient(c event.ClientInfo) Option { return func(s *Store) { s.client = c } }

func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// WithFlushTimeout bounds each scheduled flush. Default 30s; d <= 0 keeps it.
func WithFlushTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a store bound to sink. The session id is taken from the clock
// once, here.
func New(sink transport.Sink, opts ...Option) *Store {
	s := &Store{
		sink:    sink,
		clock:   time.Now,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.session = sessionID(s.clock())
	s.logger = s.logger.With("session", s.session)
	return s
}

// sessionID is the last six decimal digits of the Unix millisecond clock.
func sessionID(t time.Time) string {
	ms := t.UnixMilli() % 1_000_000
	if ms < 0 {
		ms = -ms
	}
	return fmt.Sprintf("%06d", ms)
}

// SessionID returns the client_id attached to this store's events.
func (s *Store) SessionID() string { return s.session }

// Len returns the number of buffered records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

func (s *Store) build(t event.Type, durable bool, payload map[string]any) (event.Record, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return event.Record{}, ErrStoreClosed
	}

	p := make(map[string]any, len(payload)+1)
	maps.Copy(p, payload)
	if _, ok := p[event.KeyClientID]; !ok {
		p[event.KeyClientID] = s.session
	}
	r, err := event.New(t, durable, p,
		event.WithClock(s.clock),
		event.WithFocus(s.focus),
		event.WithClient(s.client),
	)
	if err != nil {
		metrics.IncRejected(string(t))
		s.logger.Debug("event rejected", "type", string(t), "error", err)
		return event.Record{}, err
	}
	metrics.IncOpened(string(t), durable)
	return r, nil
}

// Open records a non-durable event and queues it immediately.
func (s *Store) Open(t event.Type, payload map[string]any) (event.Record, error) {
	r, err := s.build(t, false, payload)
	if err != nil {
		return event.Record{}, err
	}
	if err := s.enqueue(r); err != nil {
		return event.Record{}, err
	}
	return r, nil
}

// OpenDurable starts a durable event. Its record joins the buffer when the
// returned Pending is closed.
func (s *Store) OpenDurable(t event.Type, payload map[string]any) (*event.Pending, error) {
	r, err := s.build(t, true, payload)
	if err != nil {
		return nil, err
	}
	return event.NewPending(r, func(closed event.Record) error {
		metrics.IncClosed(string(closed.Type()))
		return s.enqueue(closed)
	}), nil
}

// enqueue appends r unless the store is shut down, in which case r is
// dropped and ErrStoreClosed returned.
func (s *Store) enqueue(r event.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warn("event closed after shutdown, dropped", "type", string(r.Type()))
		return ErrStoreClosed
	}
	s.buf = append(s.buf, r)
	metrics.SetBuffered(len(s.buf))
	return nil
}

// Flush hands the buffered records to the sink as one batch. The buffer is
// swapped for an empty one before the sink is called, so records queued
// meanwhile go to the next flush. When the sink fails the batch is put back
// in front of them and a *TransportError is returned.
func (s *Store) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	snap := s.buf
	s.buf = nil
	metrics.SetBuffered(0)
	s.mu.Unlock()

	if len(snap) == 0 {
		metrics.ObserveFlush("empty", 0, 0)
		return nil
	}

	bodies := make([]event.Body, len(snap))
	for i, r := range snap {
		bodies[i] = r.Body()
	}
	batch := uuid.NewString()
	ctx = transport.WithBatchID(ctx, batch)

	start := time.Now()
	err := s.sink.Save(ctx, bodies)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		s.mu.Lock()
		s.buf = slices.Concat(snap, s.buf)
		metrics.SetBuffered(len(s.buf))
		s.mu.Unlock()
		metrics.ObserveFlush("error", len(snap), elapsed)
		s.logger.Warn("flush failed, records kept", "batch_id", batch, "records", len(snap), "error", err)
		return &TransportError{Count: len(snap), Err: err}
	}
	metrics.ObserveFlush("ok", len(snap), elapsed)
	s.logger.Debug("flushed", "batch_id", batch, "records", len(snap))
	return nil
}

// Shutdown stops the schedule, flushes what is left and closes the sink if
// it is an io.Closer. Once Shutdown starts, Open fails with ErrStoreClosed
// and durable events closed afterwards are dropped, their Close reporting
// ErrStoreClosed. Calling Shutdown again
// is a no-op.
func (s *Store) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.stopSchedule(ctx)
	flushErr := s.Flush(ctx)

	var closeErr error
	if c, ok := s.sink.(io.Closer); ok {
		closeErr = c.Close()
	}
	if flushErr != nil {
		s.logger.Error("final flush failed", "error", flushErr)
	}
	return errors.Join(flushErr, closeErr)
}
