package event

import (
	"fmt"
	"sync"
)

// Pending is an open durable event. It closes exactly once; the resulting
// Record is handed to the deliver function bound at construction and then
// published on Done.
type Pending struct {
	mu      sync.Mutex
	open    Record
	closed  bool
	deliver func(Record) error
	done    chan Record
}

// NewPending wraps an open record. deliver may be nil; an error from it is
// returned by Close.
func NewPending(r Record, deliver func(Record) error) *Pending {
	return &Pending{
		open:    r,
		deliver: deliver,
		done:    make(chan Record, 1),
	}
}

// Record returns the record as it was opened.
func (p *Pending) Record() Record { return p.open }

// Done yields the closed record once and is then closed.
func (p *Pending) Done() <-chan Record { return p.done }

// Close computes the duration, merges extra over the payload and delivers the
// closed record. A ValidationError leaves the event open. When delivery
// fails the event is still closed: Close returns the record together with
// the delivery error. Calls after a successful Close return ErrAlreadyClosed.
func (p *Pending) Close(extra map[string]any) (Record, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return Record{}, ErrAlreadyClosed
	}
	rec, err := p.open.close(extra)
	if err != nil {
		p.mu.Unlock()
		return Record{}, err
	}
	p.closed = true
	p.mu.Unlock()

	var derr error
	if p.deliver != nil {
		derr = p.deliver(rec)
	}
	p.done <- rec
	close(p.done)
	if derr != nil {
		return rec, fmt.Errorf("closed %q record not delivered: %w", rec.Type(), derr)
	}
	return rec, nil
}

// Closed reports whether Close has succeeded.
func (p *Pending) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
