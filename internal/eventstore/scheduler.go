package eventstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/robfig/cron/v3"
)

type scheduler struct {
	cron    *cron.Cron
	spec    string
	entryID cron.EntryID
	// running skips a tick while the previous flush is still in the sink.
	running atomic.Bool
}

// StartSchedule flushes the store on a cron schedule, e.g. "@every 30s" or
// "*/5 * * * *". Failed flushes are logged; their records stay buffered for
// the next tick.
func (s *Store) StartSchedule(spec string) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrStoreClosed
	}

	s.schedMu.Lock()
	defer s.schedMu.Unlock()
	if s.sched != nil {
		return fmt.Errorf("flush schedule already running (%s)", s.sched.spec)
	}

	sc := &scheduler{cron: cron.New(), spec: spec}
	id, err := sc.cron.AddFunc(spec, func() { s.tick(sc) })
	if err != nil {
		return fmt.Errorf("invalid flush schedule %q: %w", spec, err)
	}
	sc.entryID = id
	sc.cron.Start()
	s.sched = sc

	s.logger.Info("flush scheduled", "schedule", spec, "next", sc.cron.Entry(id).Next)
	return nil
}

func (s *Store) tick(sc *scheduler) {
	if !sc.running.CompareAndSwap(false, true) {
		s.logger.Debug("previous flush still running, tick skipped")
		return
	}
	defer sc.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		var te *TransportError
		if errors.As(err, &te) {
			s.logger.Warn("scheduled flush failed", "records", te.Count, "error", te.Err)
			return
		}
		s.logger.Error("scheduled flush failed", "error", err)
	}
}

// stopSchedule stops the cron and waits for a running tick, bounded by ctx.
func (s *Store) stopSchedule(ctx context.Context) {
	s.schedMu.Lock()
	sc := s.sched
	s.sched = nil
	s.schedMu.Unlock()
	if sc == nil {
		return
	}
	done := sc.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("scheduled flush still running at shutdown")
	}
	s.logger.Info("flush schedule stopped", "schedule", sc.spec)
}
