package persistence

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/cytophage/internal/engine"
)

// Saver writes world copies, events and stats samples on its own
// goroutine so the tick loop never blocks on I/O. World copies arriving
// while a write is in flight are skipped; events and stats rows are queued.
type Saver struct {
	store   Store
	log     *EventLog // Optional
	OnSaved func(at time.Time)

	mu     sync.Mutex
	state  *engine.State
	events []engine.Event
	rows   []StatsRow

	busy   atomic.Bool
	wake   chan struct{}
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSaver creates a saver. log may be nil.
func NewSaver(store Store, log *EventLog) *Saver {
	return &Saver{
		store: store,
		log:   log,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Start launches the writer goroutine.
func (s *Saver) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
}

func (s *Saver) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
			s.flush()
		}
	}
}

// Busy reports whether a write is in flight.
func (s *Saver) Busy() bool {
	return s.busy.Load()
}

// Request queues a world copy and events. It reports false when the world
// copy was skipped because a write is still in flight.
func (s *Saver) Request(st *engine.State, events []engine.Event) bool {
	s.mu.Lock()
	s.events = append(s.events, events...)
	accepted := st != nil && !s.busy.Load()
	if accepted {
		s.state = st
	}
	s.mu.Unlock()
	s.signal()
	return accepted
}

// RecordStats queues one stats sample.
func (s *Saver) RecordStats(row StatsRow) {
	s.mu.Lock()
	s.rows = append(s.rows, row)
	s.mu.Unlock()
	s.signal()
}

func (s *Saver) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Saver) take() (*engine.State, []engine.Event, []StatsRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ev, rows := s.state, s.events, s.rows
	s.state, s.events, s.rows = nil, nil, nil
	return st, ev, rows
}

func (s *Saver) flush() {
	s.busy.Store(true)
	defer s.busy.Store(false)
	st, ev, rows := s.take()
	if err := s.write(st, ev, rows); err != nil {
		slog.Error("save failed", "error", err)
	}
}

func (s *Saver) write(st *engine.State, events []engine.Event, rows []StatsRow) error {
	var errs []error
	if len(events) > 0 {
		if err := s.store.SaveEvents(events); err != nil {
			errs = append(errs, err)
		}
		if s.log != nil {
			if err := s.log.Write(events); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, r := range rows {
		if err := s.store.AppendStats(r); err != nil {
			errs = append(errs, err)
			break
		}
	}
	if st != nil {
		start := time.Now()
		if err := s.store.SaveWorld(st); err != nil {
			errs = append(errs, err)
		} else {
			slog.Debug("world saved",
				"tick", st.Stats.TickCount,
				"organisms", len(st.Organisms),
				"food", len(st.Food),
				"took", time.Since(start),
			)
			if s.OnSaved != nil {
				s.OnSaved(st.SavedAt)
			}
		}
	}
	return errors.Join(errs...)
}

// Close stops the writer goroutine and synchronously writes everything
// still queued plus the final world copy.
func (s *Saver) Close(final *engine.State, events []engine.Event) error {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	st, ev, rows := s.take()
	if final != nil {
		st = final
	}
	err := s.write(st, append(ev, events...), rows)
	if s.log != nil {
		if cerr := s.log.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
