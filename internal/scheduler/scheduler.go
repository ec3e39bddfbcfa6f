package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Funcs are the callbacks the scheduler drives. Nil entries are skipped.
type Funcs struct {
	SessionStart  func(ctx context.Context, session time.Time) error
	HoldingCheck  func(ctx context.Context) error
	DecisionCycle func(ctx context.Context) error
	// OnError is told about every failed callback.
	OnError func(ctx context.Context, kind Kind, err error)
}

// Scheduler runs Funcs at the calendar's events, one at a time. An event
// whose time passed while a previous callback was still running is skipped.
type Scheduler struct {
	cal    *Calendar
	funcs  Funcs
	clock  Clock
	logger *slog.Logger
}

// New creates a Scheduler on the wall clock.
func New(cal *Calendar, funcs Funcs, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cal:    cal,
		funcs:  funcs,
		clock:  realClock{},
		logger: logger.With(slog.String("component", "scheduler")),
	}
}

// SetClock replaces the clock.
func (s *Scheduler) SetClock(c Clock) { s.clock = c }

// Run blocks until ctx is cancelled. When started during a session whose
// pre-market callback already passed, the session start runs immediately so
// the day's decision cycles have a universe.
func (s *Scheduler) Run(ctx context.Context) error {
	now := s.clock.Now()
	if s.cal.InSession(now) {
		s.logger.InfoContext(ctx, "started mid-session, running session start now")
		s.dispatch(ctx, Event{Kind: PreMarket, At: now, Session: s.cal.SessionDate(now)})
	}

	ev, ok := s.cal.Next(now)
	var lastAt time.Time
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !ok {
			s.logger.WarnContext(ctx, "no trading day ahead, scheduler idle")
			<-ctx.Done()
			return nil
		}

		// An event planned for the same instant as the one just dispatched
		// still runs, however long that callback took.
		now = s.clock.Now()
		if ev.At.Before(now) && !ev.At.Equal(lastAt) {
			s.logger.WarnContext(ctx, "event missed, skipping",
				slog.String("kind", ev.Kind.String()),
				slog.Time("at", ev.At),
			)
			ev, ok = s.cal.Following(ev)
			continue
		}

		if wait := ev.At.Sub(now); wait > 0 {
			s.logger.DebugContext(ctx, "waiting for next event",
				slog.String("kind", ev.Kind.String()),
				slog.Time("at", ev.At),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-s.clock.After(wait):
			}
		}

		s.dispatch(ctx, ev)
		lastAt = ev.At
		ev, ok = s.cal.Following(ev)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, ev Event) {
	var err error
	switch ev.Kind {
	case PreMarket:
		if s.funcs.SessionStart != nil {
			err = s.funcs.SessionStart(ctx, ev.Session)
		}
	case HoldingCheck:
		if s.funcs.HoldingCheck != nil {
			err = s.funcs.HoldingCheck(ctx)
		}
	case DecisionCycle:
		if s.funcs.DecisionCycle != nil {
			err = s.funcs.DecisionCycle(ctx)
		}
	}
	if err == nil {
		return
	}
	s.logger.ErrorContext(ctx, "scheduled callback failed",
		slog.String("kind", ev.Kind.String()),
		slog.Time("at", ev.At),
		slog.String("error", err.Error()),
	)
	if s.funcs.OnError != nil {
		s.funcs.OnError(ctx, ev.Kind, err)
	}
}
