// Package schedule runs recurring tasks, each on its own goroutine.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/soyeahso/wirebot/internal/logging"
)

// NextFunc computes the next fire time strictly after now. Returning
// false retires the entry.
type NextFunc func(now time.Time) (time.Time, bool)

// Task is the work an entry runs. The context ends when the entry is
// removed or the scheduler stops, so long tasks should watch it.
type Task func(ctx context.Context)

// Handle identifies a scheduled entry.
type Handle uint64

type entry struct {
	name   string
	cancel context.CancelFunc
}

// Scheduler owns one goroutine per entry and cancels them as a group on
// Stop. All methods are safe for concurrent use.
type Scheduler struct {
	log *logging.Logger

	mu      sync.Mutex
	nextID  uint64
	entries map[Handle]*entry
	stopped bool

	wg sync.WaitGroup
}

func New(log *logging.Logger) *Scheduler {
	return &Scheduler{log: log, entries: make(map[Handle]*entry)}
}

// Add schedules a task. The entry keeps firing until next reports false,
// Remove cancels it, or the scheduler stops. Adding to a stopped
// scheduler returns the zero Handle.
func (s *Scheduler) Add(name string, next NextFunc, task Task) Handle {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		cancel()
		return 0
	}
	s.nextID++
	h := Handle(s.nextID)
	s.entries[h] = &entry{name: name, cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(ctx, h, name, next, task)
	return h
}

// AddDailyAt schedules task every day at the given wall-clock time. A
// time already past today rolls to tomorrow.
func (s *Scheduler) AddDailyAt(name string, hour, minute, sec int, task Task) Handle {
	return s.Add(name, DailyAt(hour, minute, sec), task)
}

// AddCron schedules task from a standard five-field cron expression.
func (s *Scheduler) AddCron(name, spec string, task Task) (Handle, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return 0, fmt.Errorf("parsing cron spec %q: %w", spec, err)
	}
	next := func(now time.Time) (time.Time, bool) {
		at := sched.Next(now)
		return at, !at.IsZero()
	}
	return s.Add(name, next, task), nil
}

// DailyAt returns the wall-clock schedule used by AddDailyAt. time.Date
// normalizes clock shifts, so a target falling into a DST gap still
// yields a valid instant.
func DailyAt(hour, minute, sec int) NextFunc {
	return func(now time.Time) (time.Time, bool) {
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, sec, 0, now.Location())
		for !next.After(now) {
			next = time.Date(next.Year(), next.Month(), next.Day()+1, hour, minute, sec, 0, next.Location())
		}
		return next, true
	}
}

func (s *Scheduler) run(ctx context.Context, h Handle, name string, next NextFunc, task Task) {
	defer s.wg.Done()
	defer s.forget(h)

	for {
		now := time.Now()
		at, ok := next(now)
		if !ok {
			s.log.Debug().Str("task", name).Msg("schedule exhausted")
			return
		}

		timer := time.NewTimer(at.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.log.Debug().Str("task", name).Time("at", at).Msg("running scheduled task")
		task(ctx)
		if ctx.Err() != nil {
			return
		}
	}
}

// Remove cancels an entry. A running invocation sees its context end.
func (s *Scheduler) Remove(h Handle) bool {
	s.mu.Lock()
	e, ok := s.entries[h]
	if ok {
		delete(s.entries, h)
	}
	s.mu.Unlock()

	if ok {
		e.cancel()
	}
	return ok
}

// Len reports how many entries are currently scheduled.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop cancels every entry and waits for running tasks to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	es := make([]*entry, 0, len(s.entries))
	for _, e := range s.entries {
		es = append(es, e)
	}
	s.mu.Unlock()

	for _, e := range es {
		e.cancel()
	}
	s.wg.Wait()
	s.log.Debug().Msg("scheduler stopped")
}

func (s *Scheduler) forget(h Handle) {
	s.mu.Lock()
	delete(s.entries, h)
	s.mu.Unlock()
}
