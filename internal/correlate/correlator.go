// Package correlate matches inbound events to in-flight waiters.
//
// A waiter claims events either by echo token (action replies) or by
// subject ids (the next chat message from a group or user). Waiters are
// scanned in registration order and an event is consumed by at most one
// of them; unclaimed events pass through to the normal pipeline.
package correlate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/wirebot/internal/logging"
	"github.com/soyeahso/wirebot/internal/onebot"
)

// ErrTimeout is returned by Await when the waiter's timeout fires before
// a matching event arrives.
var ErrTimeout = errors.New("timed out waiting for event")

// Predicate selects the events a waiter is interested in. Construct one
// with ForEcho or ForSubject.
type Predicate struct {
	kind  onebot.CorrelationKind
	echo  string
	group int64
	user  int64
}

// ForEcho matches the action reply carrying the given echo token.
func ForEcho(echo string) Predicate {
	return Predicate{kind: onebot.CorrelateEcho, echo: echo}
}

// ForSubject matches the next chat message from the given group and user.
// A zero group or user acts as a wildcard.
func ForSubject(group, user int64) Predicate {
	return Predicate{kind: onebot.CorrelateSubject, group: group, user: user}
}

func (p Predicate) matches(c onebot.Correlation) bool {
	if c.Kind != p.kind {
		return false
	}
	switch p.kind {
	case onebot.CorrelateEcho:
		return c.Echo == p.echo
	case onebot.CorrelateSubject:
		if p.group != 0 && c.Group != p.group {
			return false
		}
		if p.user != 0 && c.User != p.user {
			return false
		}
		return true
	}
	return false
}

func (p Predicate) String() string {
	switch p.kind {
	case onebot.CorrelateEcho:
		return "echo:" + p.echo
	case onebot.CorrelateSubject:
		return fmt.Sprintf("subject:%d/%d", p.group, p.user)
	}
	return "none"
}

type waiter struct {
	id   uint64
	pred Predicate
	ch   chan *onebot.Event
}

// Correlator is the waiter table shared by the upstream reader and every
// caller awaiting a reply. All methods are safe for concurrent use.
type Correlator struct {
	log *logging.Logger

	mu      sync.Mutex
	nextID  uint64
	waiters []*waiter
}

func New(log *logging.Logger) *Correlator {
	return &Correlator{log: log}
}

// Pending is one registered waiter. Exactly one of a matching event, a
// timeout, or a cancellation resolves it.
type Pending struct {
	c     *Correlator
	id    uint64
	pred  Predicate
	ch    chan *onebot.Event
	timer *time.Timer
}

// Register adds a waiter and arms its timeout. The caller must finish it
// with Await or Cancel.
func (c *Correlator) Register(pred Predicate, timeout time.Duration) *Pending {
	c.mu.Lock()
	c.nextID++
	w := &waiter{id: c.nextID, pred: pred, ch: make(chan *onebot.Event, 1)}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()

	p := &Pending{c: c, id: w.id, pred: pred, ch: w.ch}
	p.timer = time.AfterFunc(timeout, func() {
		// Removal decides the race against Dispatch; only the winner
		// delivers, so the buffered channel sees at most one value.
		if c.remove(w.id) {
			c.log.Debug().Str("waiter", pred.String()).Msg("wait timed out")
			w.ch <- nil
		}
	})
	return p
}

// Wait registers a waiter and blocks for its outcome.
func (c *Correlator) Wait(ctx context.Context, pred Predicate, timeout time.Duration) (*onebot.Event, error) {
	return c.Register(pred, timeout).Await(ctx)
}

// Await blocks until the waiter resolves. It returns ErrTimeout when the
// timeout fired first and the context error when ctx ended first.
func (p *Pending) Await(ctx context.Context) (*onebot.Event, error) {
	select {
	case ev := <-p.ch:
		p.timer.Stop()
		if ev == nil {
			return nil, ErrTimeout
		}
		return ev, nil
	case <-ctx.Done():
		p.timer.Stop()
		if p.c.remove(p.id) {
			return nil, ctx.Err()
		}
		// Lost the removal race; a delivery is already in the channel
		// or about to land, so collect it rather than leak the event.
		if ev := <-p.ch; ev != nil {
			return ev, nil
		}
		return nil, ErrTimeout
	}
}

// Cancel withdraws the waiter. Safe to call after resolution.
func (p *Pending) Cancel() {
	p.timer.Stop()
	p.c.remove(p.id)
}

// Dispatch hands an inbound event to the oldest matching waiter. It
// returns nil when a waiter consumed the event and the event itself when
// none did, in which case the caller routes it onward.
func (c *Correlator) Dispatch(ev *onebot.Event) *onebot.Event {
	if ev == nil || ev.Correlation.Kind == onebot.CorrelateNone {
		return ev
	}

	c.mu.Lock()
	for i, w := range c.waiters {
		if w.pred.matches(ev.Correlation) {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			c.mu.Unlock()
			c.log.Trace().Str("waiter", w.pred.String()).Msg("event claimed")
			w.ch <- ev
			return nil
		}
	}
	c.mu.Unlock()
	return ev
}

// Waiting reports how many waiters are currently registered.
func (c *Correlator) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *Correlator) remove(id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, w := range c.waiters {
		if w.id == id {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return true
		}
	}
	return false
}
