// Package browser drives a headless browser over its devtools socket.
//
// The protocol is two-layered: root commands get direct replies keyed by
// numeric id, while commands addressed to an attached target travel
// inside Target.sendMessageToTarget envelopes and come back
// double-encoded in Target.receivedMessageFromTarget events. Callers
// reuse the outer frame's id inside the inner command, so one numeric
// table covers both layers.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/wirebot/internal/logging"
)

// ErrActorClosed is returned for calls made after Shutdown or after the
// socket died.
var ErrActorClosed = errors.New("browser: actor closed")

type result struct {
	data json.RawMessage
	err  error
}

type pendingReply struct {
	ch chan result
	// nested waiters expect their answer inside a forwarded envelope;
	// the direct ack for the same id is not it.
	nested bool
}

type eventKey struct {
	session string
	method  string
}

// Reply is one pending answer from the browser.
type Reply struct {
	ch chan result
}

// Await blocks for the answer. The actor applies no timeout of its own;
// bound the wait through ctx.
func (r *Reply) Await(ctx context.Context) (json.RawMessage, error) {
	select {
	case res := <-r.ch:
		return res.data, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Actor owns the devtools socket. One goroutine holds the correlation
// tables and the write side; callers talk to it over a command channel
// and the raw socket is never exposed.
type Actor struct {
	conn   *websocket.Conn
	log    *logging.Logger
	nextID atomic.Uint64

	cmds   chan func()
	frames chan []byte
	quit   chan struct{}
	done   chan struct{}

	stop sync.Once

	// owned by the loop goroutine
	pending map[uint64]*pendingReply
	events  map[eventKey]chan result
}

// NewActor takes ownership of an established devtools socket.
func NewActor(conn *websocket.Conn, log *logging.Logger) *Actor {
	a := &Actor{
		conn:    conn,
		log:     log.Sub("browser"),
		cmds:    make(chan func()),
		frames:  make(chan []byte, 16),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		pending: make(map[uint64]*pendingReply),
		events:  make(map[eventKey]chan result),
	}
	go a.loop()
	go a.readLoop()
	return a
}

// NextID returns a fresh command id. Ids are shared between root
// commands and the commands nested inside session envelopes.
func (a *Actor) NextID() uint64 {
	return a.nextID.Add(1)
}

// Send writes a root command and registers a direct waiter for its id.
func (a *Actor) Send(id uint64, method string, params any) (*Reply, error) {
	frame, err := json.Marshal(wireCommand{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", method, err)
	}
	r := &Reply{ch: make(chan result, 1)}
	if err := a.post(func() { a.pending[id] = &pendingReply{ch: r.ch} }); err != nil {
		return nil, err
	}
	if err := a.writeFrame(frame); err != nil {
		a.forget(id)
		return nil, err
	}
	return r, nil
}

// ListenForTargetMessage registers a waiter for a reply that will come
// back inside a forwarded envelope. Register before sending the frame
// that provokes it, or the answer can race the registration.
func (a *Actor) ListenForTargetMessage(id uint64) (*Reply, error) {
	r := &Reply{ch: make(chan result, 1)}
	if err := a.post(func() { a.pending[id] = &pendingReply{ch: r.ch, nested: true} }); err != nil {
		return nil, err
	}
	return r, nil
}

// WaitForEvent registers a one-shot waiter for a session event. Root
// events use an empty session.
func (a *Actor) WaitForEvent(session, method string) (*Reply, error) {
	r := &Reply{ch: make(chan result, 1)}
	if err := a.post(func() { a.events[eventKey{session, method}] = r.ch }); err != nil {
		return nil, err
	}
	return r, nil
}

// Call sends a root command and awaits its direct reply.
func (a *Actor) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	r, err := a.Send(a.NextID(), method, params)
	if err != nil {
		return nil, err
	}
	return r.Await(ctx)
}

// CallSession drives a command inside an attached target. The inner
// command reuses the outer frame's id and the answer comes back in a
// forwarded envelope rather than as a direct reply.
func (a *Actor) CallSession(ctx context.Context, session, method string, params any) (json.RawMessage, error) {
	id := a.NextID()
	inner, err := json.Marshal(wireCommand{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", method, err)
	}
	r, err := a.ListenForTargetMessage(id)
	if err != nil {
		return nil, err
	}
	frame, err := json.Marshal(wireCommand{ID: id, Method: "Target.sendMessageToTarget", Params: map[string]any{
		"sessionId": session,
		"message":   string(inner),
	}})
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	if err := a.writeFrame(frame); err != nil {
		a.forget(id)
		return nil, err
	}
	return r.Await(ctx)
}

// Shutdown asks the browser to close, stops the actor, and fails every
// outstanding waiter with ErrActorClosed. Safe to call more than once.
func (a *Actor) Shutdown() {
	a.stop.Do(func() {
		if frame, err := json.Marshal(wireCommand{ID: a.NextID(), Method: "Browser.close"}); err == nil {
			_ = a.writeFrame(frame) // best effort
		}
		close(a.quit)
	})
	<-a.done
}

func (a *Actor) post(fn func()) error {
	select {
	case a.cmds <- fn:
		return nil
	case <-a.done:
		return ErrActorClosed
	}
}

func (a *Actor) forget(id uint64) {
	_ = a.post(func() { delete(a.pending, id) })
}

func (a *Actor) writeFrame(frame []byte) error {
	errc := make(chan error, 1)
	if err := a.post(func() { errc <- a.conn.WriteMessage(websocket.TextMessage, frame) }); err != nil {
		return err
	}
	return <-errc
}

func (a *Actor) loop() {
	defer func() {
		a.conn.Close()
		for id, p := range a.pending {
			delete(a.pending, id)
			p.ch <- result{err: ErrActorClosed}
		}
		for k, ch := range a.events {
			delete(a.events, k)
			ch <- result{err: ErrActorClosed}
		}
		close(a.done)
	}()
	for {
		select {
		case fn := <-a.cmds:
			fn()
		case frame, ok := <-a.frames:
			if !ok {
				return
			}
			a.dispatch(frame)
		case <-a.quit:
			return
		}
	}
}

func (a *Actor) readLoop() {
	defer close(a.frames)
	for {
		_, data, err := a.conn.ReadMessage()
		if err != nil {
			return
		}
		select {
		case a.frames <- data:
		case <-a.done:
			return
		}
	}
}

func (a *Actor) dispatch(frame []byte) {
	var msg wireMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		a.log.Debug().Err(err).Msg("dropping malformed frame")
		return
	}
	if msg.Method == "Target.receivedMessageFromTarget" {
		a.dispatchForwarded(msg.Params)
		return
	}
	if msg.ID != 0 {
		a.resolveDirect(msg)
		return
	}
	if msg.Method != "" {
		a.resolveEvent("", msg.Method, msg.Params)
	}
}

func (a *Actor) resolveDirect(msg wireMessage) {
	p, ok := a.pending[msg.ID]
	if !ok {
		a.log.Trace().Uint64("id", msg.ID).Msg("reply with no waiter")
		return
	}
	if msg.Error != nil {
		// An error on the outer frame settles the id even for a nested
		// waiter: the forwarded answer will never come.
		delete(a.pending, msg.ID)
		p.ch <- result{err: msg.Error}
		return
	}
	if p.nested {
		// Ack for the envelope itself; keep waiting for the forwarded
		// answer.
		return
	}
	delete(a.pending, msg.ID)
	p.ch <- result{data: msg.Result}
}

func (a *Actor) dispatchForwarded(params json.RawMessage) {
	var fwd forwardedParams
	if err := json.Unmarshal(params, &fwd); err != nil {
		a.log.Debug().Err(err).Msg("dropping malformed envelope")
		return
	}
	var msg wireMessage
	if err := json.Unmarshal([]byte(fwd.Message), &msg); err != nil {
		a.log.Debug().Err(err).Str("session", fwd.SessionID).Msg("dropping malformed inner message")
		return
	}
	if msg.ID != 0 {
		p, ok := a.pending[msg.ID]
		if !ok {
			a.log.Trace().Uint64("id", msg.ID).Msg("inner reply with no waiter")
			return
		}
		delete(a.pending, msg.ID)
		if msg.Error != nil {
			p.ch <- result{err: msg.Error}
			return
		}
		p.ch <- result{data: msg.Result}
		return
	}
	if msg.Method != "" {
		a.resolveEvent(fwd.SessionID, msg.Method, msg.Params)
	}
}

func (a *Actor) resolveEvent(session, method string, params json.RawMessage) {
	key := eventKey{session, method}
	ch, ok := a.events[key]
	if !ok {
		a.log.Trace().Str("session", session).Str("method", method).Msg("event with no waiter")
		return
	}
	delete(a.events, key)
	ch <- result{data: params}
}
