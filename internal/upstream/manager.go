// Package upstream owns the websocket session to the OneBot endpoint.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/soyeahso/wirebot/internal/config"
	"github.com/soyeahso/wirebot/internal/correlate"
	"github.com/soyeahso/wirebot/internal/logging"
	"github.com/soyeahso/wirebot/internal/onebot"
)

// ErrNotConnected is returned by Send while no session is up.
var ErrNotConnected = errors.New("upstream: not connected")

const handshakeTimeout = 10 * time.Second

// State is the connection lifecycle phase.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Identity is the logged-in account reported by the upstream.
type Identity struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
}

// Manager owns the upstream websocket. It dials, reads frames, and
// retries with a flat delay whenever the session drops. Inbound frames
// are offered to the correlator first; whatever no waiter claims goes
// to the OnEvent handler.
type Manager struct {
	settings *config.Settings
	corr     *correlate.Correlator
	log      *logging.Logger
	limiter  *rate.Limiter

	state    atomic.Int32
	identity atomic.Pointer[Identity]
	onEvent  func(ctx context.Context, ev *onebot.Event)

	mu     sync.Mutex // guards conn and runCtx
	conn   *websocket.Conn
	runCtx context.Context
}

func New(settings *config.Settings, corr *correlate.Correlator, log *logging.Logger) *Manager {
	cfg := settings.Current().Upstream
	// sendPerSecond 0 turns throttling off.
	limit := rate.Inf
	burst := 1
	if cfg.SendPerSecond > 0 {
		limit = rate.Limit(cfg.SendPerSecond)
		if burst = int(cfg.SendPerSecond); burst < 1 {
			burst = 1
		}
	}
	return &Manager{
		settings: settings,
		corr:     corr,
		log:      log.Sub("upstream"),
		limiter:  rate.NewLimiter(limit, burst),
	}
}

// OnEvent sets the handler for inbound frames no waiter claimed.
// Set it before Run.
func (m *Manager) OnEvent(fn func(ctx context.Context, ev *onebot.Event)) {
	m.onEvent = fn
}

// State reports the current lifecycle phase.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Identity returns the account reported by the upstream, or nil before
// the first successful probe.
func (m *Manager) Identity() *Identity {
	return m.identity.Load()
}

// Run dials and re-dials the upstream until ctx ends. Every failed dial
// and every dropped session waits the configured flat delay before the
// next attempt.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.runCtx = ctx
	m.mu.Unlock()

	for {
		if ctx.Err() != nil {
			m.setState(StateDisconnected)
			return ctx.Err()
		}

		m.setState(StateConnecting)
		cfg := m.settings.Current().Upstream
		conn, err := m.dial(ctx, cfg)
		if err != nil {
			m.setState(StateDisconnected)
			m.log.Warn().Err(err).Str("url", cfg.URL).Msg("dial failed")
			if !m.pause(ctx, cfg.ReconnectDelay()) {
				return ctx.Err()
			}
			continue
		}

		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		m.setState(StateConnected)
		m.log.Info().Str("url", cfg.URL).Msg("upstream connected")

		sessCtx, cancel := context.WithCancel(ctx)
		go func() {
			<-sessCtx.Done()
			conn.Close()
		}()
		go m.fetchIdentity(sessCtx)

		err = m.readLoop(sessCtx, conn)
		cancel()

		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()
		m.setState(StateDisconnected)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.log.Warn().Err(err).Msg("upstream session ended")
		if !m.pause(ctx, cfg.ReconnectDelay()) {
			return ctx.Err()
		}
	}
}

// Send marshals and writes one request frame. The rate limiter is
// consulted before the connection lock so a throttled caller never
// holds up other writers.
func (m *Manager) Send(r *onebot.Request) error {
	m.mu.Lock()
	ctx := m.runCtx
	m.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conn == nil {
		return ErrNotConnected
	}
	if err := m.conn.WriteJSON(r); err != nil {
		return fmt.Errorf("writing %s: %w", r.Action, err)
	}
	return nil
}

func (m *Manager) dial(ctx context.Context, cfg config.UpstreamConfig) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}
	conn, resp, err := dialer.DialContext(ctx, cfg.URL, header)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("dialing %s: %w", cfg.URL, err)
	}
	return conn, nil
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ev, err := onebot.DecodeEvent(data)
		if err != nil {
			m.log.Debug().Err(err).Int("bytes", len(data)).Msg("dropping malformed frame")
			continue
		}
		// One goroutine per frame keeps a slow handler from stalling
		// the read side. Per-chat ordering is not preserved.
		go m.handle(ctx, ev)
	}
}

func (m *Manager) handle(ctx context.Context, ev *onebot.Event) {
	if ev = m.corr.Dispatch(ev); ev == nil {
		return
	}
	if fn := m.onEvent; fn != nil {
		fn(ctx, ev)
	}
}

// fetchIdentity asks the upstream who it is logged in as. Failure is
// logged and retried on the next session, never fatal.
func (m *Manager) fetchIdentity(ctx context.Context) {
	echo := uuid.New().String()
	pending := m.corr.Register(correlate.ForEcho(echo), handshakeTimeout)
	if err := m.Send(onebot.NewRequest("get_login_info", nil).WithEcho(echo)); err != nil {
		pending.Cancel()
		m.log.Debug().Err(err).Msg("identity probe not sent")
		return
	}
	reply, err := pending.Await(ctx)
	if err != nil {
		m.log.Debug().Err(err).Msg("identity probe unanswered")
		return
	}
	var id Identity
	if err := reply.DecodeData(&id); err != nil {
		m.log.Debug().Err(err).Msg("identity reply malformed")
		return
	}
	m.identity.Store(&id)
	m.log.Info().Int64("userId", id.UserID).Str("nickname", id.Nickname).Msg("logged in")
}

func (m *Manager) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	if old != s {
		m.log.Debug().Str("from", old.String()).Str("to", s.String()).Msg("state changed")
	}
}

func (m *Manager) pause(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
