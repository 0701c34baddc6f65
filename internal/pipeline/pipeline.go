// Package pipeline runs events and outbound requests through an ordered
// plugin chain.
//
// Each plugin sees the context, then either passes it on (possibly
// modified), consumes it, or fails. Consumption stops the chain quietly;
// a failure stops it loudly. Outbound contexts that survive the whole
// chain are written to the wire.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/soyeahso/wirebot/internal/config"
	"github.com/soyeahso/wirebot/internal/logging"
	"github.com/soyeahso/wirebot/internal/onebot"
)

// Handler processes one context. Returning (next, nil) passes next to
// the following plugin, (nil, nil) consumes the context, and an error
// aborts the chain.
type Handler func(ctx context.Context, pctx *Context) (*Context, error)

// InitFunc runs once at startup, before any traffic, with a
// KindStartup context.
type InitFunc func(ctx context.Context, pctx *Context) error

// Registration describes one plugin in the chain.
type Registration struct {
	Name string
	// Enabled supplements the config toggle; nil means the toggle alone
	// decides.
	Enabled func(cfg *config.Config) bool
	Init    InitFunc
	Handle  Handler
}

// PluginStatus is one row of the chain listing.
type PluginStatus struct {
	Name    string
	Enabled bool
}

// Pipeline holds the ordered chain. Registration order is execution
// order.
type Pipeline struct {
	settings *config.Settings
	writer   onebot.Writer
	log      *logging.Logger

	mu   sync.RWMutex
	regs []Registration
}

// New creates a pipeline that transmits surviving outbound requests via w.
func New(settings *config.Settings, w onebot.Writer, log *logging.Logger) *Pipeline {
	return &Pipeline{settings: settings, writer: w, log: log.Sub("pipeline")}
}

// Register appends a plugin to the chain. Names must be unique.
func (p *Pipeline) Register(reg Registration) error {
	if reg.Name == "" {
		return errors.New("plugin name is required")
	}
	if reg.Handle == nil {
		return fmt.Errorf("plugin %s has no handler", reg.Name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.regs {
		if existing.Name == reg.Name {
			return fmt.Errorf("plugin %s already registered", reg.Name)
		}
	}
	p.regs = append(p.regs, reg)
	p.log.Debug().Str("plugin", reg.Name).Int("position", len(p.regs)).Msg("plugin registered")
	return nil
}

// InitAll runs every plugin's Init in chain order. Failures are logged
// and skipped so one broken plugin cannot keep the bot down.
func (p *Pipeline) InitAll(ctx context.Context) {
	p.mu.RLock()
	regs := slices.Clone(p.regs)
	p.mu.RUnlock()

	for _, reg := range regs {
		if reg.Init == nil {
			continue
		}
		if err := reg.Init(ctx, &Context{Kind: KindStartup, pipe: p}); err != nil {
			p.log.Error().Err(err).Str("plugin", reg.Name).Msg("plugin init failed")
			continue
		}
		p.log.Debug().Str("plugin", reg.Name).Msg("plugin initialized")
	}
}

// Run pushes a context through the chain. The enabled set is decided by
// one config snapshot taken at entry, so a toggle mid-run cannot split
// the chain's view.
func (p *Pipeline) Run(ctx context.Context, pctx *Context) error {
	cfg := p.settings.Current()

	p.mu.RLock()
	regs := slices.Clone(p.regs)
	p.mu.RUnlock()

	cur := pctx
	for _, reg := range regs {
		if !cfg.Plugins.IsEnabled(reg.Name) {
			continue
		}
		if reg.Enabled != nil && !reg.Enabled(&cfg) {
			continue
		}

		next, err := reg.Handle(ctx, cur)
		if err != nil {
			return fmt.Errorf("plugin %s: %w", reg.Name, err)
		}
		if next == nil {
			p.log.Debug().Str("plugin", reg.Name).Msg("context consumed")
			return nil
		}
		cur = next
	}

	if cur.Kind == KindOutbound && cur.Outbound != nil {
		if p.writer == nil {
			return errors.New("pipeline has no writer")
		}
		return p.writer.Send(cur.Outbound)
	}
	return nil
}

// HandleEvent runs an inbound event through the chain. Errors stop at
// this boundary: they are logged, never propagated to the reader.
func (p *Pipeline) HandleEvent(ctx context.Context, ev *onebot.Event) {
	pctx := &Context{Kind: KindInbound, Event: ev, pipe: p}
	if err := p.Run(ctx, pctx); err != nil {
		p.log.Error().Err(err).Str("post_type", ev.PostType).Msg("pipeline error")
	}
}

// Send runs an outbound request through the chain, transmitting it if no
// plugin drops it.
func (p *Pipeline) Send(ctx context.Context, req *onebot.Request) error {
	return p.Run(ctx, &Context{Kind: KindOutbound, Outbound: req, pipe: p})
}

// SendGroupMessage sends message segments to a group via the chain.
func (p *Pipeline) SendGroupMessage(ctx context.Context, group int64, segs ...onebot.Segment) error {
	req := onebot.NewRequest("send_group_msg", map[string]any{
		"group_id": group,
		"message":  segs,
	})
	return p.Send(ctx, req)
}

// SendPrivateMessage sends message segments to a user via the chain.
func (p *Pipeline) SendPrivateMessage(ctx context.Context, user int64, segs ...onebot.Segment) error {
	req := onebot.NewRequest("send_private_msg", map[string]any{
		"user_id": user,
		"message": segs,
	})
	return p.Send(ctx, req)
}

// Statuses lists the chain in order with each plugin's effective enabled
// state under the current config.
func (p *Pipeline) Statuses() []PluginStatus {
	cfg := p.settings.Current()

	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]PluginStatus, 0, len(p.regs))
	for _, reg := range p.regs {
		enabled := cfg.Plugins.IsEnabled(reg.Name)
		if enabled && reg.Enabled != nil {
			enabled = reg.Enabled(&cfg)
		}
		out = append(out, PluginStatus{Name: reg.Name, Enabled: enabled})
	}
	return out
}
