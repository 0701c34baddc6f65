package pipeline

import (
	"context"
	"errors"

	"github.com/soyeahso/wirebot/internal/onebot"
)

// Kind says which direction a Context travels.
type Kind int

const (
	// KindInbound carries an event received from the platform.
	KindInbound Kind = iota
	// KindOutbound carries a request about to be transmitted.
	KindOutbound
	// KindStartup is handed to init hooks once, before any connection.
	KindStartup
)

// Context is the unit of work flowing through the plugin chain. Inbound
// contexts wrap a decoded event; outbound contexts wrap a request that
// the chain may rewrite or drop before it reaches the wire; startup
// contexts carry neither.
type Context struct {
	Kind     Kind
	Event    *onebot.Event
	Outbound *onebot.Request

	pipe *Pipeline
}

// Reply sends segments back to where the inbound event came from. The
// reply passes through the outbound chain like any other send.
func (c *Context) Reply(ctx context.Context, segs ...onebot.Segment) error {
	if c.Event == nil {
		return errors.New("reply without an inbound event")
	}
	if c.Event.IsGroupMessage() {
		return c.pipe.SendGroupMessage(ctx, c.Event.GroupID, segs...)
	}
	return c.pipe.SendPrivateMessage(ctx, c.Event.UserID, segs...)
}

// ReplyText is Reply with a single text segment.
func (c *Context) ReplyText(ctx context.Context, text string) error {
	return c.Reply(ctx, onebot.Text(text))
}
