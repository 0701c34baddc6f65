package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/wirebot/internal/config"
	"github.com/soyeahso/wirebot/internal/logging"
	"github.com/soyeahso/wirebot/internal/onebot"
)

type captureWriter struct {
	mu   sync.Mutex
	sent []*onebot.Request
}

func (w *captureWriter) Send(r *onebot.Request) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, r)
	return nil
}

func (w *captureWriter) requests() []*onebot.Request {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]*onebot.Request(nil), w.sent...)
}

func testPipeline(cfg config.Config) (*Pipeline, *captureWriter) {
	w := &captureWriter{}
	p := New(config.NewSettings("", cfg), w, logging.New(nil, "silent"))
	return p, w
}

func groupEvent(t *testing.T, group, user int64, text string) *onebot.Event {
	t.Helper()
	frame := fmt.Sprintf(`{"post_type":"message","message_type":"group","group_id":%d,"user_id":%d,"message":%q,"message_id":1}`, group, user, text)
	ev, err := onebot.DecodeEvent([]byte(frame))
	require.NoError(t, err)
	return ev
}

func recorder(name string, order *[]string) Registration {
	return Registration{
		Name: name,
		Handle: func(ctx context.Context, pctx *Context) (*Context, error) {
			*order = append(*order, name)
			return pctx, nil
		},
	}
}

func TestPipeline_RunsInRegistrationOrder(t *testing.T) {
	p, _ := testPipeline(config.Defaults())

	var order []string
	require.NoError(t, p.Register(recorder("first", &order)))
	require.NoError(t, p.Register(recorder("second", &order)))
	require.NoError(t, p.Register(recorder("third", &order)))

	p.HandleEvent(context.Background(), groupEvent(t, 1, 2, "hi"))
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestPipeline_ConsumeShortCircuits(t *testing.T) {
	p, _ := testPipeline(config.Defaults())

	var order []string
	require.NoError(t, p.Register(recorder("first", &order)))
	require.NoError(t, p.Register(Registration{
		Name: "consumer",
		Handle: func(ctx context.Context, pctx *Context) (*Context, error) {
			order = append(order, "consumer")
			return nil, nil
		},
	}))
	require.NoError(t, p.Register(recorder("after", &order)))

	p.HandleEvent(context.Background(), groupEvent(t, 1, 2, "hi"))
	assert.Equal(t, []string{"first", "consumer"}, order, "plugins after the consumer must not run")
}

func TestPipeline_ErrorStopsChain(t *testing.T) {
	p, _ := testPipeline(config.Defaults())

	var order []string
	require.NoError(t, p.Register(Registration{
		Name: "broken",
		Handle: func(ctx context.Context, pctx *Context) (*Context, error) {
			return nil, errors.New("boom")
		},
	}))
	require.NoError(t, p.Register(recorder("after", &order)))

	err := p.Run(context.Background(), &Context{Kind: KindInbound, Event: groupEvent(t, 1, 2, "hi"), pipe: p})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plugin broken")
	assert.Empty(t, order)
}

func TestPipeline_HandleEventContainsErrors(t *testing.T) {
	p, _ := testPipeline(config.Defaults())
	require.NoError(t, p.Register(Registration{
		Name: "broken",
		Handle: func(ctx context.Context, pctx *Context) (*Context, error) {
			return nil, errors.New("boom")
		},
	}))

	// Must not panic or propagate; the reader keeps running.
	p.HandleEvent(context.Background(), groupEvent(t, 1, 2, "hi"))
}

func TestPipeline_ConfigToggleSkipsPlugin(t *testing.T) {
	cfg := config.Defaults()
	cfg.Plugins.Enabled = map[string]bool{"second": false}
	p, _ := testPipeline(cfg)

	var order []string
	require.NoError(t, p.Register(recorder("first", &order)))
	require.NoError(t, p.Register(recorder("second", &order)))
	require.NoError(t, p.Register(recorder("third", &order)))

	p.HandleEvent(context.Background(), groupEvent(t, 1, 2, "hi"))
	assert.Equal(t, []string{"first", "third"}, order)
}

func TestPipeline_RuntimeToggle(t *testing.T) {
	settings := config.NewSettings("", config.Defaults())
	w := &captureWriter{}
	p := New(settings, w, logging.New(nil, "silent"))

	var order []string
	require.NoError(t, p.Register(recorder("togglable", &order)))

	p.HandleEvent(context.Background(), groupEvent(t, 1, 2, "one"))
	require.NoError(t, settings.Update(func(c *config.Config) {
		c.Plugins.Enabled = map[string]bool{"togglable": false}
	}))
	p.HandleEvent(context.Background(), groupEvent(t, 1, 2, "two"))

	assert.Equal(t, []string{"togglable"}, order, "disabled after the first event")
}

func TestPipeline_EnabledFunc(t *testing.T) {
	p, _ := testPipeline(config.Defaults())

	var order []string
	require.NoError(t, p.Register(Registration{
		Name:    "gated",
		Enabled: func(cfg *config.Config) bool { return cfg.Browser.Enabled },
		Handle: func(ctx context.Context, pctx *Context) (*Context, error) {
			order = append(order, "gated")
			return pctx, nil
		},
	}))

	p.HandleEvent(context.Background(), groupEvent(t, 1, 2, "hi"))
	assert.Empty(t, order, "Enabled func gates the plugin")
}

func TestPipeline_OutboundReachesWriter(t *testing.T) {
	p, w := testPipeline(config.Defaults())

	require.NoError(t, p.SendGroupMessage(context.Background(), 123, onebot.Text("hello")))

	reqs := w.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "send_group_msg", reqs[0].Action)
	assert.Equal(t, int64(123), reqs[0].Params["group_id"])
}

func TestPipeline_OutboundVeto(t *testing.T) {
	p, w := testPipeline(config.Defaults())
	require.NoError(t, p.Register(Registration{
		Name: "dropper",
		Handle: func(ctx context.Context, pctx *Context) (*Context, error) {
			if pctx.Kind == KindOutbound {
				return nil, nil
			}
			return pctx, nil
		},
	}))

	require.NoError(t, p.SendGroupMessage(context.Background(), 123, onebot.Text("secret")))
	assert.Empty(t, w.requests(), "vetoed sends never reach the wire")
}

func TestPipeline_OutboundRewrite(t *testing.T) {
	p, w := testPipeline(config.Defaults())
	require.NoError(t, p.Register(Registration{
		Name: "rewriter",
		Handle: func(ctx context.Context, pctx *Context) (*Context, error) {
			if pctx.Kind == KindOutbound {
				pctx.Outbound.Params["message"] = []onebot.Segment{onebot.Text("[redacted]")}
			}
			return pctx, nil
		},
	}))

	require.NoError(t, p.SendGroupMessage(context.Background(), 123, onebot.Text("password is hunter2")))

	reqs := w.requests()
	require.Len(t, reqs, 1)
	segs := reqs[0].Params["message"].([]onebot.Segment)
	assert.Equal(t, "[redacted]", onebot.PlainText(segs))
}

func TestPipeline_InboundNotTransmitted(t *testing.T) {
	p, w := testPipeline(config.Defaults())
	require.NoError(t, p.Register(recorder("noop", new([]string))))

	p.HandleEvent(context.Background(), groupEvent(t, 1, 2, "hi"))
	assert.Empty(t, w.requests(), "inbound contexts never hit the writer")
}

func TestPipeline_ReplyRouting(t *testing.T) {
	p, w := testPipeline(config.Defaults())
	require.NoError(t, p.Register(Registration{
		Name: "echo",
		Handle: func(ctx context.Context, pctx *Context) (*Context, error) {
			if pctx.Kind == KindInbound && pctx.Event.IsGroupMessage() {
				if err := pctx.ReplyText(ctx, "pong"); err != nil {
					return nil, err
				}
				return nil, nil
			}
			return pctx, nil
		},
	}))

	p.HandleEvent(context.Background(), groupEvent(t, 42, 7, "ping"))

	reqs := w.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "send_group_msg", reqs[0].Action)
	assert.Equal(t, int64(42), reqs[0].Params["group_id"])
}

func TestPipeline_RegisterValidation(t *testing.T) {
	p, _ := testPipeline(config.Defaults())

	assert.Error(t, p.Register(Registration{Name: "", Handle: func(ctx context.Context, pctx *Context) (*Context, error) { return pctx, nil }}))
	assert.Error(t, p.Register(Registration{Name: "nohandler"}))

	ok := Registration{Name: "dup", Handle: func(ctx context.Context, pctx *Context) (*Context, error) { return pctx, nil }}
	require.NoError(t, p.Register(ok))
	err := p.Register(ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestPipeline_InitAllContinuesOnFailure(t *testing.T) {
	p, _ := testPipeline(config.Defaults())

	var inits []string
	require.NoError(t, p.Register(Registration{
		Name: "bad-init",
		Init: func(ctx context.Context, pctx *Context) error {
			inits = append(inits, "bad-init")
			return errors.New("no database")
		},
		Handle: func(ctx context.Context, pctx *Context) (*Context, error) { return pctx, nil },
	}))
	require.NoError(t, p.Register(Registration{
		Name: "good-init",
		Init: func(ctx context.Context, pctx *Context) error {
			inits = append(inits, "good-init")
			assert.Equal(t, KindStartup, pctx.Kind)
			assert.Nil(t, pctx.Event)
			assert.Nil(t, pctx.Outbound)
			return nil
		},
		Handle: func(ctx context.Context, pctx *Context) (*Context, error) { return pctx, nil },
	}))

	p.InitAll(context.Background())
	assert.Equal(t, []string{"bad-init", "good-init"}, inits)
}

func TestPipeline_Statuses(t *testing.T) {
	cfg := config.Defaults()
	cfg.Plugins.Enabled = map[string]bool{"b": false}
	p, _ := testPipeline(cfg)

	noop := func(ctx context.Context, pctx *Context) (*Context, error) { return pctx, nil }
	require.NoError(t, p.Register(Registration{Name: "a", Handle: noop}))
	require.NoError(t, p.Register(Registration{Name: "b", Handle: noop}))

	statuses := p.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, PluginStatus{Name: "a", Enabled: true}, statuses[0])
	assert.Equal(t, PluginStatus{Name: "b", Enabled: false}, statuses[1])
}
