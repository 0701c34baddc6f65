package plugins

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/wirebot/internal/config"
	"github.com/soyeahso/wirebot/internal/onebot"
	"github.com/soyeahso/wirebot/internal/pipeline"
)

// Admin serves the operator commands. /ping is open to everyone; the
// rest require a superuser sender and are consumed silently otherwise.
func Admin(deps Deps) pipeline.Registration {
	log := deps.Log.Sub("admin")
	return pipeline.Registration{
		Name: "admin",
		Handle: func(ctx context.Context, pctx *pipeline.Context) (*pipeline.Context, error) {
			if pctx.Kind != pipeline.KindInbound || pctx.Event == nil {
				return pctx, nil
			}
			ev := pctx.Event
			if !ev.IsGroupMessage() && !ev.IsPrivateMessage() {
				return pctx, nil
			}
			text := strings.TrimSpace(ev.PlainText())
			if text == "/ping" {
				return nil, pctx.ReplyText(ctx, "pong")
			}
			if !strings.HasPrefix(text, "/") {
				return pctx, nil
			}
			fields := strings.Fields(text)
			switch fields[0] {
			case "/status", "/plugins", "/plugin", "/ban", "/recall":
			default:
				return pctx, nil
			}
			if !deps.Settings.Current().Plugins.IsSuperuser(ev.UserID) {
				log.Debug().Int64("user", ev.UserID).Str("command", fields[0]).Msg("refused non-superuser")
				return nil, nil
			}
			switch fields[0] {
			case "/status":
				return nil, pctx.ReplyText(ctx, statusText(deps))
			case "/plugins":
				return nil, pctx.ReplyText(ctx, pluginList(deps))
			case "/plugin":
				return nil, togglePlugin(ctx, deps, pctx, fields)
			case "/ban":
				return nil, banMember(ctx, deps, pctx, ev, fields)
			case "/recall":
				return nil, recallMessage(ctx, deps, pctx, fields)
			}
			return pctx, nil
		},
	}
}

func statusText(deps Deps) string {
	var b strings.Builder
	if deps.Status != nil {
		b.WriteString(deps.Status())
	} else {
		b.WriteString("state unknown")
	}
	if total, err := deps.Messages.Count(); err == nil {
		fmt.Fprintf(&b, "\nstored messages: %d", total)
	}
	return b.String()
}

func pluginList(deps Deps) string {
	if deps.Statuses == nil {
		return "no plugin registry"
	}
	var b strings.Builder
	b.WriteString("plugins:")
	for _, st := range deps.Statuses() {
		state := "enabled"
		if !st.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(&b, "\n%s: %s", st.Name, state)
	}
	return b.String()
}

func togglePlugin(ctx context.Context, deps Deps, pctx *pipeline.Context, fields []string) error {
	if len(fields) != 3 || (fields[1] != "enable" && fields[1] != "disable") {
		return pctx.ReplyText(ctx, "usage: /plugin enable|disable <name>")
	}
	name := fields[2]
	enable := fields[1] == "enable"
	err := deps.Settings.Update(func(c *config.Config) {
		m := maps.Clone(c.Plugins.Enabled)
		if m == nil {
			m = make(map[string]bool)
		}
		m[name] = enable
		c.Plugins.Enabled = m
	})
	if err != nil {
		return fmt.Errorf("saving plugin toggle: %w", err)
	}
	state := "disabled"
	if enable {
		state = "enabled"
	}
	return pctx.ReplyText(ctx, fmt.Sprintf("plugin %s %s", name, state))
}

func recallMessage(ctx context.Context, deps Deps, pctx *pipeline.Context, fields []string) error {
	if len(fields) != 2 {
		return pctx.ReplyText(ctx, "usage: /recall <message_id>")
	}
	id, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return pctx.ReplyText(ctx, "usage: /recall <message_id>")
	}
	if err := deps.API.DeleteMessage(ctx, id); err != nil {
		return fmt.Errorf("recalling %d: %w", id, err)
	}
	return pctx.ReplyText(ctx, fmt.Sprintf("recalled %d", id))
}

func banMember(ctx context.Context, deps Deps, pctx *pipeline.Context, ev *onebot.Event, fields []string) error {
	if !ev.IsGroupMessage() {
		return pctx.ReplyText(ctx, "/ban only works in a group")
	}
	if len(fields) != 3 {
		return pctx.ReplyText(ctx, "usage: /ban <user_id> <minutes>")
	}
	user, errUser := strconv.ParseInt(fields[1], 10, 64)
	minutes, errMin := strconv.Atoi(fields[2])
	if errUser != nil || errMin != nil || minutes < 0 {
		return pctx.ReplyText(ctx, "usage: /ban <user_id> <minutes>")
	}
	if err := deps.API.SetGroupBan(ctx, ev.GroupID, user, time.Duration(minutes)*time.Minute); err != nil {
		return fmt.Errorf("muting %d: %w", user, err)
	}
	if minutes == 0 {
		return pctx.ReplyText(ctx, fmt.Sprintf("lifted mute for %d", user))
	}
	return pctx.ReplyText(ctx, fmt.Sprintf("muted %d for %dm", user, minutes))
}
