package plugins

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/wirebot/internal/onebot"
	"github.com/soyeahso/wirebot/internal/pipeline"
	"github.com/soyeahso/wirebot/internal/schedule"
	"github.com/soyeahso/wirebot/internal/store"
)

// DailyReport pushes a traffic digest to every allowed group once a day
// and answers /report with the same digest on demand. The last sent
// date is persisted so a restart near push time does not double-send.
func DailyReport(deps Deps) pipeline.Registration {
	log := deps.Log.Sub("dailyreport")
	data := store.NewPluginStore(deps.DB, "dailyreport")
	return pipeline.Registration{
		Name: "dailyreport",
		Init: func(ctx context.Context, pctx *pipeline.Context) error {
			push := deps.Settings.Current().Push
			bc := &schedule.Broadcaster{Source: deps.API, Settings: deps.Settings, Log: deps.Log}
			deps.Sched.AddDailyAt("daily-report", push.Hour, push.Minute, 0, func(ctx context.Context) {
				today := time.Now().Format(time.DateOnly)
				if last, ok, err := data.Get("last_report"); err == nil && ok && last == today {
					log.Debug().Msg("digest already sent today")
					return
				}
				if err := bc.Run(ctx, func(ctx context.Context, group int64) error {
					return sendDigest(ctx, deps, group)
				}); err != nil {
					log.Warn().Err(err).Msg("digest broadcast failed")
					return
				}
				if err := data.Set("last_report", today); err != nil {
					log.Warn().Err(err).Msg("recording digest date")
				}
			})
			return nil
		},
		Handle: func(ctx context.Context, pctx *pipeline.Context) (*pipeline.Context, error) {
			if pctx.Kind != pipeline.KindInbound || pctx.Event == nil || !pctx.Event.IsGroupMessage() {
				return pctx, nil
			}
			if strings.TrimSpace(pctx.Event.PlainText()) != "/report" {
				return pctx, nil
			}
			if err := sendDigest(ctx, deps, pctx.Event.GroupID); err != nil {
				return nil, fmt.Errorf("building digest: %w", err)
			}
			return nil, nil
		},
	}
}

func sendDigest(ctx context.Context, deps Deps, group int64) error {
	since := time.Now().Add(-24 * time.Hour)
	total, err := deps.Messages.CountSince(group, since)
	if err != nil {
		return err
	}
	top, err := deps.Messages.TopSenders(group, since, 3)
	if err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "daily digest: %d messages in the last 24h", total)
	for i, s := range top {
		name := strconv.FormatInt(s.UserID, 10)
		if info, err := deps.API.GetGroupMemberInfo(ctx, group, s.UserID); err == nil {
			switch {
			case info.Card != "":
				name = info.Card
			case info.Nickname != "":
				name = info.Nickname
			}
		}
		fmt.Fprintf(&b, "\n%d. %s (%d messages)", i+1, name, s.Count)
	}
	// Through the chain, not the raw writer, so the digest passes the
	// same outbound filtering as any reply.
	return deps.Pipe.SendGroupMessage(ctx, group, onebot.Text(b.String()))
}
