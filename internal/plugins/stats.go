package plugins

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/wirebot/internal/pipeline"
	"github.com/soyeahso/wirebot/internal/store"
)

// Stats archives group traffic and answers /stats with a 24h summary.
func Stats(deps Deps) pipeline.Registration {
	log := deps.Log.Sub("stats")
	return pipeline.Registration{
		Name: "stats",
		Handle: func(ctx context.Context, pctx *pipeline.Context) (*pipeline.Context, error) {
			if pctx.Kind != pipeline.KindInbound || pctx.Event == nil || !pctx.Event.IsGroupMessage() {
				return pctx, nil
			}
			ev := pctx.Event
			err := deps.Messages.Insert(store.MessageRecord{
				GroupID:   ev.GroupID,
				UserID:    ev.UserID,
				MessageID: ev.MessageID,
				Content:   ev.PlainText(),
			})
			if err != nil {
				// Persistence is best effort; the pipeline keeps moving.
				log.Warn().Err(err).Int64("group", ev.GroupID).Msg("recording message")
			}
			if strings.TrimSpace(ev.PlainText()) != "/stats" {
				return pctx, nil
			}
			summary, err := groupSummary(deps, ev.GroupID)
			if err != nil {
				return nil, err
			}
			return nil, pctx.ReplyText(ctx, summary)
		},
	}
}

func groupSummary(deps Deps, group int64) (string, error) {
	since := time.Now().Add(-24 * time.Hour)
	total, err := deps.Messages.CountSince(group, since)
	if err != nil {
		return "", fmt.Errorf("counting messages: %w", err)
	}
	top, err := deps.Messages.TopSenders(group, since, 3)
	if err != nil {
		return "", fmt.Errorf("ranking senders: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "messages in the last 24h: %d", total)
	for i, s := range top {
		fmt.Fprintf(&b, "\n%d. user %d: %d messages", i+1, s.UserID, s.Count)
	}
	return b.String(), nil
}
