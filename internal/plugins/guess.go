package plugins

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/wirebot/internal/correlate"
	"github.com/soyeahso/wirebot/internal/pipeline"
	"github.com/soyeahso/wirebot/internal/store"
)

// Guess runs a number guessing game against the caller. The handler
// holds its pipeline goroutine across the player's replies, which the
// correlator claims by (group, user) before any other plugin sees them.
func Guess(deps Deps) pipeline.Registration {
	const (
		tries     = 5
		replyWait = 30 * time.Second
	)
	log := deps.Log.Sub("guess")
	wins := store.NewPluginStore(deps.DB, "guess")
	return pipeline.Registration{
		Name: "guess",
		Handle: func(ctx context.Context, pctx *pipeline.Context) (*pipeline.Context, error) {
			if pctx.Kind != pipeline.KindInbound || pctx.Event == nil || !pctx.Event.IsGroupMessage() {
				return pctx, nil
			}
			ev := pctx.Event
			if strings.TrimSpace(ev.PlainText()) != "/guess" {
				return pctx, nil
			}
			secret := rand.IntN(100) + 1
			if err := pctx.ReplyText(ctx, fmt.Sprintf("guess my number between 1 and 100, %d tries", tries)); err != nil {
				return nil, err
			}
			for attempt := 0; attempt < tries; attempt++ {
				reply, err := deps.API.AwaitGroupReply(ctx, ev.GroupID, ev.UserID, replyWait)
				if err != nil {
					if errors.Is(err, correlate.ErrTimeout) {
						return nil, pctx.ReplyText(ctx, fmt.Sprintf("too slow, it was %d", secret))
					}
					return nil, fmt.Errorf("waiting for guess: %w", err)
				}
				n, err := strconv.Atoi(strings.TrimSpace(reply.PlainText()))
				if err != nil {
					if err := pctx.ReplyText(ctx, "numbers only"); err != nil {
						return nil, err
					}
					continue
				}
				switch {
				case n == secret:
					total, err := wins.Incr(fmt.Sprintf("wins:%d", ev.UserID), 1)
					if err != nil {
						log.Warn().Err(err).Int64("user", ev.UserID).Msg("recording win")
					}
					return nil, pctx.ReplyText(ctx, fmt.Sprintf("correct, it was %d. wins so far: %d", secret, total))
				case n < secret:
					if err := pctx.ReplyText(ctx, "higher"); err != nil {
						return nil, err
					}
				default:
					if err := pctx.ReplyText(ctx, "lower"); err != nil {
						return nil, err
					}
				}
			}
			return nil, pctx.ReplyText(ctx, fmt.Sprintf("out of tries, it was %d", secret))
		},
	}
}
