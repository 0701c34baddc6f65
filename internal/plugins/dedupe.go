package plugins

import (
	"context"
	"sync"

	"github.com/soyeahso/wirebot/internal/pipeline"
)

// Dedupe drops frames whose message id was already seen. Reconnects
// replay recent history; without this the bot answers twice.
func Dedupe(deps Deps) pipeline.Registration {
	const capacity = 4096
	log := deps.Log.Sub("dedupe")
	var (
		mu   sync.Mutex
		seen = make(map[int64]struct{}, capacity)
		ring = make([]int64, capacity)
		size int
		next int
	)
	return pipeline.Registration{
		Name: "dedupe",
		Handle: func(ctx context.Context, pctx *pipeline.Context) (*pipeline.Context, error) {
			if pctx.Kind != pipeline.KindInbound || pctx.Event == nil || pctx.Event.MessageID == 0 {
				return pctx, nil
			}
			id := pctx.Event.MessageID
			mu.Lock()
			if _, dup := seen[id]; dup {
				mu.Unlock()
				log.Debug().Int64("messageId", id).Msg("duplicate frame dropped")
				return nil, nil
			}
			if size == capacity {
				delete(seen, ring[next])
			} else {
				size++
			}
			ring[next] = id
			seen[id] = struct{}{}
			next = (next + 1) % capacity
			mu.Unlock()
			return pctx, nil
		},
	}
}
