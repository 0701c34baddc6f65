package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/wirebot/internal/config"
	"github.com/soyeahso/wirebot/internal/logging"
)

// GroupSource lists the groups a broadcast could reach.
type GroupSource interface {
	ActiveGroups(ctx context.Context) ([]int64, error)
}

// GroupTask runs once per target group.
type GroupTask func(ctx context.Context, group int64) error

// Broadcaster fans a task out across groups, applying the configured
// allow/block filtering and pausing between groups so the platform does
// not see a send burst.
type Broadcaster struct {
	Source   GroupSource
	Settings *config.Settings
	Log      *logging.Logger
}

// Run applies task to every allowed group in turn. Per-group errors are
// logged and do not stop the remaining groups.
func (b *Broadcaster) Run(ctx context.Context, task GroupTask) error {
	groups, err := b.Source.ActiveGroups(ctx)
	if err != nil {
		return fmt.Errorf("listing groups: %w", err)
	}

	push := b.Settings.Current().Push
	delay := push.InterGroupDelay()

	first := true
	for _, g := range groups {
		if !push.Allows(g) {
			b.Log.Debug().Int64("group", g).Msg("group filtered from broadcast")
			continue
		}
		if !first && delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		first = false

		if err := task(ctx, g); err != nil {
			b.Log.Warn().Err(err).Int64("group", g).Msg("broadcast delivery failed")
		}
	}
	return nil
}
