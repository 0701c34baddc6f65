package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/wirebot/internal/config"
	"github.com/soyeahso/wirebot/internal/logging"
)

type staticSource []int64

func (s staticSource) ActiveGroups(ctx context.Context) ([]int64, error) {
	return s, nil
}

type failingSource struct{}

func (failingSource) ActiveGroups(ctx context.Context) ([]int64, error) {
	return nil, errors.New("upstream gone")
}

func testBroadcaster(src GroupSource, push config.PushConfig) *Broadcaster {
	cfg := config.Defaults()
	cfg.Push = push
	return &Broadcaster{
		Source:   src,
		Settings: config.NewSettings("", cfg),
		Log:      logging.New(nil, "silent"),
	}
}

func TestBroadcaster_DeliversToAllGroups(t *testing.T) {
	b := testBroadcaster(staticSource{1, 2, 3}, config.PushConfig{})

	var got []int64
	err := b.Run(context.Background(), func(ctx context.Context, group int64) error {
		got = append(got, group)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestBroadcaster_AllowlistWins(t *testing.T) {
	b := testBroadcaster(staticSource{1, 2, 3}, config.PushConfig{
		AllowGroups: []int64{2},
		BlockGroups: []int64{2, 3},
	})

	var got []int64
	err := b.Run(context.Background(), func(ctx context.Context, group int64) error {
		got = append(got, group)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, got, "a non-empty allowlist overrides the blocklist")
}

func TestBroadcaster_BlocklistFilters(t *testing.T) {
	b := testBroadcaster(staticSource{1, 2, 3}, config.PushConfig{
		BlockGroups: []int64{2},
	})

	var got []int64
	err := b.Run(context.Background(), func(ctx context.Context, group int64) error {
		got = append(got, group)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, got)
}

func TestBroadcaster_ErrorDoesNotStopRun(t *testing.T) {
	b := testBroadcaster(staticSource{1, 2, 3}, config.PushConfig{})

	var got []int64
	err := b.Run(context.Background(), func(ctx context.Context, group int64) error {
		if group == 1 {
			return errors.New("send failed")
		}
		got = append(got, group)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, got)
}

func TestBroadcaster_SourceError(t *testing.T) {
	b := testBroadcaster(failingSource{}, config.PushConfig{})

	err := b.Run(context.Background(), func(ctx context.Context, group int64) error {
		t.Fatal("task must not run when the source fails")
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listing groups")
}

func TestBroadcaster_CancelDuringDelay(t *testing.T) {
	b := testBroadcaster(staticSource{1, 2}, config.PushConfig{IntervalSeconds: 5})

	ctx, cancel := context.WithCancel(context.Background())
	var got []int64
	start := time.Now()
	err := b.Run(ctx, func(c context.Context, group int64) error {
		got = append(got, group)
		cancel()
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []int64{1}, got, "cancellation lands in the inter-group pause")
	assert.Less(t, time.Since(start), 2*time.Second)
}
