package cli

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuperviseDaemon_FailureRunsStops(t *testing.T) {
	boom := errors.New("upstream gave up")
	var schedStopped, browserStopped bool

	err := superviseDaemon(context.Background(),
		func(ctx context.Context) error { return boom },
		func() { schedStopped = true },
		func() { browserStopped = true },
	)

	assert.ErrorIs(t, err, boom)
	assert.True(t, schedStopped, "scheduler must stop when the loop dies")
	assert.True(t, browserStopped, "browser must stop when the loop dies")
}

func TestSuperviseDaemon_CancelStopsComponents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan string, 2)
	done := make(chan error, 1)
	go func() {
		done <- superviseDaemon(ctx,
			func(runCtx context.Context) error {
				<-runCtx.Done()
				return runCtx.Err()
			},
			func() { stopped <- "sched" },
			func() { stopped <- "browser" },
		)
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not unwind after cancel")
	}
	require.Len(t, stopped, 2, "both stop hooks must have fired before Wait returned")
}

func TestSuperviseDaemon_CleanExitReleasesStops(t *testing.T) {
	var stopped bool

	err := superviseDaemon(context.Background(),
		func(ctx context.Context) error { return nil },
		func() { stopped = true },
	)

	require.NoError(t, err)
	assert.True(t, stopped, "a nil runner return must still release the stop members")
}
