package poll

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopRunsPasses(t *testing.T) {
	var passes atomic.Int32
	l := &Loop{
		Name:     "test",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) error {
			passes.Add(1)
			return nil
		},
	}
	l.Start()
	defer l.Stop(time.Second)

	require.Eventually(t, func() bool {
		return passes.Load() >= 3
	}, time.Second, time.Millisecond)
}

func TestLoopWarmupDelaysFirstPass(t *testing.T) {
	var passes atomic.Int32
	l := &Loop{
		Name:     "test",
		Warmup:   time.Hour,
		Interval: time.Millisecond,
		Run: func(ctx context.Context) error {
			passes.Add(1)
			return nil
		},
	}
	l.Start()

	time.Sleep(20 * time.Millisecond)
	l.Stop(time.Second)
	require.Equal(t, int32(0), passes.Load())
}

func TestLoopCooldownAfterError(t *testing.T) {
	var passes atomic.Int32
	l := &Loop{
		Name:     "test",
		Interval: time.Millisecond,
		Cooldown: time.Hour,
		Run: func(ctx context.Context) error {
			passes.Add(1)
			return errors.New("boom")
		},
	}
	l.Start()
	defer l.Stop(time.Second)

	require.Eventually(t, func() bool {
		return passes.Load() == 1
	}, time.Second, time.Millisecond)

	// A second pass would mean the error path used the normal interval
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, int32(1), passes.Load())
}

func TestLoopStopCancelsRunningPass(t *testing.T) {
	started := make(chan struct{})
	var cancelled atomic.Bool
	l := &Loop{
		Name:     "test",
		Interval: time.Millisecond,
		Run: func(ctx context.Context) error {
			close(started)
			<-ctx.Done()
			cancelled.Store(true)
			return ctx.Err()
		},
	}
	l.Start()

	<-started
	l.Stop(time.Second)
	require.True(t, cancelled.Load())
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	l := &Loop{Name: "test"}
	l.Stop(time.Millisecond)
}
