package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(interval time.Duration) SweepConfig {
	return SweepConfig{
		Enabled:  true,
		Interval: interval,
		Timeout:  time.Second,
	}
}

func TestSweepSchedulerRunsOnInterval(t *testing.T) {
	var runs atomic.Int32
	sweep := func(ctx context.Context) (int, error) {
		runs.Add(1)
		return 1, nil
	}

	s := NewSweepScheduler("expiry", sweep, zap.NewNop(), testConfig(10*time.Millisecond))
	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop(context.Background()) }()

	require.Eventually(t, func() bool {
		return runs.Load() >= 3
	}, time.Second, 5*time.Millisecond)
	assert.True(t, s.IsRunning())
}

func TestSweepSchedulerStop(t *testing.T) {
	var runs atomic.Int32
	sweep := func(ctx context.Context) (int, error) {
		runs.Add(1)
		return 0, nil
	}

	s := NewSweepScheduler("expiry", sweep, zap.NewNop(), testConfig(10*time.Millisecond))
	require.NoError(t, s.Start(context.Background()))

	require.Eventually(t, func() bool { return runs.Load() >= 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
	assert.False(t, s.IsRunning())

	settled := runs.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, runs.Load())
}

func TestSweepSchedulerDisabled(t *testing.T) {
	var runs atomic.Int32
	sweep := func(ctx context.Context) (int, error) {
		runs.Add(1)
		return 0, nil
	}

	cfg := testConfig(5 * time.Millisecond)
	cfg.Enabled = false
	s := NewSweepScheduler("fleet", sweep, zap.NewNop(), cfg)
	require.NoError(t, s.Start(context.Background()))

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())
	assert.False(t, s.IsRunning())
}

func TestSweepSchedulerTriggerImmediate(t *testing.T) {
	var runs atomic.Int32
	sweep := func(ctx context.Context) (int, error) {
		runs.Add(1)
		return 2, nil
	}

	t.Run("runs a pass outside the interval", func(t *testing.T) {
		s := NewSweepScheduler("fleet", sweep, zap.NewNop(), testConfig(time.Hour))
		require.NoError(t, s.Start(context.Background()))
		defer func() { _ = s.Stop(context.Background()) }()

		require.NoError(t, s.TriggerImmediate(context.Background()))

		require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("refuses when stopped", func(t *testing.T) {
		s := NewSweepScheduler("fleet", sweep, zap.NewNop(), testConfig(time.Hour))
		err := s.TriggerImmediate(context.Background())
		assert.ErrorIs(t, err, ErrSchedulerNotRunning)
	})
}

func TestSweepSchedulerToleratesFailures(t *testing.T) {
	var runs atomic.Int32
	sweep := func(ctx context.Context) (int, error) {
		if runs.Add(1) == 1 {
			return 0, errors.New("database unavailable")
		}
		return 1, nil
	}

	s := NewSweepScheduler("expiry", sweep, zap.NewNop(), testConfig(10*time.Millisecond))
	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop(context.Background()) }()

	// the loop keeps going after a failed pass
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
}
