package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrSchedulerNotRunning is returned when triggering a run on a stopped scheduler
var ErrSchedulerNotRunning = errors.New("scheduler is not running")

// SweepFunc performs one maintenance pass and reports how many records it acted on
type SweepFunc func(ctx context.Context) (int, error)

// SweepConfig holds configuration for a periodic sweep
type SweepConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// Interval is the pause between passes
	Interval time.Duration

	// Timeout is the maximum duration of a single pass
	Timeout time.Duration
}

// DefaultSweepConfig returns default configuration
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Enabled:  true,
		Interval: 30 * time.Second,
		Timeout:  time.Minute,
	}
}

// SweepScheduler runs a SweepFunc on a fixed interval. The expiry engine and
// the fleet staleness monitor are both instances of it.
type SweepScheduler struct {
	name      string
	sweep     SweepFunc
	logger    *zap.Logger
	config    SweepConfig
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewSweepScheduler creates a named scheduler over the given sweep
func NewSweepScheduler(name string, sweep SweepFunc, logger *zap.Logger, config SweepConfig) *SweepScheduler {
	return &SweepScheduler{
		name:   name,
		sweep:  sweep,
		logger: logger,
		config: config,
	}
}

// Start launches the sweep loop
func (s *SweepScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("scheduler disabled", zap.String("scheduler", s.name))
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("scheduler started",
		zap.String("scheduler", s.name),
		zap.Duration("interval", s.config.Interval),
	)
	return nil
}

// Stop gracefully stops the scheduler
func (s *SweepScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped", zap.String("scheduler", s.name))
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out", zap.String("scheduler", s.name))
		return ctx.Err()
	}
}

// TriggerImmediate runs one pass now without disturbing the interval loop
func (s *SweepScheduler) TriggerImmediate(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.execute(ctx)
	}()
	return nil
}

// IsRunning returns whether the scheduler is running
func (s *SweepScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *SweepScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.execute(ctx)
		}
	}
}

func (s *SweepScheduler) execute(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	started := time.Now()
	affected, err := s.sweep(sweepCtx)
	duration := time.Since(started)

	if err != nil {
		s.logger.Error("sweep failed",
			zap.String("scheduler", s.name),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return
	}

	if affected > 0 {
		s.logger.Info("sweep completed",
			zap.String("scheduler", s.name),
			zap.Duration("duration", duration),
			zap.Int("affected", affected),
		)
	} else {
		s.logger.Debug("sweep completed with no work",
			zap.String("scheduler", s.name),
			zap.Duration("duration", duration),
		)
	}
}
