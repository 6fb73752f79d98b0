// Package pipeline orchestrates fetch, extract and import for each model
// cycle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/nwp-forecast-service/internal/domain"
	"github.com/couchcryptid/nwp-forecast-service/internal/observability"
	"github.com/couchcryptid/nwp-forecast-service/internal/retention"
	"github.com/jonboulle/clockwork"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 5 * time.Minute
)

// RunPicker chooses the run to process at now.
type RunPicker func(ctx context.Context, now time.Time) (domain.Run, error)

// Sweeper removes expired data.
type Sweeper interface {
	Sweep(ctx context.Context) (retention.Result, error)
}

// Store is what readiness needs from the tile store.
type Store interface {
	Ping(ctx context.Context) error
	HasData(ctx context.Context) (bool, error)
}

// Scheduler processes the newest run each interval and sweeps expired data
// after every cycle.
type Scheduler struct {
	runner   *Runner
	pick     RunPicker
	sweeper  Sweeper
	store    Store
	interval time.Duration
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool

	mu   sync.Mutex
	last domain.Run
}

// NewScheduler creates a Scheduler. sweeper and store may be nil.
func NewScheduler(runner *Runner, pick RunPicker, sweeper Sweeper, store Store, interval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		runner:   runner,
		pick:     pick,
		sweeper:  sweeper,
		store:    store,
		interval: interval,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// CheckReadiness returns nil once the store is reachable and holds data,
// either from a run imported by this process or from an earlier one.
func (s *Scheduler) CheckReadiness(ctx context.Context) error {
	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			return fmt.Errorf("store unreachable: %w", err)
		}
	}
	if s.ready.Load() {
		return nil
	}
	if s.store != nil {
		ok, err := s.store.HasData(ctx)
		if err != nil {
			return err
		}
		if ok {
			s.ready.Store(true)
			return nil
		}
	}
	return errors.New("no run has been imported yet")
}

// LastRun returns the most recent run imported by this scheduler.
func (s *Scheduler) LastRun() domain.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Run processes cycles until the context is cancelled. Failed cycles are
// retried with exponential backoff.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)
	s.metrics.PipelineRunning.Set(1)
	defer s.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		err := s.RunCycle(ctx)
		if ctx.Err() != nil {
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		}

		wait := s.interval
		if err != nil {
			s.logger.Error("cycle failed", "error", err, "retry_in", backoff)
			wait = backoff
			backoff = nextBackoff(backoff, min(maxBackoff, s.interval))
		} else {
			backoff = initialBackoff
		}

		if !s.sleep(ctx, wait) {
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// RunCycle imports the picked run unless it was already imported. Expired
// data is swept on every cycle, whether or not a new run was imported.
func (s *Scheduler) RunCycle(ctx context.Context) error {
	defer s.sweep(ctx)

	run, err := s.pick(ctx, s.clock.Now())
	if err != nil {
		return fmt.Errorf("pick run: %w", err)
	}

	last := s.LastRun()
	if !last.IsZero() && !run.After(last) {
		s.logger.Debug("run already imported", "run", run.String())
		return nil
	}

	if _, err := s.runner.RunOnce(ctx, run, ModeAll); err != nil {
		return fmt.Errorf("run %s: %w", run, err)
	}

	s.mu.Lock()
	s.last = run
	s.mu.Unlock()
	s.ready.Store(true)
	return nil
}

func (s *Scheduler) sweep(ctx context.Context) {
	if s.sweeper == nil || ctx.Err() != nil {
		return
	}
	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Warn("retention sweep failed", "error", err)
	}
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return true
	}
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}
