// Package scheduler runs periodic sync sweeps on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lexwatch/tribsync/internal/config"
	"github.com/lexwatch/tribsync/internal/logger"
)

const (
	// DefaultCronSpec runs a sweep every 30 minutes during business
	// hours; portals publish during the day.
	DefaultCronSpec = "*/30 8-20 * * *"

	// DefaultStaleAfter is the age past which a running sync log row is
	// treated as a crash remnant.
	DefaultStaleAfter = 2 * time.Hour
)

// Sweeper runs one full sync sweep and the crash reconciliation pass.
type Sweeper interface {
	RunAll(ctx context.Context, concurrency int) error
	Reconcile(ctx context.Context, olderThan time.Duration) (int64, error)
}

// Scheduler triggers sync sweeps on a cron schedule. Overlapping
// triggers are skipped, not queued: a sweep slower than the interval
// must not pile up portal sessions.
type Scheduler struct {
	log     logger.Interface
	sweeper Sweeper
	cron    *cron.Cron

	spec        string
	concurrency int
	staleAfter  time.Duration

	sweeping atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
}

// New creates a scheduler from configuration.
func New(cfg config.Scheduler, sweeper Sweeper, log logger.Interface) *Scheduler {
	spec := cfg.Cron
	if spec == "" {
		spec = DefaultCronSpec
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}

	cronParser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(cronParser), cron.WithChain(cron.Recover(cron.DefaultLogger)))

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		log:         log,
		sweeper:     sweeper,
		cron:        c,
		spec:        spec,
		concurrency: cfg.Concurrency,
		staleAfter:  staleAfter,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start reconciles crash remnants, registers the sweep and starts the
// cron loop. It does not block.
func (s *Scheduler) Start(ctx context.Context) error {
	swept, err := s.sweeper.Reconcile(ctx, s.staleAfter)
	if err != nil {
		return fmt.Errorf("failed to reconcile stale runs: %w", err)
	}
	s.log.Info("startup reconciliation completed", "swept", swept)

	if _, err := s.cron.AddFunc(s.spec, s.sweep); err != nil {
		return fmt.Errorf("failed to register cron schedule %q: %w", s.spec, err)
	}

	s.cron.Start()
	s.log.Info("scheduler started", "cron", s.spec, "concurrency", s.concurrency)
	return nil
}

// Stop halts the cron loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()

	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler shutdown timed out: %w", ctx.Err())
	}
}

// RunNow triggers an immediate sweep, outside the cron schedule.
func (s *Scheduler) RunNow() {
	s.sweep()
}

func (s *Scheduler) sweep() {
	if !s.sweeping.CompareAndSwap(false, true) {
		s.log.Warn("sweep still running, skipping trigger")
		return
	}
	defer s.sweeping.Store(false)

	started := time.Now()
	if err := s.sweeper.RunAll(s.ctx, s.concurrency); err != nil {
		s.log.Error("sweep finished with errors", "error", err, "duration", time.Since(started))
		return
	}
	s.log.Info("sweep completed", "duration", time.Since(started))
}
