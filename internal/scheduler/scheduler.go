// Package scheduler runs the overdue sweep at a fixed interval.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mmynk/streamshare/internal/service"
)

// Sweeper is the operation the runner triggers.
type Sweeper interface {
	SweepOverdue(ctx context.Context, now time.Time) (*service.SweepResult, error)
}

// Runner is a background worker that sweeps once at start and then every
// interval. A failed run is logged and retried on the next tick.
type Runner struct {
	sweeper    Sweeper
	logger     *slog.Logger
	interval   time.Duration
	runTimeout time.Duration
	clock      func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRunner creates a new sweep runner.
//
// Parameters:
//   - sweeper: usually the AccessService
//   - logger: nil means slog.Default()
//   - interval: how often to sweep (e.g., 1 hour)
//   - runTimeout: upper bound for a single sweep; zero means 30 seconds
func NewRunner(sweeper Sweeper, logger *slog.Logger, interval, runTimeout time.Duration) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if runTimeout <= 0 {
		runTimeout = 30 * time.Second
	}
	return &Runner{
		sweeper:    sweeper,
		logger:     logger,
		interval:   interval,
		runTimeout: runTimeout,
		clock:      time.Now,
		stopCh:     make(chan struct{}),
	}
}

// Start begins the background loop.
func (r *Runner) Start() {
	r.wg.Add(1)
	go r.run()
	r.logger.Info("Sweep runner started", "interval", r.interval, "run_timeout", r.runTimeout)
}

// Stop signals the loop to stop and waits for an in-flight sweep to finish.
// It is safe to call more than once.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
	r.logger.Info("Sweep runner stopped")
}

func (r *Runner) run() {
	defer r.wg.Done()

	r.sweep()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Runner) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), r.runTimeout)
	defer cancel()

	result, err := r.sweeper.SweepOverdue(ctx, r.clock())
	if err != nil {
		r.logger.Error("Scheduled sweep failed", "error", err)
		return
	}
	if result.Count() > 0 || len(result.Failed) > 0 {
		r.logger.Info("Scheduled sweep finished",
			"overdue", result.Count(),
			"newly_marked", len(result.Marked),
			"failed", len(result.Failed),
		)
	}
}
