package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrRunInProgress is returned when a sync is requested while the previous
// one has not finished. The ledger file has no locking, so overlapping runs
// must be refused, never queued.
var ErrRunInProgress = errors.New("pipeline: a sync run is already in progress")

// Orchestrator abstracts how sync runs are executed so the scheduler and the
// admin API stay ignorant of whether Temporal is in play.
type Orchestrator interface {
	// RunSync executes one pipeline pass, or fails fast with
	// ErrRunInProgress when one is active.
	RunSync(ctx context.Context) (RunReport, error)
	// RunSyncAsync kicks off a pass without waiting for its result; it still
	// fails fast with ErrRunInProgress.
	RunSyncAsync(ctx context.Context) error
}

// LocalOrchestrator runs the pipeline in-process behind a skip-if-running
// guard. Used when no Temporal host is configured.
type LocalOrchestrator struct {
	runner *Runner
	logger *slog.Logger
	mu     sync.Mutex
}

// NewLocalOrchestrator wraps a runner with the overlap guard.
func NewLocalOrchestrator(runner *Runner, logger *slog.Logger) *LocalOrchestrator {
	return &LocalOrchestrator{
		runner: runner,
		logger: logger.With("component", "sync.local"),
	}
}

// RunSync executes the runner unless a run is already holding the guard.
func (o *LocalOrchestrator) RunSync(ctx context.Context) (RunReport, error) {
	if !o.mu.TryLock() {
		return RunReport{}, ErrRunInProgress
	}
	defer o.mu.Unlock()
	return o.runner.Run(ctx)
}

// RunSyncAsync claims the guard, then finishes the run in the background.
// The background run deliberately ignores the caller's context: an admin
// request ending must not cancel a half-applied pass.
func (o *LocalOrchestrator) RunSyncAsync(_ context.Context) error {
	if !o.mu.TryLock() {
		return ErrRunInProgress
	}
	go func() {
		defer o.mu.Unlock()
		if _, err := o.runner.Run(context.Background()); err != nil {
			o.logger.Error("background sync run failed", "error", err)
		}
	}()
	return nil
}

// Scheduler invokes the orchestrator once at startup and then on a fixed
// interval until the context ends. An interval firing while the previous run
// is still active is skipped and logged.
type Scheduler struct {
	orchestrator Orchestrator
	interval     time.Duration
	logger       *slog.Logger
}

// NewScheduler builds the polling loop.
func NewScheduler(orchestrator Orchestrator, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		orchestrator: orchestrator,
		interval:     interval,
		logger:       logger.With("component", "scheduler"),
	}
}

// Run blocks until ctx is done. Run failures are logged and the loop keeps
// going; only the caller decides what is fatal for the process.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "interval", s.interval.String())
	s.tick(ctx, "startup")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx, "interval")
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, reason string) {
	report, err := s.orchestrator.RunSync(ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Warn("previous run still in progress, skipping", "reason", reason)
	case err != nil:
		s.logger.Error("sync run failed", "reason", reason, "error", err)
	default:
		synced, failed := report.Counts()
		s.logger.Info("sync run finished", "reason", reason, "run_id", report.RunID,
			"fetched", report.Fetched, "synced", synced, "failed", failed,
			"ledger_added", report.Ledger.Added, "ledger_skipped", report.Ledger.Skipped)
	}
}
