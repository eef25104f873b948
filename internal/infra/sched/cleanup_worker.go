package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"
	"github.com/rs/zerolog"

	"chat-task-bridge/internal/usecase"
)

// CleanupWorker runs the cleanup job on a cron schedule.
type CleanupWorker struct {
	expr    string
	uc      usecase.CleanupUseCase
	timeout time.Duration
	log     *zerolog.Logger
	now     func() time.Time
}

// NewCleanupWorker validates expr up front so a typo fails at startup.
func NewCleanupWorker(expr string, uc usecase.CleanupUseCase, timeout time.Duration, logger *zerolog.Logger) (*CleanupWorker, error) {
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid cleanup cron %q", expr)
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	l := logger.With().Str("component", "CleanupWorker").Logger()
	return &CleanupWorker{expr: expr, uc: uc, timeout: timeout, log: &l, now: time.Now}, nil
}

// Next returns the first scheduled run strictly after ref.
func (w *CleanupWorker) Next(ref time.Time) (time.Time, error) {
	return gronx.NextTickAfter(w.expr, ref, false)
}

func (w *CleanupWorker) Run(ctx context.Context) error {
	w.log.Info().Str("cron", w.expr).Msg("Starting cleanup worker")
	for {
		next, err := w.Next(w.now())
		if err != nil {
			return fmt.Errorf("cleanup schedule: %w", err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			w.log.Info().Msg("Stopping cleanup worker")
			return ctx.Err()
		case <-timer.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single bounded cleanup pass and logs its summary.
func (w *CleanupWorker) RunOnce(ctx context.Context) usecase.CleanupSummary {
	runCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	sum, err := w.uc.RunCleanup(runCtx)
	if err != nil {
		w.log.Error().Err(err).Msg("cleanup run failed")
		return sum
	}
	if sum.Locked {
		w.log.Debug().Msg("cleanup skipped, another run holds the lock")
		return sum
	}
	ev := w.log.Info().
		Int("checked", sum.Checked).
		Int("completed", sum.Completed).
		Int("failed", sum.Failed).
		Int("timed_out", sum.TimedOut).
		Int("skipped", sum.Skipped)
	for entity, n := range sum.Deleted {
		ev = ev.Int("deleted_"+entity, n)
	}
	ev.Msg("cleanup finished")
	return sum
}
