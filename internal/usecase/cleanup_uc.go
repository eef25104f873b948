// File: internal/usecase/cleanup_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/domain/repository"
	"chat-task-bridge/internal/infra/metrics"

	"github.com/rs/zerolog"
)

const cleanupLockKey = "bridge:cleanup"

// Compile-time check
var _ CleanupUseCase = (*cleanupUC)(nil)

// CleanupSummary reports one cleanup run. Deleted is keyed by entity name in
// sweep order.
type CleanupSummary struct {
	Locked    bool
	Deleted   map[string]int
	Checked   int
	Completed int
	Failed    int
	TimedOut  int
	Skipped   int
}

type CleanupUseCase interface {
	// RunCleanup sweeps expired rows child-first and reconciles stale tasks.
	// A run that finds the lock held returns a summary with Locked set.
	RunCleanup(ctx context.Context) (CleanupSummary, error)
}

type CleanupOptions struct {
	BatchSize           int
	MaxBatches          int
	StaleAfter          time.Duration
	WebhookQuiet        time.Duration
	HardCeiling         time.Duration
	ReconcileLimit      int
	SupersededRetention time.Duration
	MessageTTL          time.Duration
	LockTTL             time.Duration
}

type cleanupUC struct {
	repos    repository.Repositories
	provider adapter.TaskProvider
	locker   adapter.Locker
	replies  *replier
	opts     CleanupOptions
	log      *zerolog.Logger
	now      func() time.Time
}

func NewCleanupUseCase(repos repository.Repositories, provider adapter.TaskProvider, locker adapter.Locker, outbound adapter.OutboundSender, opts CleanupOptions, logger *zerolog.Logger) *cleanupUC {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.MaxBatches <= 0 {
		opts.MaxBatches = 20
	}
	if opts.ReconcileLimit <= 0 {
		opts.ReconcileLimit = 50
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	l := logger.With().Str("component", "cleanup").Logger()
	u := &cleanupUC{repos: repos, provider: provider, locker: locker, opts: opts, log: &l, now: time.Now}
	u.replies = &replier{outbound: outbound, messages: repos.Messages, ttl: opts.MessageTTL, log: &l, now: func() time.Time { return u.now() }}
	return u
}

func (u *cleanupUC) RunCleanup(ctx context.Context) (sum CleanupSummary, err error) {
	sum.Deleted = make(map[string]int)
	if u.locker != nil {
		token, lerr := u.locker.TryLock(ctx, cleanupLockKey, u.opts.LockTTL)
		if errors.Is(lerr, domain.ErrLockHeld) {
			metrics.IncCleanupRun("locked")
			u.log.Info().Msg("cleanup already running elsewhere")
			sum.Locked = true
			return sum, nil
		}
		if lerr != nil {
			metrics.IncCleanupRun("error")
			return sum, fmt.Errorf("acquire cleanup lock: %w", lerr)
		}
		defer func() {
			if uerr := u.locker.Unlock(context.WithoutCancel(ctx), cleanupLockKey, token); uerr != nil {
				u.log.Warn().Err(uerr).Msg("release cleanup lock failed")
			}
		}()
	}
	defer func() {
		if err != nil {
			metrics.IncCleanupRun("error")
		} else {
			metrics.IncCleanupRun("ok")
		}
	}()

	start := u.now()
	if err = u.sweep(ctx, &sum); err != nil {
		return sum, err
	}
	if err = u.reconcile(ctx, &sum); err != nil {
		return sum, err
	}
	u.log.Info().
		Interface("deleted", sum.Deleted).
		Int("checked", sum.Checked).
		Int("completed", sum.Completed).
		Int("failed", sum.Failed).
		Int("timed_out", sum.TimedOut).
		Int("skipped", sum.Skipped).
		Dur("took", u.now().Sub(start)).
		Msg("cleanup finished")
	return sum, nil
}

type sweepStep struct {
	entity string
	del    func(ctx context.Context, now time.Time, limit int) (int, error)
}

// sweep deletes children before parents so that a parent is only removed once
// nothing references it.
func (u *cleanupUC) sweep(ctx context.Context, sum *CleanupSummary) error {
	now := u.now().UTC()
	retiredBefore := now.Add(-u.opts.SupersededRetention)
	steps := []sweepStep{
		{"message", u.repos.Messages.DeleteExpired},
		{"attachment", u.repos.Attachments.DeleteExpired},
		{"webhook_event", u.repos.Events.DeleteExpired},
		{"task", u.repos.Tasks.DeleteExpired},
		{"channel_session", u.repos.Sessions.DeleteExpired},
		{"memory", func(ctx context.Context, now time.Time, limit int) (int, error) {
			return u.repos.Memories.DeleteExpired(ctx, now, retiredBefore, limit)
		}},
	}
	for _, st := range steps {
		total := 0
		for batch := 0; batch < u.opts.MaxBatches; batch++ {
			n, err := st.del(ctx, now, u.opts.BatchSize)
			if err != nil {
				return fmt.Errorf("sweep %s: %w", st.entity, err)
			}
			total += n
			if n < u.opts.BatchSize {
				break
			}
		}
		sum.Deleted[st.entity] = total
		metrics.AddCleanupDeleted(st.entity, total)
	}
	return nil
}

func (u *cleanupUC) reconcile(ctx context.Context, sum *CleanupSummary) error {
	if u.provider == nil {
		return nil
	}
	now := u.now().UTC()
	stale, err := u.repos.Tasks.ListStale(ctx, now.Add(-u.opts.StaleAfter), now.Add(-u.opts.WebhookQuiet), u.opts.ReconcileLimit)
	if err != nil {
		return fmt.Errorf("list stale tasks: %w", err)
	}
	for _, t := range stale {
		sum.Checked++
		outcome := u.reconcileOne(ctx, t, now)
		metrics.IncReconcileOutcome(outcome)
		switch outcome {
		case "completed":
			sum.Completed++
		case "failed":
			sum.Failed++
		case "timed_out":
			sum.TimedOut++
		case "skipped":
			sum.Skipped++
		}
	}
	return nil
}

func (u *cleanupUC) reconcileOne(ctx context.Context, t *model.Task, now time.Time) string {
	log := u.log.With().Str("task_id", t.ID).Str("provider_task_id", t.ProviderTaskID).Logger()
	prev := t.Status
	overCeiling := u.opts.HardCeiling > 0 && now.Sub(t.CreatedAt) > u.opts.HardCeiling

	st, err := u.provider.GetTask(ctx, t.ProviderTaskID)
	if errors.Is(err, domain.ErrProviderTaskNotFound) {
		return u.timeOut(ctx, t, prev, now, "provider task not found")
	}
	if err != nil {
		if overCeiling {
			return u.timeOut(ctx, t, prev, now, "exceeded hard ceiling")
		}
		log.Warn().Err(err).Msg("provider lookup failed, retrying next run")
		return "skipped"
	}

	switch st.Status {
	case string(model.TaskCompleted):
		// Stop reason stays empty so a late finish webhook still delivers the result.
		t.Status = model.TaskCompleted
		t.UpdatedAt = now
		t.StoppedAt = &now
		return u.saveReconciled(ctx, t, prev, "completed")
	case string(model.TaskFailed):
		reason := "provider reported failure"
		if st.Error != "" {
			reason += ": " + st.Error
		}
		t.Fail(reason, now)
		return u.saveReconciled(ctx, t, prev, "failed")
	}

	if overCeiling {
		return u.timeOut(ctx, t, prev, now, "exceeded hard ceiling")
	}
	if err := u.repos.Tasks.MarkChecked(ctx, t.ID, now); err != nil {
		log.Warn().Err(err).Msg("mark checked failed")
	}
	return "checked"
}

// saveReconciled loses to any webhook that moved the task since it was listed.
func (u *cleanupUC) saveReconciled(ctx context.Context, t *model.Task, prev model.TaskStatus, outcome string) string {
	if err := u.repos.Tasks.SaveIfStatus(ctx, t, prev); err != nil {
		u.log.Warn().Err(err).Str("task_id", t.ID).Msg("save reconciled task failed")
		return "skipped"
	}
	return outcome
}

// timeOut fails the task locally and tells the user once; failed tasks are
// never listed as stale again.
func (u *cleanupUC) timeOut(ctx context.Context, t *model.Task, prev model.TaskStatus, now time.Time, reason string) string {
	t.Fail(reason, now)
	if out := u.saveReconciled(ctx, t, prev, "timed_out"); out != "timed_out" {
		return out
	}
	sess, err := u.repos.Sessions.FindByID(ctx, t.SessionID)
	if err != nil {
		u.log.Warn().Err(err).Str("task_id", t.ID).Msg("session for timed out task missing")
		return "timed_out"
	}
	u.replies.text(ctx, sess, t.ID, TimedOutText(t.Title))
	u.log.Info().Str("task_id", t.ID).Str("reason", reason).Msg("stale task timed out")
	return "timed_out"
}

func TimedOutText(title string) string {
	if title == "" {
		return "Your task timed out before the agent reported back. Please send it again."
	}
	return fmt.Sprintf("Your task \"%s\" timed out before the agent reported back. Please send it again.", title)
}
