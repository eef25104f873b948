// File: internal/usecase/router_uc.go
package usecase

import (
	"context"
	"time"

	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/domain/repository"
	"chat-task-bridge/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// MaxClassifierTasks bounds the summaries handed to a classifier.
const MaxClassifierTasks = 20

// Compile-time check
var _ RouterUseCase = (*routerUC)(nil)

type RouteInput struct {
	// MessageID is the stored inbound message; empty skips the audit write.
	MessageID   string
	Text        string
	ActiveTasks []*model.Task
}

type RouterUseCase interface {
	// Route always returns a decision; classifier failures fall back to new.
	Route(ctx context.Context, in RouteInput) model.RouteDecision
}

type routerUC struct {
	classifier adapter.Classifier
	messages   repository.MessageRepository
	timeout    time.Duration
	maxTasks   int
	log        *zerolog.Logger
}

func NewRouterUseCase(classifier adapter.Classifier, messages repository.MessageRepository, timeout time.Duration, maxTasks int, logger *zerolog.Logger) *routerUC {
	if maxTasks <= 0 || maxTasks > MaxClassifierTasks {
		maxTasks = MaxClassifierTasks
	}
	l := logger.With().Str("component", "router").Logger()
	return &routerUC{classifier: classifier, messages: messages, timeout: timeout, maxTasks: maxTasks, log: &l}
}

func (r *routerUC) Route(ctx context.Context, in RouteInput) model.RouteDecision {
	d := r.decide(ctx, in)
	metrics.IncRouteDecision(string(d.Action), d.Reason)
	r.log.Debug().Str("action", string(d.Action)).Str("reason", d.Reason).Str("task_id", d.TaskID).
		Int("active", len(in.ActiveTasks)).Msg("route decided")

	if in.MessageID != "" && r.messages != nil {
		if err := r.messages.UpdateRoute(ctx, in.MessageID, d.Action, d.Reason, d.TaskID); err != nil {
			r.log.Warn().Err(err).Str("message_id", in.MessageID).Msg("persist route decision failed")
		}
	}
	return d
}

func (r *routerUC) decide(ctx context.Context, in RouteInput) model.RouteDecision {
	if len(in.ActiveTasks) == 0 {
		return model.RouteDecision{Action: model.RouteNew, Reason: model.ReasonNoActiveTasks}
	}
	if len(in.ActiveTasks) == 1 && in.ActiveTasks[0].IsWaitingOnUser() {
		return model.RouteDecision{Action: model.RouteContinue, TaskID: in.ActiveTasks[0].ID, Reason: model.ReasonSingleWaitingUser}
	}

	tasks := in.ActiveTasks
	if len(tasks) > r.maxTasks {
		tasks = tasks[:r.maxTasks]
	}
	summaries := make([]model.ActiveTaskSummary, 0, len(tasks))
	for _, t := range tasks {
		summaries = append(summaries, model.SummarizeTask(t))
	}

	cctx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	c, err := r.classifier.Classify(cctx, adapter.ClassifyInput{Message: in.Text, ActiveTasks: summaries})
	if err != nil {
		r.log.Warn().Err(err).Msg("classifier failed, starting a new task")
		return model.RouteDecision{Action: model.RouteNew, Reason: model.ReasonClassifierError}
	}

	if c.Action == model.RouteContinue {
		for _, t := range in.ActiveTasks {
			if t.ID == c.TaskID {
				return model.RouteDecision{Action: model.RouteContinue, TaskID: t.ID, Reason: nonEmpty(c.Reason, "classifier_continue")}
			}
		}
		return model.RouteDecision{Action: model.RouteNew, Reason: model.ReasonClassifierRejectedTask + c.TaskID}
	}
	return model.RouteDecision{Action: model.RouteNew, Reason: nonEmpty(c.Reason, "classifier_new")}
}

func nonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
