// File: internal/usecase/dispatch_uc.go
package usecase

import (
	"context"
	"time"

	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/domain/repository"
	"chat-task-bridge/internal/infra/logging"
	"chat-task-bridge/internal/infra/metrics"

	"github.com/rs/zerolog"
)

type DispatchStatus string

const (
	DispatchIgnored     DispatchStatus = "ignored"
	DispatchRateLimited DispatchStatus = "rate_limited"
	DispatchDuplicate   DispatchStatus = "duplicate"
	DispatchLocalReply  DispatchStatus = "local_reply"
	DispatchCreated     DispatchStatus = "created"
	DispatchContinued   DispatchStatus = "continued"
	DispatchFailed      DispatchStatus = "failed"
)

const (
	activeTaskScan = 100
	failureNotice  = "Sorry, I couldn't start that right now. Please try again in a moment."
)

// Compile-time check
var _ DispatchUseCase = (*dispatchUC)(nil)

type DispatchResult struct {
	Status    DispatchStatus
	SessionID string
	TaskID    string
	Reason    string
}

type DispatchUseCase interface {
	// Dispatch takes one raw channel message through ingest, routing and the
	// create or continue workflow.
	Dispatch(ctx context.Context, raw model.RawChannelMessage) (DispatchResult, error)
}

type dispatchUC struct {
	inbound   InboundUseCase
	router    RouterUseCase
	taskFlow  TaskUseCase
	memory    MemoryUseCase // optional
	responder adapter.LocalResponder
	tasks     repository.TaskRepository
	outbound  adapter.OutboundSender
	replies   *replier
	log       *zerolog.Logger
}

func NewDispatchUseCase(
	inbound InboundUseCase,
	router RouterUseCase,
	taskFlow TaskUseCase,
	memory MemoryUseCase,
	responder adapter.LocalResponder,
	repos repository.Repositories,
	outbound adapter.OutboundSender,
	messageTTL time.Duration,
	logger *zerolog.Logger,
) *dispatchUC {
	l := logger.With().Str("component", "dispatch").Logger()
	return &dispatchUC{
		inbound:   inbound,
		router:    router,
		taskFlow:  taskFlow,
		memory:    memory,
		responder: responder,
		tasks:     repos.Tasks,
		outbound:  outbound,
		replies:   &replier{outbound: outbound, messages: repos.Messages, ttl: messageTTL, log: &l, now: time.Now},
		log:       &l,
	}
}

func (u *dispatchUC) Dispatch(ctx context.Context, raw model.RawChannelMessage) (res DispatchResult, err error) {
	defer func() { metrics.IncInbound(raw.Channel, string(res.Status)) }()

	in, err := u.inbound.Ingest(ctx, raw)
	if err != nil {
		res.Status = DispatchFailed
		return res, err
	}
	switch in.Status {
	case IngestIgnored:
		res.Status = DispatchIgnored
		return res, nil
	case IngestRateLimited:
		res.Status = DispatchRateLimited
		return res, nil
	case IngestDuplicate:
		res.Status = DispatchDuplicate
		return res, nil
	}

	sess, msg := in.Session, in.Stored
	res.SessionID = sess.ID
	ctx = logging.WithSessID(ctx, sess.ID)
	log := logging.With(ctx, u.log)

	u.outbound.SetTyping(ctx, sess.ChatID, true)
	defer u.outbound.SetTyping(ctx, sess.ChatID, false)

	active, err := u.tasks.ListActiveBySession(ctx, sess.ID, activeTaskScan)
	if err != nil {
		res.Status = DispatchFailed
		return res, err
	}

	if u.responder != nil {
		if reply, handled := u.responder.Respond(ctx, msg.Text, active); handled {
			u.replies.text(ctx, sess, "", reply)
			res.Status = DispatchLocalReply
			return res, nil
		}
	}

	if u.memory != nil && msg.Text != "" {
		if n, err := u.memory.CaptureExplicit(ctx, msg.Text); err != nil {
			log.Warn().Err(err).Msg("explicit memory capture failed")
		} else if n > 0 {
			log.Debug().Int("stored", n).Msg("explicit memories captured")
		}
	}

	d := u.router.Route(ctx, RouteInput{MessageID: msg.ID, Text: msg.Text, ActiveTasks: active})
	res.Reason = d.Reason
	flow := TaskInput{Session: sess, Message: msg, Reason: d.Reason}

	if d.Action == model.RouteContinue {
		task := findTask(active, d.TaskID)
		if task != nil {
			t, err := u.taskFlow.Continue(ctx, flow, task)
			if err != nil {
				log.Error().Err(err).Str("task_id", task.ID).Msg("continue task failed")
				u.replies.text(ctx, sess, task.ID, failureNotice)
				res.Status, res.TaskID = DispatchFailed, task.ID
				return res, err
			}
			res.Status, res.TaskID = DispatchContinued, t.ID
			return res, nil
		}
	}

	t, err := u.taskFlow.Create(ctx, flow)
	if err != nil {
		log.Error().Err(err).Msg("create task failed")
		u.replies.text(ctx, sess, "", failureNotice)
		res.Status = DispatchFailed
		return res, err
	}
	res.Status, res.TaskID = DispatchCreated, t.ID
	return res, nil
}

func findTask(tasks []*model.Task, id string) *model.Task {
	for _, t := range tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}
