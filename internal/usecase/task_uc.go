// File: internal/usecase/task_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/domain/repository"
	"chat-task-bridge/internal/infra/logging"

	"github.com/rs/zerolog"
)

const (
	placeholderPrompt = "The user sent a message without text. Review the attached context and ask what they need."
	titleRunes        = 60
)

// Compile-time check
var _ TaskUseCase = (*taskUC)(nil)

type TaskInput struct {
	Session *model.ChannelSession
	// Message is the stored inbound message that triggered the call.
	Message *model.Message
	Reason  string
}

type TaskUseCase interface {
	// Create opens a provider task. When the provider call fails nothing is
	// persisted and no acknowledgement is sent.
	Create(ctx context.Context, in TaskInput) (*model.Task, error)
	// Continue forwards a follow-up to an active task and marks it running.
	Continue(ctx context.Context, in TaskInput, task *model.Task) (*model.Task, error)
}

type TaskOptions struct {
	Interactive bool
	Mode        string
	TaskTTL     time.Duration
	MessageTTL  time.Duration
}

type taskUC struct {
	provider   adapter.TaskProvider
	tasks      repository.TaskRepository
	messages   repository.MessageRepository
	connectors ConnectorUseCase // optional
	memory     MemoryUseCase    // optional
	renderer   adapter.Renderer // optional
	replies    *replier
	opts       TaskOptions
	log        *zerolog.Logger
	now        func() time.Time
}

func NewTaskUseCase(
	provider adapter.TaskProvider,
	tasks repository.TaskRepository,
	messages repository.MessageRepository,
	outbound adapter.OutboundSender,
	connectors ConnectorUseCase,
	memory MemoryUseCase,
	renderer adapter.Renderer,
	opts TaskOptions,
	logger *zerolog.Logger,
) *taskUC {
	l := logger.With().Str("component", "tasks").Logger()
	u := &taskUC{
		provider:   provider,
		tasks:      tasks,
		messages:   messages,
		connectors: connectors,
		memory:     memory,
		renderer:   renderer,
		opts:       opts,
		log:        &l,
		now:        time.Now,
	}
	u.replies = &replier{outbound: outbound, messages: messages, ttl: opts.MessageTTL, log: &l, now: func() time.Time { return u.now() }}
	return u
}

func (u *taskUC) Create(ctx context.Context, in TaskInput) (*model.Task, error) {
	if in.Session == nil || in.Message == nil {
		return nil, domain.ErrInvalidArgument
	}
	log := logging.With(ctx, u.log)
	prompt := taskPrompt(in.Message.Text)
	connectors := u.resolveConnectors(ctx, in.Session.ID, in.Message.Text, nil)

	providerPrompt := prompt
	if u.memory != nil {
		if block := u.memory.ContextBlock(ctx); block != "" {
			providerPrompt = block + "\n" + prompt
		}
	}

	ref, err := u.provider.CreateTask(ctx, providerPrompt, adapter.TaskOptions{
		Connectors:  connectors,
		Interactive: u.opts.Interactive,
		Mode:        u.opts.Mode,
	})
	if err != nil {
		return nil, fmt.Errorf("create provider task: %w", err)
	}

	title := strings.TrimSpace(ref.Title)
	if title == "" {
		title = truncateRunes(prompt, titleRunes)
	}
	now := u.now().UTC()
	task, err := model.NewTask(in.Session.ID, ref.TaskID, title, now, u.opts.TaskTTL)
	if err != nil {
		return nil, err
	}
	task.URL = ref.URL
	task.OriginalPrompt = prompt
	task.Connectors = connectors
	task.CreatedByMessageID = in.Message.ID
	if err := u.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("persist task: %w", err)
	}
	log.Info().Str("task_id", task.ID).Str("provider_task_id", task.ProviderTaskID).
		Int("connectors", len(connectors)).Msg("task created")

	u.linkMessage(ctx, in.Message.ID, model.RouteNew, in.Reason, task.ID)

	ack := ""
	if u.renderer != nil {
		ack = u.renderer.Acknowledge(ctx, title)
	}
	if ack == "" {
		ack = model.AcknowledgeText(title)
	}
	u.replies.text(ctx, in.Session, task.ID, ack)
	return task, nil
}

func (u *taskUC) Continue(ctx context.Context, in TaskInput, task *model.Task) (*model.Task, error) {
	if in.Session == nil || in.Message == nil || task == nil {
		return nil, domain.ErrInvalidArgument
	}
	prompt := taskPrompt(in.Message.Text)
	connectors := u.resolveConnectors(ctx, in.Session.ID, in.Message.Text, task.Connectors)

	err := u.provider.ContinueTask(ctx, task.ProviderTaskID, prompt, adapter.TaskOptions{
		Connectors:  connectors,
		Interactive: u.opts.Interactive,
		Mode:        u.opts.Mode,
	})
	if err != nil {
		return nil, fmt.Errorf("continue provider task: %w", err)
	}

	task.Status = model.TaskRunning
	task.StopReason = ""
	task.Connectors = connectors
	task.UpdatedAt = u.now().UTC()
	if err := u.tasks.Save(ctx, task); err != nil {
		return nil, fmt.Errorf("save task: %w", err)
	}
	u.linkMessage(ctx, in.Message.ID, model.RouteContinue, in.Reason, task.ID)
	logging.With(ctx, u.log).Info().Str("task_id", task.ID).Msg("task continued")
	return task, nil
}

// resolveConnectors returns the ids to scope the task to, or fallback when
// nothing usable was resolved.
func (u *taskUC) resolveConnectors(ctx context.Context, sessionID, text string, fallback []string) []string {
	if u.connectors == nil {
		return fallback
	}
	res, err := u.connectors.Resolve(ctx, sessionID, text)
	if err != nil {
		u.log.Warn().Err(err).Msg("connector resolution failed")
		return fallback
	}
	if res.Status == model.ResolutionAmbiguous {
		u.log.Info().Int("candidates", len(res.Candidates)).Msg("ambiguous connector mention ignored")
	}
	if !res.Usable() {
		return fallback
	}
	return res.ConnectorIDs
}

func (u *taskUC) linkMessage(ctx context.Context, messageID string, action model.RouteAction, reason, taskID string) {
	if err := u.messages.UpdateRoute(ctx, messageID, action, reason, taskID); err != nil {
		u.log.Warn().Err(err).Str("message_id", messageID).Msg("link message to task failed")
	}
}

func taskPrompt(text string) string {
	if p := strings.TrimSpace(text); p != "" {
		return p
	}
	return placeholderPrompt
}
