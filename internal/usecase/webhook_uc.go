// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"
	"time"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/domain/repository"
	"chat-task-bridge/internal/infra/logging"
	"chat-task-bridge/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// MaxWebhookPayload bounds accepted webhook bodies.
const MaxWebhookPayload = 1 << 20

type WebhookStatus string

const (
	WebhookUnauthorized   WebhookStatus = "unauthorized"
	WebhookInvalidPayload WebhookStatus = "invalid_payload"
	WebhookDuplicate      WebhookStatus = "duplicate"
	WebhookAccepted       WebhookStatus = "accepted"
	WebhookProcessed      WebhookStatus = "processed"
	WebhookFailed         WebhookStatus = "failed"
)

const defaultQuestion = "The task needs a bit more information from you."

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

type WebhookRequest struct {
	Secret  string
	Payload []byte
}

type WebhookResult struct {
	Status  WebhookStatus
	EventID string
	Error   string
}

type WebhookUseCase interface {
	// HandleWebhook authenticates, parses, records and processes one delivery inline.
	HandleWebhook(ctx context.Context, req WebhookRequest) WebhookResult
	// Accept runs everything up to and including the ledger insert. The event is
	// non-nil only when the result is accepted.
	Accept(ctx context.Context, req WebhookRequest) (WebhookResult, model.ProviderEvent)
	// ProcessAccepted applies an accepted event and records the ledger outcome.
	ProcessAccepted(ctx context.Context, ev model.ProviderEvent) WebhookResult
	// Abandon marks an accepted event failed without processing it, so that a
	// redelivery can reclaim it.
	Abandon(ctx context.Context, ev model.ProviderEvent, reason string)
}

type webhookUC struct {
	secret    []byte
	events    repository.WebhookEventRepository
	processor *EventProcessor
	eventTTL  time.Duration
	log       *zerolog.Logger
	now       func() time.Time
}

func NewWebhookUseCase(secret string, events repository.WebhookEventRepository, processor *EventProcessor, eventTTL time.Duration, logger *zerolog.Logger) *webhookUC {
	l := logger.With().Str("component", "webhook").Logger()
	return &webhookUC{
		secret:    []byte(secret),
		events:    events,
		processor: processor,
		eventTTL:  eventTTL,
		log:       &l,
		now:       time.Now,
	}
}

func (u *webhookUC) HandleWebhook(ctx context.Context, req WebhookRequest) WebhookResult {
	res, ev := u.Accept(ctx, req)
	if res.Status != WebhookAccepted {
		return res
	}
	return u.ProcessAccepted(ctx, ev)
}

func (u *webhookUC) Accept(ctx context.Context, req WebhookRequest) (WebhookResult, model.ProviderEvent) {
	if len(u.secret) == 0 || subtle.ConstantTimeCompare([]byte(req.Secret), u.secret) != 1 {
		metrics.IncWebhookEvent("", string(WebhookUnauthorized))
		return WebhookResult{Status: WebhookUnauthorized}, nil
	}
	if len(req.Payload) > MaxWebhookPayload {
		metrics.IncWebhookEvent("", string(WebhookInvalidPayload))
		return WebhookResult{Status: WebhookInvalidPayload, Error: "payload too large"}, nil
	}
	ev, err := ParseEvent(req.Payload)
	if err != nil {
		metrics.IncWebhookEvent("", string(WebhookInvalidPayload))
		u.log.Debug().Err(err).Msg("webhook payload rejected")
		return WebhookResult{Status: WebhookInvalidPayload, Error: err.Error()}, nil
	}

	now := u.now().UTC()
	row := &model.WebhookEvent{
		EventID:        ev.ID(),
		EventType:      ev.Type(),
		ProviderTaskID: ev.TaskID(),
		Status:         model.ProcessPending,
		Payload:        req.Payload,
		ReceivedAt:     now,
		ExpiresAt:      now.Add(u.eventTTL),
	}
	fresh, err := u.events.InsertIfNew(ctx, row)
	if err != nil {
		metrics.IncWebhookEvent(string(ev.Type()), string(WebhookFailed))
		u.log.Error().Err(err).Str("event_id", ev.ID()).Msg("webhook ledger insert failed")
		return WebhookResult{Status: WebhookFailed, EventID: ev.ID(), Error: "ledger unavailable"}, nil
	}
	if !fresh {
		metrics.IncWebhookEvent(string(ev.Type()), string(WebhookDuplicate))
		return WebhookResult{Status: WebhookDuplicate, EventID: ev.ID()}, nil
	}
	metrics.IncWebhookEvent(string(ev.Type()), string(WebhookAccepted))
	return WebhookResult{Status: WebhookAccepted, EventID: ev.ID()}, ev
}

func (u *webhookUC) ProcessAccepted(ctx context.Context, ev model.ProviderEvent) (res WebhookResult) {
	ctx = logging.WithEventID(ctx, ev.ID())
	log := logging.With(ctx, u.log)
	// A row left pending would count as a duplicate forever; failed rows are reclaimable.
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		msg := fmt.Sprintf("panic: %v", r)
		log.Error().Str("type", string(ev.Type())).Str("panic", msg).Msg("webhook processing panicked")
		if merr := u.events.MarkResult(context.WithoutCancel(ctx), ev.ID(), model.ProcessFailed, msg, u.now().UTC()); merr != nil {
			log.Error().Err(merr).Msg("mark webhook failed")
		}
		metrics.IncWebhookEvent(string(ev.Type()), string(WebhookFailed))
		res = WebhookResult{Status: WebhookFailed, EventID: ev.ID(), Error: msg}
	}()

	status, err := u.processor.Process(ctx, ev)
	at := u.now().UTC()
	if err != nil {
		log.Error().Err(err).Str("type", string(ev.Type())).Msg("webhook processing failed")
		if merr := u.events.MarkResult(ctx, ev.ID(), model.ProcessFailed, err.Error(), at); merr != nil {
			log.Error().Err(merr).Msg("mark webhook failed")
		}
		metrics.IncWebhookEvent(string(ev.Type()), string(WebhookFailed))
		return WebhookResult{Status: WebhookFailed, EventID: ev.ID(), Error: err.Error()}
	}
	if merr := u.events.MarkResult(ctx, ev.ID(), status, "", at); merr != nil {
		log.Warn().Err(merr).Msg("mark webhook result failed")
	}
	metrics.IncWebhookEvent(string(ev.Type()), string(status))
	log.Debug().Str("type", string(ev.Type())).Str("result", string(status)).Msg("webhook processed")
	return WebhookResult{Status: WebhookProcessed, EventID: ev.ID()}
}

func (u *webhookUC) Abandon(ctx context.Context, ev model.ProviderEvent, reason string) {
	if err := u.events.MarkResult(ctx, ev.ID(), model.ProcessFailed, reason, u.now().UTC()); err != nil {
		u.log.Error().Err(err).Str("event_id", ev.ID()).Msg("mark abandoned webhook failed")
	}
	metrics.IncWebhookEvent(string(ev.Type()), string(WebhookFailed))
}

// EventProcessor applies provider lifecycle events to task state.
type EventProcessor struct {
	tasks           repository.TaskRepository
	sessions        repository.SessionRepository
	attachments     repository.AttachmentRepository
	outbound        adapter.OutboundSender
	fetcher         adapter.FileFetcher
	renderer        adapter.Renderer // optional
	memory          MemoryUseCase    // optional
	replies         *replier
	forwardProgress bool
	attachmentTTL   time.Duration
	log             *zerolog.Logger
	now             func() time.Time
}

type ProcessorOptions struct {
	ForwardProgress bool
	MessageTTL      time.Duration
	AttachmentTTL   time.Duration
}

func NewEventProcessor(
	repos repository.Repositories,
	outbound adapter.OutboundSender,
	fetcher adapter.FileFetcher,
	renderer adapter.Renderer,
	memory MemoryUseCase,
	opts ProcessorOptions,
	logger *zerolog.Logger,
) *EventProcessor {
	l := logger.With().Str("component", "events").Logger()
	p := &EventProcessor{
		tasks:           repos.Tasks,
		sessions:        repos.Sessions,
		attachments:     repos.Attachments,
		outbound:        outbound,
		fetcher:         fetcher,
		renderer:        renderer,
		memory:          memory,
		forwardProgress: opts.ForwardProgress,
		attachmentTTL:   opts.AttachmentTTL,
		log:             &l,
		now:             time.Now,
	}
	p.replies = &replier{outbound: outbound, messages: repos.Messages, ttl: opts.MessageTTL, log: &l, now: func() time.Time { return p.now() }}
	return p
}

// maxApplyAttempts bounds how often an event is re-applied after the task row
// changed underneath it.
const maxApplyAttempts = 3

// Process returns the ledger status for the event: processed when it changed
// state or sent something, ignored when it was a late or unknown delivery.
// Task writes are conditional on the status the event was applied to, so an
// event racing another delivery for the same task is re-applied to the fresh
// row instead of overwriting it.
func (p *EventProcessor) Process(ctx context.Context, ev model.ProviderEvent) (model.ProcessStatus, error) {
	for attempt := 1; ; attempt++ {
		status, err := p.apply(ctx, ev)
		if errors.Is(err, domain.ErrConflict) && attempt < maxApplyAttempts {
			p.log.Debug().Str("provider_task_id", ev.TaskID()).Int("attempt", attempt).Msg("task changed concurrently, reloading")
			continue
		}
		return status, err
	}
}

func (p *EventProcessor) apply(ctx context.Context, ev model.ProviderEvent) (model.ProcessStatus, error) {
	task, err := p.tasks.FindByProviderTaskID(ctx, ev.TaskID())
	if errors.Is(err, domain.ErrNotFound) {
		p.log.Info().Str("provider_task_id", ev.TaskID()).Msg("event for unknown task ignored")
		return model.ProcessIgnored, nil
	}
	if err != nil {
		return "", fmt.Errorf("load task: %w", err)
	}
	ctx = logging.WithTaskID(logging.WithSessID(ctx, task.SessionID), task.ID)

	switch e := ev.(type) {
	case model.TaskCreatedEvent:
		return p.created(ctx, task, e)
	case model.TaskProgressEvent:
		return p.progress(ctx, task, e)
	case model.TaskStoppedEvent:
		if e.StopReason == model.StopAsk {
			return p.ask(ctx, task, e)
		}
		return p.finish(ctx, task, e)
	}
	return "", fmt.Errorf("%w: unsupported event %T", domain.ErrInvalidPayload, ev)
}

func (p *EventProcessor) created(ctx context.Context, t *model.Task, e model.TaskCreatedEvent) (model.ProcessStatus, error) {
	prev := t.Status
	now := p.now().UTC()
	if t.Status == model.TaskPending {
		t.Status = model.TaskRunning
	}
	mergeTaskDetail(t, e.Title, e.URL)
	t.UpdatedAt = now
	t.LastWebhookAt = &now
	if err := p.tasks.SaveIfStatus(ctx, t, prev); err != nil {
		return "", fmt.Errorf("save task: %w", err)
	}
	return model.ProcessProcessed, nil
}

func (p *EventProcessor) progress(ctx context.Context, t *model.Task, e model.TaskProgressEvent) (model.ProcessStatus, error) {
	prev := t.Status
	if t.IsTerminal() || t.Status == model.TaskWaitingUser {
		logging.With(ctx, p.log).Debug().Str("status", string(t.Status)).Msg("late progress ignored")
		return model.ProcessIgnored, nil
	}
	now := p.now().UTC()
	t.Status = model.TaskRunning
	if msg := strings.TrimSpace(e.Message); msg != "" {
		t.LastMessage = msg
	}
	t.UpdatedAt = now
	t.LastWebhookAt = &now
	if err := p.tasks.SaveIfStatus(ctx, t, prev); err != nil {
		return "", fmt.Errorf("save task: %w", err)
	}
	if p.forwardProgress && strings.TrimSpace(e.Message) != "" {
		sess, err := p.sessions.FindByID(ctx, t.SessionID)
		if err != nil {
			return "", fmt.Errorf("load session: %w", err)
		}
		p.replies.text(ctx, sess, t.ID, strings.TrimSpace(e.Message))
	}
	return model.ProcessProcessed, nil
}

func (p *EventProcessor) ask(ctx context.Context, t *model.Task, e model.TaskStoppedEvent) (model.ProcessStatus, error) {
	prev := t.Status
	if t.IsTerminal() {
		return model.ProcessIgnored, nil
	}
	sess, err := p.sessions.FindByID(ctx, t.SessionID)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	now := p.now().UTC()
	question := strings.TrimSpace(e.Message)
	if question == "" {
		question = defaultQuestion
	}
	mergeTaskDetail(t, e.Title, e.URL)
	t.Stop(model.StopAsk, question, now)
	t.LastWebhookAt = &now
	if err := p.tasks.SaveIfStatus(ctx, t, prev); err != nil {
		return "", fmt.Errorf("save task: %w", err)
	}
	p.replies.text(ctx, sess, t.ID, question)
	return model.ProcessProcessed, nil
}

// finish completes the task, delivers the result and then each attachment in
// order. A task that is already completed only gets the attachments this event
// has not delivered yet, which makes a reclaimed redelivery safe.
func (p *EventProcessor) finish(ctx context.Context, t *model.Task, e model.TaskStoppedEvent) (model.ProcessStatus, error) {
	prev := t.Status
	sess, err := p.sessions.FindByID(ctx, t.SessionID)
	if err != nil {
		return "", fmt.Errorf("load session: %w", err)
	}
	log := logging.With(ctx, p.log)

	// A task completed by reconciliation has no stop reason and still needs its result.
	firstDelivery := t.Status != model.TaskCompleted || t.StopReason != model.StopFinish
	if firstDelivery {
		now := p.now().UTC()
		mergeTaskDetail(t, e.Title, e.URL)
		t.Stop(model.StopFinish, e.Message, now)
		t.LastWebhookAt = &now
		if err := p.tasks.SaveIfStatus(ctx, t, prev); err != nil {
			return "", fmt.Errorf("save task: %w", err)
		}
		p.replies.text(ctx, sess, t.ID, p.resultText(ctx, t.Title, e.Message))
	}

	delivered, err := p.deliveredURLs(ctx, t.ID, e.EventID)
	if err != nil {
		return "", err
	}
	sent := 0
	for _, a := range e.Attachments {
		if delivered[a.URL] {
			continue
		}
		if err := p.deliverAttachment(ctx, sess, t, e.EventID, a); err != nil {
			return "", err
		}
		sent++
	}

	if !firstDelivery && sent == 0 {
		return model.ProcessIgnored, nil
	}
	if firstDelivery && p.memory != nil {
		if err := p.memory.LearnFromTask(ctx, t, e.Message); err != nil {
			log.Warn().Err(err).Msg("memory extraction failed")
		}
	}
	log.Info().Int("attachments", sent).Msg("task finished")
	return model.ProcessProcessed, nil
}

func (p *EventProcessor) resultText(ctx context.Context, title, result string) string {
	result = strings.TrimSpace(result)
	if p.renderer != nil && result != "" {
		if framed := p.renderer.FrameResult(ctx, title, result); framed != "" {
			return framed
		}
	}
	if result == "" {
		return fmt.Sprintf("Task \"%s\" is complete.", title)
	}
	return result
}

func (p *EventProcessor) deliveredURLs(ctx context.Context, taskID, eventID string) (map[string]bool, error) {
	rows, err := p.attachments.ListByTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	out := make(map[string]bool, len(rows))
	for _, r := range rows {
		if r.EventID == eventID {
			out[r.URL] = true
		}
	}
	return out, nil
}

func (p *EventProcessor) deliverAttachment(ctx context.Context, sess *model.ChannelSession, t *model.Task, eventID string, a model.ProviderAttachment) error {
	data, contentType, err := p.fetcher.Fetch(ctx, a.URL)
	if err != nil {
		metrics.IncAttachment("fetch_failed")
		return fmt.Errorf("%w: %s: %v", domain.ErrAttachmentFetchFailed, a.FileName, err)
	}
	name := a.FileName
	if name == "" {
		name = path.Base(a.URL)
	}
	mimeType := AttachmentMimeType(contentType, name)
	res := p.outbound.SendMedia(ctx, sess.ChatID, adapter.Media{Data: data, MimeType: mimeType, FileName: name})
	if res.Delivered {
		metrics.IncAttachment("delivered")
	} else {
		metrics.IncAttachment("queued")
	}

	size := a.SizeBytes
	if size <= 0 {
		size = int64(len(data))
	}
	now := p.now().UTC()
	row := &model.Attachment{
		ID:        model.NewID(),
		TaskID:    t.ID,
		EventID:   eventID,
		FileName:  name,
		URL:       a.URL,
		MimeType:  mimeType,
		SizeBytes: size,
		CreatedAt: now,
		ExpiresAt: now.Add(p.attachmentTTL),
	}
	if err := p.attachments.Insert(ctx, row); err != nil {
		return fmt.Errorf("record attachment: %w", err)
	}
	return nil
}

// AttachmentMimeType prefers the transport content type and falls back to the
// file extension.
func AttachmentMimeType(contentType, fileName string) string {
	if contentType != "" {
		if mt, _, err := mime.ParseMediaType(contentType); err == nil && mt != "application/octet-stream" {
			return mt
		}
	}
	if mt := mime.TypeByExtension(strings.ToLower(path.Ext(fileName))); mt != "" {
		if base, _, err := mime.ParseMediaType(mt); err == nil {
			return base
		}
		return mt
	}
	return "application/octet-stream"
}

func mergeTaskDetail(t *model.Task, title, url string) {
	if title != "" {
		t.Title = title
	}
	if url != "" {
		t.URL = url
	}
}
