package model

import "time"

type EventType string

const (
	EventTaskCreated  EventType = "task_created"
	EventTaskProgress EventType = "task_progress"
	EventTaskStopped  EventType = "task_stopped"
)

type ProcessStatus string

const (
	ProcessPending   ProcessStatus = "pending"
	ProcessProcessed ProcessStatus = "processed"
	ProcessIgnored   ProcessStatus = "ignored"
	ProcessFailed    ProcessStatus = "failed"
)

// WebhookEvent is the idempotency ledger row for one provider delivery.
type WebhookEvent struct {
	EventID        string
	EventType      EventType
	ProviderTaskID string
	Status         ProcessStatus
	Payload        []byte
	Error          string
	ReceivedAt     time.Time
	ProcessedAt    *time.Time
	ExpiresAt      time.Time
}

// ProviderAttachment is a file the provider produced for a finished task.
type ProviderAttachment struct {
	FileName  string
	URL       string
	SizeBytes int64
}

// ProviderEvent is one of TaskCreatedEvent, TaskProgressEvent or TaskStoppedEvent.
type ProviderEvent interface {
	ID() string
	Type() EventType
	TaskID() string
}

type TaskCreatedEvent struct {
	EventID        string
	ProviderTaskID string
	Title          string
	URL            string
}

type TaskProgressEvent struct {
	EventID        string
	ProviderTaskID string
	ProgressType   string
	Message        string
}

type TaskStoppedEvent struct {
	EventID        string
	ProviderTaskID string
	Title          string
	URL            string
	Message        string
	StopReason     StopReason
	Attachments    []ProviderAttachment
}

func (e TaskCreatedEvent) ID() string      { return e.EventID }
func (e TaskCreatedEvent) Type() EventType { return EventTaskCreated }
func (e TaskCreatedEvent) TaskID() string  { return e.ProviderTaskID }

func (e TaskProgressEvent) ID() string      { return e.EventID }
func (e TaskProgressEvent) Type() EventType { return EventTaskProgress }
func (e TaskProgressEvent) TaskID() string  { return e.ProviderTaskID }

func (e TaskStoppedEvent) ID() string      { return e.EventID }
func (e TaskStoppedEvent) Type() EventType { return EventTaskStopped }
func (e TaskStoppedEvent) TaskID() string  { return e.ProviderTaskID }
