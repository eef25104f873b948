package model

import (
	"fmt"
	"time"

	"chat-task-bridge/internal/domain"
)

type TaskStatus string

const (
	TaskPending     TaskStatus = "pending"
	TaskRunning     TaskStatus = "running"
	TaskWaitingUser TaskStatus = "waiting_user"
	TaskCompleted   TaskStatus = "completed"
	TaskFailed      TaskStatus = "failed"
)

type StopReason string

const (
	StopFinish StopReason = "finish"
	StopAsk    StopReason = "ask"
)

// Task mirrors one task on the remote provider.
type Task struct {
	ID                 string
	SessionID          string
	ProviderTaskID     string
	Status             TaskStatus
	StopReason         StopReason
	Title              string
	URL                string
	LastMessage        string
	OriginalPrompt     string
	Connectors         []string
	CreatedByMessageID string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	StoppedAt          *time.Time
	LastWebhookAt      *time.Time
	LastCheckedAt      *time.Time
	ExpiresAt          time.Time
}

func NewTask(sessionID, providerTaskID, title string, now time.Time, ttl time.Duration) (*Task, error) {
	if sessionID == "" || providerTaskID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Task{
		ID:             NewID(),
		SessionID:      sessionID,
		ProviderTaskID: providerTaskID,
		Status:         TaskPending,
		Title:          title,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}, nil
}

// IsActive reports whether the task can still receive follow-ups.
func (t *Task) IsActive() bool {
	switch t.Status {
	case TaskPending, TaskRunning, TaskWaitingUser:
		return true
	}
	return false
}

func (t *Task) IsTerminal() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}

// IsWaitingOnUser is true for a task the provider paused with a question.
func (t *Task) IsWaitingOnUser() bool {
	return t.Status == TaskWaitingUser && t.StopReason == StopAsk
}

// Stop moves the task into the state implied by the provider's stop reason.
func (t *Task) Stop(reason StopReason, message string, now time.Time) {
	t.StopReason = reason
	t.LastMessage = message
	t.UpdatedAt = now
	t.StoppedAt = &now
	if reason == StopAsk {
		t.Status = TaskWaitingUser
	} else {
		t.Status = TaskCompleted
	}
}

// Fail marks the task failed locally with a reason.
func (t *Task) Fail(reason string, now time.Time) {
	t.Status = TaskFailed
	t.LastMessage = reason
	t.UpdatedAt = now
	t.StoppedAt = &now
}

// AcknowledgeText is the plain acknowledgement for a new task.
func AcknowledgeText(title string) string {
	return fmt.Sprintf("Got it — working on \"%s\" now.", title)
}
