package repository

import (
	"context"
	"time"

	"chat-task-bridge/internal/domain/model"
)

type TaskRepository interface {
	// Create returns domain.ErrAlreadyExists when the provider task id is taken.
	Create(ctx context.Context, t *model.Task) error
	Save(ctx context.Context, t *model.Task) error
	// SaveIfStatus writes t only while the stored status still equals expected.
	// It returns domain.ErrConflict when the row changed or no longer exists.
	SaveIfStatus(ctx context.Context, t *model.Task, expected model.TaskStatus) error
	FindByID(ctx context.Context, id string) (*model.Task, error)
	FindByProviderTaskID(ctx context.Context, providerTaskID string) (*model.Task, error)
	// ListActiveBySession returns pending, running and waiting tasks, most recently updated first.
	ListActiveBySession(ctx context.Context, sessionID string, limit int) ([]*model.Task, error)
	// ListStale returns pending/running tasks not updated since updatedBefore,
	// with no webhook and no reconcile check since webhookBefore.
	ListStale(ctx context.Context, updatedBefore, webhookBefore time.Time, limit int) ([]*model.Task, error)
	MarkChecked(ctx context.Context, id string, at time.Time) error
	// DeleteExpired skips tasks that messages, attachments or webhook events still reference.
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error)
}
