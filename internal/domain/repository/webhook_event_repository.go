package repository

import (
	"context"
	"time"

	"chat-task-bridge/internal/domain/model"
)

type WebhookEventRepository interface {
	// InsertIfNew records the event with status pending. It returns false when
	// the event id is already present, unless the stored row is failed; a failed
	// row is atomically reclaimed back to pending and true is returned.
	InsertIfNew(ctx context.Context, e *model.WebhookEvent) (bool, error)
	MarkResult(ctx context.Context, eventID string, status model.ProcessStatus, errMsg string, at time.Time) error
	FindByEventID(ctx context.Context, eventID string) (*model.WebhookEvent, error)
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error)
}
