package repository

import (
	"context"
	"time"

	"chat-task-bridge/internal/domain/model"
)

type AttachmentRepository interface {
	Insert(ctx context.Context, a *model.Attachment) error
	ListByTask(ctx context.Context, taskID string) ([]*model.Attachment, error)
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error)
}
