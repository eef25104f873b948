package repository

import (
	"context"
	"time"

	"chat-task-bridge/internal/domain/model"
)

type MemoryRepository interface {
	Insert(ctx context.Context, m *model.MemoryRecord) error
	// ListActive returns non-superseded, non-expired records in insertion order.
	ListActive(ctx context.Context, now time.Time) ([]*model.MemoryRecord, error)
	MarkSuperseded(ctx context.Context, id, byID string, at time.Time) error
	Touch(ctx context.Context, ids []string, at time.Time) error
	// DeleteExpired removes expired records and records superseded before supersededBefore.
	DeleteExpired(ctx context.Context, now, supersededBefore time.Time, limit int) (int, error)
}
