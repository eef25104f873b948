// File: internal/infra/db/postgres/postgres_attachment_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/domain/repository"
)

var _ repository.AttachmentRepository = (*AttachmentRepo)(nil)

type AttachmentRepo struct {
	db querier
}

func NewAttachmentRepo(db querier) *AttachmentRepo {
	return &AttachmentRepo{db: db}
}

func (r *AttachmentRepo) Insert(ctx context.Context, a *model.Attachment) error {
	const q = `
INSERT INTO attachments (id, task_id, event_id, file_name, url, mime_type, size_bytes, created_at, expires_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9);`
	_, err := r.db.Exec(ctx, q, a.ID, a.TaskID, a.EventID, a.FileName, a.URL, a.MimeType, a.SizeBytes, a.CreatedAt, a.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (r *AttachmentRepo) ListByTask(ctx context.Context, taskID string) ([]*model.Attachment, error) {
	const q = `
SELECT id, task_id, event_id, file_name, url, mime_type, size_bytes, created_at, expires_at
FROM attachments WHERE task_id = $1 ORDER BY created_at;`
	rows, err := r.db.Query(ctx, q, taskID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()
	var out []*model.Attachment
	for rows.Next() {
		var a model.Attachment
		if err := rows.Scan(&a.ID, &a.TaskID, &a.EventID, &a.FileName, &a.URL, &a.MimeType, &a.SizeBytes,
			&a.CreatedAt, &a.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (r *AttachmentRepo) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	const q = `
DELETE FROM attachments WHERE id IN (
  SELECT id FROM attachments WHERE expires_at < $1 ORDER BY expires_at LIMIT $2
);`
	tag, err := r.db.Exec(ctx, q, now, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired attachments: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
