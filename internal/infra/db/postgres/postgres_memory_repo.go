// File: internal/infra/db/postgres/postgres_memory_repo.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/domain/repository"
)

var _ repository.MemoryRepository = (*MemoryRepo)(nil)

type MemoryRepo struct {
	db querier
}

func NewMemoryRepo(db querier) *MemoryRepo {
	return &MemoryRepo{db: db}
}

func (r *MemoryRepo) Insert(ctx context.Context, m *model.MemoryRecord) error {
	const q = `
INSERT INTO memory_records (id, category, content, source, source_task_id, confidence, created_at, expires_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8);`
	_, err := r.db.Exec(ctx, q, m.ID, string(m.Category), m.Content, string(m.Source), m.SourceTaskID,
		m.Confidence, m.CreatedAt, m.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func (r *MemoryRepo) ListActive(ctx context.Context, now time.Time) ([]*model.MemoryRecord, error) {
	const q = `
SELECT id, category, content, source, source_task_id, confidence, created_at, last_accessed_at, expires_at
FROM memory_records
WHERE superseded_by IS NULL AND (expires_at IS NULL OR expires_at > $1)
ORDER BY created_at, id;`
	rows, err := r.db.Query(ctx, q, now)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()
	var out []*model.MemoryRecord
	for rows.Next() {
		var m model.MemoryRecord
		var category, source string
		if err := rows.Scan(&m.ID, &category, &m.Content, &source, &m.SourceTaskID, &m.Confidence,
			&m.CreatedAt, &m.LastAccessedAt, &m.ExpiresAt); err != nil {
			return nil, err
		}
		m.Category = model.MemoryCategory(category)
		m.Source = model.MemorySource(source)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *MemoryRepo) MarkSuperseded(ctx context.Context, id, byID string, at time.Time) error {
	const q = `UPDATE memory_records SET superseded_by = $2, superseded_at = $3 WHERE id = $1;`
	tag, err := r.db.Exec(ctx, q, id, byID, at)
	if err != nil {
		return fmt.Errorf("supersede memory: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MemoryRepo) Touch(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	const q = `UPDATE memory_records SET last_accessed_at = $2 WHERE id = ANY($1);`
	if _, err := r.db.Exec(ctx, q, ids, at); err != nil {
		return fmt.Errorf("touch memories: %w", err)
	}
	return nil
}

func (r *MemoryRepo) DeleteExpired(ctx context.Context, now, supersededBefore time.Time, limit int) (int, error) {
	const q = `
DELETE FROM memory_records WHERE id IN (
  SELECT id FROM memory_records
  WHERE (expires_at IS NOT NULL AND expires_at < $1)
     OR (superseded_at IS NOT NULL AND superseded_at < $2)
  ORDER BY created_at
  LIMIT $3
);`
	tag, err := r.db.Exec(ctx, q, now, supersededBefore, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired memories: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
