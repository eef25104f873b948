// File: internal/infra/db/postgres/postgres_task_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/domain/repository"
)

var _ repository.TaskRepository = (*TaskRepo)(nil)

type TaskRepo struct {
	db querier
}

func NewTaskRepo(db querier) *TaskRepo {
	return &TaskRepo{db: db}
}

const taskColumns = `id, session_id, provider_task_id, status, stop_reason, title, url, last_message,
original_prompt, connectors, created_by_message_id, created_at, updated_at, stopped_at,
last_webhook_at, last_checked_at, expires_at`

func scanTask(row pgx.Row) (*model.Task, error) {
	var t model.Task
	var status, stop string
	if err := row.Scan(&t.ID, &t.SessionID, &t.ProviderTaskID, &status, &stop, &t.Title, &t.URL,
		&t.LastMessage, &t.OriginalPrompt, &t.Connectors, &t.CreatedByMessageID, &t.CreatedAt,
		&t.UpdatedAt, &t.StoppedAt, &t.LastWebhookAt, &t.LastCheckedAt, &t.ExpiresAt); err != nil {
		return nil, err
	}
	t.Status = model.TaskStatus(status)
	t.StopReason = model.StopReason(stop)
	return &t, nil
}

func (r *TaskRepo) Create(ctx context.Context, t *model.Task) error {
	const q = `
INSERT INTO tasks (` + taskColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17);`
	_, err := r.db.Exec(ctx, q, t.ID, t.SessionID, t.ProviderTaskID, string(t.Status), string(t.StopReason),
		t.Title, t.URL, t.LastMessage, t.OriginalPrompt, emptyIfNil(t.Connectors), t.CreatedByMessageID,
		t.CreatedAt, t.UpdatedAt, t.StoppedAt, t.LastWebhookAt, t.LastCheckedAt, t.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepo) Save(ctx context.Context, t *model.Task) error {
	const q = `
UPDATE tasks SET
  status = $2, stop_reason = $3, title = $4, url = $5, last_message = $6, connectors = $7,
  updated_at = $8, stopped_at = $9, last_webhook_at = $10, last_checked_at = $11, expires_at = $12
WHERE id = $1;`
	tag, err := r.db.Exec(ctx, q, t.ID, string(t.Status), string(t.StopReason), t.Title, t.URL, t.LastMessage,
		emptyIfNil(t.Connectors), t.UpdatedAt, t.StoppedAt, t.LastWebhookAt, t.LastCheckedAt, t.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *TaskRepo) SaveIfStatus(ctx context.Context, t *model.Task, expected model.TaskStatus) error {
	const q = `
UPDATE tasks SET
  status = $2, stop_reason = $3, title = $4, url = $5, last_message = $6, connectors = $7,
  updated_at = $8, stopped_at = $9, last_webhook_at = $10, last_checked_at = $11, expires_at = $12
WHERE id = $1 AND status = $13;`
	tag, err := r.db.Exec(ctx, q, t.ID, string(t.Status), string(t.StopReason), t.Title, t.URL, t.LastMessage,
		emptyIfNil(t.Connectors), t.UpdatedAt, t.StoppedAt, t.LastWebhookAt, t.LastCheckedAt, t.ExpiresAt,
		string(expected))
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *TaskRepo) findOne(ctx context.Context, where string, arg string) (*model.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks WHERE ` + where + ` = $1;`
	t, err := scanTask(r.db.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find task: %w", err)
	}
	return t, nil
}

func (r *TaskRepo) FindByID(ctx context.Context, id string) (*model.Task, error) {
	return r.findOne(ctx, "id", id)
}

func (r *TaskRepo) FindByProviderTaskID(ctx context.Context, providerTaskID string) (*model.Task, error) {
	return r.findOne(ctx, "provider_task_id", providerTaskID)
}

func (r *TaskRepo) list(ctx context.Context, q string, args ...interface{}) ([]*model.Task, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TaskRepo) ListActiveBySession(ctx context.Context, sessionID string, limit int) ([]*model.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks
WHERE session_id = $1 AND status IN ('pending','running','waiting_user')
ORDER BY updated_at DESC LIMIT $2;`
	return r.list(ctx, q, sessionID, limit)
}

func (r *TaskRepo) ListStale(ctx context.Context, updatedBefore, webhookBefore time.Time, limit int) ([]*model.Task, error) {
	q := `SELECT ` + taskColumns + ` FROM tasks
WHERE status IN ('pending','running')
  AND updated_at < $1
  AND (last_webhook_at IS NULL OR last_webhook_at < $2)
  AND (last_checked_at IS NULL OR last_checked_at < $2)
ORDER BY updated_at ASC LIMIT $3;`
	return r.list(ctx, q, updatedBefore, webhookBefore, limit)
}

func (r *TaskRepo) MarkChecked(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE tasks SET last_checked_at = $2 WHERE id = $1;`
	tag, err := r.db.Exec(ctx, q, id, at)
	if err != nil {
		return fmt.Errorf("mark checked: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *TaskRepo) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	const q = `
DELETE FROM tasks WHERE id IN (
  SELECT t.id FROM tasks t
  WHERE t.expires_at < $1
    AND NOT EXISTS (SELECT 1 FROM messages m WHERE m.task_id = t.id)
    AND NOT EXISTS (SELECT 1 FROM attachments a WHERE a.task_id = t.id)
    AND NOT EXISTS (SELECT 1 FROM webhook_events e WHERE e.provider_task_id = t.provider_task_id)
  ORDER BY t.expires_at
  LIMIT $2
);`
	tag, err := r.db.Exec(ctx, q, now, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired tasks: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
