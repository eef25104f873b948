// File: internal/infra/db/postgres/postgres_webhook_event_repo.go
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

var _ repository.WebhookEventRepository = (*WebhookEventRepo)(nil)

type WebhookEventRepo struct {
	db querier
}

func NewWebhookEventRepo(db querier) *WebhookEventRepo {
	return &WebhookEventRepo{db: db}
}

// InsertIfNew is a single statement: a fresh id inserts, a failed row is
// flipped back to pending, anything else returns no row.
func (r *WebhookEventRepo) InsertIfNew(ctx context.Context, e *model.WebhookEvent) (bool, error) {
	const q = `
INSERT INTO webhook_events (event_id, event_type, provider_task_id, status, payload, error, received_at, expires_at)
VALUES ($1,$2,$3,'pending',$4::jsonb,'',$5,$6)
ON CONFLICT (event_id) DO UPDATE SET
  status = 'pending',
  error = '',
  processed_at = NULL,
  payload = EXCLUDED.payload,
  received_at = EXCLUDED.received_at
WHERE webhook_events.status = 'failed'
RETURNING event_id;`
	var payload *string
	if len(e.Payload) > 0 {
		s := string(e.Payload)
		payload = &s
	}
	var id string
	err := r.db.QueryRow(ctx, q, e.EventID, string(e.EventType), e.ProviderTaskID, payload, e.ReceivedAt, e.ExpiresAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert webhook event: %w", err)
	}
	return true, nil
}

func (r *WebhookEventRepo) MarkResult(ctx context.Context, eventID string, status model.ProcessStatus, errMsg string, at time.Time) error {
	const q = `UPDATE webhook_events SET status = $2, error = $3, processed_at = $4 WHERE event_id = $1;`
	tag, err := r.db.Exec(ctx, q, eventID, string(status), errMsg, at)
	if err != nil {
		return fmt.Errorf("mark webhook event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *WebhookEventRepo) FindByEventID(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	const q = `
SELECT event_id, event_type, provider_task_id, status, payload, error, received_at, processed_at, expires_at
FROM webhook_events WHERE event_id = $1;`
	var e model.WebhookEvent
	var typ, status string
	err := r.db.QueryRow(ctx, q, eventID).Scan(&e.EventID, &typ, &e.ProviderTaskID, &status, &e.Payload,
		&e.Error, &e.ReceivedAt, &e.ProcessedAt, &e.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find webhook event: %w", err)
	}
	e.EventType = model.EventType(typ)
	e.Status = model.ProcessStatus(status)
	return &e, nil
}

func (r *WebhookEventRepo) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	const q = `
DELETE FROM webhook_events WHERE event_id IN (
  SELECT event_id FROM webhook_events WHERE expires_at < $1 ORDER BY expires_at LIMIT $2
);`
	tag, err := r.db.Exec(ctx, q, now, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired webhook events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
