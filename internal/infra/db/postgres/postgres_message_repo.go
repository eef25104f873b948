// File: internal/infra/db/postgres/postgres_message_repo.go
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/domain/repository"
)

var _ repository.MessageRepository = (*MessageRepo)(nil)

type MessageRepo struct {
	db querier
}

func NewMessageRepo(db querier) *MessageRepo {
	return &MessageRepo{db: db}
}

// Insert relies on the unique index on channel_message_id; a conflicting row
// is skipped and reported as inserted=false.
func (r *MessageRepo) Insert(ctx context.Context, m *model.Message) (bool, error) {
	var payload *string
	if m.Payload != nil {
		b, err := json.Marshal(m.Payload)
		if err != nil {
			return false, fmt.Errorf("encode payload: %w", err)
		}
		s := string(b)
		payload = &s
	}
	const q = `
INSERT INTO messages (id, session_id, direction, channel_message_id, sender_id, text, payload, task_id, route_action, route_reason, created_at, expires_at)
VALUES ($1,$2,$3,$4,$5,$6,$7::jsonb,$8,$9,$10,$11,$12)
ON CONFLICT DO NOTHING
RETURNING id;`
	var id string
	err := r.db.QueryRow(ctx, q, m.ID, m.SessionID, string(m.Direction), nullString(m.ChannelMessageID),
		m.SenderID, m.Text, payload, nullString(m.TaskID), string(m.RouteAction), m.RouteReason,
		m.CreatedAt, m.ExpiresAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert message: %w", err)
	}
	return true, nil
}

func (r *MessageRepo) ExistsByChannelMessageID(ctx context.Context, channelMessageID string) (bool, error) {
	if channelMessageID == "" {
		return false, nil
	}
	const q = `SELECT EXISTS (SELECT 1 FROM messages WHERE channel_message_id = $1);`
	var ok bool
	if err := r.db.QueryRow(ctx, q, channelMessageID).Scan(&ok); err != nil {
		return false, fmt.Errorf("message exists: %w", err)
	}
	return ok, nil
}

func (r *MessageRepo) UpdateRoute(ctx context.Context, id string, action model.RouteAction, reason, taskID string) error {
	const q = `
UPDATE messages SET route_action = $2, route_reason = $3, task_id = COALESCE($4, task_id)
WHERE id = $1;`
	tag, err := r.db.Exec(ctx, q, id, string(action), reason, nullString(taskID))
	if err != nil {
		return fmt.Errorf("update route: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *MessageRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]*model.Message, error) {
	const q = `
SELECT id, session_id, direction, channel_message_id, sender_id, text, payload, task_id, route_action, route_reason, created_at, expires_at
FROM (
  SELECT * FROM messages WHERE session_id = $1 ORDER BY id DESC LIMIT $2
) recent ORDER BY id ASC;`
	rows, err := r.db.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	var out []*model.Message
	for rows.Next() {
		var m model.Message
		var direction, action string
		var channelID, taskID *string
		var payload []byte
		if err := rows.Scan(&m.ID, &m.SessionID, &direction, &channelID, &m.SenderID, &m.Text, &payload,
			&taskID, &action, &m.RouteReason, &m.CreatedAt, &m.ExpiresAt); err != nil {
			return nil, err
		}
		m.Direction = model.Direction(direction)
		m.RouteAction = model.RouteAction(action)
		m.ChannelMessageID = deref(channelID)
		m.TaskID = deref(taskID)
		if len(payload) > 0 {
			_ = json.Unmarshal(payload, &m.Payload)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (r *MessageRepo) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	const q = `
DELETE FROM messages WHERE id IN (
  SELECT id FROM messages WHERE expires_at < $1 ORDER BY expires_at LIMIT $2
);`
	tag, err := r.db.Exec(ctx, q, now, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired messages: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
