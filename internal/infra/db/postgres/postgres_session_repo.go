// File: internal/infra/db/postgres/postgres_session_repo.go
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

var _ repository.SessionRepository = (*SessionRepo)(nil)

type SessionRepo struct {
	db querier
}

func NewSessionRepo(db querier) *SessionRepo {
	return &SessionRepo{db: db}
}

const sessionColumns = `id, channel, chat_id, user_id, status, last_connectors, last_activity_at, created_at, expires_at`

func scanSession(row pgx.Row) (*model.ChannelSession, error) {
	var s model.ChannelSession
	var status string
	if err := row.Scan(&s.ID, &s.Channel, &s.ChatID, &s.UserID, &status, &s.LastConnectors,
		&s.LastActivityAt, &s.CreatedAt, &s.ExpiresAt); err != nil {
		return nil, err
	}
	s.Status = model.SessionStatus(status)
	return &s, nil
}

func (r *SessionRepo) Upsert(ctx context.Context, s *model.ChannelSession) (*model.ChannelSession, error) {
	const q = `
INSERT INTO channel_sessions (id, channel, chat_id, user_id, status, last_connectors, last_activity_at, created_at, expires_at)
VALUES ($1,$2,$3,$4,'active',$5,$6,$7,$8)
ON CONFLICT (channel, chat_id, user_id) DO UPDATE SET
  status = 'active',
  last_activity_at = EXCLUDED.last_activity_at,
  expires_at = EXCLUDED.expires_at
RETURNING ` + sessionColumns + `;`
	id := s.ID
	if id == "" {
		id = model.NewID()
	}
	out, err := scanSession(r.db.QueryRow(ctx, q, id, s.Channel, s.ChatID, s.UserID,
		emptyIfNil(s.LastConnectors), s.LastActivityAt, s.CreatedAt, s.ExpiresAt))
	if err != nil {
		return nil, fmt.Errorf("upsert session: %w", err)
	}
	return out, nil
}

func (r *SessionRepo) FindByID(ctx context.Context, id string) (*model.ChannelSession, error) {
	q := `SELECT ` + sessionColumns + ` FROM channel_sessions WHERE id = $1;`
	s, err := scanSession(r.db.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return s, nil
}

func (r *SessionRepo) SetLastConnectors(ctx context.Context, id string, connectorIDs []string) error {
	const q = `UPDATE channel_sessions SET last_connectors = $2 WHERE id = $1;`
	tag, err := r.db.Exec(ctx, q, id, emptyIfNil(connectorIDs))
	if err != nil {
		return fmt.Errorf("set last connectors: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *SessionRepo) DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	const q = `
DELETE FROM channel_sessions WHERE id IN (
  SELECT s.id FROM channel_sessions s
  WHERE s.expires_at < $1
    AND NOT EXISTS (SELECT 1 FROM tasks t WHERE t.session_id = s.id)
    AND NOT EXISTS (SELECT 1 FROM messages m WHERE m.session_id = s.id)
  ORDER BY s.expires_at
  LIMIT $2
);`
	tag, err := r.db.Exec(ctx, q, now, limit)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
