package repository

import (
	"context"
	"time"

	"chat-task-bridge/internal/domain/model"
)

// SessionRepository must support concurrent calls.
type SessionRepository interface {
	// Upsert inserts the session or, when (channel, chat, user) already exists,
	// refreshes its activity, expiry and status. It returns the stored row.
	Upsert(ctx context.Context, s *model.ChannelSession) (*model.ChannelSession, error)
	// FindByID returns domain.ErrNotFound if missing
	FindByID(ctx context.Context, id string) (*model.ChannelSession, error)
	SetLastConnectors(ctx context.Context, id string, connectorIDs []string) error
	// DeleteExpired removes up to limit expired sessions that no task or message references.
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error)
}
