package repository

import (
	"context"
	"time"

	"chat-task-bridge/internal/domain/model"
)

type MessageRepository interface {
	// Insert reports inserted=false when the channel message id already exists.
	Insert(ctx context.Context, m *model.Message) (inserted bool, err error)
	ExistsByChannelMessageID(ctx context.Context, channelMessageID string) (bool, error)
	// UpdateRoute stores the routing decision and the task the message was linked to.
	UpdateRoute(ctx context.Context, id string, action model.RouteAction, reason, taskID string) error
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*model.Message, error)
	DeleteExpired(ctx context.Context, now time.Time, limit int) (int, error)
}
