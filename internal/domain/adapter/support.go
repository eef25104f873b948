package adapter

import (
	"context"
	"time"

	"chat-task-bridge/internal/domain/model"
)

// LocalResponder answers messages that never reach the provider.
type LocalResponder interface {
	Respond(ctx context.Context, text string, active []*model.Task) (reply string, handled bool)
}

type ConnectorCatalog interface {
	List(ctx context.Context) ([]model.Connector, error)
}

// FileFetcher downloads provider attachments.
type FileFetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, contentType string, err error)
}

type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Locker is a mutual exclusion lease. TryLock returns domain.ErrLockHeld when
// another owner holds the key.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
