package lock

import (
	"context"
	"sync"
	"time"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/adapter"

	"github.com/google/uuid"
)

var _ adapter.Locker = (*Local)(nil)

// Local is a process-wide lease table used when no Redis is configured.
type Local struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

type lease struct {
	token   string
	expires time.Time
}

func NewLocal() *Local {
	return &Local{leases: make(map[string]lease), now: time.Now}
}

func (l *Local) TryLock(_ context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.expires) {
		return "", domain.ErrLockHeld
	}
	token := uuid.NewString()
	l.leases[key] = lease{token: token, expires: now.Add(ttl)}
	return token, nil
}

// Unlock is a no-op when the token no longer owns the key.
func (l *Local) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.leases[key]; ok && cur.token == token {
		delete(l.leases, key)
	}
	return nil
}
