package redis

import (
	"context"
	"strconv"
	"time"

	"chat-task-bridge/internal/domain/adapter"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var _ adapter.RateLimiter = (*RateLimiter)(nil)

// RateLimiter is a per-key sliding window backed by a sorted set, shared by
// every replica that points at the same Redis.
type RateLimiter struct {
	client *Client
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(client *Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window, now: time.Now}
}

// KEYS[1] window key; ARGV: now_ms, window_ms, limit, member
var luaSlidingWindow = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1] - ARGV[2])
local count = redis.call("ZCARD", KEYS[1])
if count >= tonumber(ARGV[3]) then
	return 0
end
redis.call("ZADD", KEYS[1], ARGV[1], ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return 1`)

func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	nowMs := r.now().UnixMilli()
	res, err := luaSlidingWindow.Run(ctx, r.client.cli, []string{SenderKey(key)},
		strconv.FormatInt(nowMs, 10),
		strconv.FormatInt(r.window.Milliseconds(), 10),
		strconv.Itoa(r.limit),
		uuid.NewString(),
	).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

func SenderKey(senderID string) string {
	return "bridge:rate_limit:" + senderID
}
