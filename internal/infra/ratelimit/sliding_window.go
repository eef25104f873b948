package ratelimit

import (
	"context"
	"sync"
	"time"

	"chat-task-bridge/internal/domain/adapter"
)

// maxTrackedKeys caps memory when senders rotate ids.
const maxTrackedKeys = 4096

var _ adapter.RateLimiter = (*SlidingWindow)(nil)

// SlidingWindow admits at most limit events per key within any window-long
// interval. Safe for concurrent use.
type SlidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	hits   map[string][]time.Time
	now    func() time.Time
}

func NewSlidingWindow(limit int, window time.Duration) *SlidingWindow {
	return &SlidingWindow{
		limit:  limit,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

func (s *SlidingWindow) Allow(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cutoff := now.Add(-s.window)

	if _, ok := s.hits[key]; !ok && len(s.hits) >= maxTrackedKeys {
		s.pruneLocked(cutoff)
		for len(s.hits) >= maxTrackedKeys {
			for k := range s.hits {
				delete(s.hits, k)
				break
			}
		}
	}

	kept := s.hits[key][:0]
	for _, t := range s.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= s.limit {
		s.hits[key] = kept
		return false, nil
	}
	s.hits[key] = append(kept, now)
	return true, nil
}

// Reset forgets all keys.
func (s *SlidingWindow) Reset() {
	s.mu.Lock()
	s.hits = make(map[string][]time.Time)
	s.mu.Unlock()
}

func (s *SlidingWindow) pruneLocked(cutoff time.Time) {
	for k, ts := range s.hits {
		if len(ts) == 0 || !ts[len(ts)-1].After(cutoff) {
			delete(s.hits, k)
		}
	}
}
