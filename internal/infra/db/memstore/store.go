// Package memstore keeps every repository in process memory. It enforces the
// same unique keys and reference checks as the Postgres schema and backs dev
// mode and use-case tests.
package memstore

import (
	"sort"
	"sync"
	"time"

	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/domain/repository"
)

// Store shares one lock across entities so reference checks during sweeps
// see a consistent view.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*model.ChannelSession
	sessionKeys map[string]string // channel|chat|user -> id
	messages    map[string]*model.Message
	msgOrder    []string
	channelIDs  map[string]string // channel message id -> message id
	tasks       map[string]*model.Task
	providerIDs map[string]string // provider task id -> task id
	events      map[string]*model.WebhookEvent
	attachments map[string]*model.Attachment
	memories    map[string]*model.MemoryRecord
	memOrder    []string
}

func New() *Store {
	return &Store{
		sessions:    make(map[string]*model.ChannelSession),
		sessionKeys: make(map[string]string),
		messages:    make(map[string]*model.Message),
		channelIDs:  make(map[string]string),
		tasks:       make(map[string]*model.Task),
		providerIDs: make(map[string]string),
		events:      make(map[string]*model.WebhookEvent),
		attachments: make(map[string]*model.Attachment),
		memories:    make(map[string]*model.MemoryRecord),
	}
}

// Repositories exposes the store through the repository interfaces.
func (s *Store) Repositories() repository.Repositories {
	return repository.Repositories{
		Sessions:    &sessionRepo{s},
		Messages:    &messageRepo{s},
		Tasks:       &taskRepo{s},
		Events:      &eventRepo{s},
		Attachments: &attachmentRepo{s},
		Memories:    &memoryRepo{s},
	}
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// sortedExpired returns up to limit keys whose expiry is before now, oldest first.
func sortedExpired[T any](m map[string]T, expires func(T) time.Time, now time.Time, skip func(string, T) bool, limit int) []string {
	type kv struct {
		id  string
		exp time.Time
	}
	var cand []kv
	for id, v := range m {
		exp := expires(v)
		if exp.IsZero() || !exp.Before(now) {
			continue
		}
		if skip != nil && skip(id, v) {
			continue
		}
		cand = append(cand, kv{id, exp})
	}
	sort.Slice(cand, func(i, j int) bool { return cand[i].exp.Before(cand[j].exp) })
	if limit > 0 && len(cand) > limit {
		cand = cand[:limit]
	}
	ids := make([]string, len(cand))
	for i, c := range cand {
		ids[i] = c.id
	}
	return ids
}
