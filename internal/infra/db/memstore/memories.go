package memstore

import (
	"context"
	"time"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/model"
)

type memoryRepo struct{ s *Store }

func cloneMemory(in *model.MemoryRecord) *model.MemoryRecord {
	out := *in
	out.SupersededAt = copyTime(in.SupersededAt)
	out.LastAccessedAt = copyTime(in.LastAccessedAt)
	out.ExpiresAt = copyTime(in.ExpiresAt)
	return &out
}

func (r *memoryRepo) Insert(_ context.Context, m *model.MemoryRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, dup := r.s.memories[m.ID]; dup {
		return domain.ErrAlreadyExists
	}
	r.s.memories[m.ID] = cloneMemory(m)
	r.s.memOrder = append(r.s.memOrder, m.ID)
	return nil
}

func (r *memoryRepo) ListActive(_ context.Context, now time.Time) ([]*model.MemoryRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.MemoryRecord
	for _, id := range r.s.memOrder {
		m, ok := r.s.memories[id]
		if !ok || m.SupersededBy != "" {
			continue
		}
		if m.ExpiresAt != nil && !m.ExpiresAt.After(now) {
			continue
		}
		out = append(out, cloneMemory(m))
	}
	return out, nil
}

func (r *memoryRepo) MarkSuperseded(_ context.Context, id, byID string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.memories[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.SupersededBy = byID
	m.SupersededAt = &at
	return nil
}

func (r *memoryRepo) Touch(_ context.Context, ids []string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		if m, ok := r.s.memories[id]; ok {
			t := at
			m.LastAccessedAt = &t
		}
	}
	return nil
}

func (r *memoryRepo) DeleteExpired(_ context.Context, now, supersededBefore time.Time, limit int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	deleted := 0
	gone := make(map[string]bool)
	for _, id := range r.s.memOrder {
		if limit > 0 && deleted >= limit {
			break
		}
		m := r.s.memories[id]
		expired := m.ExpiresAt != nil && m.ExpiresAt.Before(now)
		retired := m.SupersededAt != nil && m.SupersededAt.Before(supersededBefore)
		if expired || retired {
			delete(r.s.memories, id)
			gone[id] = true
			deleted++
		}
	}
	if deleted > 0 {
		kept := r.s.memOrder[:0]
		for _, id := range r.s.memOrder {
			if !gone[id] {
				kept = append(kept, id)
			}
		}
		r.s.memOrder = kept
	}
	return deleted, nil
}
