package memstore

import (
	"context"
	"time"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/model"
)

type eventRepo struct{ s *Store }

func cloneEvent(in *model.WebhookEvent) *model.WebhookEvent {
	out := *in
	out.Payload = append([]byte(nil), in.Payload...)
	out.ProcessedAt = copyTime(in.ProcessedAt)
	return &out
}

func (r *eventRepo) InsertIfNew(_ context.Context, e *model.WebhookEvent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if cur, ok := r.s.events[e.EventID]; ok {
		if cur.Status != model.ProcessFailed {
			return false, nil
		}
		cur.Status = model.ProcessPending
		cur.Error = ""
		cur.ProcessedAt = nil
		cur.Payload = append([]byte(nil), e.Payload...)
		cur.ReceivedAt = e.ReceivedAt
		return true, nil
	}
	stored := cloneEvent(e)
	stored.Status = model.ProcessPending
	r.s.events[e.EventID] = stored
	return true, nil
}

func (r *eventRepo) MarkResult(_ context.Context, eventID string, status model.ProcessStatus, errMsg string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.events[eventID]
	if !ok {
		return domain.ErrNotFound
	}
	cur.Status = status
	cur.Error = errMsg
	cur.ProcessedAt = &at
	return nil
}

func (r *eventRepo) FindByEventID(_ context.Context, eventID string) (*model.WebhookEvent, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	cur, ok := r.s.events[eventID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneEvent(cur), nil
}

func (r *eventRepo) DeleteExpired(_ context.Context, now time.Time, limit int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := sortedExpired(r.s.events, func(v *model.WebhookEvent) time.Time { return v.ExpiresAt }, now, nil, limit)
	for _, id := range ids {
		delete(r.s.events, id)
	}
	return len(ids), nil
}
