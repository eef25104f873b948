package memstore

import (
	"context"
	"sort"
	"time"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/model"
)

type attachmentRepo struct{ s *Store }

func (r *attachmentRepo) Insert(_ context.Context, a *model.Attachment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, dup := r.s.attachments[a.ID]; dup {
		return domain.ErrAlreadyExists
	}
	cp := *a
	r.s.attachments[a.ID] = &cp
	return nil
}

func (r *attachmentRepo) ListByTask(_ context.Context, taskID string) ([]*model.Attachment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Attachment
	for _, a := range r.s.attachments {
		if a.TaskID == taskID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *attachmentRepo) DeleteExpired(_ context.Context, now time.Time, limit int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := sortedExpired(r.s.attachments, func(v *model.Attachment) time.Time { return v.ExpiresAt }, now, nil, limit)
	for _, id := range ids {
		delete(r.s.attachments, id)
	}
	return len(ids), nil
}
