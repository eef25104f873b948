package memstore

import (
	"context"
	"sort"
	"time"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/model"
)

type taskRepo struct{ s *Store }

func cloneTask(in *model.Task) *model.Task {
	out := *in
	out.Connectors = copyStrings(in.Connectors)
	out.StoppedAt = copyTime(in.StoppedAt)
	out.LastWebhookAt = copyTime(in.LastWebhookAt)
	out.LastCheckedAt = copyTime(in.LastCheckedAt)
	return &out
}

func (r *taskRepo) Create(_ context.Context, t *model.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, dup := r.s.providerIDs[t.ProviderTaskID]; dup {
		return domain.ErrAlreadyExists
	}
	if _, dup := r.s.tasks[t.ID]; dup {
		return domain.ErrAlreadyExists
	}
	r.s.tasks[t.ID] = cloneTask(t)
	r.s.providerIDs[t.ProviderTaskID] = t.ID
	return nil
}

func (r *taskRepo) Save(_ context.Context, t *model.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tasks[t.ID]; !ok {
		return domain.ErrNotFound
	}
	r.s.tasks[t.ID] = cloneTask(t)
	return nil
}

func (r *taskRepo) SaveIfStatus(_ context.Context, t *model.Task, expected model.TaskStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.tasks[t.ID]
	if !ok || cur.Status != expected {
		return domain.ErrConflict
	}
	r.s.tasks[t.ID] = cloneTask(t)
	return nil
}

func (r *taskRepo) FindByID(_ context.Context, id string) (*model.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneTask(t), nil
}

func (r *taskRepo) FindByProviderTaskID(_ context.Context, providerTaskID string) (*model.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.providerIDs[providerTaskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneTask(r.s.tasks[id]), nil
}

func (r *taskRepo) ListActiveBySession(_ context.Context, sessionID string, limit int) ([]*model.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Task
	for _, t := range r.s.tasks {
		if t.SessionID == sessionID && t.IsActive() {
			out = append(out, cloneTask(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *taskRepo) ListStale(_ context.Context, updatedBefore, webhookBefore time.Time, limit int) ([]*model.Task, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Task
	for _, t := range r.s.tasks {
		if t.Status != model.TaskPending && t.Status != model.TaskRunning {
			continue
		}
		if !t.UpdatedAt.Before(updatedBefore) {
			continue
		}
		if t.LastWebhookAt != nil && !t.LastWebhookAt.Before(webhookBefore) {
			continue
		}
		if t.LastCheckedAt != nil && !t.LastCheckedAt.Before(webhookBefore) {
			continue
		}
		out = append(out, cloneTask(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *taskRepo) MarkChecked(_ context.Context, id string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.LastCheckedAt = &at
	return nil
}

func (r *taskRepo) DeleteExpired(_ context.Context, now time.Time, limit int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	referenced := make(map[string]bool)
	for _, m := range r.s.messages {
		if m.TaskID != "" {
			referenced[m.TaskID] = true
		}
	}
	for _, a := range r.s.attachments {
		referenced[a.TaskID] = true
	}
	for _, e := range r.s.events {
		if id, ok := r.s.providerIDs[e.ProviderTaskID]; ok {
			referenced[id] = true
		}
	}
	ids := sortedExpired(r.s.tasks,
		func(v *model.Task) time.Time { return v.ExpiresAt }, now,
		func(id string, _ *model.Task) bool { return referenced[id] }, limit)
	for _, id := range ids {
		delete(r.s.providerIDs, r.s.tasks[id].ProviderTaskID)
		delete(r.s.tasks, id)
	}
	return len(ids), nil
}
