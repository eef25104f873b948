package memstore

import (
	"context"
	"time"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/model"
)

type messageRepo struct{ s *Store }

func cloneMessage(in *model.Message) *model.Message {
	out := *in
	if in.Payload != nil {
		out.Payload = make(map[string]any, len(in.Payload))
		for k, v := range in.Payload {
			out.Payload[k] = v
		}
	}
	return &out
}

func (r *messageRepo) Insert(_ context.Context, m *model.Message) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if m.ChannelMessageID != "" {
		if _, dup := r.s.channelIDs[m.ChannelMessageID]; dup {
			return false, nil
		}
	}
	if _, dup := r.s.messages[m.ID]; dup {
		return false, nil
	}
	r.s.messages[m.ID] = cloneMessage(m)
	r.s.msgOrder = append(r.s.msgOrder, m.ID)
	if m.ChannelMessageID != "" {
		r.s.channelIDs[m.ChannelMessageID] = m.ID
	}
	return true, nil
}

func (r *messageRepo) ExistsByChannelMessageID(_ context.Context, channelMessageID string) (bool, error) {
	if channelMessageID == "" {
		return false, nil
	}
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	_, ok := r.s.channelIDs[channelMessageID]
	return ok, nil
}

func (r *messageRepo) UpdateRoute(_ context.Context, id string, action model.RouteAction, reason, taskID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.messages[id]
	if !ok {
		return domain.ErrNotFound
	}
	cur.RouteAction = action
	cur.RouteReason = reason
	if taskID != "" {
		cur.TaskID = taskID
	}
	return nil
}

// ListBySession returns the newest limit messages in insertion order.
func (r *messageRepo) ListBySession(_ context.Context, sessionID string, limit int) ([]*model.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*model.Message
	for i := len(r.s.msgOrder) - 1; i >= 0; i-- {
		m, ok := r.s.messages[r.s.msgOrder[i]]
		if !ok || m.SessionID != sessionID {
			continue
		}
		out = append(out, cloneMessage(m))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *messageRepo) DeleteExpired(_ context.Context, now time.Time, limit int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := sortedExpired(r.s.messages, func(v *model.Message) time.Time { return v.ExpiresAt }, now, nil, limit)
	gone := make(map[string]bool, len(ids))
	for _, id := range ids {
		if cid := r.s.messages[id].ChannelMessageID; cid != "" {
			delete(r.s.channelIDs, cid)
		}
		delete(r.s.messages, id)
		gone[id] = true
	}
	if len(gone) > 0 {
		kept := r.s.msgOrder[:0]
		for _, id := range r.s.msgOrder {
			if !gone[id] {
				kept = append(kept, id)
			}
		}
		r.s.msgOrder = kept
	}
	return len(ids), nil
}
