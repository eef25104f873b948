package memstore

import (
	"context"
	"time"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/model"
)

type sessionRepo struct{ s *Store }

func sessionKey(channel, chatID, userID string) string {
	return channel + "|" + chatID + "|" + userID
}

func cloneSession(in *model.ChannelSession) *model.ChannelSession {
	out := *in
	out.LastConnectors = copyStrings(in.LastConnectors)
	return &out
}

func (r *sessionRepo) Upsert(_ context.Context, sess *model.ChannelSession) (*model.ChannelSession, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := sessionKey(sess.Channel, sess.ChatID, sess.UserID)
	if id, ok := r.s.sessionKeys[key]; ok {
		cur := r.s.sessions[id]
		cur.LastActivityAt = sess.LastActivityAt
		cur.ExpiresAt = sess.ExpiresAt
		cur.Status = model.SessionActive
		return cloneSession(cur), nil
	}
	stored := cloneSession(sess)
	if stored.ID == "" {
		stored.ID = model.NewID()
	}
	r.s.sessions[stored.ID] = stored
	r.s.sessionKeys[key] = stored.ID
	return cloneSession(stored), nil
}

func (r *sessionRepo) FindByID(_ context.Context, id string) (*model.ChannelSession, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	cur, ok := r.s.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneSession(cur), nil
}

func (r *sessionRepo) SetLastConnectors(_ context.Context, id string, connectorIDs []string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.sessions[id]
	if !ok {
		return domain.ErrNotFound
	}
	cur.LastConnectors = copyStrings(connectorIDs)
	return nil
}

func (r *sessionRepo) DeleteExpired(_ context.Context, now time.Time, limit int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	referenced := make(map[string]bool)
	for _, t := range r.s.tasks {
		referenced[t.SessionID] = true
	}
	for _, m := range r.s.messages {
		referenced[m.SessionID] = true
	}
	ids := sortedExpired(r.s.sessions,
		func(v *model.ChannelSession) time.Time { return v.ExpiresAt }, now,
		func(id string, _ *model.ChannelSession) bool { return referenced[id] }, limit)
	for _, id := range ids {
		cur := r.s.sessions[id]
		delete(r.s.sessionKeys, sessionKey(cur.Channel, cur.ChatID, cur.UserID))
		delete(r.s.sessions, id)
	}
	return len(ids), nil
}
