package model

import (
	"time"

	"chat-task-bridge/internal/domain"
)

type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionClosed  SessionStatus = "closed"
	SessionExpired SessionStatus = "expired"
)

// ChannelSession is one conversation on a chat channel, keyed by (channel, chat, user).
type ChannelSession struct {
	ID             string
	Channel        string
	ChatID         string
	UserID         string
	Status         SessionStatus
	LastConnectors []string
	LastActivityAt time.Time
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// NewChannelSession builds an active session whose expiry is ttl after now.
func NewChannelSession(channel, chatID, userID string, now time.Time, ttl time.Duration) (*ChannelSession, error) {
	if channel == "" || chatID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &ChannelSession{
		ID:             NewID(),
		Channel:        channel,
		ChatID:         chatID,
		UserID:         userID,
		Status:         SessionActive,
		LastActivityAt: now,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	}, nil
}

// Touch refreshes activity and pushes the expiry forward.
func (s *ChannelSession) Touch(now time.Time, ttl time.Duration) {
	s.LastActivityAt = now
	s.ExpiresAt = now.Add(ttl)
	if s.Status == SessionExpired {
		s.Status = SessionActive
	}
}
