package model

import "time"

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

type RouteAction string

const (
	RouteContinue RouteAction = "continue"
	RouteNew      RouteAction = "new"
)

// Message is a single inbound or outbound chat message. ChannelMessageID is
// empty for messages the channel did not identify, and unique otherwise.
type Message struct {
	ID               string
	SessionID        string
	Direction        Direction
	ChannelMessageID string
	SenderID         string
	Text             string
	Payload          map[string]any
	TaskID           string
	RouteAction      RouteAction
	RouteReason      string
	CreatedAt        time.Time
	ExpiresAt        time.Time
}

func NewInboundMessage(sessionID string, n *NormalizedMessage, now time.Time, ttl time.Duration) *Message {
	m := &Message{
		ID:               NewMessageID(now),
		SessionID:        sessionID,
		Direction:        DirectionInbound,
		ChannelMessageID: n.ChannelMessageID,
		SenderID:         n.SenderID,
		Text:             n.Text,
		CreatedAt:        now,
		ExpiresAt:        now.Add(ttl),
	}
	if n.Attachment != nil {
		m.Payload = map[string]any{
			"attachment": map[string]any{
				"kind":       string(n.Attachment.Kind),
				"mime_type":  n.Attachment.MimeType,
				"file_name":  n.Attachment.FileName,
				"size_bytes": n.Attachment.SizeBytes,
			},
		}
	}
	return m
}

func NewOutboundMessage(sessionID, taskID, text string, now time.Time, ttl time.Duration) *Message {
	return &Message{
		ID:        NewMessageID(now),
		SessionID: sessionID,
		Direction: DirectionOutbound,
		Text:      text,
		TaskID:    taskID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}
