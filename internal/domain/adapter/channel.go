package adapter

import (
	"context"

	"chat-task-bridge/internal/domain/model"
)

// Media is an outbound file for a channel.
type Media struct {
	Data     []byte
	MimeType string
	FileName string
	Caption  string
}

// ChannelGateway is a domain-level port for a chat channel connection.
// Implementations must be safe for concurrent use.
type ChannelGateway interface {
	Name() string
	SendText(ctx context.Context, chatID, text string) error
	SendMedia(ctx context.Context, chatID string, m Media) error
	SetTyping(ctx context.Context, chatID string, on bool) error
	IsConnected() bool
	DownloadMedia(ctx context.Context, ref string) ([]byte, error)
}

// InboundHandler receives raw messages from a gateway.
type InboundHandler func(ctx context.Context, msg model.RawChannelMessage)

// SendResult reports what happened to an outbound item. Sends never fail
// outright; undelivered items stay queued.
type SendResult struct {
	Delivered bool
	Queued    bool
}

// OutboundSender is the reliable outbound path used by every workflow.
type OutboundSender interface {
	SendText(ctx context.Context, chatID, text string) SendResult
	SendMedia(ctx context.Context, chatID string, m Media) SendResult
	SetTyping(ctx context.Context, chatID string, on bool)
}
