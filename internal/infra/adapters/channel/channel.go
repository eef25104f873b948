// Package channel holds the chat channel gateways. Each gateway delivers
// inbound messages to an adapter.InboundHandler and reports connectivity so
// the outbound queue can flush on reconnect.
package channel

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"chat-task-bridge/internal/config"
	"chat-task-bridge/internal/domain/adapter"
)

// Gateway is a ChannelGateway with a receive loop.
type Gateway interface {
	adapter.ChannelGateway
	// Run receives until ctx is done. handler may be called concurrently.
	Run(ctx context.Context, handler adapter.InboundHandler) error
	// OnConnect registers fn to run after every (re)connect.
	OnConnect(fn func())
}

func New(cfg config.ChannelConfig, logger *zerolog.Logger) (Gateway, error) {
	switch cfg.Kind {
	case "telegram":
		return NewTelegram(cfg.Token, cfg.Workers, logger)
	case "whatsapp":
		return NewWhatsApp(cfg.BridgeURL, cfg.Workers, logger)
	case "", "noop":
		return NewNoop(logger), nil
	default:
		return nil, fmt.Errorf("unknown channel kind %q", cfg.Kind)
	}
}
