package channel

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
)

var _ Gateway = (*Noop)(nil)

// Noop logs outbound traffic instead of sending it. Inject lets dev setups and
// tests push inbound messages through the normal handler.
type Noop struct {
	log *zerolog.Logger

	mu      sync.Mutex
	handler adapter.InboundHandler
	onConn  func()
	Sent    []string
}

func NewNoop(logger *zerolog.Logger) *Noop {
	l := logger.With().Str("component", "channel_noop").Logger()
	return &Noop{log: &l}
}

func (n *Noop) Name() string      { return "noop" }
func (n *Noop) IsConnected() bool { return true }

func (n *Noop) SendText(_ context.Context, chatID, text string) error {
	n.mu.Lock()
	n.Sent = append(n.Sent, text)
	n.mu.Unlock()
	n.log.Info().Str("chat_id", chatID).Str("text", text).Msg("send text")
	return nil
}

func (n *Noop) SendMedia(_ context.Context, chatID string, m adapter.Media) error {
	n.log.Info().Str("chat_id", chatID).Str("file", m.FileName).Str("mime", m.MimeType).Int("bytes", len(m.Data)).Msg("send media")
	return nil
}

func (n *Noop) SetTyping(context.Context, string, bool) error { return nil }

func (n *Noop) DownloadMedia(context.Context, string) ([]byte, error) { return nil, nil }

func (n *Noop) OnConnect(fn func()) {
	n.mu.Lock()
	n.onConn = fn
	n.mu.Unlock()
}

func (n *Noop) Run(ctx context.Context, handler adapter.InboundHandler) error {
	n.mu.Lock()
	n.handler = handler
	fn := n.onConn
	n.mu.Unlock()
	if fn != nil {
		fn()
	}
	<-ctx.Done()
	return nil
}

// Inject delivers msg to the running handler. It reports false before Run.
func (n *Noop) Inject(ctx context.Context, msg model.RawChannelMessage) bool {
	n.mu.Lock()
	h := n.handler
	n.mu.Unlock()
	if h == nil {
		return false
	}
	if msg.Channel == "" {
		msg.Channel = n.Name()
	}
	h(ctx, msg)
	return true
}
