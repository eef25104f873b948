package outbound

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/infra/metrics"

	"github.com/rs/zerolog"
)

var _ adapter.OutboundSender = (*Adapter)(nil)

type itemKind string

const (
	kindText  itemKind = "text"
	kindMedia itemKind = "media"
)

type item struct {
	kind   itemKind
	chatID string
	text   string
	media  adapter.Media
}

// Adapter owns the single FIFO of undelivered sends for a gateway. Items are
// dispatched immediately while connected and queued otherwise; Flush drains
// them in order and stops at the first failure.
type Adapter struct {
	gw  adapter.ChannelGateway
	log *zerolog.Logger

	mu    sync.Mutex
	queue []item

	flushing atomic.Bool
}

func New(gw adapter.ChannelGateway, log *zerolog.Logger) *Adapter {
	return &Adapter{gw: gw, log: log}
}

func (a *Adapter) SendText(ctx context.Context, chatID, text string) adapter.SendResult {
	return a.send(ctx, item{kind: kindText, chatID: chatID, text: text})
}

func (a *Adapter) SendMedia(ctx context.Context, chatID string, m adapter.Media) adapter.SendResult {
	return a.send(ctx, item{kind: kindMedia, chatID: chatID, media: m})
}

// SetTyping never fails; indicator errors are only logged.
func (a *Adapter) SetTyping(ctx context.Context, chatID string, on bool) {
	if !a.gw.IsConnected() {
		return
	}
	if err := a.gw.SetTyping(ctx, chatID, on); err != nil {
		a.log.Debug().Err(err).Msg("typing indicator failed")
	}
}

func (a *Adapter) send(ctx context.Context, it item) adapter.SendResult {
	if a.gw.IsConnected() {
		err := a.dispatch(ctx, it)
		if err == nil {
			metrics.IncOutboundSend(string(it.kind), "delivered")
			return adapter.SendResult{Delivered: true}
		}
		a.log.Warn().Err(err).Str("kind", string(it.kind)).Msg("send failed, queued for retry")
	}
	a.pushTail(it)
	metrics.IncOutboundSend(string(it.kind), "queued")
	return adapter.SendResult{Queued: true}
}

func (a *Adapter) dispatch(ctx context.Context, it item) error {
	switch it.kind {
	case kindMedia:
		return a.gw.SendMedia(ctx, it.chatID, it.media)
	default:
		return a.gw.SendText(ctx, it.chatID, it.text)
	}
}

// Flush drains the queue while the gateway is connected. Only one flush runs
// at a time; a concurrent call returns immediately with 0.
func (a *Adapter) Flush(ctx context.Context) int {
	if !a.flushing.CompareAndSwap(false, true) {
		return 0
	}
	defer a.flushing.Store(false)

	sent := 0
	for a.gw.IsConnected() {
		it, ok := a.popHead()
		if !ok {
			break
		}
		if err := a.dispatch(ctx, it); err != nil {
			a.pushHead(it)
			metrics.IncOutboundSend(string(it.kind), "requeued")
			a.log.Warn().Err(err).Int("pending", a.Pending()).Msg("flush stopped at failing item")
			break
		}
		metrics.IncOutboundSend(string(it.kind), "flushed")
		sent++
	}
	if sent > 0 {
		a.log.Info().Int("sent", sent).Int("pending", a.Pending()).Msg("outbound queue flushed")
	}
	return sent
}

// Run flushes on every tick until ctx is done.
func (a *Adapter) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if a.Pending() > 0 {
				a.Flush(ctx)
			}
		}
	}
}

func (a *Adapter) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.queue)
}

func (a *Adapter) pushTail(it item) {
	a.mu.Lock()
	a.queue = append(a.queue, it)
	n := len(a.queue)
	a.mu.Unlock()
	metrics.SetOutboundQueueDepth(n)
}

func (a *Adapter) pushHead(it item) {
	a.mu.Lock()
	a.queue = append([]item{it}, a.queue...)
	n := len(a.queue)
	a.mu.Unlock()
	metrics.SetOutboundQueueDepth(n)
}

func (a *Adapter) popHead() (item, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.queue) == 0 {
		return item{}, false
	}
	it := a.queue[0]
	a.queue[0] = item{}
	a.queue = a.queue[1:]
	metrics.SetOutboundQueueDepth(len(a.queue))
	return it, true
}
