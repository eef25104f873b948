package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
)

var _ Gateway = (*WhatsApp)(nil)

const (
	waMaxBackoff      = 30 * time.Second
	waWriteTimeout    = 10 * time.Second
	waDownloadTimeout = 60 * time.Second
)

// Frame is one JSON message on the bridge websocket, in either direction.
type Frame struct {
	Type      string   `json:"type"`
	ID        string   `json:"id,omitempty"`
	ChatID    string   `json:"chat_id,omitempty"`
	From      string   `json:"from,omitempty"`
	FromName  string   `json:"from_name,omitempty"`
	Timestamp int64    `json:"timestamp,omitempty"`
	Text      string   `json:"text,omitempty"`
	Quoted    string   `json:"quoted_text,omitempty"`
	Media     *waMedia `json:"media,omitempty"`
	On        bool     `json:"on,omitempty"`
	Ref       string   `json:"ref,omitempty"`
	Data      []byte   `json:"data,omitempty"`
	Error     string   `json:"error,omitempty"`
}

type waMedia struct {
	Kind     string `json:"kind"`
	Ref      string `json:"ref"`
	MimeType string `json:"mime_type"`
	FileName string `json:"file_name"`
	Caption  string `json:"caption"`
}

// WhatsApp talks to a WhatsApp bridge process over a websocket. The bridge
// owns the WhatsApp session; this side only exchanges JSON frames and
// reconnects with exponential backoff.
type WhatsApp struct {
	url     string
	workers int
	dialer  *websocket.Dialer
	log     *zerolog.Logger

	mu        sync.Mutex // guards conn and writes
	conn      *websocket.Conn
	connected atomic.Bool
	onConn    func()

	pendingMu sync.Mutex
	pending   map[string]chan Frame
}

func NewWhatsApp(bridgeURL string, workers int, logger *zerolog.Logger) (*WhatsApp, error) {
	if bridgeURL == "" {
		return nil, errors.New("whatsapp bridge_url is required")
	}
	if workers <= 0 {
		workers = 5
	}
	l := logger.With().Str("component", "channel_whatsapp").Logger()
	return &WhatsApp{
		url:     bridgeURL,
		workers: workers,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:     &l,
		pending: map[string]chan Frame{},
	}, nil
}

func (w *WhatsApp) Name() string      { return "whatsapp" }
func (w *WhatsApp) IsConnected() bool { return w.connected.Load() }

func (w *WhatsApp) OnConnect(fn func()) {
	w.mu.Lock()
	w.onConn = fn
	w.mu.Unlock()
}

// Run keeps a bridge connection open until ctx is done, reconnecting after
// read errors.
func (w *WhatsApp) Run(ctx context.Context, handler adapter.InboundHandler) error {
	var wg sync.WaitGroup
	work := make(chan model.RawChannelMessage, 100)
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range work {
				handler(ctx, msg)
			}
		}()
	}
	defer func() {
		close(work)
		wg.Wait()
	}()

	stop := context.AfterFunc(ctx, w.disconnect)
	defer stop()

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			w.disconnect()
			return nil
		}
		conn, err := w.connect(ctx)
		if err != nil {
			w.log.Warn().Err(err).Dur("backoff", backoff).Msg("bridge connect failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, waMaxBackoff)
			continue
		}
		backoff = time.Second

		w.readLoop(ctx, conn, work)
		w.disconnect()
	}
}

func (w *WhatsApp) connect(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial whatsapp bridge: %w", err)
	}
	w.mu.Lock()
	w.conn = conn
	fn := w.onConn
	w.mu.Unlock()
	w.connected.Store(true)
	w.log.Info().Msg("bridge connected")
	if fn != nil {
		fn()
	}
	return conn, nil
}

func (w *WhatsApp) disconnect() {
	w.mu.Lock()
	if w.conn != nil {
		_ = w.conn.Close()
		w.conn = nil
	}
	w.mu.Unlock()
	if w.connected.Swap(false) {
		w.log.Warn().Msg("bridge disconnected")
	}
}

func (w *WhatsApp) readLoop(ctx context.Context, conn *websocket.Conn, work chan<- model.RawChannelMessage) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				w.log.Warn().Err(err).Msg("bridge read failed, reconnecting")
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			w.log.Warn().Err(err).Msg("invalid bridge frame")
			continue
		}
		switch f.Type {
		case "message":
			msg, ok := fromFrame(f)
			if !ok {
				continue
			}
			select {
			case work <- msg:
			case <-ctx.Done():
				return
			}
		case "media":
			w.resolve(f)
		default:
			w.log.Debug().Str("type", f.Type).Msg("ignored bridge frame")
		}
	}
}

func fromFrame(f Frame) (model.RawChannelMessage, bool) {
	chatID := f.ChatID
	if chatID == "" {
		chatID = f.From
	}
	if chatID == "" {
		return model.RawChannelMessage{}, false
	}
	msg := model.RawChannelMessage{
		Channel:    "whatsapp",
		MessageID:  f.ID,
		ChatID:     chatID,
		SenderID:   f.From,
		SenderName: f.FromName,
		Text:       f.Text,
		QuotedText: f.Quoted,
	}
	if f.Timestamp > 0 {
		msg.Timestamp = time.Unix(f.Timestamp, 0).UTC()
	}
	if m := f.Media; m != nil && m.Ref != "" {
		raw := &model.RawMedia{Ref: m.Ref, MimeType: m.MimeType, FileName: m.FileName, Caption: m.Caption}
		switch model.MediaKind(m.Kind) {
		case model.MediaImage:
			msg.Image = raw
		case model.MediaVideo:
			msg.Video = raw
		case model.MediaAudio:
			msg.Audio = raw
		case model.MediaSticker:
			msg.Sticker = raw
		default:
			msg.Document = raw
		}
	}
	return msg, true
}

func (w *WhatsApp) write(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode bridge frame: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return domain.ErrChannelDisconnected
	}
	_ = w.conn.SetWriteDeadline(time.Now().Add(waWriteTimeout))
	if err := w.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write bridge frame: %w", err)
	}
	return nil
}

func (w *WhatsApp) SendText(_ context.Context, chatID, text string) error {
	return w.write(Frame{Type: "send_text", ChatID: chatID, Text: text})
}

func (w *WhatsApp) SendMedia(_ context.Context, chatID string, m adapter.Media) error {
	return w.write(Frame{
		Type:   "send_media",
		ChatID: chatID,
		Text:   m.Caption,
		Data:   m.Data,
		Media:  &waMedia{MimeType: m.MimeType, FileName: m.FileName, Caption: m.Caption},
	})
}

func (w *WhatsApp) SetTyping(_ context.Context, chatID string, on bool) error {
	return w.write(Frame{Type: "typing", ChatID: chatID, On: on})
}

// DownloadMedia asks the bridge for media bytes and waits for the matching
// "media" frame.
func (w *WhatsApp) DownloadMedia(ctx context.Context, ref string) ([]byte, error) {
	id := uuid.NewString()
	ch := make(chan Frame, 1)
	w.pendingMu.Lock()
	w.pending[id] = ch
	w.pendingMu.Unlock()
	defer func() {
		w.pendingMu.Lock()
		delete(w.pending, id)
		w.pendingMu.Unlock()
	}()

	if err := w.write(Frame{Type: "download", ID: id, Ref: ref}); err != nil {
		return nil, err
	}
	timer := time.NewTimer(waDownloadTimeout)
	defer timer.Stop()
	select {
	case f := <-ch:
		if f.Error != "" {
			return nil, fmt.Errorf("bridge download %s: %s", ref, f.Error)
		}
		return f.Data, nil
	case <-timer.C:
		return nil, fmt.Errorf("bridge download %s: timed out", ref)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *WhatsApp) resolve(f Frame) {
	w.pendingMu.Lock()
	ch, ok := w.pending[f.ID]
	w.pendingMu.Unlock()
	if !ok {
		w.log.Debug().Str("id", f.ID).Msg("media frame without pending download")
		return
	}
	select {
	case ch <- f:
	default:
	}
}

// PendingDownloads is exposed for diagnostics.
func (w *WhatsApp) PendingDownloads() int {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	return len(w.pending)
}
