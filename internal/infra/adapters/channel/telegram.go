package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
)

var _ Gateway = (*Telegram)(nil)

const (
	telegramTextLimit = 4096
	maxDownloadBytes  = 50 << 20
)

// Telegram polls the Bot API and fans updates out to a worker pool.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	workers int
	http    *http.Client
	log     *zerolog.Logger

	connected atomic.Bool
	mu        sync.Mutex
	onConn    func()
}

func NewTelegram(token string, workers int, logger *zerolog.Logger) (*Telegram, error) {
	if token == "" {
		return nil, errors.New("telegram token empty")
	}
	if workers <= 0 {
		workers = 5
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	l := logger.With().Str("component", "channel_telegram").Str("bot", bot.Self.UserName).Logger()
	return &Telegram{
		bot:     bot,
		workers: workers,
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     &l,
	}, nil
}

func (t *Telegram) Name() string      { return "telegram" }
func (t *Telegram) IsConnected() bool { return t.connected.Load() }

func (t *Telegram) OnConnect(fn func()) {
	t.mu.Lock()
	t.onConn = fn
	t.mu.Unlock()
}

func (t *Telegram) Run(ctx context.Context, handler adapter.InboundHandler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)
	defer t.bot.StopReceivingUpdates()

	t.connected.Store(true)
	defer t.connected.Store(false)
	t.mu.Lock()
	fn := t.onConn
	t.mu.Unlock()
	if fn != nil {
		fn()
	}

	var wg sync.WaitGroup
	work := make(chan tgbotapi.Update, 100)
	for i := 0; i < t.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for up := range work {
				if msg, ok := fromUpdate(up); ok {
					handler(ctx, msg)
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			close(work)
			wg.Wait()
			return nil
		case up, ok := <-updates:
			if !ok {
				close(work)
				wg.Wait()
				return errors.New("telegram update channel closed")
			}
			select {
			case work <- up:
			case <-ctx.Done():
			}
		}
	}
}

func (t *Telegram) SendText(ctx context.Context, chatID, text string) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	for _, part := range splitText(text, telegramTextLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.bot.Send(tgbotapi.NewMessage(id, part)); err != nil {
			return fmt.Errorf("telegram send: %w", err)
		}
	}
	return nil
}

func (t *Telegram) SendMedia(ctx context.Context, chatID string, m adapter.Media) error {
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	file := tgbotapi.FileBytes{Name: nonEmptyName(m.FileName), Bytes: m.Data}
	var c tgbotapi.Chattable
	switch {
	case strings.HasPrefix(m.MimeType, "image/") && m.MimeType != "image/gif":
		p := tgbotapi.NewPhoto(id, file)
		p.Caption = m.Caption
		c = p
	case strings.HasPrefix(m.MimeType, "video/"):
		v := tgbotapi.NewVideo(id, file)
		v.Caption = m.Caption
		c = v
	case strings.HasPrefix(m.MimeType, "audio/"):
		a := tgbotapi.NewAudio(id, file)
		a.Caption = m.Caption
		c = a
	default:
		d := tgbotapi.NewDocument(id, file)
		d.Caption = m.Caption
		c = d
	}
	if _, err := t.bot.Send(c); err != nil {
		return fmt.Errorf("telegram send media: %w", err)
	}
	return nil
}

// SetTyping sends a chat action; Telegram clears it by itself, so off is a no-op.
func (t *Telegram) SetTyping(_ context.Context, chatID string, on bool) error {
	if !on {
		return nil
	}
	id, err := parseChatID(chatID)
	if err != nil {
		return err
	}
	_, err = t.bot.Request(tgbotapi.NewChatAction(id, tgbotapi.ChatTyping))
	return err
}

// DownloadMedia resolves a file id to its download URL and fetches it.
func (t *Telegram) DownloadMedia(ctx context.Context, ref string) ([]byte, error) {
	u, err := t.bot.GetFileDirectURL(ref)
	if err != nil {
		return nil, fmt.Errorf("telegram file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("telegram file download: http %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
}

func fromUpdate(up tgbotapi.Update) (model.RawChannelMessage, bool) {
	m := up.Message
	if m == nil || m.Chat == nil {
		return model.RawChannelMessage{}, false
	}
	chatID := strconv.FormatInt(m.Chat.ID, 10)
	raw := model.RawChannelMessage{
		Channel: "telegram",
		// Telegram message ids are only unique within a chat.
		MessageID: chatID + ":" + strconv.Itoa(m.MessageID),
		ChatID:    chatID,
		Timestamp: m.Time(),
		Text:      m.Text,
	}
	if m.From != nil {
		raw.SenderID = strconv.FormatInt(m.From.ID, 10)
		raw.SenderName = m.From.UserName
		if raw.SenderName == "" {
			raw.SenderName = strings.TrimSpace(m.From.FirstName + " " + m.From.LastName)
		}
	}
	if m.ReplyToMessage != nil {
		raw.QuotedText = m.ReplyToMessage.Text
	}

	switch {
	case len(m.Photo) > 0:
		// Sizes are ascending; take the largest.
		p := m.Photo[len(m.Photo)-1]
		raw.Image = &model.RawMedia{Ref: p.FileID, MimeType: "image/jpeg", Caption: m.Caption}
	case m.Video != nil:
		raw.Video = &model.RawMedia{Ref: m.Video.FileID, MimeType: m.Video.MimeType, FileName: m.Video.FileName, Caption: m.Caption}
	case m.Audio != nil:
		raw.Audio = &model.RawMedia{Ref: m.Audio.FileID, MimeType: m.Audio.MimeType, FileName: m.Audio.FileName, Caption: m.Caption}
	case m.Voice != nil:
		raw.Audio = &model.RawMedia{Ref: m.Voice.FileID, MimeType: m.Voice.MimeType, Caption: m.Caption}
	case m.Document != nil:
		raw.Document = &model.RawMedia{Ref: m.Document.FileID, MimeType: m.Document.MimeType, FileName: m.Document.FileName, Caption: m.Caption}
	case m.Sticker != nil:
		raw.Sticker = &model.RawMedia{Ref: m.Sticker.FileID, MimeType: "image/webp"}
	}
	return raw, true
}

func parseChatID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram chat id %q: %w", s, err)
	}
	return id, nil
}

func nonEmptyName(name string) string {
	if name == "" {
		return "file"
	}
	return name
}

// splitText cuts text into chunks of at most limit runes, preferring line
// breaks.
func splitText(text string, limit int) []string {
	r := []rune(text)
	if len(r) <= limit {
		return []string{text}
	}
	var parts []string
	for len(r) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if r[i-1] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, string(r[:cut]))
		r = r[cut:]
	}
	if len(r) > 0 {
		parts = append(parts, string(r))
	}
	return parts
}
