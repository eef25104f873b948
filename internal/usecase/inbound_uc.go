// File: internal/usecase/inbound_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/domain/repository"

	"github.com/rs/zerolog"
)

type IngestStatus string

const (
	IngestAccepted    IngestStatus = "accepted"
	IngestIgnored     IngestStatus = "ignored"
	IngestRateLimited IngestStatus = "rate_limited"
	IngestDuplicate   IngestStatus = "duplicate"
)

// Compile-time check
var _ InboundUseCase = (*inboundUC)(nil)

type IngestResult struct {
	Status  IngestStatus
	Message *model.NormalizedMessage
	Session *model.ChannelSession
	Stored  *model.Message
}

type InboundUseCase interface {
	// Normalize returns nil for messages that cannot be addressed.
	Normalize(ctx context.Context, raw model.RawChannelMessage) *model.NormalizedMessage
	// Ingest normalizes, rate limits, deduplicates and stores one inbound message.
	Ingest(ctx context.Context, raw model.RawChannelMessage) (IngestResult, error)
}

type inboundUC struct {
	gw         adapter.ChannelGateway
	limiter    adapter.RateLimiter
	sessions   repository.SessionRepository
	messages   repository.MessageRepository
	sessionTTL time.Duration
	messageTTL time.Duration
	log        *zerolog.Logger
	now        func() time.Time
}

func NewInboundUseCase(gw adapter.ChannelGateway, limiter adapter.RateLimiter, sessions repository.SessionRepository, messages repository.MessageRepository, sessionTTL, messageTTL time.Duration, logger *zerolog.Logger) *inboundUC {
	l := logger.With().Str("component", "inbound").Logger()
	return &inboundUC{
		gw:         gw,
		limiter:    limiter,
		sessions:   sessions,
		messages:   messages,
		sessionTTL: sessionTTL,
		messageTTL: messageTTL,
		log:        &l,
		now:        time.Now,
	}
}

func (u *inboundUC) Normalize(ctx context.Context, raw model.RawChannelMessage) *model.NormalizedMessage {
	// Replies are addressed by chat id, so a message without one cannot be answered.
	if raw.ChatID == "" {
		return nil
	}
	n := &model.NormalizedMessage{
		Channel:          raw.Channel,
		ChannelMessageID: raw.MessageID,
		ChatID:           raw.ChatID,
		SenderID:         raw.SenderID,
		SenderName:       raw.SenderName,
		Timestamp:        raw.Timestamp,
	}
	if n.SenderID == "" {
		n.SenderID = raw.ChatID
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = u.now().UTC()
	}

	media, kind := raw.Media()
	switch {
	case strings.TrimSpace(raw.Text) != "":
		n.Text = strings.TrimSpace(raw.Text)
	case strings.TrimSpace(raw.QuotedText) != "":
		n.Text = strings.TrimSpace(raw.QuotedText)
	case media != nil:
		n.Text = strings.TrimSpace(media.Caption)
	}

	if media != nil {
		n.Attachment = u.download(ctx, media, kind)
	}
	return n
}

func (u *inboundUC) download(ctx context.Context, media *model.RawMedia, kind model.MediaKind) *model.InboundAttachment {
	att := &model.InboundAttachment{
		Kind:     kind,
		MimeType: media.MimeType,
		FileName: media.FileName,
	}
	if att.MimeType == "" {
		att.MimeType = model.DefaultMimeType(kind)
	}
	if u.gw == nil || media.Ref == "" {
		return att
	}
	data, err := u.gw.DownloadMedia(ctx, media.Ref)
	if err != nil {
		u.log.Warn().Err(err).Str("kind", string(kind)).Msg("media download failed")
		return att
	}
	att.Data = data
	att.SizeBytes = int64(len(data))
	return att
}

func (u *inboundUC) Ingest(ctx context.Context, raw model.RawChannelMessage) (IngestResult, error) {
	n := u.Normalize(ctx, raw)
	if n == nil {
		return IngestResult{Status: IngestIgnored}, nil
	}
	res := IngestResult{Message: n}

	if u.limiter != nil {
		ok, err := u.limiter.Allow(ctx, n.Channel+":"+n.SenderID)
		if err != nil {
			// fail open, the limiter protects the provider not correctness
			u.log.Warn().Err(err).Msg("rate limiter unavailable")
		} else if !ok {
			res.Status = IngestRateLimited
			return res, nil
		}
	}

	if n.ChannelMessageID != "" {
		seen, err := u.messages.ExistsByChannelMessageID(ctx, n.ChannelMessageID)
		if err != nil {
			return res, fmt.Errorf("check channel message id: %w", err)
		}
		if seen {
			res.Status = IngestDuplicate
			return res, nil
		}
	}

	now := u.now().UTC()
	sess, err := model.NewChannelSession(n.Channel, n.ChatID, n.SenderID, now, u.sessionTTL)
	if err != nil {
		return res, err
	}
	stored, err := u.sessions.Upsert(ctx, sess)
	if err != nil {
		return res, fmt.Errorf("upsert session: %w", err)
	}
	res.Session = stored

	msg := model.NewInboundMessage(stored.ID, n, now, u.messageTTL)
	inserted, err := u.messages.Insert(ctx, msg)
	if err != nil {
		return res, fmt.Errorf("insert message: %w", err)
	}
	if !inserted {
		res.Status = IngestDuplicate
		return res, nil
	}
	res.Stored = msg
	res.Status = IngestAccepted
	return res, nil
}
