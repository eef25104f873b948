// File: internal/usecase/reply.go
package usecase

import (
	"context"
	"time"

	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/domain/repository"

	"github.com/rs/zerolog"
)

// replier sends user-facing text through the outbound queue and records every
// reply as an outbound message. Recording is best-effort.
type replier struct {
	outbound adapter.OutboundSender
	messages repository.MessageRepository
	ttl      time.Duration
	log      *zerolog.Logger
	now      func() time.Time
}

func (r *replier) text(ctx context.Context, sess *model.ChannelSession, taskID, text string) adapter.SendResult {
	res := r.outbound.SendText(ctx, sess.ChatID, text)
	out := model.NewOutboundMessage(sess.ID, taskID, text, r.now().UTC(), r.ttl)
	if _, err := r.messages.Insert(ctx, out); err != nil {
		r.log.Warn().Err(err).Str("session_id", sess.ID).Msg("record outbound message failed")
	}
	return res
}
