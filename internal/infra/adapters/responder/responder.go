// Package responder answers chat commands locally, without creating tasks.
package responder

import (
	"context"
	"strings"

	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/infra/i18n"
)

var _ adapter.LocalResponder = (*Commands)(nil)

type commandHandler func(ctx context.Context, args string, active []*model.Task) string

// Commands handles /status and /help. Anything else, including unknown
// slash commands, goes on to routing.
type Commands struct {
	tr *i18n.Translator
}

func New(tr *i18n.Translator) *Commands {
	if tr == nil {
		tr = i18n.Default()
	}
	return &Commands{tr: tr}
}

func (c *Commands) routes() map[string]commandHandler {
	return map[string]commandHandler{
		"status": c.handleStatus,
		"help":   c.handleHelp,
		"start":  c.handleHelp,
	}
}

func (c *Commands) Respond(ctx context.Context, text string, active []*model.Task) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	name, args, _ := strings.Cut(text[1:], " ")
	// Telegram appends the bot name in groups: /status@my_bot
	name, _, _ = strings.Cut(name, "@")
	h, ok := c.routes()[strings.ToLower(name)]
	if !ok {
		return "", false
	}
	return h(ctx, strings.TrimSpace(args), active), true
}

func (c *Commands) handleHelp(context.Context, string, []*model.Task) string {
	return c.tr.T("help")
}

func (c *Commands) handleStatus(_ context.Context, _ string, active []*model.Task) string {
	if len(active) == 0 {
		return c.tr.T("status_none")
	}
	var b strings.Builder
	b.WriteString(c.tr.T("status_header", len(active)))
	for _, t := range active {
		b.WriteByte('\n')
		b.WriteString(c.tr.T("status_line", titleOf(t), c.statusLabel(t)))
	}
	return b.String()
}

func (c *Commands) statusLabel(t *model.Task) string {
	switch {
	case t.IsWaitingOnUser():
		return c.tr.T("status_waiting")
	case t.Status == model.TaskPending:
		return c.tr.T("status_pending")
	default:
		return c.tr.T("status_running")
	}
}

func titleOf(t *model.Task) string {
	if t.Title != "" {
		return t.Title
	}
	return t.ID
}
