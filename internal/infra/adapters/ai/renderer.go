package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/infra/metrics"
	"chat-task-bridge/internal/llmjson"
)

var (
	_ adapter.Renderer = TemplateRenderer{}
	_ adapter.Renderer = (*PersonaRenderer)(nil)
)

// TemplateRenderer produces the fixed acknowledgement and passes results through.
type TemplateRenderer struct{}

func (TemplateRenderer) Acknowledge(_ context.Context, title string) string {
	return model.AcknowledgeText(title)
}

func (TemplateRenderer) FrameResult(_ context.Context, _, result string) string {
	return result
}

const (
	rendererMaxOutput = 160
	// Results longer than this are framed with an intro only; the body is
	// never rewritten.
	maxRewriteRunes = 1200
)

type renderReply struct {
	Text string `json:"text"`
}

// PersonaRenderer rewrites acknowledgements and short results in a persona.
// Any completion or parse failure yields the template output.
type PersonaRenderer struct {
	llm      adapter.Completer
	persona  string
	fallback TemplateRenderer
	log      *zerolog.Logger
}

func NewPersonaRenderer(llm adapter.Completer, persona string, logger *zerolog.Logger) *PersonaRenderer {
	if strings.TrimSpace(persona) == "" {
		persona = "a friendly, concise personal assistant"
	}
	l := logger.With().Str("component", "persona_renderer").Logger()
	return &PersonaRenderer{llm: llm, persona: persona, log: &l}
}

func (r *PersonaRenderer) system() string {
	return fmt.Sprintf(`You write chat replies as %s. Keep every fact, name, number and link unchanged.
Reply with a single JSON object: {"text":"<reply>"}`, r.persona)
}

func (r *PersonaRenderer) Acknowledge(ctx context.Context, title string) string {
	base := r.fallback.Acknowledge(ctx, title)
	prompt := fmt.Sprintf("Rewrite this one-line acknowledgement that work on a task has started. Keep the task title %q verbatim.\n\n%s", title, base)
	if text, ok := r.render(ctx, prompt); ok && strings.Contains(text, title) {
		return text
	}
	return base
}

func (r *PersonaRenderer) FrameResult(ctx context.Context, title, result string) string {
	if len([]rune(result)) > maxRewriteRunes {
		prompt := fmt.Sprintf("Write one short sentence introducing the result of the finished task %q. Do not summarise the result.", title)
		if intro, ok := r.render(ctx, prompt); ok {
			return intro + "\n\n" + result
		}
		return result
	}
	prompt := fmt.Sprintf("Rewrite the result of the finished task %q for the user.\n\n%s", title, result)
	if text, ok := r.render(ctx, prompt); ok {
		return text
	}
	return result
}

func (r *PersonaRenderer) render(ctx context.Context, prompt string) (string, bool) {
	out, err := r.llm.Complete(ctx, adapter.CompletionRequest{
		System:    r.system(),
		User:      prompt,
		JSON:      true,
		MaxTokens: rendererMaxOutput + len([]rune(prompt))/3,
	})
	if err != nil {
		r.log.Debug().Err(err).Msg("render failed, using template")
		return "", false
	}
	reply, ok := llmjson.Decode[renderReply](out)
	text := strings.TrimSpace(reply.Text)
	if !ok || text == "" {
		metrics.IncLLMParseFallback("renderer")
		return "", false
	}
	return text, true
}
