package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/infra/metrics"
	"chat-task-bridge/internal/llmjson"
)

var (
	_ adapter.Classifier = DeterministicClassifier{}
	_ adapter.Classifier = (*LLMClassifier)(nil)
)

// DeterministicClassifier always starts a new task.
type DeterministicClassifier struct{}

func (DeterministicClassifier) Classify(context.Context, adapter.ClassifyInput) (adapter.Classification, error) {
	return adapter.Classification{Action: model.RouteNew, Reason: "deterministic_new"}, nil
}

const (
	classifierSystemPrompt = `You route chat messages to tasks. Given a new message and the user's active tasks, decide whether the message continues one of them or starts a new task.
Reply with a single JSON object and nothing else:
{"action":"continue"|"new","task_id":"<id when continuing>","reason":"<short snake_case reason>"}`

	// Token budget for the task summaries in one classifier prompt.
	classifierSummaryBudget = 2000
	summaryFieldRunes       = 300
	classifierMaxOutput     = 200
)

type classifierReply struct {
	Action string `json:"action"`
	TaskID string `json:"task_id"`
	Reason string `json:"reason"`
}

// LLMClassifier asks a completion model for the routing decision. Output that
// does not parse becomes a new-task decision rather than an error.
type LLMClassifier struct {
	llm    adapter.Completer
	tokens adapter.TokenCounter
	log    *zerolog.Logger
}

func NewLLMClassifier(llm adapter.Completer, tokens adapter.TokenCounter, logger *zerolog.Logger) *LLMClassifier {
	if tokens == nil {
		tokens = ApproxCounter{}
	}
	l := logger.With().Str("component", "llm_classifier").Logger()
	return &LLMClassifier{llm: llm, tokens: tokens, log: &l}
}

func (c *LLMClassifier) Classify(ctx context.Context, in adapter.ClassifyInput) (adapter.Classification, error) {
	out, err := c.llm.Complete(ctx, adapter.CompletionRequest{
		System:    classifierSystemPrompt,
		User:      c.prompt(in),
		JSON:      true,
		MaxTokens: classifierMaxOutput,
	})
	if err != nil {
		return adapter.Classification{}, err
	}

	reply, ok := llmjson.Decode[classifierReply](out)
	if !ok {
		metrics.IncLLMParseFallback("classifier")
		c.log.Debug().Str("output", truncate(out, 200)).Msg("unparseable classifier output")
		return adapter.Classification{Action: model.RouteNew, Reason: model.ReasonClassifierParse}, nil
	}
	switch model.RouteAction(strings.ToLower(strings.TrimSpace(reply.Action))) {
	case model.RouteContinue:
		return adapter.Classification{
			Action: model.RouteContinue,
			TaskID: strings.TrimSpace(reply.TaskID),
			Reason: reasonOr(reply.Reason, "llm_continue"),
		}, nil
	case model.RouteNew:
		return adapter.Classification{Action: model.RouteNew, Reason: reasonOr(reply.Reason, "llm_new")}, nil
	default:
		metrics.IncLLMParseFallback("classifier")
		return adapter.Classification{Action: model.RouteNew, Reason: model.ReasonClassifierParse}, nil
	}
}

type taskLine struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Status         string `json:"status"`
	OriginalPrompt string `json:"original_prompt,omitempty"`
	LastMessage    string `json:"last_message,omitempty"`
}

// prompt renders the message and as many summaries as fit the token budget.
// The first summary is always included.
func (c *LLMClassifier) prompt(in adapter.ClassifyInput) string {
	var b strings.Builder
	used := 0
	included := 0
	for _, s := range in.ActiveTasks {
		line, _ := json.Marshal(taskLine{
			ID:             s.ID,
			Title:          s.Title,
			Status:         string(s.Status),
			OriginalPrompt: truncate(s.OriginalPrompt, summaryFieldRunes),
			LastMessage:    truncate(s.LastMessage, summaryFieldRunes),
		})
		n := c.tokens.Count(string(line))
		if included > 0 && used+n > classifierSummaryBudget {
			break
		}
		b.Write(line)
		b.WriteByte('\n')
		used += n
		included++
	}
	if included < len(in.ActiveTasks) {
		c.log.Debug().Int("included", included).Int("active", len(in.ActiveTasks)).Msg("summaries trimmed to budget")
	}
	return fmt.Sprintf("Active tasks (one JSON object per line):\n%s\nNew message:\n%s", b.String(), in.Message)
}

func reasonOr(reason, def string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return def
	}
	return truncate(reason, 80)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
