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

var _ adapter.MemoryExtractor = (*LLMExtractor)(nil)

const (
	extractorSystemPrompt = `You maintain long-term memory about one user. From a finished task, extract durable facts worth remembering across future tasks: stable preferences, facts about the user, corrections and decisions. Skip anything transient or already known.
Reply with a single JSON object and nothing else:
{"memories":[{"category":"preference|fact|correction|decision","content":"<one sentence>","confidence":0.0-1.0}]}`

	extractorMaxOutput   = 400
	extractorResultRunes = 2000
	maxExtracted         = 5
)

type extractorReply struct {
	Memories []struct {
		Category   string  `json:"category"`
		Content    string  `json:"content"`
		Confidence float64 `json:"confidence"`
	} `json:"memories"`
}

type LLMExtractor struct {
	llm adapter.Completer
	log *zerolog.Logger
}

func NewLLMExtractor(llm adapter.Completer, logger *zerolog.Logger) *LLMExtractor {
	l := logger.With().Str("component", "memory_extractor").Logger()
	return &LLMExtractor{llm: llm, log: &l}
}

// Extract returns nil without error when the model output does not parse.
func (e *LLMExtractor) Extract(ctx context.Context, in adapter.MemoryExtractionInput) ([]model.MemoryCandidate, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Request:\n%s\n\nTask title: %s\n\nResult:\n%s\n", in.Request, in.Title, truncate(in.Result, extractorResultRunes))
	if len(in.Existing) > 0 {
		b.WriteString("\nAlready known:\n")
		for _, m := range in.Existing {
			b.WriteString("- ")
			b.WriteString(m)
			b.WriteByte('\n')
		}
	}

	out, err := e.llm.Complete(ctx, adapter.CompletionRequest{
		System:    extractorSystemPrompt,
		User:      b.String(),
		JSON:      true,
		MaxTokens: extractorMaxOutput,
	})
	if err != nil {
		return nil, err
	}
	reply, ok := llmjson.Decode[extractorReply](out)
	if !ok {
		metrics.IncLLMParseFallback("memory")
		e.log.Debug().Str("output", truncate(out, 200)).Msg("unparseable extractor output")
		return nil, nil
	}

	var cands []model.MemoryCandidate
	for _, m := range reply.Memories {
		cat, ok := extractableCategory(m.Category)
		content := strings.TrimSpace(m.Content)
		if !ok || content == "" {
			continue
		}
		conf := m.Confidence
		if conf <= 0 || conf > 1 {
			conf = 0.5
		}
		cands = append(cands, model.MemoryCandidate{Category: cat, Content: content, Confidence: conf})
		if len(cands) == maxExtracted {
			break
		}
	}
	return cands, nil
}

// task_outcome is produced deterministically and never accepted from the model.
func extractableCategory(s string) (model.MemoryCategory, bool) {
	switch c := model.MemoryCategory(strings.ToLower(strings.TrimSpace(s))); c {
	case model.MemoryPreference, model.MemoryFact, model.MemoryCorrection, model.MemoryDecision:
		return c, true
	}
	return "", false
}
