package ai

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"chat-task-bridge/internal/config"
	"chat-task-bridge/internal/domain/adapter"
)

// NewCompleter builds the configured completion backend, bounded by the
// configured concurrency. Backend "none" yields NoopCompleter.
func NewCompleter(ctx context.Context, cfg config.LLMConfig, logger *zerolog.Logger) (adapter.Completer, error) {
	var c adapter.Completer
	switch cfg.Backend {
	case "", "none":
		return NoopCompleter{}, nil
	case "openai":
		o, err := NewOpenAIAdapter(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		c = o
	case "gemini":
		g, err := NewGeminiAdapter(ctx, cfg.APIKey, cfg.BaseURL, cfg.Model)
		if err != nil {
			return nil, err
		}
		c = g
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
	logger.Info().Str("backend", cfg.Backend).Str("model", cfg.Model).Int("concurrency", cfg.ConcurrentLimit).Msg("llm backend ready")
	return NewLimited(c, cfg.ConcurrentLimit), nil
}

func isEnabled(c adapter.Completer) bool {
	_, noop := c.(NoopCompleter)
	return !noop
}

// NewClassifier picks the router classifier. The llm kind needs a real backend.
func NewClassifier(kind string, llm adapter.Completer, tokens adapter.TokenCounter, logger *zerolog.Logger) (adapter.Classifier, error) {
	switch kind {
	case "", "deterministic":
		return DeterministicClassifier{}, nil
	case "llm":
		if !isEnabled(llm) {
			return nil, fmt.Errorf("router classifier %q requires an llm backend", kind)
		}
		return NewLLMClassifier(llm, tokens, logger), nil
	default:
		return nil, fmt.Errorf("unknown classifier %q", kind)
	}
}

func NewRenderer(cfg config.PersonalityConfig, llm adapter.Completer, logger *zerolog.Logger) adapter.Renderer {
	if !cfg.Enabled || !isEnabled(llm) {
		return TemplateRenderer{}
	}
	return NewPersonaRenderer(llm, cfg.Persona, logger)
}

// NewExtractor returns nil when LLM extraction is off, which the memory use
// case treats as rule based capture only.
func NewExtractor(cfg config.MemoryConfig, llm adapter.Completer, logger *zerolog.Logger) adapter.MemoryExtractor {
	if !cfg.Enabled || !cfg.LLMExtraction || !isEnabled(llm) {
		return nil
	}
	return NewLLMExtractor(llm, logger)
}
