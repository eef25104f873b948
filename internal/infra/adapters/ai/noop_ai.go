package ai

import (
	"context"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/adapter"
)

var _ adapter.Completer = (*NoopCompleter)(nil)

// NoopCompleter is used when no LLM backend is configured. Every call fails
// with domain.ErrLLMDisabled so callers take their deterministic path.
type NoopCompleter struct{}

func (NoopCompleter) Complete(context.Context, adapter.CompletionRequest) (string, error) {
	return "", domain.ErrLLMDisabled
}
