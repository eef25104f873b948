package ai

import (
	"context"

	"chat-task-bridge/internal/domain/adapter"
)

// Compile-time check
var _ adapter.Completer = (*limitedCompleter)(nil)

type limitedCompleter struct {
	inner adapter.Completer
	sem   chan struct{}
}

// NewLimited bounds concurrent calls to inner; waiting callers give up when
// their context ends.
func NewLimited(inner adapter.Completer, maxConcurrent int) adapter.Completer {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedCompleter{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedCompleter) Complete(ctx context.Context, req adapter.CompletionRequest) (string, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-l.sem }()
	return l.inner.Complete(ctx, req)
}
