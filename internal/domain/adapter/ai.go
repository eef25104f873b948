package adapter

import (
	"context"

	"chat-task-bridge/internal/domain/model"
)

type CompletionRequest struct {
	System    string
	User      string
	JSON      bool
	MaxTokens int
}

// Completer is a minimal text completion backend.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type ClassifyInput struct {
	Message     string
	ActiveTasks []model.ActiveTaskSummary
}

// Classification is the classifier's raw verdict; the router validates it.
type Classification struct {
	Action model.RouteAction
	TaskID string
	Reason string
}

type Classifier interface {
	Classify(ctx context.Context, in ClassifyInput) (Classification, error)
}

// Renderer produces user-facing text for acknowledgements and results.
type Renderer interface {
	Acknowledge(ctx context.Context, title string) string
	FrameResult(ctx context.Context, title, result string) string
}

type MemoryExtractionInput struct {
	Request  string
	Title    string
	Result   string
	Existing []string // active memory contents, highest ranked first
}

// MemoryExtractor proposes memories from a finished task.
type MemoryExtractor interface {
	Extract(ctx context.Context, in MemoryExtractionInput) ([]model.MemoryCandidate, error)
}

type TokenCounter interface {
	Count(text string) int
}
