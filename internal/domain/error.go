package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrConflict        = errors.New("entity changed concurrently")
	ErrInvalidArgument = errors.New("invalid argument")

	// Webhook ingestion
	ErrUnauthorized   = errors.New("unauthorized")
	ErrInvalidPayload = errors.New("invalid webhook payload")
	ErrQueueFull      = errors.New("worker queue full")

	// Collaborators
	ErrLLMDisabled           = errors.New("llm backend disabled")
	ErrProviderTaskNotFound  = errors.New("provider task not found")
	ErrChannelDisconnected   = errors.New("channel disconnected")
	ErrLockHeld              = errors.New("lock held by another owner")
	ErrUnsupportedMediaKind  = errors.New("unsupported media kind")
	ErrAttachmentFetchFailed = errors.New("attachment fetch failed")
)
