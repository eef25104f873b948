package adapter

import "context"

type TaskOptions struct {
	Connectors  []string
	Interactive bool
	Mode        string
}

type ProviderTaskRef struct {
	TaskID string
	Title  string
	URL    string
}

// ProviderTaskStatus is the provider's view of a task. Status is one of
// pending, running, completed or failed.
type ProviderTaskStatus struct {
	Status string
	Error  string
}

// TaskProvider talks to the remote agent platform. GetTask returns an error
// matching domain.ErrProviderTaskNotFound when the provider has no such task.
type TaskProvider interface {
	CreateTask(ctx context.Context, prompt string, opts TaskOptions) (ProviderTaskRef, error)
	ContinueTask(ctx context.Context, providerTaskID, prompt string, opts TaskOptions) error
	GetTask(ctx context.Context, providerTaskID string) (ProviderTaskStatus, error)
}
