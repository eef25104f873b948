package postgres

import (
	"github.com/jackc/pgx/v4/pgxpool"

	"chat-task-bridge/internal/domain/repository"
)

// NewRepositories wires every Postgres repository onto one pool.
func NewRepositories(pool *pgxpool.Pool) repository.Repositories {
	return repository.Repositories{
		Sessions:    NewSessionRepo(pool),
		Messages:    NewMessageRepo(pool),
		Tasks:       NewTaskRepo(pool),
		Events:      NewWebhookEventRepo(pool),
		Attachments: NewAttachmentRepo(pool),
		Memories:    NewMemoryRepo(pool),
	}
}
