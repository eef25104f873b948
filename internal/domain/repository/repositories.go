package repository

// Repositories bundles every store the bridge persists to.
type Repositories struct {
	Sessions    SessionRepository
	Messages    MessageRepository
	Tasks       TaskRepository
	Events      WebhookEventRepository
	Attachments AttachmentRepository
	Memories    MemoryRepository
}
