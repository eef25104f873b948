package model

import "time"

// Attachment records a provider file that was delivered to the user.
type Attachment struct {
	ID        string
	TaskID    string
	EventID   string
	FileName  string
	URL       string
	MimeType  string
	SizeBytes int64
	CreatedAt time.Time
	ExpiresAt time.Time
}
