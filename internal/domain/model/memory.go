package model

import "time"

type MemoryCategory string

const (
	MemoryPreference  MemoryCategory = "preference"
	MemoryFact        MemoryCategory = "fact"
	MemoryCorrection  MemoryCategory = "correction"
	MemoryDecision    MemoryCategory = "decision"
	MemoryTaskOutcome MemoryCategory = "task_outcome"
)

type MemorySource string

const (
	SourceExplicit   MemorySource = "explicit"
	SourceExtraction MemorySource = "extraction"
	SourceInferred   MemorySource = "inferred"
)

// MemoryRecord is a durable fact about the operator. A non-empty SupersededBy
// removes it from retrieval.
type MemoryRecord struct {
	ID             string
	Category       MemoryCategory
	Content        string
	Source         MemorySource
	SourceTaskID   string
	Confidence     float64
	SupersededBy   string
	SupersededAt   *time.Time
	CreatedAt      time.Time
	LastAccessedAt *time.Time
	ExpiresAt      *time.Time
}

// MemoryCandidate is a proposed memory before dedup and supersede checks.
type MemoryCandidate struct {
	Category   MemoryCategory
	Content    string
	Confidence float64
}

// CategoryRank orders categories for retrieval, lower first.
func CategoryRank(c MemoryCategory) int {
	switch c {
	case MemoryPreference:
		return 0
	case MemoryFact:
		return 1
	case MemoryCorrection:
		return 2
	case MemoryDecision:
		return 3
	case MemoryTaskOutcome:
		return 4
	}
	return 5
}

// MemoryTTL returns the lifetime for a category; zero means no expiry.
func MemoryTTL(c MemoryCategory) time.Duration {
	switch c {
	case MemoryDecision:
		return 90 * 24 * time.Hour
	case MemoryTaskOutcome:
		return 60 * 24 * time.Hour
	}
	return 0
}

func ValidCategory(c MemoryCategory) bool {
	return CategoryRank(c) < 5
}
