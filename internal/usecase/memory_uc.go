// File: internal/usecase/memory_uc.go
package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/domain/repository"
	"chat-task-bridge/internal/infra/metrics"

	"github.com/rs/zerolog"
)

const (
	outcomeConfidence  = 0.6
	outcomeResultRunes = 160
	defaultMemoryLimit = 8
	defaultWindow      = 600
)

// Compile-time check
var _ MemoryUseCase = (*memoryUC)(nil)

type MemoryWriteResult string

const (
	MemoryInserted  MemoryWriteResult = "inserted"
	MemoryDuplicate MemoryWriteResult = "duplicate"
	MemoryRejected  MemoryWriteResult = "rejected"
)

type MemoryUseCase interface {
	// Insert stores a candidate unless an active record already covers it. Older
	// records of the same category about the same topic are superseded.
	Insert(ctx context.Context, c model.MemoryCandidate, source model.MemorySource, sourceTaskID string) (MemoryWriteResult, error)
	// CaptureExplicit stores statements like "remember that ..." found in user text.
	CaptureExplicit(ctx context.Context, text string) (int, error)
	// LearnFromTask records the outcome of a finished task and, when an
	// extractor is configured, whatever durable facts it proposes.
	LearnFromTask(ctx context.Context, t *model.Task, result string) error
	// Retrieve returns up to limit active records ranked by category then recency.
	Retrieve(ctx context.Context, limit int) ([]*model.MemoryRecord, error)
	// ContextBlock renders the top records for a provider prompt; empty when none.
	ContextBlock(ctx context.Context) string
}

type MemoryOptions struct {
	RetrieveLimit int
	MinConfidence float64
	WindowTokens  int
}

type memoryUC struct {
	repo      repository.MemoryRepository
	extractor adapter.MemoryExtractor // nil disables LLM extraction
	tokens    adapter.TokenCounter
	opts      MemoryOptions
	log       *zerolog.Logger
	now       func() time.Time

	// check-then-insert must not interleave within the process
	mu sync.Mutex
}

func NewMemoryUseCase(repo repository.MemoryRepository, extractor adapter.MemoryExtractor, tokens adapter.TokenCounter, opts MemoryOptions, logger *zerolog.Logger) *memoryUC {
	if opts.RetrieveLimit <= 0 {
		opts.RetrieveLimit = defaultMemoryLimit
	}
	if opts.WindowTokens <= 0 {
		opts.WindowTokens = defaultWindow
	}
	l := logger.With().Str("component", "memory").Logger()
	return &memoryUC{repo: repo, extractor: extractor, tokens: tokens, opts: opts, log: &l, now: time.Now}
}

func (m *memoryUC) Insert(ctx context.Context, c model.MemoryCandidate, source model.MemorySource, sourceTaskID string) (MemoryWriteResult, error) {
	content := strings.TrimSpace(c.Content)
	if content == "" || !model.ValidCategory(c.Category) {
		metrics.IncMemoryWrite(string(source), string(MemoryRejected))
		return MemoryRejected, domain.ErrInvalidArgument
	}
	conf := c.Confidence
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	active, err := m.repo.ListActive(ctx, now)
	if err != nil {
		return "", fmt.Errorf("list active memories: %w", err)
	}
	for _, r := range active {
		if isDuplicateMemory(r.Content, content) {
			metrics.IncMemoryWrite(string(source), string(MemoryDuplicate))
			m.log.Debug().Str("existing_id", r.ID).Msg("memory duplicate skipped")
			return MemoryDuplicate, nil
		}
	}

	rec := &model.MemoryRecord{
		ID:           model.NewID(),
		Category:     c.Category,
		Content:      content,
		Source:       source,
		SourceTaskID: sourceTaskID,
		Confidence:   conf,
		CreatedAt:    now,
	}
	if ttl := model.MemoryTTL(c.Category); ttl > 0 {
		exp := now.Add(ttl)
		rec.ExpiresAt = &exp
	}
	if err := m.repo.Insert(ctx, rec); err != nil {
		return "", fmt.Errorf("insert memory: %w", err)
	}
	metrics.IncMemoryWrite(string(source), string(MemoryInserted))

	// Outcomes form a history, they never replace each other.
	if c.Category == model.MemoryTaskOutcome {
		return MemoryInserted, nil
	}
	topics := topicSignals(content)
	if len(topics) == 0 {
		return MemoryInserted, nil
	}
	for _, r := range active {
		if r.Category != c.Category || !sharesTopic(topics, topicSignals(r.Content)) {
			continue
		}
		if err := m.repo.MarkSuperseded(ctx, r.ID, rec.ID, now); err != nil {
			m.log.Warn().Err(err).Str("memory_id", r.ID).Msg("mark superseded failed")
			continue
		}
		metrics.IncMemoryWrite(string(source), "superseded")
		m.log.Info().Str("old_id", r.ID).Str("new_id", rec.ID).Str("category", string(c.Category)).Msg("memory superseded")
	}
	return MemoryInserted, nil
}

func (m *memoryUC) CaptureExplicit(ctx context.Context, text string) (int, error) {
	n := 0
	for _, c := range ExtractExplicitMemories(text) {
		res, err := m.Insert(ctx, c, model.SourceExplicit, "")
		if err != nil {
			return n, err
		}
		if res == MemoryInserted {
			n++
		}
	}
	return n, nil
}

func (m *memoryUC) LearnFromTask(ctx context.Context, t *model.Task, result string) error {
	if t == nil {
		return domain.ErrInvalidArgument
	}
	if outcome := taskOutcomeContent(t, result); outcome != "" {
		c := model.MemoryCandidate{Category: model.MemoryTaskOutcome, Content: outcome, Confidence: outcomeConfidence}
		if _, err := m.Insert(ctx, c, model.SourceInferred, t.ID); err != nil {
			return err
		}
	}
	if m.extractor == nil {
		return nil
	}

	existing, err := m.window(ctx)
	if err != nil {
		return err
	}
	cands, err := m.extractor.Extract(ctx, adapter.MemoryExtractionInput{
		Request:  t.OriginalPrompt,
		Title:    t.Title,
		Result:   result,
		Existing: existing,
	})
	if err != nil {
		return fmt.Errorf("extract memories: %w", err)
	}
	for _, c := range cands {
		if !model.ValidCategory(c.Category) || c.Confidence < m.opts.MinConfidence || strings.TrimSpace(c.Content) == "" {
			metrics.IncMemoryWrite(string(model.SourceExtraction), string(MemoryRejected))
			continue
		}
		if _, err := m.Insert(ctx, c, model.SourceExtraction, t.ID); err != nil {
			m.log.Warn().Err(err).Str("task_id", t.ID).Msg("store extracted memory failed")
		}
	}
	return nil
}

// window returns ranked active contents that fit the token budget.
func (m *memoryUC) window(ctx context.Context) ([]string, error) {
	recs, err := m.ranked(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	used := 0
	for _, r := range recs {
		cost := m.count(r.Content)
		if used+cost > m.opts.WindowTokens {
			break
		}
		used += cost
		out = append(out, r.Content)
	}
	return out, nil
}

func (m *memoryUC) count(s string) int {
	if m.tokens != nil {
		return m.tokens.Count(s)
	}
	return len(s)/4 + 1
}

func (m *memoryUC) ranked(ctx context.Context) ([]*model.MemoryRecord, error) {
	recs, err := m.repo.ListActive(ctx, m.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list active memories: %w", err)
	}
	sort.SliceStable(recs, func(i, j int) bool {
		ri, rj := model.CategoryRank(recs[i].Category), model.CategoryRank(recs[j].Category)
		if ri != rj {
			return ri < rj
		}
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
	return recs, nil
}

func (m *memoryUC) Retrieve(ctx context.Context, limit int) ([]*model.MemoryRecord, error) {
	recs, err := m.ranked(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = m.opts.RetrieveLimit
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}
	if len(recs) == 0 {
		return recs, nil
	}
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	if err := m.repo.Touch(ctx, ids, m.now().UTC()); err != nil {
		m.log.Warn().Err(err).Msg("touch memories failed")
	}
	return recs, nil
}

func (m *memoryUC) ContextBlock(ctx context.Context) string {
	recs, err := m.Retrieve(ctx, m.opts.RetrieveLimit)
	if err != nil {
		m.log.Warn().Err(err).Msg("retrieve memories failed")
		return ""
	}
	if len(recs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Known context about the user:\n")
	for _, r := range recs {
		b.WriteString("- ")
		b.WriteString(r.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

func taskOutcomeContent(t *model.Task, result string) string {
	title := strings.TrimSpace(t.Title)
	head := truncateRunes(strings.Join(strings.Fields(result), " "), outcomeResultRunes)
	switch {
	case title == "" && head == "":
		return ""
	case head == "":
		return fmt.Sprintf("Completed task %q", title)
	case title == "":
		return "Completed task: " + head
	}
	return fmt.Sprintf("Completed task %q: %s", title, head)
}

// truncateRunes cuts s to at most n runes, marking the cut with an ellipsis.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
