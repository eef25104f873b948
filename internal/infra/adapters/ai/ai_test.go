//go:build !integration

package ai

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"chat-task-bridge/internal/config"
	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
)

type fakeCompleter struct {
	mu    sync.Mutex
	reqs  []adapter.CompletionRequest
	reply string
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, req adapter.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return f.reply, f.err
}

func discard() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func summaries(ids ...string) []model.ActiveTaskSummary {
	out := make([]model.ActiveTaskSummary, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.ActiveTaskSummary{ID: id, Title: "task " + id, Status: model.TaskRunning})
	}
	return out
}

func TestLLMClassifier(t *testing.T) {
	tests := []struct {
		name   string
		reply  string
		err    error
		action model.RouteAction
		taskID string
		reason string
	}{
		{"continue", `{"action":"continue","task_id":"t2","reason":"same_trip"}`, nil, model.RouteContinue, "t2", "same_trip"},
		{"fenced new", "```json\n{\"action\":\"new\"}\n```", nil, model.RouteNew, "", "llm_new"},
		{"wrapped in prose", `Sure! {"action":"CONTINUE","task_id":" t1 "} hope that helps`, nil, model.RouteContinue, "t1", "llm_continue"},
		{"garbage", "I think it is new", nil, model.RouteNew, "", model.ReasonClassifierParse},
		{"unknown action", `{"action":"maybe"}`, nil, model.RouteNew, "", model.ReasonClassifierParse},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			llm := &fakeCompleter{reply: tc.reply, err: tc.err}
			c := NewLLMClassifier(llm, ApproxCounter{}, discard())
			got, err := c.Classify(context.Background(), adapter.ClassifyInput{Message: "hi", ActiveTasks: summaries("t1", "t2")})
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got.Action != tc.action || got.TaskID != tc.taskID || got.Reason != tc.reason {
				t.Fatalf("got %+v", got)
			}
			if !llm.reqs[0].JSON {
				t.Fatalf("expected json mode")
			}
		})
	}
}

func TestLLMClassifierPropagatesCompletionError(t *testing.T) {
	c := NewLLMClassifier(&fakeCompleter{err: errors.New("boom")}, nil, discard())
	if _, err := c.Classify(context.Background(), adapter.ClassifyInput{Message: "hi"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLLMClassifierPromptBudget(t *testing.T) {
	llm := &fakeCompleter{reply: `{"action":"new"}`}
	c := NewLLMClassifier(llm, ApproxCounter{}, discard())

	long := strings.Repeat("x", 4000)
	var tasks []model.ActiveTaskSummary
	for i := 0; i < 20; i++ {
		tasks = append(tasks, model.ActiveTaskSummary{ID: string(rune('a' + i)), OriginalPrompt: long, LastMessage: long})
	}
	if _, err := c.Classify(context.Background(), adapter.ClassifyInput{Message: "next", ActiveTasks: tasks}); err != nil {
		t.Fatal(err)
	}
	prompt := llm.reqs[0].User
	lines := strings.Count(prompt, `"id":`)
	if lines == 0 || lines >= 20 {
		t.Fatalf("expected trimmed summaries, got %d", lines)
	}
	if !strings.HasSuffix(prompt, "next") {
		t.Fatalf("message missing from prompt")
	}
}

func TestPersonaRenderer(t *testing.T) {
	ctx := context.Background()

	llm := &fakeCompleter{reply: `{"text":"On it! Starting \"Book dinner\" right away."}`}
	r := NewPersonaRenderer(llm, "a cheerful butler", discard())
	if got := r.Acknowledge(ctx, "Book dinner"); !strings.HasPrefix(got, "On it!") {
		t.Fatalf("ack = %q", got)
	}
	if !strings.Contains(llm.reqs[0].System, "a cheerful butler") {
		t.Fatalf("persona missing from system prompt")
	}

	// Dropping the title falls back to the template.
	llm.reply = `{"text":"On it!"}`
	if got := r.Acknowledge(ctx, "Book dinner"); got != model.AcknowledgeText("Book dinner") {
		t.Fatalf("ack = %q", got)
	}

	llm.reply = "not json"
	if got := r.FrameResult(ctx, "Book dinner", "Table for two at 8pm."); got != "Table for two at 8pm." {
		t.Fatalf("frame = %q", got)
	}

	llm.err = domain.ErrLLMDisabled
	if got := r.Acknowledge(ctx, "X"); got != model.AcknowledgeText("X") {
		t.Fatalf("ack = %q", got)
	}
}

func TestPersonaRendererLongResultKeepsBody(t *testing.T) {
	body := strings.Repeat("line of result\n", 200)
	llm := &fakeCompleter{reply: `{"text":"Here you go:"}`}
	r := NewPersonaRenderer(llm, "", discard())
	got := r.FrameResult(context.Background(), "Report", body)
	if got != "Here you go:\n\n"+body {
		t.Fatalf("long result was rewritten")
	}
}

func TestLLMExtractor(t *testing.T) {
	llm := &fakeCompleter{reply: `{"memories":[
		{"category":"preference","content":"Prefers window seats","confidence":0.8},
		{"category":"task_outcome","content":"ignored"},
		{"category":"fact","content":"  ","confidence":0.9},
		{"category":"FACT","content":"Lives in Lisbon","confidence":7}
	]}`}
	e := NewLLMExtractor(llm, discard())
	got, err := e.Extract(context.Background(), adapter.MemoryExtractionInput{
		Request: "book a flight", Title: "Flight", Result: "Booked", Existing: []string{"Name is Ana"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d candidates: %+v", len(got), got)
	}
	if got[0].Category != model.MemoryPreference || got[0].Confidence != 0.8 {
		t.Fatalf("first = %+v", got[0])
	}
	if got[1].Category != model.MemoryFact || got[1].Confidence != 0.5 {
		t.Fatalf("second = %+v", got[1])
	}
	if !strings.Contains(llm.reqs[0].User, "- Name is Ana") {
		t.Fatalf("existing memories missing from prompt")
	}

	llm.reply = "nothing to add"
	got, err = e.Extract(context.Background(), adapter.MemoryExtractionInput{})
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil; got %v, %v", got, err)
	}
}

type blockingCompleter struct {
	inFlight, peak atomic.Int32
	release        chan struct{}
}

func (b *blockingCompleter) Complete(ctx context.Context, _ adapter.CompletionRequest) (string, error) {
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	<-b.release
	return "ok", nil
}

func TestLimitedBoundsConcurrency(t *testing.T) {
	inner := &blockingCompleter{release: make(chan struct{})}
	c := NewLimited(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Complete(context.Background(), adapter.CompletionRequest{})
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(inner.release)
	wg.Wait()
	if p := inner.peak.Load(); p > 2 {
		t.Fatalf("peak concurrency %d", p)
	}
}

func TestLimitedHonoursContext(t *testing.T) {
	inner := &blockingCompleter{release: make(chan struct{})}
	defer close(inner.release)
	c := NewLimited(inner, 1)
	go func() { _, _ = c.Complete(context.Background(), adapter.CompletionRequest{}) }()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := c.Complete(ctx, adapter.CompletionRequest{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
}

func TestFactories(t *testing.T) {
	ctx := context.Background()
	llm, err := NewCompleter(ctx, config.LLMConfig{Backend: "none"}, discard())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := llm.Complete(ctx, adapter.CompletionRequest{}); !errors.Is(err, domain.ErrLLMDisabled) {
		t.Fatalf("noop err = %v", err)
	}
	if _, err := NewCompleter(ctx, config.LLMConfig{Backend: "claude"}, discard()); err == nil {
		t.Fatalf("expected unknown backend error")
	}
	if _, err := NewClassifier("llm", llm, nil, discard()); err == nil {
		t.Fatalf("llm classifier without backend should fail")
	}
	if c, _ := NewClassifier("deterministic", llm, nil, discard()); c != (DeterministicClassifier{}) {
		t.Fatalf("classifier = %T", c)
	}
	if _, ok := NewRenderer(config.PersonalityConfig{Enabled: true}, llm, discard()).(TemplateRenderer); !ok {
		t.Fatalf("renderer should fall back to template without backend")
	}
	if _, ok := NewRenderer(config.PersonalityConfig{Enabled: true}, &fakeCompleter{}, discard()).(*PersonaRenderer); !ok {
		t.Fatalf("expected persona renderer")
	}
	if NewExtractor(config.MemoryConfig{Enabled: true, LLMExtraction: true}, llm, discard()) != nil {
		t.Fatalf("extractor should be nil without backend")
	}
}
