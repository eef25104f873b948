//go:build !integration

package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/domain/repository"
	"chat-task-bridge/internal/infra/db/memstore"

	"github.com/rs/zerolog"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// ---- outbound ----

type sentItem struct {
	ChatID string
	Text   string
	Media  *adapter.Media
}

type fakeOutbound struct {
	mu     sync.Mutex
	sent   []sentItem
	typing int
}

func (f *fakeOutbound) SendText(_ context.Context, chatID, text string) adapter.SendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentItem{ChatID: chatID, Text: text})
	return adapter.SendResult{Delivered: true}
}

func (f *fakeOutbound) SendMedia(_ context.Context, chatID string, m adapter.Media) adapter.SendResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	mc := m
	f.sent = append(f.sent, sentItem{ChatID: chatID, Media: &mc})
	return adapter.SendResult{Delivered: true}
}

func (f *fakeOutbound) SetTyping(context.Context, string, bool) {
	f.mu.Lock()
	f.typing++
	f.mu.Unlock()
}

func (f *fakeOutbound) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		if s.Media == nil {
			out = append(out, s.Text)
		}
	}
	return out
}

func (f *fakeOutbound) media() []adapter.Media {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []adapter.Media
	for _, s := range f.sent {
		if s.Media != nil {
			out = append(out, *s.Media)
		}
	}
	return out
}

// ---- provider ----

type continueCall struct {
	ProviderTaskID string
	Prompt         string
	Opts           adapter.TaskOptions
}

type fakeProvider struct {
	mu         sync.Mutex
	seq        int
	title      string
	createErr  error
	created    []string
	createOpts []adapter.TaskOptions
	continued  []continueCall
	statuses   map[string]adapter.ProviderTaskStatus
	getErr     map[string]error
	onGet      func(id string)
}

func (f *fakeProvider) CreateTask(_ context.Context, prompt string, opts adapter.TaskOptions) (adapter.ProviderTaskRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return adapter.ProviderTaskRef{}, f.createErr
	}
	f.seq++
	f.created = append(f.created, prompt)
	f.createOpts = append(f.createOpts, opts)
	return adapter.ProviderTaskRef{
		TaskID: fmt.Sprintf("t%d", f.seq),
		Title:  f.title,
		URL:    fmt.Sprintf("https://provider.test/tasks/t%d", f.seq),
	}, nil
}

func (f *fakeProvider) ContinueTask(_ context.Context, id, prompt string, opts adapter.TaskOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.continued = append(f.continued, continueCall{ProviderTaskID: id, Prompt: prompt, Opts: opts})
	return nil
}

func (f *fakeProvider) GetTask(_ context.Context, id string) (adapter.ProviderTaskStatus, error) {
	if f.onGet != nil {
		f.onGet(id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[id]; err != nil {
		return adapter.ProviderTaskStatus{}, err
	}
	if st, ok := f.statuses[id]; ok {
		return st, nil
	}
	return adapter.ProviderTaskStatus{}, fmt.Errorf("get task %s: %w", id, domain.ErrProviderTaskNotFound)
}

// ---- classifier ----

type fakeClassifier struct {
	mu    sync.Mutex
	calls int
	last  adapter.ClassifyInput
	out   adapter.Classification
	err   error
}

func (f *fakeClassifier) Classify(_ context.Context, in adapter.ClassifyInput) (adapter.Classification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = in
	return f.out, f.err
}

// ---- fetcher ----

type fakeFetcher struct {
	files   map[string][]byte
	types   map[string]string
	fail    map[string]bool
	panicOn string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, string, error) {
	if url == f.panicOn {
		panic("fetcher blew up on " + url)
	}
	if f.fail[url] {
		return nil, "", errors.New("connection reset")
	}
	data, ok := f.files[url]
	if !ok {
		return nil, "", errors.New("404")
	}
	return data, f.types[url], nil
}

// ---- limiter ----

type fakeLimiter struct {
	deny map[string]bool
	err  error
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return !f.deny[key], nil
}

// ---- gateway (downloads only) ----

type fakeGateway struct {
	media map[string][]byte
}

func (g *fakeGateway) Name() string                                           { return "fake" }
func (g *fakeGateway) SendText(context.Context, string, string) error         { return nil }
func (g *fakeGateway) SendMedia(context.Context, string, adapter.Media) error { return nil }
func (g *fakeGateway) SetTyping(context.Context, string, bool) error          { return nil }
func (g *fakeGateway) IsConnected() bool                                      { return true }
func (g *fakeGateway) DownloadMedia(_ context.Context, ref string) ([]byte, error) {
	if b, ok := g.media[ref]; ok {
		return b, nil
	}
	return nil, errors.New("media gone")
}

// ---- harness ----

type bridgeHarness struct {
	repos      repository.Repositories
	out        *fakeOutbound
	provider   *fakeProvider
	classifier *fakeClassifier
	fetcher    *fakeFetcher
	dispatch   *dispatchUC
	webhook    *webhookUC
	processor  *EventProcessor
}

const testSecret = "s3cret"

func newBridgeHarness() *bridgeHarness {
	log := testLogger()
	repos := memstore.New().Repositories()
	h := &bridgeHarness{
		repos:      repos,
		out:        &fakeOutbound{},
		provider:   &fakeProvider{},
		classifier: &fakeClassifier{out: adapter.Classification{Action: model.RouteNew, Reason: "classifier_new"}},
		fetcher:    &fakeFetcher{files: map[string][]byte{}, types: map[string]string{}, fail: map[string]bool{}},
	}
	inbound := NewInboundUseCase(&fakeGateway{}, nil, repos.Sessions, repos.Messages, time.Hour, time.Hour, log)
	router := NewRouterUseCase(h.classifier, repos.Messages, time.Second, MaxClassifierTasks, log)
	tasks := NewTaskUseCase(h.provider, repos.Tasks, repos.Messages, h.out, nil, nil, nil,
		TaskOptions{Interactive: true, Mode: "adaptive", TaskTTL: time.Hour, MessageTTL: time.Hour}, log)
	h.dispatch = NewDispatchUseCase(inbound, router, tasks, nil, nil, repos, h.out, time.Hour, log)
	h.processor = NewEventProcessor(repos, h.out, h.fetcher, nil, nil,
		ProcessorOptions{MessageTTL: time.Hour, AttachmentTTL: time.Hour}, log)
	h.webhook = NewWebhookUseCase(testSecret, repos.Events, h.processor, time.Hour, log)
	return h
}

func rawText(id, text string) model.RawChannelMessage {
	return model.RawChannelMessage{
		Channel:   "whatsapp",
		MessageID: id,
		ChatID:    "chat-1",
		SenderID:  "user-1",
		Text:      text,
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (h *bridgeHarness) deliver(payload string) WebhookResult {
	return h.webhook.HandleWebhook(context.Background(), WebhookRequest{Secret: testSecret, Payload: []byte(payload)})
}
