//go:build !integration

package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/domain/repository"
)

func TestParseEvent(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		wantErr bool
		check   func(t *testing.T, ev model.ProviderEvent)
	}{
		{name: "created", payload: `{"event_id":"e1","event_type":"task_created","task_detail":{"task_id":"t1","task_title":"News","task_url":"https://x/t1"}}`,
			check: func(t *testing.T, ev model.ProviderEvent) {
				c, ok := ev.(model.TaskCreatedEvent)
				if !ok || c.Title != "News" || c.URL != "https://x/t1" || c.ProviderTaskID != "t1" {
					t.Fatalf("event = %#v", ev)
				}
			}},
		{name: "progress", payload: `{"event_id":"e2","event_type":"task_progress","progress_detail":{"task_id":"t1","progress_type":"plan_update","message":"step 1"}}`,
			check: func(t *testing.T, ev model.ProviderEvent) {
				p, ok := ev.(model.TaskProgressEvent)
				if !ok || p.Message != "step 1" || p.ProgressType != "plan_update" {
					t.Fatalf("event = %#v", ev)
				}
			}},
		{name: "stopped with attachments", payload: `{"event_id":"e3","event_type":"task_stopped","task_detail":{"task_id":"t1","message":"Done","stop_reason":"finish","attachments":[{"file_name":"a.pdf","url":"https://f/a.pdf","size_bytes":"42"}]}}`,
			check: func(t *testing.T, ev model.ProviderEvent) {
				s, ok := ev.(model.TaskStoppedEvent)
				if !ok || s.StopReason != model.StopFinish || len(s.Attachments) != 1 || s.Attachments[0].SizeBytes != 42 {
					t.Fatalf("event = %#v", ev)
				}
			}},
		{name: "missing event id", payload: `{"event_type":"task_created","task_detail":{"task_id":"t1"}}`, wantErr: true},
		{name: "unknown type", payload: `{"event_id":"e","event_type":"task_deleted"}`, wantErr: true},
		{name: "created without detail", payload: `{"event_id":"e","event_type":"task_created"}`, wantErr: true},
		{name: "progress without task", payload: `{"event_id":"e","event_type":"task_progress","progress_detail":{"message":"x"}}`, wantErr: true},
		{name: "bad stop reason", payload: `{"event_id":"e","event_type":"task_stopped","task_detail":{"task_id":"t1","stop_reason":"cancel"}}`, wantErr: true},
		{name: "not json", payload: `event_id=e`, wantErr: true},
		{name: "empty", payload: ``, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tc.payload))
			if tc.wantErr {
				if !errors.Is(err, domain.ErrInvalidPayload) {
					t.Fatalf("err = %v, want ErrInvalidPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			tc.check(t, ev)
		})
	}
}

func TestAttachmentMimeType(t *testing.T) {
	cases := []struct{ ct, name, want string }{
		{"image/png; charset=binary", "x.bin", "image/png"},
		{"", "report.pdf", "application/pdf"},
		{"application/octet-stream", "notes.txt", "text/plain"},
		{"", "blob", "application/octet-stream"},
	}
	for _, tc := range cases {
		if got := AttachmentMimeType(tc.ct, tc.name); got != tc.want {
			t.Errorf("AttachmentMimeType(%q, %q) = %q, want %q", tc.ct, tc.name, got, tc.want)
		}
	}
}

// seedTask creates a session and a task with the given provider id.
func seedTask(t *testing.T, h *bridgeHarness, providerID string, status model.TaskStatus) *model.Task {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	sess, _ := model.NewChannelSession("whatsapp", "chat-1", "user-1", now, time.Hour)
	stored, err := h.repos.Sessions.Upsert(ctx, sess)
	if err != nil {
		t.Fatal(err)
	}
	task, _ := model.NewTask(stored.ID, providerID, "Summary", now, time.Hour)
	task.Status = status
	if err := h.repos.Tasks.Create(ctx, task); err != nil {
		t.Fatal(err)
	}
	return task
}

func TestWebhook_RejectsBadSecretAndPayload(t *testing.T) {
	h := newBridgeHarness()
	ctx := context.Background()

	res := h.webhook.HandleWebhook(ctx, WebhookRequest{Secret: "nope", Payload: []byte(`{}`)})
	if res.Status != WebhookUnauthorized {
		t.Fatalf("status = %s", res.Status)
	}
	res = h.deliver(`{"event_type":"task_created"}`)
	if res.Status != WebhookInvalidPayload {
		t.Fatalf("status = %s", res.Status)
	}
	big := `{"event_id":"e","event_type":"task_progress","progress_detail":{"task_id":"t","message":"` + strings.Repeat("x", MaxWebhookPayload) + `"}}`
	if res = h.deliver(big); res.Status != WebhookInvalidPayload {
		t.Fatalf("oversized status = %s", res.Status)
	}
	if _, err := h.repos.Events.FindByEventID(ctx, "e"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatal("rejected deliveries must not reach the ledger")
	}
}

func TestWebhook_DuplicateDeliverySendsOnce(t *testing.T) {
	h := newBridgeHarness()
	task := seedTask(t, h, "t1", model.TaskRunning)
	payload := `{"event_id":"evt-1","event_type":"task_stopped","task_detail":{"task_id":"t1","message":"Done","stop_reason":"finish"}}`

	if res := h.deliver(payload); res.Status != WebhookProcessed {
		t.Fatalf("first = %+v", res)
	}
	if res := h.deliver(payload); res.Status != WebhookDuplicate {
		t.Fatalf("second = %+v", res)
	}
	if got := h.out.texts(); len(got) != 1 || got[0] != "Done" {
		t.Fatalf("sent = %v", got)
	}
	stored, _ := h.repos.Tasks.FindByID(context.Background(), task.ID)
	if stored.Status != model.TaskCompleted || stored.StopReason != model.StopFinish || stored.StoppedAt == nil {
		t.Fatalf("task = %+v", stored)
	}
	ev, _ := h.repos.Events.FindByEventID(context.Background(), "evt-1")
	if ev.Status != model.ProcessProcessed {
		t.Fatalf("ledger status = %s", ev.Status)
	}
}

func TestWebhook_LateProgressIsIgnored(t *testing.T) {
	h := newBridgeHarness()
	h.processor.forwardProgress = true
	task := seedTask(t, h, "t1", model.TaskCompleted)
	task.LastMessage = "final"
	_ = h.repos.Tasks.Save(context.Background(), task)

	res := h.deliver(`{"event_id":"p1","event_type":"task_progress","progress_detail":{"task_id":"t1","progress_type":"x","message":"still working"}}`)
	if res.Status != WebhookProcessed {
		t.Fatalf("status = %s", res.Status)
	}
	stored, _ := h.repos.Tasks.FindByID(context.Background(), task.ID)
	if stored.Status != model.TaskCompleted || stored.LastMessage != "final" {
		t.Fatalf("task changed: %+v", stored)
	}
	if len(h.out.sent) != 0 {
		t.Fatalf("sent %v", h.out.sent)
	}
	ev, _ := h.repos.Events.FindByEventID(context.Background(), "p1")
	if ev.Status != model.ProcessIgnored {
		t.Fatalf("ledger status = %s", ev.Status)
	}
}

func TestWebhook_CreatedAndForwardedProgress(t *testing.T) {
	h := newBridgeHarness()
	h.processor.forwardProgress = true
	task := seedTask(t, h, "t1", model.TaskPending)

	h.deliver(`{"event_id":"c1","event_type":"task_created","task_detail":{"task_id":"t1","task_title":"Better title","task_url":"https://x/t1"}}`)
	stored, _ := h.repos.Tasks.FindByID(context.Background(), task.ID)
	if stored.Status != model.TaskRunning || stored.Title != "Better title" || stored.URL != "https://x/t1" || stored.LastWebhookAt == nil {
		t.Fatalf("after created: %+v", stored)
	}
	if len(h.out.sent) != 0 {
		t.Fatal("created must not message the user")
	}

	h.deliver(`{"event_id":"p1","event_type":"task_progress","progress_detail":{"task_id":"t1","progress_type":"plan","message":"Reading sources"}}`)
	stored, _ = h.repos.Tasks.FindByID(context.Background(), task.ID)
	if stored.LastMessage != "Reading sources" {
		t.Fatalf("last message = %q", stored.LastMessage)
	}
	if got := h.out.texts(); len(got) != 1 || got[0] != "Reading sources" {
		t.Fatalf("sent = %v", got)
	}
}

func TestWebhook_UnknownTaskIsIgnored(t *testing.T) {
	h := newBridgeHarness()
	res := h.deliver(`{"event_id":"x","event_type":"task_created","task_detail":{"task_id":"nobody"}}`)
	if res.Status != WebhookProcessed {
		t.Fatalf("status = %s", res.Status)
	}
	ev, _ := h.repos.Events.FindByEventID(context.Background(), "x")
	if ev.Status != model.ProcessIgnored {
		t.Fatalf("ledger = %s", ev.Status)
	}
}

func TestWebhook_AttachmentFailureMarksFailedAndRedeliveryResumes(t *testing.T) {
	h := newBridgeHarness()
	task := seedTask(t, h, "t1", model.TaskRunning)
	h.fetcher.files["https://f/a.pdf"] = []byte("%PDF")
	h.fetcher.files["https://f/b.png"] = []byte("png")
	h.fetcher.types["https://f/b.png"] = "image/png"
	h.fetcher.fail["https://f/b.png"] = true

	payload := `{"event_id":"s1","event_type":"task_stopped","task_detail":{"task_id":"t1","message":"Files attached","stop_reason":"finish","attachments":[
		{"file_name":"a.pdf","url":"https://f/a.pdf","size_bytes":4},
		{"file_name":"b.png","url":"https://f/b.png"}]}}`

	res := h.deliver(payload)
	if res.Status != WebhookFailed {
		t.Fatalf("first = %+v", res)
	}
	ev, _ := h.repos.Events.FindByEventID(context.Background(), "s1")
	if ev.Status != model.ProcessFailed || !strings.Contains(ev.Error, "b.png") {
		t.Fatalf("ledger = %+v", ev)
	}

	h.fetcher.fail["https://f/b.png"] = false
	if res = h.deliver(payload); res.Status != WebhookProcessed {
		t.Fatalf("redelivery = %+v", res)
	}
	if got := h.out.texts(); len(got) != 1 || got[0] != "Files attached" {
		t.Fatalf("result text sent %v", got)
	}
	media := h.out.media()
	if len(media) != 2 || media[0].FileName != "a.pdf" || media[0].MimeType != "application/pdf" || media[1].MimeType != "image/png" {
		t.Fatalf("media = %+v", media)
	}
	rows, _ := h.repos.Attachments.ListByTask(context.Background(), task.ID)
	if len(rows) != 2 {
		t.Fatalf("attachment rows = %d", len(rows))
	}
	if res = h.deliver(payload); res.Status != WebhookDuplicate {
		t.Fatalf("third = %s", res.Status)
	}
}

func TestWebhook_AcceptThenAbandon(t *testing.T) {
	h := newBridgeHarness()
	seedTask(t, h, "t1", model.TaskRunning)
	payload := []byte(`{"event_id":"q1","event_type":"task_stopped","task_detail":{"task_id":"t1","message":"Done","stop_reason":"finish"}}`)
	ctx := context.Background()

	res, ev := h.webhook.Accept(ctx, WebhookRequest{Secret: testSecret, Payload: payload})
	if res.Status != WebhookAccepted || ev == nil {
		t.Fatalf("accept = %+v", res)
	}
	h.webhook.Abandon(ctx, ev, "worker queue full")
	row, _ := h.repos.Events.FindByEventID(ctx, "q1")
	if row.Status != model.ProcessFailed || row.Error != "worker queue full" {
		t.Fatalf("ledger = %+v", row)
	}
	if got := h.webhook.HandleWebhook(ctx, WebhookRequest{Secret: testSecret, Payload: payload}); got.Status != WebhookProcessed {
		t.Fatalf("reclaimed = %s", got.Status)
	}
	if len(h.out.texts()) != 1 {
		t.Fatal("reclaimed event should deliver once")
	}
}

// pausingTasks holds the first provider-id lookup until resume is closed, so a
// second event can land between that load and its write.
type pausingTasks struct {
	repository.TaskRepository
	once   sync.Once
	loaded chan struct{}
	resume chan struct{}
}

func (p *pausingTasks) FindByProviderTaskID(ctx context.Context, id string) (*model.Task, error) {
	t, err := p.TaskRepository.FindByProviderTaskID(ctx, id)
	first := false
	p.once.Do(func() { first = true })
	if first {
		close(p.loaded)
		<-p.resume
	}
	return t, err
}

func TestEventProcessor_InterleavedProgressDoesNotReviveStoppedTask(t *testing.T) {
	cases := []struct {
		name       string
		stop       model.TaskStoppedEvent
		wantStatus model.TaskStatus
	}{
		{"finish", model.TaskStoppedEvent{EventID: "s1", ProviderTaskID: "t1", Message: "Done", StopReason: model.StopFinish}, model.TaskCompleted},
		{"ask", model.TaskStoppedEvent{EventID: "s1", ProviderTaskID: "t1", Message: "Which format?", StopReason: model.StopAsk}, model.TaskWaitingUser},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newBridgeHarness()
			task := seedTask(t, h, "t1", model.TaskRunning)
			ctx := context.Background()

			tasks := &pausingTasks{TaskRepository: h.repos.Tasks, loaded: make(chan struct{}), resume: make(chan struct{})}
			repos := h.repos
			repos.Tasks = tasks
			p := NewEventProcessor(repos, h.out, h.fetcher, nil, nil,
				ProcessorOptions{ForwardProgress: true, MessageTTL: time.Hour, AttachmentTTL: time.Hour}, testLogger())

			type result struct {
				status model.ProcessStatus
				err    error
			}
			progressDone := make(chan result, 1)
			go func() {
				st, err := p.Process(ctx, model.TaskProgressEvent{EventID: "p1", ProviderTaskID: "t1", ProgressType: "plan", Message: "still working"})
				progressDone <- result{st, err}
			}()

			<-tasks.loaded
			if st, err := p.Process(ctx, tc.stop); err != nil || st != model.ProcessProcessed {
				t.Fatalf("stop = %s, %v", st, err)
			}
			close(tasks.resume)

			res := <-progressDone
			if res.err != nil || res.status != model.ProcessIgnored {
				t.Fatalf("progress = %s, %v", res.status, res.err)
			}
			stored, _ := h.repos.Tasks.FindByID(ctx, task.ID)
			if stored.Status != tc.wantStatus || stored.StopReason != tc.stop.StopReason || stored.LastMessage != tc.stop.Message {
				t.Fatalf("task = %s/%s %q", stored.Status, stored.StopReason, stored.LastMessage)
			}
			if got := h.out.texts(); len(got) != 1 || got[0] != tc.stop.Message {
				t.Fatalf("sent = %v, progress must not be forwarded", got)
			}
		})
	}
}

func TestWebhook_PanicMarksLedgerFailedAndRedeliveryResumes(t *testing.T) {
	h := newBridgeHarness()
	seedTask(t, h, "t1", model.TaskRunning)
	h.fetcher.files["https://f/a.pdf"] = []byte("%PDF")
	h.fetcher.panicOn = "https://f/a.pdf"
	payload := `{"event_id":"s1","event_type":"task_stopped","task_detail":{"task_id":"t1","message":"Done","stop_reason":"finish","attachments":[
		{"file_name":"a.pdf","url":"https://f/a.pdf"}]}}`

	res := h.deliver(payload)
	if res.Status != WebhookFailed || !strings.Contains(res.Error, "panic") {
		t.Fatalf("first = %+v", res)
	}
	row, _ := h.repos.Events.FindByEventID(context.Background(), "s1")
	if row.Status != model.ProcessFailed {
		t.Fatalf("ledger = %+v, want failed", row)
	}

	h.fetcher.panicOn = ""
	if res = h.deliver(payload); res.Status != WebhookProcessed {
		t.Fatalf("redelivery = %+v", res)
	}
	if media := h.out.media(); len(media) != 1 || media[0].FileName != "a.pdf" {
		t.Fatalf("media = %+v", media)
	}
	if got := h.out.texts(); len(got) != 1 {
		t.Fatalf("result text should be sent once, got %v", got)
	}
}
