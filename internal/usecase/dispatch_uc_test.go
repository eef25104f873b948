//go:build !integration

package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"chat-task-bridge/internal/domain/model"
)

func TestEndToEnd_NewTaskThenFinish(t *testing.T) {
	h := newBridgeHarness()
	ctx := context.Background()

	res, err := h.dispatch.Dispatch(ctx, rawText("m1", "Summarize the news"))
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != DispatchCreated || res.Reason != model.ReasonNoActiveTasks {
		t.Fatalf("dispatch = %+v", res)
	}
	if h.classifier.calls != 0 {
		t.Fatal("classifier must not run without active tasks")
	}
	sent := h.out.texts()
	if len(sent) != 1 || !strings.Contains(sent[0], `"Summarize the news"`) {
		t.Fatalf("ack = %v", sent)
	}

	task, err := h.repos.Tasks.FindByID(ctx, res.TaskID)
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != model.TaskPending || task.OriginalPrompt != "Summarize the news" {
		t.Fatalf("task = %+v", task)
	}

	wh := h.deliver(`{"event_id":"e1","event_type":"task_stopped","task_detail":{"task_id":"` + task.ProviderTaskID + `","message":"Here is the summary","stop_reason":"finish"}}`)
	if wh.Status != WebhookProcessed {
		t.Fatalf("webhook = %+v", wh)
	}
	task, _ = h.repos.Tasks.FindByID(ctx, res.TaskID)
	if task.Status != model.TaskCompleted {
		t.Fatalf("status = %s", task.Status)
	}
	sent = h.out.texts()
	if len(sent) != 2 || !strings.Contains(sent[1], "Here is the summary") {
		t.Fatalf("sent = %v", sent)
	}

	msgs, _ := h.repos.Messages.ListBySession(ctx, task.SessionID, 10)
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want inbound plus two outbound", len(msgs))
	}
	if msgs[0].TaskID != task.ID || msgs[0].RouteAction != model.RouteNew {
		t.Fatalf("inbound not linked: %+v", msgs[0])
	}
}

func TestEndToEnd_AskThenAutoContinue(t *testing.T) {
	h := newBridgeHarness()
	ctx := context.Background()

	res, err := h.dispatch.Dispatch(ctx, rawText("m1", "Book a restaurant"))
	if err != nil || res.Status != DispatchCreated {
		t.Fatalf("dispatch = %+v, %v", res, err)
	}
	task, _ := h.repos.Tasks.FindByID(ctx, res.TaskID)

	h.deliver(`{"event_id":"e1","event_type":"task_stopped","task_detail":{"task_id":"` + task.ProviderTaskID + `","message":"Italian or Japanese?","stop_reason":"ask"}}`)
	task, _ = h.repos.Tasks.FindByID(ctx, res.TaskID)
	if task.Status != model.TaskWaitingUser || task.StopReason != model.StopAsk {
		t.Fatalf("task = %s/%s", task.Status, task.StopReason)
	}
	if sent := h.out.texts(); sent[len(sent)-1] != "Italian or Japanese?" {
		t.Fatalf("question not relayed: %v", sent)
	}

	next, err := h.dispatch.Dispatch(ctx, rawText("m2", "Italian"))
	if err != nil {
		t.Fatal(err)
	}
	if next.Status != DispatchContinued || next.TaskID != task.ID || next.Reason != model.ReasonSingleWaitingUser {
		t.Fatalf("follow-up = %+v", next)
	}
	if h.classifier.calls != 0 {
		t.Fatal("clarify loop must not call the classifier")
	}
	if len(h.provider.continued) != 1 || h.provider.continued[0].ProviderTaskID != task.ProviderTaskID || h.provider.continued[0].Prompt != "Italian" {
		t.Fatalf("continue calls = %+v", h.provider.continued)
	}
	task, _ = h.repos.Tasks.FindByID(ctx, res.TaskID)
	if task.Status != model.TaskRunning || task.StopReason != "" {
		t.Fatalf("after continue = %s/%s", task.Status, task.StopReason)
	}
}

func TestDispatch_DuplicateChannelMessage(t *testing.T) {
	h := newBridgeHarness()
	ctx := context.Background()
	if _, err := h.dispatch.Dispatch(ctx, rawText("m1", "hello")); err != nil {
		t.Fatal(err)
	}
	res, err := h.dispatch.Dispatch(ctx, rawText("m1", "hello"))
	if err != nil || res.Status != DispatchDuplicate {
		t.Fatalf("second = %+v, %v", res, err)
	}
	if len(h.provider.created) != 1 {
		t.Fatalf("provider calls = %d", len(h.provider.created))
	}
}

func TestDispatch_ProviderFailureCreatesNothing(t *testing.T) {
	h := newBridgeHarness()
	h.provider.createErr = errors.New("provider 503")
	ctx := context.Background()

	res, err := h.dispatch.Dispatch(ctx, rawText("m1", "do it"))
	if err == nil || res.Status != DispatchFailed {
		t.Fatalf("dispatch = %+v, %v", res, err)
	}
	active, _ := h.repos.Tasks.ListActiveBySession(ctx, res.SessionID, 10)
	if len(active) != 0 {
		t.Fatal("no task row on provider failure")
	}
	for _, s := range h.out.texts() {
		if strings.HasPrefix(s, "Got it") {
			t.Fatal("no acknowledgement on provider failure")
		}
	}
}

func TestDispatch_IgnoresUnaddressable(t *testing.T) {
	h := newBridgeHarness()
	res, err := h.dispatch.Dispatch(context.Background(), model.RawChannelMessage{Channel: "whatsapp", Text: "hi"})
	if err != nil || res.Status != DispatchIgnored {
		t.Fatalf("dispatch = %+v, %v", res, err)
	}
}

type staticResponder struct{}

func (staticResponder) Respond(_ context.Context, text string, active []*model.Task) (string, bool) {
	if text == "/status" {
		return "no tasks", true
	}
	return "", false
}

func TestDispatch_LocalReply(t *testing.T) {
	h := newBridgeHarness()
	h.dispatch.responder = staticResponder{}
	res, err := h.dispatch.Dispatch(context.Background(), rawText("m1", "/status"))
	if err != nil || res.Status != DispatchLocalReply {
		t.Fatalf("dispatch = %+v, %v", res, err)
	}
	if len(h.provider.created) != 0 {
		t.Fatal("local replies never reach the provider")
	}
	if sent := h.out.texts(); len(sent) != 1 || sent[0] != "no tasks" {
		t.Fatalf("sent = %v", sent)
	}
}

func TestDispatch_ClassifierContinueOnRunningTask(t *testing.T) {
	h := newBridgeHarness()
	ctx := context.Background()
	first, _ := h.dispatch.Dispatch(ctx, rawText("m1", "Research competitors"))
	h.classifier.out.Action = model.RouteContinue
	h.classifier.out.TaskID = first.TaskID
	h.classifier.out.Reason = "follow_up"

	res, err := h.dispatch.Dispatch(ctx, rawText("m2", "also include pricing"))
	if err != nil || res.Status != DispatchContinued || res.TaskID != first.TaskID {
		t.Fatalf("dispatch = %+v, %v", res, err)
	}
	if h.classifier.calls != 1 || len(h.classifier.last.ActiveTasks) != 1 {
		t.Fatalf("classifier = %d calls, %d summaries", h.classifier.calls, len(h.classifier.last.ActiveTasks))
	}
}
