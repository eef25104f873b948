//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"chat-task-bridge/internal/domain/adapter"
	"chat-task-bridge/internal/domain/model"
	"chat-task-bridge/internal/infra/db/memstore"
)

func activeTask(id string, status model.TaskStatus, stop model.StopReason) *model.Task {
	return &model.Task{ID: id, SessionID: "s1", ProviderTaskID: "p-" + id, Status: status, StopReason: stop, Title: "task " + id}
}

func TestRouter_NoActiveTasksSkipsClassifier(t *testing.T) {
	cls := &fakeClassifier{}
	r := NewRouterUseCase(cls, nil, time.Second, 20, testLogger())

	d := r.Route(context.Background(), RouteInput{Text: "anything"})
	if d.Action != model.RouteNew || d.Reason != model.ReasonNoActiveTasks {
		t.Fatalf("decision = %+v", d)
	}
	if cls.calls != 0 {
		t.Fatalf("classifier called %d times", cls.calls)
	}
}

func TestRouter_SingleWaitingTaskAutoContinues(t *testing.T) {
	cls := &fakeClassifier{}
	r := NewRouterUseCase(cls, nil, time.Second, 20, testLogger())

	d := r.Route(context.Background(), RouteInput{
		Text:        "Italian please",
		ActiveTasks: []*model.Task{activeTask("a", model.TaskWaitingUser, model.StopAsk)},
	})
	if d.Action != model.RouteContinue || d.TaskID != "a" || d.Reason != model.ReasonSingleWaitingUser {
		t.Fatalf("decision = %+v", d)
	}
	if cls.calls != 0 {
		t.Fatal("classifier must not run for the clarify loop")
	}
}

func TestRouter_ClassifierDecides(t *testing.T) {
	running := activeTask("a", model.TaskRunning, "")
	waitA := activeTask("w1", model.TaskWaitingUser, model.StopAsk)
	waitB := activeTask("w2", model.TaskWaitingUser, model.StopAsk)

	cases := []struct {
		name       string
		tasks      []*model.Task
		out        adapter.Classification
		err        error
		wantAction model.RouteAction
		wantTask   string
		wantReason string
	}{
		{"single running task goes to classifier", []*model.Task{running},
			adapter.Classification{Action: model.RouteContinue, TaskID: "a", Reason: "same topic"},
			nil, model.RouteContinue, "a", "same topic"},
		{"two waiting tasks go to classifier", []*model.Task{waitA, waitB},
			adapter.Classification{Action: model.RouteContinue, TaskID: "w2"},
			nil, model.RouteContinue, "w2", "classifier_continue"},
		{"unknown task id is rejected", []*model.Task{running},
			adapter.Classification{Action: model.RouteContinue, TaskID: "ghost"},
			nil, model.RouteNew, "", "classifier_rejected_unknown_task:ghost"},
		{"classifier error falls back to new", []*model.Task{running},
			adapter.Classification{}, errors.New("timeout"), model.RouteNew, "", model.ReasonClassifierError},
		{"classifier says new", []*model.Task{running},
			adapter.Classification{Action: model.RouteNew, Reason: model.ReasonClassifierParse},
			nil, model.RouteNew, "", model.ReasonClassifierParse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cls := &fakeClassifier{out: tc.out, err: tc.err}
			r := NewRouterUseCase(cls, nil, time.Second, 20, testLogger())
			d := r.Route(context.Background(), RouteInput{Text: "hi", ActiveTasks: tc.tasks})
			if cls.calls != 1 {
				t.Fatalf("classifier calls = %d", cls.calls)
			}
			if d.Action != tc.wantAction || d.TaskID != tc.wantTask || d.Reason != tc.wantReason {
				t.Fatalf("decision = %+v", d)
			}
		})
	}
}

func TestRouter_BoundsSummaries(t *testing.T) {
	var tasks []*model.Task
	for i := 0; i < 30; i++ {
		tasks = append(tasks, activeTask(string(rune('a'+i)), model.TaskRunning, ""))
	}
	cls := &fakeClassifier{out: adapter.Classification{Action: model.RouteNew}}
	r := NewRouterUseCase(cls, nil, time.Second, 50, testLogger())
	r.Route(context.Background(), RouteInput{Text: "x", ActiveTasks: tasks})
	if len(cls.last.ActiveTasks) != MaxClassifierTasks {
		t.Fatalf("classifier saw %d summaries", len(cls.last.ActiveTasks))
	}
}

func TestRouter_PersistsDecisionOnMessage(t *testing.T) {
	repos := memstore.New().Repositories()
	ctx := context.Background()
	msg := &model.Message{ID: "m1", SessionID: "s1", Direction: model.DirectionInbound, ChannelMessageID: "c1", Text: "hi"}
	if _, err := repos.Messages.Insert(ctx, msg); err != nil {
		t.Fatal(err)
	}
	r := NewRouterUseCase(&fakeClassifier{}, repos.Messages, time.Second, 20, testLogger())
	r.Route(ctx, RouteInput{MessageID: "m1", Text: "hi"})

	got, err := repos.Messages.ListBySession(ctx, "s1", 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("list: %v %d", err, len(got))
	}
	if got[0].RouteAction != model.RouteNew || got[0].RouteReason != model.ReasonNoActiveTasks {
		t.Fatalf("persisted route = %s/%s", got[0].RouteAction, got[0].RouteReason)
	}
}

func TestRouter_PersistFailureDoesNotBlock(t *testing.T) {
	repos := memstore.New().Repositories()
	r := NewRouterUseCase(&fakeClassifier{}, repos.Messages, time.Second, 20, testLogger())
	d := r.Route(context.Background(), RouteInput{MessageID: "missing", Text: "hi"})
	if d.Action != model.RouteNew {
		t.Fatalf("decision = %+v", d)
	}
}
