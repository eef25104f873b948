//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/model"
)

func seedSession(t *testing.T, ctx context.Context, expires time.Time) *model.ChannelSession {
	t.Helper()
	now := time.Now().UTC()
	s, err := NewSessionRepo(testPool).Upsert(ctx, &model.ChannelSession{
		Channel: "whatsapp", ChatID: "chat-1", UserID: "user-1",
		LastActivityAt: now, CreatedAt: now, ExpiresAt: expires,
	})
	if err != nil {
		t.Fatalf("upsert session: %v", err)
	}
	return s
}

func TestSessionRepo_UpsertRefreshes(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	first := seedSession(t, ctx, time.Now().Add(time.Hour))
	second := seedSession(t, ctx, time.Now().Add(2*time.Hour))
	if first.ID != second.ID {
		t.Fatalf("upsert created a second session: %s vs %s", first.ID, second.ID)
	}
	if !second.ExpiresAt.After(first.ExpiresAt) {
		t.Errorf("expiry not refreshed")
	}
	if err := NewSessionRepo(testPool).SetLastConnectors(ctx, first.ID, []string{"gmail"}); err != nil {
		t.Fatalf("set connectors: %v", err)
	}
	got, _ := NewSessionRepo(testPool).FindByID(ctx, first.ID)
	if len(got.LastConnectors) != 1 || got.LastConnectors[0] != "gmail" {
		t.Errorf("connectors = %v", got.LastConnectors)
	}
}

func TestMessageRepo_DuplicateChannelID(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	s := seedSession(t, ctx, time.Now().Add(time.Hour))
	repo := NewMessageRepo(testPool)
	now := time.Now().UTC()
	mk := func() *model.Message {
		return &model.Message{ID: model.NewMessageID(now), SessionID: s.ID, Direction: model.DirectionInbound,
			ChannelMessageID: "wamid-1", Text: "hi", Payload: map[string]any{"k": "v"}, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	}
	if ok, err := repo.Insert(ctx, mk()); err != nil || !ok {
		t.Fatalf("first insert ok=%v err=%v", ok, err)
	}
	if ok, err := repo.Insert(ctx, mk()); err != nil || ok {
		t.Fatalf("second insert ok=%v err=%v", ok, err)
	}
	exists, _ := repo.ExistsByChannelMessageID(ctx, "wamid-1")
	if !exists {
		t.Error("expected channel id to exist")
	}
}

func TestWebhookEventRepo_InsertIfNewAndReclaim(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := NewWebhookEventRepo(testPool)
	now := time.Now().UTC()
	ev := &model.WebhookEvent{EventID: "evt-1", EventType: model.EventTaskStopped, ProviderTaskID: "p1",
		Payload: []byte(`{"event_id":"evt-1"}`), ReceivedAt: now, ExpiresAt: now.Add(time.Hour)}

	if ok, err := repo.InsertIfNew(ctx, ev); err != nil || !ok {
		t.Fatalf("first ok=%v err=%v", ok, err)
	}
	if ok, _ := repo.InsertIfNew(ctx, ev); ok {
		t.Fatal("pending duplicate inserted")
	}
	_ = repo.MarkResult(ctx, "evt-1", model.ProcessFailed, "boom", now)
	if ok, _ := repo.InsertIfNew(ctx, ev); !ok {
		t.Fatal("failed row not reclaimed")
	}
	got, _ := repo.FindByEventID(ctx, "evt-1")
	if got.Status != model.ProcessPending {
		t.Errorf("status = %s", got.Status)
	}
}

func TestTaskRepo_UniqueAndSweepOrder(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour).UTC()
	s := seedSession(t, ctx, past)
	tasks := NewTaskRepo(testPool)
	task, _ := model.NewTask(s.ID, "prov-1", "t", past, 0)
	if err := tasks.Create(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup, _ := model.NewTask(s.ID, "prov-1", "t2", past, 0)
	if err := tasks.Create(ctx, dup); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("dup err = %v", err)
	}

	msgs := NewMessageRepo(testPool)
	m := &model.Message{ID: model.NewMessageID(past), SessionID: s.ID, Direction: model.DirectionOutbound,
		TaskID: task.ID, CreatedAt: past, ExpiresAt: time.Now().Add(time.Hour)}
	if _, err := msgs.Insert(ctx, m); err != nil {
		t.Fatalf("insert msg: %v", err)
	}
	if n, err := tasks.DeleteExpired(ctx, time.Now(), 100); err != nil || n != 0 {
		t.Fatalf("deleted %d tasks (err %v) while a message references it", n, err)
	}
	if n, _ := NewSessionRepo(testPool).DeleteExpired(ctx, time.Now(), 100); n != 0 {
		t.Fatalf("deleted %d sessions with children", n)
	}
}

func TestTaskRepo_SaveIfStatusAndStaleWindow(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-2 * time.Hour)
	s := seedSession(t, ctx, now.Add(time.Hour))
	tasks := NewTaskRepo(testPool)
	task, _ := model.NewTask(s.ID, "prov-1", "t", past, 24*time.Hour)
	task.Status = model.TaskRunning
	if err := tasks.Create(ctx, task); err != nil {
		t.Fatalf("create: %v", err)
	}

	stale, err := tasks.ListStale(ctx, now.Add(-time.Hour), now.Add(-time.Hour), 10)
	if err != nil || len(stale) != 1 {
		t.Fatalf("stale = %d, err %v", len(stale), err)
	}
	if err := tasks.MarkChecked(ctx, task.ID, now); err != nil {
		t.Fatalf("mark checked: %v", err)
	}
	if stale, _ = tasks.ListStale(ctx, now.Add(-time.Hour), now.Add(-time.Hour), 10); len(stale) != 0 {
		t.Fatalf("recently checked task listed again")
	}

	done := *task
	done.Stop(model.StopFinish, "done", now)
	if err := tasks.SaveIfStatus(ctx, &done, model.TaskRunning); err != nil {
		t.Fatalf("conditional save: %v", err)
	}
	revived := *task
	revived.LastMessage = "still working"
	if err := tasks.SaveIfStatus(ctx, &revived, model.TaskRunning); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("stale write err = %v, want ErrConflict", err)
	}
	got, _ := tasks.FindByID(ctx, task.ID)
	if got.Status != model.TaskCompleted || got.LastMessage != "done" {
		t.Fatalf("task = %s %q", got.Status, got.LastMessage)
	}
}
