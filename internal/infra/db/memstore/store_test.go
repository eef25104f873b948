//go:build !integration

package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"chat-task-bridge/internal/domain"
	"chat-task-bridge/internal/domain/model"
)

func TestMessages_ChannelMessageIDIsUnique(t *testing.T) {
	ctx := context.Background()
	repos := New().Repositories()
	now := time.Now()

	first := &model.Message{ID: model.NewMessageID(now), SessionID: "s1", ChannelMessageID: "wa-1", ExpiresAt: now.Add(time.Hour)}
	second := &model.Message{ID: model.NewMessageID(now), SessionID: "s1", ChannelMessageID: "wa-1", ExpiresAt: now.Add(time.Hour)}
	if ok, err := repos.Messages.Insert(ctx, first); err != nil || !ok {
		t.Fatalf("first insert ok=%v err=%v", ok, err)
	}
	if ok, err := repos.Messages.Insert(ctx, second); err != nil || ok {
		t.Fatalf("second insert ok=%v err=%v", ok, err)
	}
	// messages without a channel id never collide
	for i := 0; i < 2; i++ {
		m := &model.Message{ID: model.NewMessageID(now), SessionID: "s1"}
		if ok, _ := repos.Messages.Insert(ctx, m); !ok {
			t.Fatal("outbound message rejected")
		}
	}
}

func TestEvents_InsertIfNewAndReclaim(t *testing.T) {
	ctx := context.Background()
	repos := New().Repositories()
	ev := &model.WebhookEvent{EventID: "evt-1", EventType: model.EventTaskStopped, ReceivedAt: time.Now()}

	if ok, _ := repos.Events.InsertIfNew(ctx, ev); !ok {
		t.Fatal("first insert should be new")
	}
	if ok, _ := repos.Events.InsertIfNew(ctx, ev); ok {
		t.Fatal("pending row must be a duplicate")
	}
	_ = repos.Events.MarkResult(ctx, "evt-1", model.ProcessFailed, "boom", time.Now())
	if ok, _ := repos.Events.InsertIfNew(ctx, ev); !ok {
		t.Fatal("failed row should be reclaimed")
	}
	got, _ := repos.Events.FindByEventID(ctx, "evt-1")
	if got.Status != model.ProcessPending || got.Error != "" {
		t.Fatalf("reclaimed row = %+v", got)
	}
	_ = repos.Events.MarkResult(ctx, "evt-1", model.ProcessProcessed, "", time.Now())
	if ok, _ := repos.Events.InsertIfNew(ctx, ev); ok {
		t.Fatal("processed row must be a duplicate")
	}
}

func TestTasks_ProviderIDUnique(t *testing.T) {
	ctx := context.Background()
	repos := New().Repositories()
	now := time.Now()
	a, _ := model.NewTask("s1", "p-1", "a", now, time.Hour)
	b, _ := model.NewTask("s1", "p-1", "b", now, time.Hour)
	if err := repos.Tasks.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repos.Tasks.Create(ctx, b); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate create err = %v", err)
	}
}

func TestDeleteExpired_SkipsReferencedParents(t *testing.T) {
	ctx := context.Background()
	repos := New().Repositories()
	now := time.Now()
	past := now.Add(-time.Hour)

	sess, _ := repos.Sessions.Upsert(ctx, &model.ChannelSession{ID: "s1", Channel: "wa", ChatID: "c", ExpiresAt: past})
	task, _ := model.NewTask(sess.ID, "p-1", "t", past, 0)
	task.ExpiresAt = past
	_ = repos.Tasks.Create(ctx, task)
	msg := &model.Message{ID: model.NewMessageID(now), SessionID: sess.ID, TaskID: task.ID, ExpiresAt: now.Add(time.Hour)}
	_, _ = repos.Messages.Insert(ctx, msg)

	if n, _ := repos.Tasks.DeleteExpired(ctx, now, 10); n != 0 {
		t.Fatalf("deleted %d tasks with a live child message", n)
	}
	if n, _ := repos.Sessions.DeleteExpired(ctx, now, 10); n != 0 {
		t.Fatalf("deleted %d sessions with a live task", n)
	}
	if _, err := repos.Tasks.FindByID(ctx, task.ID); err != nil {
		t.Fatalf("task gone: %v", err)
	}
}

func TestMemories_ListActiveSkipsSupersededAndExpired(t *testing.T) {
	ctx := context.Background()
	repos := New().Repositories()
	now := time.Now()
	past := now.Add(-time.Minute)

	_ = repos.Memories.Insert(ctx, &model.MemoryRecord{ID: "m1", Content: "a", CreatedAt: now})
	_ = repos.Memories.Insert(ctx, &model.MemoryRecord{ID: "m2", Content: "b", CreatedAt: now, ExpiresAt: &past})
	_ = repos.Memories.Insert(ctx, &model.MemoryRecord{ID: "m3", Content: "c", CreatedAt: now})
	_ = repos.Memories.MarkSuperseded(ctx, "m1", "m3", now)

	active, _ := repos.Memories.ListActive(ctx, now)
	if len(active) != 1 || active[0].ID != "m3" {
		t.Fatalf("active = %+v", active)
	}
	n, _ := repos.Memories.DeleteExpired(ctx, now, now.Add(time.Second), 10)
	if n != 2 {
		t.Fatalf("swept %d", n)
	}
}

func TestTasks_SaveIfStatus(t *testing.T) {
	ctx := context.Background()
	repos := New().Repositories()
	now := time.Now()
	task, _ := model.NewTask("s1", "p-1", "t", now, time.Hour)
	task.Status = model.TaskRunning
	_ = repos.Tasks.Create(ctx, task)

	loadedA, _ := repos.Tasks.FindByID(ctx, task.ID)
	loadedB, _ := repos.Tasks.FindByID(ctx, task.ID)

	loadedA.Stop(model.StopFinish, "done", now)
	if err := repos.Tasks.SaveIfStatus(ctx, loadedA, model.TaskRunning); err != nil {
		t.Fatalf("first writer: %v", err)
	}
	loadedB.LastMessage = "progress"
	if err := repos.Tasks.SaveIfStatus(ctx, loadedB, model.TaskRunning); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("second writer err = %v, want ErrConflict", err)
	}
	got, _ := repos.Tasks.FindByID(ctx, task.ID)
	if got.Status != model.TaskCompleted || got.LastMessage != "done" {
		t.Fatalf("task = %s %q", got.Status, got.LastMessage)
	}

	ghost, _ := model.NewTask("s1", "p-2", "x", now, time.Hour)
	if err := repos.Tasks.SaveIfStatus(ctx, ghost, model.TaskPending); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("missing row err = %v", err)
	}
}

func TestTasks_ListStaleSkipsRecentlyChecked(t *testing.T) {
	ctx := context.Background()
	repos := New().Repositories()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	task, _ := model.NewTask("s1", "p-1", "t", now.Add(-2*time.Hour), time.Hour)
	task.Status = model.TaskRunning
	_ = repos.Tasks.Create(ctx, task)
	cutoff := now.Add(-30 * time.Minute)

	if stale, _ := repos.Tasks.ListStale(ctx, cutoff, cutoff, 10); len(stale) != 1 {
		t.Fatalf("stale = %d, want 1", len(stale))
	}
	if err := repos.Tasks.MarkChecked(ctx, task.ID, now.Add(-10*time.Minute)); err != nil {
		t.Fatal(err)
	}
	if stale, _ := repos.Tasks.ListStale(ctx, cutoff, cutoff, 10); len(stale) != 0 {
		t.Fatalf("checked task listed again within the quiet window")
	}
	// once the window passes the task is eligible again
	later := now.Add(time.Hour)
	if stale, _ := repos.Tasks.ListStale(ctx, later, later.Add(-30*time.Minute), 10); len(stale) != 1 {
		t.Fatalf("stale after window = %d, want 1", len(stale))
	}
}
