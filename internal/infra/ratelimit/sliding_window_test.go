//go:build !integration

package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestSlidingWindow_DeniesOverLimitAndRecovers(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sw := NewSlidingWindow(2, time.Minute)
	sw.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if ok, _ := sw.Allow(ctx, "alice"); !ok {
			t.Fatalf("hit %d denied", i)
		}
	}
	if ok, _ := sw.Allow(ctx, "alice"); ok {
		t.Fatal("third hit within window should be denied")
	}
	if ok, _ := sw.Allow(ctx, "bob"); !ok {
		t.Fatal("other sender must not share the window")
	}

	now = now.Add(61 * time.Second)
	if ok, _ := sw.Allow(ctx, "alice"); !ok {
		t.Fatal("hit after window should be allowed")
	}
}

func TestSlidingWindow_IsSliding(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sw := NewSlidingWindow(2, time.Minute)
	sw.now = func() time.Time { return now }

	_, _ = sw.Allow(ctx, "k")
	now = now.Add(40 * time.Second)
	_, _ = sw.Allow(ctx, "k")
	now = now.Add(30 * time.Second) // first hit aged out, second still inside
	if ok, _ := sw.Allow(ctx, "k"); !ok {
		t.Fatal("expected allow after oldest hit left the window")
	}
	if ok, _ := sw.Allow(ctx, "k"); ok {
		t.Fatal("expected deny with two hits inside the window")
	}
}

func TestSlidingWindow_BoundsTrackedKeys(t *testing.T) {
	ctx := context.Background()
	sw := NewSlidingWindow(1, time.Minute)
	for i := 0; i < maxTrackedKeys+10; i++ {
		_, _ = sw.Allow(ctx, time.Duration(i).String())
	}
	if len(sw.hits) > maxTrackedKeys {
		t.Fatalf("tracked %d keys", len(sw.hits))
	}
}
