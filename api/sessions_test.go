package api

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestSessionsEvictIdleEngines(t *testing.T) {
	store := &mockStore{tasks: boardFixture()}
	sessions := newTestSessions(store)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := sessions.Engine(ctx, fmt.Sprintf("user-%d", i)); err != nil {
			t.Fatalf("engine %d: %v", i, err)
		}
	}
	if got := sessions.Len(); got != 5 {
		t.Fatalf("expected 5 engines, got %d", got)
	}

	// Nothing has idled past the TTL yet.
	if n := sessions.evictIdle(time.Now()); n != 0 {
		t.Fatalf("expected no evictions, got %d", n)
	}

	// From the far future everything is idle.
	if n := sessions.evictIdle(time.Now().Add(24 * time.Hour)); n != 5 {
		t.Fatalf("expected 5 evictions, got %d", n)
	}
	if got := sessions.Len(); got != 0 {
		t.Fatalf("expected empty registry after sweep, got %d", got)
	}

	// The next touch re-creates the engine from scratch.
	if _, err := sessions.Engine(ctx, "user-0"); err != nil {
		t.Fatalf("engine after eviction: %v", err)
	}
	if got := sessions.Len(); got != 1 {
		t.Fatalf("expected recreated engine, got %d", got)
	}
}

func TestSessionsEvictIdleSparesRecentlyTouched(t *testing.T) {
	store := &mockStore{tasks: boardFixture()}
	sessions := newTestSessions(store)
	ctx := context.Background()

	if _, err := sessions.Engine(ctx, "stale"); err != nil {
		t.Fatalf("engine: %v", err)
	}
	if _, err := sessions.Engine(ctx, "fresh"); err != nil {
		t.Fatalf("engine: %v", err)
	}

	// Age only the stale entry, then sweep from just past its TTL.
	sessions.mu.Lock()
	sessions.engines["stale"].lastTouch = time.Now().Add(-sessions.cfg.IdleTTL)
	sessions.mu.Unlock()

	if n := sessions.evictIdle(time.Now()); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, ok := func() (*sessionEntry, bool) {
		sessions.mu.Lock()
		defer sessions.mu.Unlock()
		ent, ok := sessions.engines["fresh"]
		return ent, ok
	}(); !ok {
		t.Fatal("expected fresh engine to survive the sweep")
	}
}

func TestSessionsDropWaitsAndRemoves(t *testing.T) {
	store := &mockStore{tasks: boardFixture()}
	sessions := newTestSessions(store)

	if _, err := sessions.Engine(context.Background(), "user"); err != nil {
		t.Fatalf("engine: %v", err)
	}
	sessions.Drop("user")
	if got := sessions.Len(); got != 0 {
		t.Fatalf("expected empty registry after drop, got %d", got)
	}
	// Dropping an absent user is a no-op.
	sessions.Drop("user")
}
