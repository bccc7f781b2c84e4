package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"quizshow-service/internal/domain"
	"quizshow-service/internal/statestore"
)

func TestStoreSetGet(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	var out string
	if err := store.Get(ctx, "rooms/1/state", &out); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	if err := store.Set(ctx, "rooms/1/state", "lobby"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Get(ctx, "rooms/1/state", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != "lobby" {
		t.Fatalf("got %q", out)
	}

	// Last write wins: full replace.
	if err := store.Set(ctx, "rooms/1/state", "showing"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Get(ctx, "rooms/1/state", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != "showing" {
		t.Fatalf("got %q", out)
	}
}

func TestStoreUpdateMergesFields(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if err := store.Set(ctx, "rooms/1/meta", map[string]any{"a": 1, "b": "x"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Update(ctx, "rooms/1/meta", map[string]any{"b": "y", "c": true}); err != nil {
		t.Fatalf("update: %v", err)
	}

	var out map[string]any
	if err := store.Get(ctx, "rooms/1/meta", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out["a"] != float64(1) || out["b"] != "y" || out["c"] != true {
		t.Fatalf("unexpected merge result %+v", out)
	}

	// Update on a missing path starts from an empty object.
	if err := store.Update(ctx, "rooms/1/fresh", map[string]any{"k": "v"}); err != nil {
		t.Fatalf("update missing: %v", err)
	}
	if err := store.Get(ctx, "rooms/1/fresh", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out["k"] != "v" {
		t.Fatalf("unexpected %+v", out)
	}
}

func TestStoreSubscribePrefix(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	events, cancel, err := store.Subscribe(ctx, "rooms/1/players/")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if err := store.Set(ctx, "rooms/1/players/p1", "alice"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "rooms/2/players/p9", "other room"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "rooms/1/state", "outside prefix"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "rooms/1/players/p2", "bob"); err != nil {
		t.Fatalf("set: %v", err)
	}

	got := []string{readEvent(t, events).Path, readEvent(t, events).Path}
	if got[0] != "rooms/1/players/p1" || got[1] != "rooms/1/players/p2" {
		t.Fatalf("unexpected events %v", got)
	}

	select {
	case ev := <-events:
		t.Fatalf("unexpected extra event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStoreSubscribeDeliversBurst(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	events, cancel, err := store.Subscribe(ctx, "rooms/1/")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	// Many writes while the consumer is idle: every one must still arrive.
	const n = 200
	for i := 0; i < n; i++ {
		if err := store.Set(ctx, "rooms/1/responses/0/p", i); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}
	for i := 0; i < n; i++ {
		readEvent(t, events)
	}
}

func TestStoreSubscribeCancelClosesChannel(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	events, cancel, err := store.Subscribe(ctx, "rooms/1/")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()

	select {
	case _, ok := <-events:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}

	// Writes after cancel must not panic or leak to the old channel.
	if err := store.Set(ctx, "rooms/1/state", "x"); err != nil {
		t.Fatalf("set after cancel: %v", err)
	}
}

func readEvent(t *testing.T, events <-chan statestore.Event) statestore.Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatalf("event channel closed")
		}
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
		return statestore.Event{}
	}
}
