package memory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/louisbranch/chronicle/internal/journal"
	"github.com/louisbranch/chronicle/internal/storage"
)

func storedEvent(id string, clock uint64) journal.Event {
	return journal.Event{
		ID:           id,
		Kind:         journal.KindGiven,
		Actor:        "u1",
		LogicalClock: clock,
		Payload:      journal.Payload{Action: "noop"},
	}
}

func TestKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := New()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing = %v, want ErrNotFound", err)
	}

	if err := store.Set(ctx, "device/id", []byte("dev-1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	value, err := store.Get(ctx, "device/id")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(value) != "dev-1" {
		t.Fatalf("value = %q, want dev-1", value)
	}

	if err := store.Delete(ctx, "device/id"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "device/id"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get after delete = %v, want ErrNotFound", err)
	}
}

func TestKVKeysAndClear(t *testing.T) {
	ctx := context.Background()
	store := New()
	for _, key := range []string{"sync/b", "sync/a", "device/id"} {
		if err := store.Set(ctx, key, []byte("x")); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}

	keys, err := store.Keys(ctx, "sync/")
	if err != nil {
		t.Fatalf("keys: %v", err)
	}
	if want := []string{"sync/a", "sync/b"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	keys, err = store.Keys(ctx, "")
	if err != nil {
		t.Fatalf("keys after clear: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("keys after clear = %v, want none", keys)
	}
}

func TestAppendEventIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := New()

	evt := storedEvent("e1", 1)
	if err := store.AppendEvent(ctx, evt); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.AppendEvent(ctx, evt); err != nil {
		t.Fatalf("append again: %v", err)
	}

	count, err := store.EventCount(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestEventsSinceClockOrder(t *testing.T) {
	ctx := context.Background()
	store := New()

	// Insert out of clock order; reads must come back ordered.
	for _, evt := range []journal.Event{storedEvent("e3", 3), storedEvent("e1", 1), storedEvent("e2", 2)} {
		if err := store.AppendEvent(ctx, evt); err != nil {
			t.Fatalf("append %s: %v", evt.ID, err)
		}
	}

	all, err := store.AllEvents(ctx)
	if err != nil {
		t.Fatalf("all events: %v", err)
	}
	if got := eventIDs(all); !reflect.DeepEqual(got, []string{"e1", "e2", "e3"}) {
		t.Fatalf("all events = %v, want [e1 e2 e3]", got)
	}

	since, err := store.EventsSince(ctx, 1)
	if err != nil {
		t.Fatalf("events since: %v", err)
	}
	if got := eventIDs(since); !reflect.DeepEqual(got, []string{"e2", "e3"}) {
		t.Fatalf("events since 1 = %v, want [e2 e3]", got)
	}
}

func TestEventsPage(t *testing.T) {
	ctx := context.Background()
	store := New()
	for clock := uint64(1); clock <= 5; clock++ {
		if err := store.AppendEvent(ctx, storedEvent(eventID(clock), clock)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	page, next, err := store.EventsPage(ctx, "", 2)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if got := eventIDs(page); !reflect.DeepEqual(got, []string{"e1", "e2"}) {
		t.Fatalf("first page = %v, want [e1 e2]", got)
	}
	if next == "" {
		t.Fatal("first page: missing next token")
	}

	page, next, err = store.EventsPage(ctx, next, 2)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if got := eventIDs(page); !reflect.DeepEqual(got, []string{"e3", "e4"}) {
		t.Fatalf("second page = %v, want [e3 e4]", got)
	}

	page, next, err = store.EventsPage(ctx, next, 2)
	if err != nil {
		t.Fatalf("last page: %v", err)
	}
	if got := eventIDs(page); !reflect.DeepEqual(got, []string{"e5"}) {
		t.Fatalf("last page = %v, want [e5]", got)
	}
	if next != "" {
		t.Fatalf("last page: next token = %q, want empty", next)
	}
}

func TestSyncQueue(t *testing.T) {
	ctx := context.Background()
	store := New()

	for _, id := range []string{"e1", "e2", "e1", "e3"} {
		if err := store.Enqueue(ctx, id); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	size, err := store.Size(ctx)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 3 {
		t.Fatalf("size = %d, want 3", size)
	}

	// Dequeue peeks; the ids stay queued until removed.
	batch, err := store.Dequeue(ctx, 2)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if !reflect.DeepEqual(batch, []string{"e1", "e2"}) {
		t.Fatalf("batch = %v, want [e1 e2]", batch)
	}
	size, _ = store.Size(ctx)
	if size != 3 {
		t.Fatalf("size after peek = %d, want 3", size)
	}

	if err := store.Remove(ctx, batch...); err != nil {
		t.Fatalf("remove: %v", err)
	}
	batch, err = store.Dequeue(ctx, 0)
	if err != nil {
		t.Fatalf("dequeue rest: %v", err)
	}
	if !reflect.DeepEqual(batch, []string{"e3"}) {
		t.Fatalf("rest = %v, want [e3]", batch)
	}
}

func eventIDs(events []journal.Event) []string {
	out := make([]string, len(events))
	for i, evt := range events {
		out[i] = evt.ID
	}
	return out
}

func eventID(clock uint64) string {
	return fmt.Sprintf("e%d", clock)
}
