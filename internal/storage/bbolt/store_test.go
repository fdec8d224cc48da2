package bbolt

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/louisbranch/chronicle/internal/journal"
	"github.com/louisbranch/chronicle/internal/storage"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chronicle.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func storedEvent(id string, clock uint64) journal.Event {
	return journal.Event{
		ID:           id,
		Kind:         journal.KindGiven,
		Actor:        "u1",
		LogicalClock: clock,
		Payload:      journal.Payload{Action: "noop", Data: map[string]any{"n": fmt.Sprint(clock)}},
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(" "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestKVRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

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

func TestKVKeysPrefixAndClear(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)
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

func TestAppendEventIdempotentAndOrdered(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	for _, evt := range []journal.Event{storedEvent("e2", 2), storedEvent("e1", 1), storedEvent("e2", 2)} {
		if err := store.AppendEvent(ctx, evt); err != nil {
			t.Fatalf("append %s: %v", evt.ID, err)
		}
	}

	count, err := store.EventCount(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	all, err := store.AllEvents(ctx)
	if err != nil {
		t.Fatalf("all events: %v", err)
	}
	if got := eventIDs(all); !reflect.DeepEqual(got, []string{"e1", "e2"}) {
		t.Fatalf("all events = %v, want [e1 e2]", got)
	}
}

func TestEventsSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chronicle.db")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.AppendEvent(ctx, storedEvent("e1", 1)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.Enqueue(ctx, "e1"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	all, err := reopened.AllEvents(ctx)
	if err != nil {
		t.Fatalf("all events: %v", err)
	}
	if got := eventIDs(all); !reflect.DeepEqual(got, []string{"e1"}) {
		t.Fatalf("events after reopen = %v, want [e1]", got)
	}
	size, err := reopened.Size(ctx)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 1 {
		t.Fatalf("queue size after reopen = %d, want 1", size)
	}
}

func TestEventsSince(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)
	for clock := uint64(1); clock <= 4; clock++ {
		if err := store.AppendEvent(ctx, storedEvent(fmt.Sprintf("e%d", clock), clock)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	since, err := store.EventsSince(ctx, 2)
	if err != nil {
		t.Fatalf("events since: %v", err)
	}
	if got := eventIDs(since); !reflect.DeepEqual(got, []string{"e3", "e4"}) {
		t.Fatalf("events since 2 = %v, want [e3 e4]", got)
	}
}

func TestEventsPageForward(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)
	for clock := uint64(1); clock <= 5; clock++ {
		if err := store.AppendEvent(ctx, storedEvent(fmt.Sprintf("e%d", clock), clock)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	var got []string
	token := ""
	for {
		page, next, err := store.EventsPage(ctx, token, 2)
		if err != nil {
			t.Fatalf("page: %v", err)
		}
		got = append(got, eventIDs(page)...)
		if next == "" {
			break
		}
		token = next
	}
	if want := []string{"e1", "e2", "e3", "e4", "e5"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("paged events = %v, want %v", got, want)
	}
}

func TestEventsPageRejectsBadToken(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	if _, _, err := store.EventsPage(ctx, "not-a-token", 10); err == nil {
		t.Fatal("expected error for malformed token")
	}
}

func TestSyncQueueOrderAndRemove(t *testing.T) {
	ctx := context.Background()
	store, _ := openTestStore(t)

	for _, id := range []string{"e1", "e2", "e1", "e3"} {
		if err := store.Enqueue(ctx, id); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	batch, err := store.Dequeue(ctx, 2)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if !reflect.DeepEqual(batch, []string{"e1", "e2"}) {
		t.Fatalf("batch = %v, want [e1 e2]", batch)
	}

	// Peeked ids remain queued until removed.
	size, err := store.Size(ctx)
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if size != 3 {
		t.Fatalf("size = %d, want 3", size)
	}

	if err := store.Remove(ctx, "e1", "e2", "never-queued"); err != nil {
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

func TestNilStoreIsSafe(t *testing.T) {
	var store *Store
	if err := store.Close(); err != nil {
		t.Fatalf("close nil store: %v", err)
	}
	if err := store.Set(context.Background(), "k", nil); err == nil {
		t.Fatal("expected error from unconfigured store")
	}
}

func eventIDs(events []journal.Event) []string {
	out := make([]string, len(events))
	for i, evt := range events {
		out[i] = evt.ID
	}
	return out
}
