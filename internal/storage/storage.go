package storage

import (
	"context"
	"errors"

	"github.com/louisbranch/chronicle/internal/journal"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// KV persists small keyed blobs such as device identity and sync state.
type KV interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys returns the stored keys with the given prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Clear removes every key.
	Clear(ctx context.Context) error
}

// EventStore persists accepted journal events keyed by logical clock.
type EventStore interface {
	// AppendEvent stores an accepted event. Appending an id that is already
	// stored is a no-op, so replays after a crash are safe.
	AppendEvent(ctx context.Context, evt journal.Event) error
	// AllEvents returns every stored event in logical clock order.
	AllEvents(ctx context.Context) ([]journal.Event, error)
	// EventsSince returns stored events with logical clock strictly greater
	// than the given clock, in clock order.
	EventsSince(ctx context.Context, clock uint64) ([]journal.Event, error)
	// EventsPage returns up to limit events starting from an opaque paging
	// token, plus the token for the next page. An empty token starts from
	// the beginning; an empty next token means the listing is exhausted.
	EventsPage(ctx context.Context, token string, limit int) ([]journal.Event, string, error)
	// EventCount returns the number of stored events.
	EventCount(ctx context.Context) (int, error)
}

// SyncQueue holds ids of events awaiting replication to other devices. The
// queue preserves enqueue order and deduplicates ids.
type SyncQueue interface {
	// Enqueue adds an event id to the tail of the queue. Enqueueing an id
	// already queued is a no-op.
	Enqueue(ctx context.Context, eventID string) error
	// Dequeue returns up to limit ids from the head of the queue without
	// removing them. A limit of zero or less returns the whole queue.
	// Removal is explicit so a failed push can retry.
	Dequeue(ctx context.Context, limit int) ([]string, error)
	// Remove drops the given ids from the queue after a successful push.
	Remove(ctx context.Context, eventIDs ...string) error
	// Size returns the number of queued ids.
	Size(ctx context.Context) (int, error)
}
