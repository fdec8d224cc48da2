// Package memory provides in-memory storage adapters, used in tests and as
// the default when no database path is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/louisbranch/chronicle/internal/journal"
	"github.com/louisbranch/chronicle/internal/storage"
	"github.com/louisbranch/chronicle/internal/storage/cursor"
)

// Store implements storage.KV, storage.EventStore and storage.SyncQueue in
// process memory. Safe for concurrent use.
type Store struct {
	mu sync.Mutex

	kv     map[string][]byte
	events []journal.Event
	byID   map[string]struct{}
	queue  []string
	queued map[string]struct{}
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		kv:     make(map[string][]byte),
		byID:   make(map[string]struct{}),
		queued: make(map[string]struct{}),
	}
}

// Get returns the value for key, or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.kv[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.kv[key] = stored
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.kv, key)
	return nil
}

// Keys returns the stored keys with the given prefix, sorted.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.kv))
	for key := range s.kv {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Clear removes every key.
func (s *Store) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.kv = make(map[string][]byte)
	return nil
}

// AppendEvent stores an accepted event, idempotently on its id.
func (s *Store) AppendEvent(ctx context.Context, evt journal.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[evt.ID]; ok {
		return nil
	}
	s.byID[evt.ID] = struct{}{}
	s.events = append(s.events, evt.Clone())
	sort.Slice(s.events, func(i, j int) bool {
		return s.events[i].LogicalClock < s.events[j].LogicalClock
	})
	return nil
}

// AllEvents returns every stored event in logical clock order.
func (s *Store) AllEvents(ctx context.Context) ([]journal.Event, error) {
	return s.EventsSince(ctx, 0)
}

// EventsSince returns stored events with clock strictly greater than clock.
func (s *Store) EventsSince(ctx context.Context, clock uint64) ([]journal.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]journal.Event, 0, len(s.events))
	for _, evt := range s.events {
		if evt.LogicalClock > clock {
			out = append(out, evt.Clone())
		}
	}
	return out, nil
}

// EventsPage returns up to limit events from an opaque paging token.
func (s *Store) EventsPage(ctx context.Context, token string, limit int) ([]journal.Event, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = 100
	}

	cur := cursor.NewForward(0)
	if token != "" {
		decoded, err := cursor.Decode(token)
		if err != nil {
			return nil, "", err
		}
		cur = decoded
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var page []journal.Event
	more := false
	switch cur.Dir {
	case cursor.DirectionBackward:
		for i := len(s.events) - 1; i >= 0; i-- {
			if s.events[i].LogicalClock >= cur.Clock {
				continue
			}
			if len(page) == limit {
				more = true
				break
			}
			page = append(page, s.events[i].Clone())
		}
	default:
		for _, evt := range s.events {
			if evt.LogicalClock <= cur.Clock {
				continue
			}
			if len(page) == limit {
				more = true
				break
			}
			page = append(page, evt.Clone())
		}
	}

	if !more || len(page) == 0 {
		return page, "", nil
	}
	last := page[len(page)-1].LogicalClock
	next := cursor.Cursor{Clock: last, Dir: cur.Dir}
	if cur.Dir != cursor.DirectionBackward {
		next = cursor.NewForward(last)
	}
	token, err := cursor.Encode(next)
	if err != nil {
		return nil, "", err
	}
	return page, token, nil
}

// EventCount returns the number of stored events.
func (s *Store) EventCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events), nil
}

// Enqueue adds an event id to the tail of the sync queue.
func (s *Store) Enqueue(ctx context.Context, eventID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.queued[eventID]; ok {
		return nil
	}
	s.queued[eventID] = struct{}{}
	s.queue = append(s.queue, eventID)
	return nil
}

// Dequeue returns up to limit ids from the head of the queue.
func (s *Store) Dequeue(ctx context.Context, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 || limit > len(s.queue) {
		limit = len(s.queue)
	}
	out := make([]string, limit)
	copy(out, s.queue[:limit])
	return out, nil
}

// Remove drops the given ids from the queue.
func (s *Store) Remove(ctx context.Context, eventIDs ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		drop[id] = struct{}{}
	}
	kept := s.queue[:0]
	for _, id := range s.queue {
		if _, ok := drop[id]; ok {
			delete(s.queued, id)
			continue
		}
		kept = append(kept, id)
	}
	s.queue = kept
	return nil
}

// Size returns the number of queued ids.
func (s *Store) Size(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue), nil
}
