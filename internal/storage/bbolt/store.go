// Package bbolt provides BoltDB-backed storage adapters.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/louisbranch/chronicle/internal/journal"
	"github.com/louisbranch/chronicle/internal/storage"
	"github.com/louisbranch/chronicle/internal/storage/cursor"
)

const (
	kvBucket         = "kv"
	eventBucket      = "event"
	eventIndexBucket = "event_index"
	queueBucket      = "queue"
	queueIndexBucket = "queue_index"
)

// Store provides BoltDB-backed implementations of storage.KV,
// storage.EventStore and storage.SyncQueue over a single database file.
//
// Events are keyed by big-endian logical clock so bucket iteration yields
// clock order; an id index makes appends idempotent. The sync queue keeps
// its own sequence so enqueue order survives restarts.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{kvBucket, eventBucket, eventIndexBucket, queueBucket, queueIndexBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// Get returns the value for key, or storage.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		stored := tx.Bucket([]byte(kvBucket)).Get([]byte(key))
		if stored == nil {
			return storage.ErrNotFound
		}
		value = make([]byte, len(stored))
		copy(value, stored)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores value under key.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("key is required")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(kvBucket)).Put([]byte(key), value)
	})
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(kvBucket)).Delete([]byte(key))
	})
}

// Keys returns the stored keys with the given prefix, sorted.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var out []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(kvBucket)).Cursor()
		p := []byte(prefix)
		for k, _ := c.Seek(p); k != nil && strings.HasPrefix(string(k), prefix); k, _ = c.Next() {
			out = append(out, string(k))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Clear removes every key.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(kvBucket)); err != nil {
			return fmt.Errorf("drop kv bucket: %w", err)
		}
		if _, err := tx.CreateBucket([]byte(kvBucket)); err != nil {
			return fmt.Errorf("recreate kv bucket: %w", err)
		}
		return nil
	})
}

// AppendEvent stores an accepted event, idempotently on its id.
func (s *Store) AppendEvent(ctx context.Context, evt journal.Event) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(evt.ID) == "" {
		return fmt.Errorf("event id is required")
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		index := tx.Bucket([]byte(eventIndexBucket))
		if index.Get([]byte(evt.ID)) != nil {
			return nil
		}
		key := clockKey(evt.LogicalClock)
		if err := tx.Bucket([]byte(eventBucket)).Put(key, payload); err != nil {
			return fmt.Errorf("put event: %w", err)
		}
		if err := index.Put([]byte(evt.ID), key); err != nil {
			return fmt.Errorf("put event index: %w", err)
		}
		return nil
	})
}

// AllEvents returns every stored event in logical clock order.
func (s *Store) AllEvents(ctx context.Context) ([]journal.Event, error) {
	return s.EventsSince(ctx, 0)
}

// EventsSince returns stored events with clock strictly greater than clock.
func (s *Store) EventsSince(ctx context.Context, clock uint64) ([]journal.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var out []journal.Event
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(eventBucket)).Cursor()
		for k, v := c.Seek(clockKey(clock + 1)); k != nil; k, v = c.Next() {
			var evt journal.Event
			if err := json.Unmarshal(v, &evt); err != nil {
				return fmt.Errorf("unmarshal event: %w", err)
			}
			out = append(out, evt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// EventsPage returns up to limit events from an opaque paging token.
func (s *Store) EventsPage(ctx context.Context, token string, limit int) ([]journal.Event, string, error) {
	if err := s.ready(ctx); err != nil {
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

	var page []journal.Event
	more := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(eventBucket)).Cursor()

		var k, v []byte
		var step func() ([]byte, []byte)
		if cur.Dir == cursor.DirectionBackward {
			step = c.Prev
			if cur.Clock == 0 {
				k, v = c.Last()
			} else {
				k, v = c.Seek(clockKey(cur.Clock))
				if k == nil {
					k, v = c.Last()
				} else {
					k, v = c.Prev()
				}
			}
		} else {
			step = c.Next
			k, v = c.Seek(clockKey(cur.Clock + 1))
		}

		for ; k != nil; k, v = step() {
			if len(page) == limit {
				more = true
				return nil
			}
			var evt journal.Event
			if err := json.Unmarshal(v, &evt); err != nil {
				return fmt.Errorf("unmarshal event: %w", err)
			}
			page = append(page, evt)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	if !more || len(page) == 0 {
		return page, "", nil
	}
	next, err := cursor.Encode(cursor.Cursor{Clock: page[len(page)-1].LogicalClock, Dir: cur.Dir})
	if err != nil {
		return nil, "", err
	}
	return page, next, nil
}

// EventCount returns the number of stored events.
func (s *Store) EventCount(ctx context.Context) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket([]byte(eventBucket)).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Enqueue adds an event id to the tail of the sync queue.
func (s *Store) Enqueue(ctx context.Context, eventID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(eventID) == "" {
		return fmt.Errorf("event id is required")
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		index := tx.Bucket([]byte(queueIndexBucket))
		if index.Get([]byte(eventID)) != nil {
			return nil
		}
		queue := tx.Bucket([]byte(queueBucket))
		seq, err := queue.NextSequence()
		if err != nil {
			return fmt.Errorf("queue sequence: %w", err)
		}
		key := clockKey(seq)
		if err := queue.Put(key, []byte(eventID)); err != nil {
			return fmt.Errorf("put queue entry: %w", err)
		}
		if err := index.Put([]byte(eventID), key); err != nil {
			return fmt.Errorf("put queue index: %w", err)
		}
		return nil
	})
}

// Dequeue returns up to limit ids from the head of the queue.
func (s *Store) Dequeue(ctx context.Context, limit int) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	var out []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(queueBucket)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if limit > 0 && len(out) == limit {
				return nil
			}
			out = append(out, string(v))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Remove drops the given ids from the queue.
func (s *Store) Remove(ctx context.Context, eventIDs ...string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		queue := tx.Bucket([]byte(queueBucket))
		index := tx.Bucket([]byte(queueIndexBucket))
		for _, id := range eventIDs {
			key := index.Get([]byte(id))
			if key == nil {
				continue
			}
			if err := queue.Delete(key); err != nil {
				return fmt.Errorf("delete queue entry: %w", err)
			}
			if err := index.Delete([]byte(id)); err != nil {
				return fmt.Errorf("delete queue index: %w", err)
			}
		}
		return nil
	})
}

// Size returns the number of queued ids.
func (s *Store) Size(ctx context.Context) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}

	var count int
	err := s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket([]byte(queueBucket)).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func clockKey(clock uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, clock)
	return key
}
