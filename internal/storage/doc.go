// Package storage defines the persistence interfaces behind the journal.
//
// The journal itself is in-memory and authoritative; adapters implementing
// these interfaces give it durability and replication hooks. Three concerns
// are kept separate: a key/value store for small metadata, an event store
// holding accepted events in logical clock order, and a sync queue of event
// ids awaiting replication. Implementations (in-memory, bbolt) live in
// subpackages.
//
// All implementations return ErrNotFound for missing records so callers can
// branch with errors.Is regardless of backend.
package storage
