// Package journal implements the append-only causal event journal that all
// derived application state is rebuilt from.
//
// Events are immutable records addressed by a deterministic content hash and
// linked into a directed acyclic graph through parent references. An event
// becomes visible only once every parent it declares is already present;
// arrivals with missing parents are parked and promoted automatically when
// their dependencies land. Accepted events receive a strictly increasing
// logical clock used for total-order queries and incremental sync.
//
// Revision never erases: superseding replaces an interpretation by reference
// and tombstoning excludes an event from future state derivation, while both
// originals remain physically in the journal.
package journal
