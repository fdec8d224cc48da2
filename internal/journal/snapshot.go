package journal

import (
	"time"

	apperrors "github.com/louisbranch/chronicle/internal/errors"
)

// SnapshotVersion is the wire version of exported snapshots.
const SnapshotVersion = 1

// Snapshot is the full serialization of a journal for persistence.
type Snapshot struct {
	Version      int       `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
	LogicalClock uint64    `json:"logical_clock"`
	Events       []Event   `json:"events"`
	Heads        []string  `json:"heads"`
}

// Export serializes the journal. Parked events are not part of the snapshot;
// they have not been accepted.
func (j *Journal) Export() Snapshot {
	return Snapshot{
		Version:      SnapshotVersion,
		Timestamp:    j.now().UTC(),
		LogicalClock: j.clock,
		Events:       j.GetAll(),
		Heads:        j.Heads(),
	}
}

// Import rebuilds the journal from a previously exported snapshot. The
// snapshot is a trusted source: events are not re-validated and ids are not
// recomputed. Heads are recomputed when the snapshot omits them, by finding
// events that appear in nobody's parent list. Existing journal contents,
// including parked events, are discarded. Subscribers are not notified.
func (j *Journal) Import(snapshot Snapshot) error {
	if snapshot.Version != SnapshotVersion {
		return apperrors.Newf(apperrors.CodeSnapshotUnsupportedVersion, "unsupported snapshot version: %d", snapshot.Version)
	}

	events := make([]Event, len(snapshot.Events))
	index := make(map[string]int, len(snapshot.Events))
	tombstonedBy := make(map[string][]int)
	supersededBy := make(map[string]string)
	clock := snapshot.LogicalClock

	for i, evt := range snapshot.Events {
		evt = evt.Clone()
		events[i] = evt
		index[evt.ID] = i
		if evt.LogicalClock > clock {
			clock = evt.LogicalClock
		}
		if evt.Supersedes != "" {
			supersededBy[evt.Supersedes] = evt.ID
		}
		if target, ok := tombstoneTarget(evt); ok {
			tombstonedBy[target] = append(tombstonedBy[target], i)
		}
	}

	heads := make(map[string]struct{}, len(snapshot.Heads))
	if len(snapshot.Heads) > 0 {
		for _, id := range snapshot.Heads {
			heads[id] = struct{}{}
		}
	} else {
		childOf := make(map[string]struct{})
		for _, evt := range events {
			for _, parent := range evt.Parents {
				childOf[parent] = struct{}{}
			}
		}
		for _, evt := range events {
			if _, isParent := childOf[evt.ID]; !isParent {
				heads[evt.ID] = struct{}{}
			}
		}
	}

	j.events = events
	j.index = index
	j.heads = heads
	j.pending = make(map[string]*PendingEntry)
	j.tombstonedBy = tombstonedBy
	j.supersededBy = supersededBy
	j.clock = clock
	return nil
}
