package journal

import (
	"context"

	apperrors "github.com/louisbranch/chronicle/internal/errors"
)

// ActionTombstone is the payload action of tombstone events. The derivation
// engine consults IsTombstoned during replay, so targets of these events
// contribute nothing to derived state while remaining in the journal.
const ActionTombstone = "tombstone"

// Tombstone appends a Given event that excludes the target from future state
// derivation. The target itself is not altered or removed; the tombstone
// carries a snapshot of it for audit. Parents default to the current heads.
func (j *Journal) Tombstone(ctx context.Context, targetID, actor, reason string, evtCtx Context) (AppendResult, error) {
	pos, ok := j.index[targetID]
	if !ok {
		return AppendResult{}, apperrors.Newf(apperrors.CodeTombstoneTargetNotFound, "tombstone target not found: %s", targetID).
			WithMetadata(map[string]string{"target_id": targetID})
	}
	target := j.events[pos]
	if evtCtx.IsZero() {
		evtCtx = target.Context
	}

	snapshot := map[string]any{
		"id":            target.ID,
		"kind":          string(target.Kind),
		"actor":         target.Actor,
		"action":        target.Payload.Action,
		"logical_clock": target.LogicalClock,
	}

	tombstone := Event{
		Kind:    KindGiven,
		Actor:   actor,
		Parents: j.Heads(),
		Context: evtCtx,
		Payload: Payload{
			Action: ActionTombstone,
			Data: map[string]any{
				"target_id":       targetID,
				"reason":          reason,
				"target_snapshot": snapshot,
			},
		},
	}
	return j.Append(ctx, tombstone)
}

// IsTombstoned reports whether any accepted event tombstones the given id.
func (j *Journal) IsTombstoned(id string) bool {
	return len(j.tombstonedBy[id]) > 0
}

// Tombstones returns the tombstone events targeting the given id, in
// acceptance order.
func (j *Journal) Tombstones(id string) []Event {
	positions := j.tombstonedBy[id]
	out := make([]Event, 0, len(positions))
	for _, pos := range positions {
		out = append(out, j.events[pos].Clone())
	}
	return out
}

// tombstoneTarget extracts the target id from a tombstone event's payload.
func tombstoneTarget(evt Event) (string, bool) {
	if evt.Payload.Action != ActionTombstone {
		return "", false
	}
	target, ok := evt.Payload.Data["target_id"].(string)
	if !ok || target == "" {
		return "", false
	}
	return target, true
}
