package journal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/chronicle/internal/errors"
)

// AppendResult reports the outcome of an append. Duplicate and Parked are
// expected, recoverable outcomes; callers branch on them instead of on error.
type AppendResult struct {
	// Event is the accepted (or previously accepted) event, populated when
	// Parked is false.
	Event Event
	// Duplicate is true when identical content was already in the journal.
	// The journal was not mutated.
	Duplicate bool
	// Parked is true when the event failed causal readiness and was held for
	// its missing parents. It carries no logical clock yet.
	Parked bool
	// WaitingFor lists the parent ids the parked event is missing.
	WaitingFor []string
}

// Append validates, orders, and stores an event.
//
// The event's id is computed here as a content hash; any caller-supplied id
// is ignored. Re-appending identical content is a no-op reported through
// Duplicate. Events whose parents are not all present are parked and
// promoted automatically once the missing parents arrive; the caller never
// re-submits. On acceptance the event is assigned the next logical clock,
// heads are updated, ready parked events are promoted, and subscribers are
// notified for every event accepted by this call, in acceptance order.
func (j *Journal) Append(ctx context.Context, evt Event) (AppendResult, error) {
	_, span := j.tracer.Start(ctx, "journal.Append")
	defer span.End()

	j.evictExpiredPending()

	evt = normalize(evt, j.now)
	if err := validate(evt, j.index, j.pending); err != nil {
		return AppendResult{}, err
	}

	id, err := ContentHash(evt)
	if err != nil {
		return AppendResult{}, fmt.Errorf("compute event id: %w", err)
	}
	evt.ID = id
	span.SetAttributes(attribute.String("event.id", id), attribute.String("event.action", evt.Payload.Action))

	if pos, ok := j.index[id]; ok {
		span.AddEvent("duplicate")
		return AppendResult{Event: j.events[pos].Clone(), Duplicate: true}, nil
	}

	if missing := j.missingParents(evt); len(missing) > 0 {
		j.park(evt, missing)
		span.AddEvent("parked", trace.WithAttributes(attribute.Int("waiting_for", len(missing))))
		return AppendResult{Parked: true, WaitingFor: missing}, nil
	}

	accepted := j.accept(evt)
	promoted := j.promotePending()

	j.notify(accepted)
	for _, evt := range promoted {
		j.notify(evt)
	}

	return AppendResult{Event: accepted.Clone()}, nil
}

// normalize fills defaults the caller may omit and strips assignments that
// are the journal's to make.
func normalize(evt Event, now func() time.Time) Event {
	evt.ID = ""
	evt.LogicalClock = 0
	evt.Actor = strings.TrimSpace(evt.Actor)
	if evt.Kind == "" {
		evt.Kind = KindGiven
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = now().UTC()
	}
	evt.Timestamp = evt.Timestamp.UTC()
	evt.Parents = sortedUnique(evt.Parents)
	evt.Provenance = sortedUnique(evt.Provenance)
	return evt
}

// validate enforces the structural rules an event must satisfy before it can
// be stored or parked. Failures are domain errors with machine-readable
// codes; the event is not stored.
func validate(evt Event, index map[string]int, pending map[string]*PendingEntry) error {
	if evt.Actor == "" {
		return apperrors.New(apperrors.CodeEventActorRequired, "event actor is required")
	}
	if evt.Context.IsZero() {
		return apperrors.New(apperrors.CodeEventContextRequired, "event context is required")
	}
	if strings.TrimSpace(evt.Payload.Action) == "" {
		return apperrors.New(apperrors.CodeEventActionRequired, "payload action is required")
	}
	if !evt.Kind.IsValid() {
		return apperrors.Newf(apperrors.CodeEventInvalidKind, "unknown event kind: %s", evt.Kind)
	}
	if evt.Kind != KindMeant {
		return nil
	}

	if len(evt.Provenance) == 0 {
		return apperrors.New(apperrors.CodeEventProvenanceRequired, "meant event requires non-empty provenance")
	}
	if strings.TrimSpace(evt.Frame.Purpose) == "" {
		return apperrors.New(apperrors.CodeEventFramePurposeEmpty, "meant event requires a frame purpose")
	}
	for _, ref := range evt.Provenance {
		if _, ok := index[ref]; ok {
			continue
		}
		if _, ok := pending[ref]; ok {
			continue
		}
		return apperrors.Newf(apperrors.CodeEventProvenanceUnknown, "provenance id does not resolve: %s", ref).
			WithMetadata(map[string]string{"provenance_id": ref})
	}
	return nil
}

// missingParents returns the parent ids absent from the accepted index,
// sorted for deterministic results.
func (j *Journal) missingParents(evt Event) []string {
	var missing []string
	for _, parent := range evt.Parents {
		if _, ok := j.index[parent]; !ok {
			missing = append(missing, parent)
		}
	}
	return missing
}

// park holds an event until its missing parents arrive. Parking an id that is
// already parked refreshes the waiting set but keeps the original park time
// so eviction still applies.
func (j *Journal) park(evt Event, missing []string) {
	waiting := make(map[string]struct{}, len(missing))
	for _, parent := range missing {
		waiting[parent] = struct{}{}
	}
	if existing, ok := j.pending[evt.ID]; ok {
		existing.WaitingFor = waiting
		return
	}
	j.pending[evt.ID] = &PendingEntry{Event: evt, WaitingFor: waiting, ParkedAt: j.now()}
	j.logf(slog.LevelDebug, "event parked for missing parents",
		"event_id", evt.ID, "waiting_for", missing)
}

// accept commits a causally ready event: assigns the next logical clock,
// appends to the log, indexes it, and moves the DAG frontier.
func (j *Journal) accept(evt Event) Event {
	j.clock++
	evt.LogicalClock = j.clock

	j.events = append(j.events, evt)
	j.index[evt.ID] = len(j.events) - 1

	for _, parent := range evt.Parents {
		delete(j.heads, parent)
	}
	j.heads[evt.ID] = struct{}{}

	if evt.Supersedes != "" {
		j.supersededBy[evt.Supersedes] = evt.ID
	}
	if target, ok := tombstoneTarget(evt); ok {
		j.tombstonedBy[target] = append(j.tombstonedBy[target], len(j.events)-1)
	}

	return evt
}

// promotePending runs the readiness fixpoint: every acceptance may satisfy
// other parked events, so keep scanning until a full pass promotes nothing.
// Promotions within one pass happen in deterministic id order.
func (j *Journal) promotePending() []Event {
	var promoted []Event
	for {
		ready := j.readyPending()
		if len(ready) == 0 {
			return promoted
		}
		for _, id := range ready {
			entry, ok := j.pending[id]
			if !ok {
				continue
			}
			delete(j.pending, id)
			accepted := j.accept(entry.Event)
			promoted = append(promoted, accepted)
			j.logf(slog.LevelDebug, "parked event promoted",
				"event_id", accepted.ID, "logical_clock", accepted.LogicalClock)
		}
	}
}

// readyPending returns ids of parked events whose waiting sets are empty
// after dropping parents that have since been accepted.
func (j *Journal) readyPending() []string {
	var ready []string
	for id, entry := range j.pending {
		for parent := range entry.WaitingFor {
			if _, ok := j.index[parent]; ok {
				delete(entry.WaitingFor, parent)
			}
		}
		if len(entry.WaitingFor) == 0 {
			ready = append(ready, id)
		}
	}
	return sortedUnique(ready)
}

// evictExpiredPending drops parked events older than the configured maximum
// age and reports each through the error callback. Never a silent drop.
func (j *Journal) evictExpiredPending() {
	if j.maxPendingAge <= 0 {
		return
	}
	cutoff := j.now().Add(-j.maxPendingAge)
	for id, entry := range j.pending {
		if entry.ParkedAt.After(cutoff) {
			continue
		}
		delete(j.pending, id)
		missing := make([]string, 0, len(entry.WaitingFor))
		for parent := range entry.WaitingFor {
			missing = append(missing, parent)
		}
		missing = sortedUnique(missing)
		j.logf(slog.LevelWarn, "parked event evicted",
			"event_id", id, "waiting_for", missing, "parked_at", entry.ParkedAt)
		j.reportError(fmt.Errorf("pending event %s evicted, still missing parents %v", id, missing), entry.Event)
	}
}
