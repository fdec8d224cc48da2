package journal

import (
	"slices"
	"strings"
	"time"
)

// Kind identifies the epistemic class of an event.
type Kind string

const (
	// KindGiven records a raw observation or action, something that happened.
	KindGiven Kind = "given"
	// KindMeant records an interpretation or conclusion grounded in Given events.
	KindMeant Kind = "meant"
)

// IsValid reports whether the kind is one of the known variants.
func (k Kind) IsValid() bool {
	return k == KindGiven || k == KindMeant
}

// EpistemicStatus describes how settled a Meant event's conclusion is.
type EpistemicStatus string

const (
	// EpistemicPreliminary marks an interpretation that has not been reviewed.
	EpistemicPreliminary EpistemicStatus = "preliminary"
	// EpistemicReviewed marks an interpretation confirmed by review.
	EpistemicReviewed EpistemicStatus = "reviewed"
	// EpistemicContested marks an interpretation under active dispute.
	EpistemicContested EpistemicStatus = "contested"
)

// Frame is the interpretive context under which a Meant event's conclusion
// should be understood. Purpose is required for Meant events.
type Frame struct {
	Purpose string            `json:"purpose"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// IsZero reports whether the frame carries no information.
func (f Frame) IsZero() bool {
	return strings.TrimSpace(f.Purpose) == "" && len(f.Attrs) == 0
}

// Context is the provenance envelope attached to every event.
type Context struct {
	Workspace     string `json:"workspace,omitempty"`
	Device        string `json:"device,omitempty"`
	Session       string `json:"session,omitempty"`
	SchemaVersion int    `json:"schema_version,omitempty"`
}

// IsZero reports whether no context field is set.
func (c Context) IsZero() bool {
	return c == Context{}
}

// Payload carries the variant-specific data of an event. Action is the
// discriminator the derivation engine dispatches handlers on.
type Payload struct {
	Action string         `json:"action"`
	Data   map[string]any `json:"data,omitempty"`
}

// Event is the immutable unit of record in the journal.
//
// ID, LogicalClock, and Timestamp defaults are assigned on append. Frame,
// Provenance, EpistemicStatus, and Supersedes apply to Meant events only.
// Signature is carried as-is; the journal never verifies it.
type Event struct {
	ID string `json:"id"`
	// Kind classifies the event as Given or Meant.
	Kind Kind `json:"kind"`
	// Actor identifies the origin (user, device, process). Origin is always
	// part of the record, never inferred later.
	Actor string `json:"actor"`
	// Timestamp is wall-clock time for display only, never used for ordering.
	Timestamp time.Time `json:"timestamp"`
	// LogicalClock is assigned at acceptance; parked events carry none.
	LogicalClock uint64 `json:"logical_clock"`
	// Parents are the event ids this event causally depends on.
	Parents []string `json:"parents,omitempty"`
	Context Context  `json:"context"`
	Payload Payload  `json:"payload"`

	// Meant-only fields.
	Frame           Frame           `json:"frame,omitzero"`
	Provenance      []string        `json:"provenance,omitempty"`
	EpistemicStatus EpistemicStatus `json:"epistemic_status,omitempty"`
	Supersedes      string          `json:"supersedes,omitempty"`

	Signature string `json:"signature,omitempty"`
}

// Clone returns a deep copy so callers can hold an event without aliasing the
// journal's frozen record.
func (e Event) Clone() Event {
	clone := e
	clone.Parents = slices.Clone(e.Parents)
	clone.Provenance = slices.Clone(e.Provenance)
	if e.Frame.Attrs != nil {
		clone.Frame.Attrs = make(map[string]string, len(e.Frame.Attrs))
		for k, v := range e.Frame.Attrs {
			clone.Frame.Attrs[k] = v
		}
	}
	if e.Payload.Data != nil {
		clone.Payload.Data = cloneData(e.Payload.Data)
	}
	return clone
}

// cloneData deep-copies a payload data tree. Values outside maps and slices
// are copied by assignment, which matches what JSON round-tripping produces.
func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return cloneData(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
