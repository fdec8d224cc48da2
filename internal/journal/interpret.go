package journal

import (
	"context"
	"strings"

	apperrors "github.com/louisbranch/chronicle/internal/errors"
)

// SupersedeOptions overrides fields of the replacement interpretation. Zero
// fields inherit from the event being superseded.
type SupersedeOptions struct {
	Frame           Frame
	Provenance      []string
	EpistemicStatus EpistemicStatus
	Context         Context
}

// Supersede replaces an existing Meant event with a new interpretation. The
// replacement is appended with Supersedes set to the original id and the
// current heads as parents, so it lands after everything this journal has
// seen. The original remains physically in the journal but drops out of the
// active interpretation set.
func (j *Journal) Supersede(ctx context.Context, originalID string, payload Payload, actor string, opts SupersedeOptions) (AppendResult, error) {
	pos, ok := j.index[originalID]
	if !ok {
		return AppendResult{}, apperrors.Newf(apperrors.CodeSupersedeTargetNotFound, "supersede target not found: %s", originalID).
			WithMetadata(map[string]string{"target_id": originalID})
	}
	original := j.events[pos]
	if original.Kind != KindMeant {
		return AppendResult{}, apperrors.Newf(apperrors.CodeSupersedeTargetNotMeant, "supersede target is not a meant event: %s", originalID).
			WithMetadata(map[string]string{"target_id": originalID})
	}

	replacement := Event{
		Kind:            KindMeant,
		Actor:           actor,
		Parents:         j.Heads(),
		Context:         original.Context,
		Payload:         payload,
		Frame:           original.Frame,
		Provenance:      original.Provenance,
		EpistemicStatus: EpistemicPreliminary,
		Supersedes:      originalID,
	}
	if !opts.Frame.IsZero() {
		replacement.Frame = opts.Frame
	}
	if len(opts.Provenance) > 0 {
		replacement.Provenance = opts.Provenance
	}
	if opts.EpistemicStatus != "" {
		replacement.EpistemicStatus = opts.EpistemicStatus
	}
	if !opts.Context.IsZero() {
		replacement.Context = opts.Context
	}

	return j.Append(ctx, replacement)
}

// ActiveInterpretations returns every Meant event that no other event
// supersedes, optionally filtered to a single frame purpose. Results are in
// acceptance order.
func (j *Journal) ActiveInterpretations(purpose string) []Event {
	purpose = strings.TrimSpace(purpose)
	var out []Event
	for _, evt := range j.events {
		if evt.Kind != KindMeant {
			continue
		}
		if _, superseded := j.supersededBy[evt.ID]; superseded {
			continue
		}
		if purpose != "" && evt.Frame.Purpose != purpose {
			continue
		}
		out = append(out, evt.Clone())
	}
	return out
}

// SupersededBy returns the id of the event superseding the given id, if any.
func (j *Journal) SupersededBy(id string) (string, bool) {
	successor, ok := j.supersededBy[id]
	return successor, ok
}
