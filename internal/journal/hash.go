package journal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/gowebpki/jcs"
)

// hashEnvelope is the semantic content an event id is computed over. Wall
// clock and logical clock are deliberately absent so identical content always
// hashes to the same id, which is what makes replay idempotent.
type hashEnvelope struct {
	Kind       Kind            `json:"kind"`
	Actor      string          `json:"actor"`
	Payload    Payload         `json:"payload"`
	Parents    []string        `json:"parents,omitempty"`
	Context    Context         `json:"context"`
	Frame      Frame           `json:"frame,omitzero"`
	Provenance []string        `json:"provenance,omitempty"`
	Status     EpistemicStatus `json:"epistemic_status,omitempty"`
	Supersedes string          `json:"supersedes,omitempty"`
}

// ContentHash computes the content-addressed identity of an event: SHA-256
// over the RFC 8785 canonical JSON form of the semantic envelope, truncated
// to 128 bits and hex encoded.
func ContentHash(evt Event) (string, error) {
	envelope := hashEnvelope{
		Kind:       evt.Kind,
		Actor:      evt.Actor,
		Payload:    evt.Payload,
		Parents:    sortedUnique(evt.Parents),
		Context:    evt.Context,
		Frame:      evt.Frame,
		Provenance: sortedUnique(evt.Provenance),
		Status:     evt.EpistemicStatus,
		Supersedes: evt.Supersedes,
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("marshal hash envelope: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize hash envelope: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:16]), nil
}

// sortedUnique returns a sorted copy with duplicates removed, or nil for an
// empty input so the hash envelope omits the field consistently.
func sortedUnique(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
