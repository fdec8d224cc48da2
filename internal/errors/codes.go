// Package errors provides structured error handling for the journal core.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Event validation errors
	CodeEventActorRequired      Code = "EVENT_ACTOR_REQUIRED"
	CodeEventContextRequired    Code = "EVENT_CONTEXT_REQUIRED"
	CodeEventActionRequired     Code = "EVENT_ACTION_REQUIRED"
	CodeEventInvalidKind        Code = "EVENT_INVALID_KIND"
	CodeEventProvenanceRequired Code = "EVENT_PROVENANCE_REQUIRED"
	CodeEventFramePurposeEmpty  Code = "EVENT_FRAME_PURPOSE_EMPTY"
	CodeEventProvenanceUnknown  Code = "EVENT_PROVENANCE_UNKNOWN"

	// Supersession errors
	CodeSupersedeTargetNotFound Code = "SUPERSEDE_TARGET_NOT_FOUND"
	CodeSupersedeTargetNotMeant Code = "SUPERSEDE_TARGET_NOT_MEANT"

	// Tombstone errors
	CodeTombstoneTargetNotFound Code = "TOMBSTONE_TARGET_NOT_FOUND"

	// Snapshot errors
	CodeSnapshotUnsupportedVersion Code = "SNAPSHOT_UNSUPPORTED_VERSION"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)
