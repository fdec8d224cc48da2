// Package derive folds the event journal into an in-memory projection.
//
// The projection is never a source of truth: it is created empty, mutated
// only by registered per-action handlers during replay, and can be rebuilt
// wholesale from the journal at any time. Handlers are registered by payload
// action and receive exactly one event at a time; unknown actions are skipped
// so replicas with older handler sets keep deriving, and a failing handler is
// logged and stepped over rather than halting the whole replay.
package derive
