package derive

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/chronicle/internal/journal"
)

// Handler applies the effect of exactly one event to the projection. It must
// depend only on the state and the event it receives.
type Handler func(*State, journal.Event) error

// Stats summarizes the engine for observability. Counters reset on each full
// rebuild and accumulate across incremental applies after it.
type Stats struct {
	Applied           int
	SkippedUnknown    int
	SkippedTombstoned int
	Failed            int
	Collections       int
	LastEventID       string
	AppliedClock      uint64
	JournalClock      uint64
	InSync            bool
}

type stateSubscriber struct {
	id int
	fn func(*State)
}

// Engine derives projection state from a journal through a registry of
// per-action handlers. Construct with NewEngine; the journal is injected
// explicitly so independent engines and journals can coexist in one process.
type Engine struct {
	journal  *journal.Journal
	handlers map[string]Handler

	state        *State
	lastEventID  string
	appliedClock uint64

	applied           int
	skippedUnknown    int
	skippedTombstoned int
	failed            int

	subs        []stateSubscriber
	nextSub     int
	unsubscribe func()

	logger *slog.Logger
	tracer trace.Tracer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a derivation engine over the given journal. The engine
// starts empty; call Init to derive and follow the journal, or DeriveFromLog
// for a one-shot rebuild.
func NewEngine(j *journal.Journal, opts ...EngineOption) *Engine {
	e := &Engine{
		journal:  j,
		handlers: make(map[string]Handler),
		state:    NewState(),
		tracer:   otel.Tracer("chronicle/derive"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RegisterHandler registers the handler for a payload action. Registration is
// additive and may happen at any time; later registrations for the same
// action replace earlier ones.
func (e *Engine) RegisterHandler(action string, handler Handler) {
	if action == "" || handler == nil {
		return
	}
	e.handlers[action] = handler
}

// DeriveFromLog rebuilds the projection from scratch: fresh empty state,
// every non-tombstoned event in topological order, handlers looked up by
// payload action. The rebuilt state replaces the live projection wholesale.
func (e *Engine) DeriveFromLog() (*State, error) {
	if e.journal == nil {
		return nil, fmt.Errorf("journal is required")
	}
	_, span := e.tracer.Start(context.Background(), "derive.DeriveFromLog")
	defer span.End()

	state := NewState()
	e.applied, e.skippedUnknown, e.skippedTombstoned, e.failed = 0, 0, 0, 0
	e.lastEventID = ""

	for _, evt := range e.journal.TopologicalOrder() {
		e.applyEvent(state, evt)
	}

	e.state = state
	e.appliedClock = e.journal.Clock()
	span.SetAttributes(attribute.Int("events.applied", e.applied))

	e.notify()
	return e.state, nil
}

// Init performs one full derivation, then subscribes to the journal so every
// later acceptance is folded incrementally instead of triggering a rebuild.
func (e *Engine) Init() (*State, error) {
	state, err := e.DeriveFromLog()
	if err != nil {
		return nil, err
	}
	if e.unsubscribe == nil {
		e.unsubscribe = e.journal.Subscribe(e.applyIncremental)
	}
	return state, nil
}

// Close detaches the engine from the journal. The last derived projection
// remains readable.
func (e *Engine) Close() {
	if e.unsubscribe != nil {
		e.unsubscribe()
		e.unsubscribe = nil
	}
}

// Rebuild forces a full re-derivation, used to recover from suspected drift.
func (e *Engine) Rebuild() (*State, error) {
	return e.DeriveFromLog()
}

// applyIncremental folds one newly accepted event into the live projection.
func (e *Engine) applyIncremental(evt journal.Event) {
	e.applyEvent(e.state, evt)
	if evt.LogicalClock > e.appliedClock {
		e.appliedClock = evt.LogicalClock
	}
	e.notify()
}

// applyEvent dispatches one event to its handler. Tombstoned events and
// unknown actions are skipped; handler errors and panics are logged and
// counted, and derivation moves on. Forward progress of the projection is
// deliberately favored over halting on a single bad event.
func (e *Engine) applyEvent(state *State, evt journal.Event) {
	if e.journal.IsTombstoned(evt.ID) {
		e.skippedTombstoned++
		return
	}

	handler, ok := e.handlers[evt.Payload.Action]
	if !ok {
		e.skippedUnknown++
		e.logf(slog.LevelDebug, "no handler for action, event skipped",
			"action", evt.Payload.Action, "event_id", evt.ID)
		return
	}

	if err := e.safeApply(handler, state, evt); err != nil {
		e.failed++
		e.logf(slog.LevelWarn, "handler failed, derivation continues",
			"action", evt.Payload.Action, "event_id", evt.ID, "error", err)
		return
	}

	e.applied++
	e.lastEventID = evt.ID
}

// safeApply invokes a handler, converting panics into errors so one bad
// handler cannot abort a replay.
func (e *Engine) safeApply(handler Handler, state *State, evt journal.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(state, evt)
}

// State returns the live projection. Callers must treat it as read-only;
// direct mutation breaks the guarantee that the journal is the only mutation
// path.
func (e *Engine) State() *State {
	return e.state
}

// Get returns a deep copy of one projected record.
func (e *Engine) Get(collection, id string) (Record, bool) {
	return e.state.Lookup(collection, id)
}

// Subscribe registers a callback notified after every successful fold, both
// full rebuilds and incremental applies. The returned function removes the
// subscription.
func (e *Engine) Subscribe(fn func(*State)) func() {
	id := e.nextSub
	e.nextSub++
	e.subs = append(e.subs, stateSubscriber{id: id, fn: fn})
	return func() {
		for i, sub := range e.subs {
			if sub.id == id {
				e.subs = append(e.subs[:i], e.subs[i+1:]...)
				return
			}
		}
	}
}

func (e *Engine) notify() {
	for _, sub := range e.subs {
		sub.fn(e.state)
	}
}

// InSync reports whether the engine has folded everything the journal has
// accepted.
func (e *Engine) InSync() bool {
	return e.appliedClock == e.journal.Clock()
}

// Stats summarizes the engine's progress against the journal.
func (e *Engine) Stats() Stats {
	return Stats{
		Applied:           e.applied,
		SkippedUnknown:    e.skippedUnknown,
		SkippedTombstoned: e.skippedTombstoned,
		Failed:            e.failed,
		Collections:       len(e.state.collections),
		LastEventID:       e.lastEventID,
		AppliedClock:      e.appliedClock,
		JournalClock:      e.journal.Clock(),
		InSync:            e.InSync(),
	}
}

func (e *Engine) logf(level slog.Level, msg string, args ...any) {
	if e.logger == nil {
		return
	}
	e.logger.Log(context.Background(), level, msg, args...)
}
