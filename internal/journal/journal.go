package journal

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultMaxPendingAge = 60 * time.Second

// SubscribeFunc receives each accepted event synchronously, post-commit, in
// acceptance order.
type SubscribeFunc func(Event)

// ErrorFunc receives failures that happen off the caller's return path, such
// as pending-event eviction.
type ErrorFunc func(err error, evt Event)

// PendingEntry holds an event parked for causal readiness: it arrived before
// one or more of its parents and is retried whenever a new event is accepted.
type PendingEntry struct {
	Event      Event
	WaitingFor map[string]struct{}
	ParkedAt   time.Time
}

type subscriber struct {
	id int
	fn SubscribeFunc
}

// Journal is the append-only causal event store. Construct with New; the
// zero value is not usable.
//
// The journal is single-threaded by design: Append runs validation, identity
// computation, readiness checks, mutation, pending promotion, and subscriber
// notification inside one synchronous call, and the owning producer is
// expected to serialize access. Durable writes belong to subscribers (see the
// persist package) and stay off this path.
type Journal struct {
	events  []Event        // acceptance order
	index   map[string]int // id -> position in events
	heads   map[string]struct{}
	pending map[string]*PendingEntry

	// tombstonedBy maps a target id to positions of its tombstone events.
	tombstonedBy map[string][]int
	// supersededBy maps a Meant event id to the id of the event replacing it.
	supersededBy map[string]string

	clock   uint64
	subs    []subscriber
	nextSub int

	logger        *slog.Logger
	tracer        trace.Tracer
	now           func() time.Time
	maxPendingAge time.Duration
	onError       ErrorFunc
}

// Option configures a Journal.
type Option func(*Journal)

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Journal) { j.logger = logger }
}

// WithMaxPendingAge bounds how long a parked event waits for missing parents
// before it is evicted and reported through the error callback.
func WithMaxPendingAge(age time.Duration) Option {
	return func(j *Journal) {
		if age > 0 {
			j.maxPendingAge = age
		}
	}
}

// WithOnError sets the callback for failures outside the synchronous return
// path. Evictions are reported here, never silently dropped.
func WithOnError(fn ErrorFunc) Option {
	return func(j *Journal) { j.onError = fn }
}

// WithTimeSource overrides the wall clock, used by tests to control pending
// eviction and default timestamps.
func WithTimeSource(now func() time.Time) Option {
	return func(j *Journal) {
		if now != nil {
			j.now = now
		}
	}
}

// New creates an empty journal.
func New(opts ...Option) *Journal {
	j := &Journal{
		index:         make(map[string]int),
		heads:         make(map[string]struct{}),
		pending:       make(map[string]*PendingEntry),
		tombstonedBy:  make(map[string][]int),
		supersededBy:  make(map[string]string),
		now:           time.Now,
		maxPendingAge: defaultMaxPendingAge,
		tracer:        otel.Tracer("chronicle/journal"),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Get returns the accepted event with the given id, or false when absent.
// Parked events are not visible through Get.
func (j *Journal) Get(id string) (Event, bool) {
	pos, ok := j.index[id]
	if !ok {
		return Event{}, false
	}
	return j.events[pos].Clone(), true
}

// GetAll returns every accepted event in acceptance order. Acceptance order
// is a valid total order consistent with causal order because parents are
// always accepted before their children.
func (j *Journal) GetAll() []Event {
	out := make([]Event, len(j.events))
	for i, evt := range j.events {
		out[i] = evt.Clone()
	}
	return out
}

// Heads returns the current DAG frontier: ids of accepted events that no
// other accepted event lists as a parent.
func (j *Journal) Heads() []string {
	out := make([]string, 0, len(j.heads))
	for id := range j.heads {
		out = append(out, id)
	}
	return sortedUnique(out)
}

// Since returns accepted events with a logical clock strictly greater than
// the given value, in acceptance order. Used for incremental sync.
func (j *Journal) Since(clock uint64) []Event {
	var out []Event
	for _, evt := range j.events {
		if evt.LogicalClock > clock {
			out = append(out, evt.Clone())
		}
	}
	return out
}

// Clock returns the logical clock of the most recently accepted event.
func (j *Journal) Clock() uint64 {
	return j.clock
}

// Pending returns a copy of the parked entries, keyed by event id.
func (j *Journal) Pending() map[string]PendingEntry {
	out := make(map[string]PendingEntry, len(j.pending))
	for id, entry := range j.pending {
		waiting := make(map[string]struct{}, len(entry.WaitingFor))
		for parent := range entry.WaitingFor {
			waiting[parent] = struct{}{}
		}
		out[id] = PendingEntry{Event: entry.Event.Clone(), WaitingFor: waiting, ParkedAt: entry.ParkedAt}
	}
	return out
}

// Subscribe registers a callback invoked once per accepted event,
// synchronously and in acceptance order. The returned function removes the
// subscription.
func (j *Journal) Subscribe(fn SubscribeFunc) func() {
	id := j.nextSub
	j.nextSub++
	j.subs = append(j.subs, subscriber{id: id, fn: fn})
	return func() {
		for i, sub := range j.subs {
			if sub.id == id {
				j.subs = append(j.subs[:i], j.subs[i+1:]...)
				return
			}
		}
	}
}

// notify fans an accepted event out to subscribers. A panicking subscriber is
// logged and must not block the others; the journal mutation has already
// committed by the time subscribers run.
func (j *Journal) notify(evt Event) {
	for _, sub := range j.subs {
		j.notifyOne(sub, evt)
	}
}

func (j *Journal) notifyOne(sub subscriber, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			j.logf(slog.LevelError, "journal subscriber panicked",
				"subscriber", sub.id, "event_id", evt.ID, "panic", r)
		}
	}()
	sub.fn(evt.Clone())
}

func (j *Journal) logf(level slog.Level, msg string, args ...any) {
	if j.logger == nil {
		return
	}
	j.logger.Log(context.Background(), level, msg, args...)
}

func (j *Journal) reportError(err error, evt Event) {
	if j.onError == nil {
		return
	}
	j.onError(err, evt.Clone())
}
