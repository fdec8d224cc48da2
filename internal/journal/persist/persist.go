// Package persist mirrors accepted journal events into durable storage.
//
// The journal stays the in-memory source of truth; a Persister subscribes to
// it and writes every acceptance to a storage.EventStore on a background
// goroutine, optionally enqueueing the event id on a storage.SyncQueue for
// later replication. Load rebuilds a journal from a store on startup.
package persist

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/louisbranch/chronicle/internal/journal"
	"github.com/louisbranch/chronicle/internal/storage"
)

const defaultBuffer = 256

type task struct {
	evt   journal.Event
	flush chan struct{}
}

// Persister writes accepted events to durable storage as they happen.
// Construct with New, attach with Start, detach with Close.
type Persister struct {
	journal *journal.Journal
	events  storage.EventStore
	queue   storage.SyncQueue

	tasks       chan task
	quit        chan struct{}
	stopped     chan struct{}
	unsubscribe func()

	logger  *slog.Logger
	onError func(error)
}

// Option configures a Persister.
type Option func(*Persister)

// WithLogger sets the structured logger. A nil logger disables logging.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Persister) { p.logger = logger }
}

// WithSyncQueue also enqueues each persisted event id for replication.
func WithSyncQueue(queue storage.SyncQueue) Option {
	return func(p *Persister) { p.queue = queue }
}

// WithOnError sets a callback invoked when a write fails. Failed writes are
// reported and skipped; the journal itself is unaffected.
func WithOnError(fn func(error)) Option {
	return func(p *Persister) { p.onError = fn }
}

// WithBufferSize sets the write queue depth. Appends block when the buffer
// is full, so a slow disk backpressures the journal instead of losing
// events.
func WithBufferSize(n int) Option {
	return func(p *Persister) {
		if n > 0 {
			p.tasks = make(chan task, n)
		}
	}
}

// New creates a persister for the given journal and event store.
func New(j *journal.Journal, events storage.EventStore, opts ...Option) (*Persister, error) {
	if j == nil {
		return nil, fmt.Errorf("journal is required")
	}
	if events == nil {
		return nil, fmt.Errorf("event store is required")
	}

	p := &Persister{
		journal: j,
		events:  events,
		tasks:   make(chan task, defaultBuffer),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Start subscribes to the journal and launches the writer goroutine.
// Starting twice is a no-op.
func (p *Persister) Start() {
	if p.unsubscribe != nil {
		return
	}
	p.unsubscribe = p.journal.Subscribe(func(evt journal.Event) {
		p.tasks <- task{evt: evt}
	})
	go p.run()
}

// Flush blocks until every event accepted before the call has been written,
// or the context is done.
func (p *Persister) Flush(ctx context.Context) error {
	done := make(chan struct{})
	select {
	case p.tasks <- task{flush: done}:
	case <-p.stopped:
		return fmt.Errorf("persister is closed")
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-p.stopped:
		return fmt.Errorf("persister is closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close detaches from the journal, drains the write queue and stops the
// writer. The persister cannot be restarted.
func (p *Persister) Close() {
	if p.unsubscribe == nil {
		return
	}
	p.unsubscribe()
	p.unsubscribe = nil
	close(p.quit)
	<-p.stopped
}

func (p *Persister) run() {
	defer close(p.stopped)
	for {
		select {
		case t := <-p.tasks:
			p.handle(t)
		case <-p.quit:
			// Drain what was queued before shutdown.
			for {
				select {
				case t := <-p.tasks:
					p.handle(t)
				default:
					return
				}
			}
		}
	}
}

func (p *Persister) handle(t task) {
	if t.flush != nil {
		close(t.flush)
		return
	}
	p.write(t.evt)
}

func (p *Persister) write(evt journal.Event) {
	ctx := context.Background()
	if err := p.events.AppendEvent(ctx, evt); err != nil {
		p.report(fmt.Errorf("persist event %s: %w", evt.ID, err))
		return
	}
	if p.queue == nil {
		return
	}
	if err := p.queue.Enqueue(ctx, evt.ID); err != nil {
		p.report(fmt.Errorf("enqueue event %s for sync: %w", evt.ID, err))
	}
}

func (p *Persister) report(err error) {
	if p.logger != nil {
		p.logger.Error("persistence write failed", "error", err)
	}
	if p.onError != nil {
		p.onError(err)
	}
}

// Load rebuilds a journal from the events in a store. Stored events are
// trusted and imported without re-validation; the logical clock resumes from
// the highest stored clock and heads are recomputed from the parent graph.
func Load(ctx context.Context, events storage.EventStore, opts ...journal.Option) (*journal.Journal, error) {
	stored, err := events.AllEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}

	j := journal.New(opts...)
	if err := j.Import(journal.Snapshot{
		Version: journal.SnapshotVersion,
		Events:  stored,
	}); err != nil {
		return nil, fmt.Errorf("import events: %w", err)
	}
	return j, nil
}
