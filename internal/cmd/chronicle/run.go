package chronicle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/louisbranch/chronicle/internal/derive"
	"github.com/louisbranch/chronicle/internal/journal"
	"github.com/louisbranch/chronicle/internal/journal/persist"
	"github.com/louisbranch/chronicle/internal/platform/id"
	platformotel "github.com/louisbranch/chronicle/internal/platform/otel"
	"github.com/louisbranch/chronicle/internal/storage"
	bboltstore "github.com/louisbranch/chronicle/internal/storage/bbolt"
	"github.com/louisbranch/chronicle/internal/storage/memory"
)

const deviceKey = "device/id"

// Run executes one chronicle subcommand. The journal is loaded from the
// configured store, mutating commands persist through it, and the process
// exits when the command completes.
func Run(ctx context.Context, cfg Config, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: chronicle [flags] <append|stats|events|export|import|verify>")
	}

	shutdown, err := platformotel.Setup(ctx, "chronicle")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	logger := slog.New(slog.NewTextHandler(stderr, nil))

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.Device == "" {
		device, err := loadDeviceID(ctx, store.kv)
		if err != nil {
			return err
		}
		cfg.Device = device
	}

	j, err := persist.Load(ctx, store.events,
		journal.WithLogger(logger),
		journal.WithMaxPendingAge(cfg.MaxPendingAge),
	)
	if err != nil {
		return err
	}

	persister, err := persist.New(j, store.events,
		persist.WithLogger(logger),
		persist.WithSyncQueue(store.queue),
	)
	if err != nil {
		return err
	}
	persister.Start()
	defer persister.Close()

	app := &app{cfg: cfg, journal: j, store: store, persister: persister, stdin: stdin, stdout: stdout}

	command, rest := args[0], args[1:]
	switch command {
	case "append":
		return app.appendCommand(ctx, rest)
	case "stats":
		return app.statsCommand(ctx)
	case "events":
		return app.eventsCommand(ctx)
	case "export":
		return app.exportCommand(ctx)
	case "import":
		return app.importCommand(ctx)
	case "verify":
		return app.verifyCommand(ctx)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

type app struct {
	cfg       Config
	journal   *journal.Journal
	store     *stores
	persister *persist.Persister
	stdin     io.Reader
	stdout    io.Writer
}

type stores struct {
	kv     storage.KV
	events storage.EventStore
	queue  storage.SyncQueue
}

func openStore(cfg Config) (*stores, func(), error) {
	if cfg.DBPath == "" {
		mem := memory.New()
		return &stores{kv: mem, events: mem, queue: mem}, func() {}, nil
	}
	db, err := bboltstore.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return &stores{kv: db, events: db, queue: db}, func() { _ = db.Close() }, nil
}

// loadDeviceID returns the stored device id, generating and persisting one
// on first use.
func loadDeviceID(ctx context.Context, kv storage.KV) (string, error) {
	stored, err := kv.Get(ctx, deviceKey)
	if err == nil {
		return string(stored), nil
	}

	device, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("generate device id: %w", err)
	}
	if err := kv.Set(ctx, deviceKey, []byte(device)); err != nil {
		return "", fmt.Errorf("store device id: %w", err)
	}
	return device, nil
}

// appendCommand appends one event: chronicle append <action> [json-data].
func (a *app) appendCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: chronicle append <action> [json-data]")
	}
	if a.cfg.Actor == "" {
		return fmt.Errorf("actor is required: set -actor or CHRONICLE_ACTOR")
	}

	var data map[string]any
	if len(args) > 1 {
		if err := json.Unmarshal([]byte(args[1]), &data); err != nil {
			return fmt.Errorf("parse event data: %w", err)
		}
	}

	result, err := a.journal.Append(ctx, journal.Event{
		Kind:    journal.KindGiven,
		Actor:   a.cfg.Actor,
		Parents: a.journal.Heads(),
		Context: journal.Context{
			Workspace:     a.cfg.Workspace,
			Device:        a.cfg.Device,
			SchemaVersion: 1,
		},
		Payload: journal.Payload{Action: args[0], Data: data},
	})
	if err != nil {
		return err
	}
	if err := a.persister.Flush(ctx); err != nil {
		return err
	}
	return writeJSON(a.stdout, result)
}

// statsCommand prints journal and derivation statistics.
func (a *app) statsCommand(ctx context.Context) error {
	engine := derive.NewEngine(a.journal)
	derive.RegisterCollectionHandlers(engine)
	if _, err := engine.DeriveFromLog(); err != nil {
		return err
	}

	queued, err := a.store.queue.Size(ctx)
	if err != nil {
		return err
	}

	return writeJSON(a.stdout, struct {
		Journal    journal.Stats `json:"journal"`
		Derivation derive.Stats  `json:"derivation"`
		SyncQueue  int           `json:"sync_queue"`
	}{a.journal.Stats(), engine.Stats(), queued})
}

// eventsCommand pages through the stored events in logical clock order.
func (a *app) eventsCommand(ctx context.Context) error {
	token := ""
	for {
		page, next, err := a.store.events.EventsPage(ctx, token, 100)
		if err != nil {
			return err
		}
		for _, evt := range page {
			fmt.Fprintf(a.stdout, "%d\t%s\t%s\t%s\n", evt.LogicalClock, evt.ID, evt.Kind, evt.Payload.Action)
		}
		if next == "" {
			return nil
		}
		token = next
	}
}

// exportCommand writes a snapshot of the journal to stdout.
func (a *app) exportCommand(context.Context) error {
	return writeJSON(a.stdout, a.journal.Export())
}

// importCommand replaces the journal with a snapshot read from stdin and
// persists the imported events.
func (a *app) importCommand(ctx context.Context) error {
	var snapshot journal.Snapshot
	if err := json.NewDecoder(a.stdin).Decode(&snapshot); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if err := a.journal.Import(snapshot); err != nil {
		return err
	}

	// Import bypasses append notifications; persist the events directly.
	for _, evt := range a.journal.GetAll() {
		if err := a.store.events.AppendEvent(ctx, evt); err != nil {
			return fmt.Errorf("persist imported event %s: %w", evt.ID, err)
		}
	}

	fmt.Fprintf(a.stdout, "imported %d events, clock %d\n", len(snapshot.Events), a.journal.Clock())
	return nil
}

// verifyCommand checks every stored event against its content hash and
// parent links.
func (a *app) verifyCommand(context.Context) error {
	var problems []string
	for _, evt := range a.journal.GetAll() {
		hash, err := journal.ContentHash(evt)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: hash failed: %v", evt.ID, err))
			continue
		}
		if hash != evt.ID {
			problems = append(problems, fmt.Sprintf("%s: content hash mismatch (%s)", evt.ID, hash))
		}
		for _, parent := range evt.Parents {
			if _, ok := a.journal.Get(parent); !ok {
				problems = append(problems, fmt.Sprintf("%s: missing parent %s", evt.ID, parent))
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("verification failed:\n%s", strings.Join(problems, "\n"))
	}
	fmt.Fprintf(a.stdout, "ok: %d events verified\n", len(a.journal.GetAll()))
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
