// Package roundtable provides a high-level façade over the collaboration
// core: a shared semantic memory store, a sandboxed tool engine, durable
// sessions and the turn orchestrator. Most applications interact with this
// package by:
//  1. Creating a Roundtable via New() (optionally overriding the database,
//     embedder, routing client or workspace root)
//  2. Registering actors, typically via NewAgent which pre-wires memory and
//     tool access
//  3. Running Collaborate / Resume and observing progress through a sink
//
// All defaults are safe for local development: a file-backed SQLite database,
// an in-process workspace directory and no-op logging.
package roundtable

import (
	"context"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/hupe1980/roundtable/agent"
	"github.com/hupe1980/roundtable/core"
	"github.com/hupe1980/roundtable/logging"
	"github.com/hupe1980/roundtable/memory"
	"github.com/hupe1980/roundtable/messagebus"
	"github.com/hupe1980/roundtable/orchestrator"
	"github.com/hupe1980/roundtable/session"
	"github.com/hupe1980/roundtable/toolcall"
)

// Options configures a Roundtable instance.
type Options struct {
	// DatabasePath is the SQLite file holding interactions and sessions.
	// Use ":memory:" for an ephemeral database.
	DatabasePath string
	// DB overrides DatabasePath with an existing gorm connection.
	DB *gorm.DB

	// Embedder powers semantic retrieval. Nil stores interactions without
	// embeddings and degrades semantic search to recency order.
	Embedder core.EmbeddingClient
	// RoutingClient answers intelligent-mode routing questions. Required
	// for core.ModeIntelligent sessions.
	RoutingClient core.InferenceClient
	// StrictRouting errors a session on out-of-set routing answers instead
	// of silently advancing round-robin.
	StrictRouting bool

	// WorkspaceRoot is the directory tool actions operate under.
	WorkspaceRoot string

	// Sink receives ordered orchestration progress.
	Sink core.ProgressSink

	Logger logging.Logger
}

// Roundtable aggregates the collaboration services behind one handle.
type Roundtable struct {
	db           *gorm.DB
	ownsDB       bool
	memory       *memory.Store
	sessions     session.Store
	engine       *toolcall.Engine
	orchestrator *orchestrator.Orchestrator
	registry     *agent.Registry
	bus          *messagebus.Bus
	logger       logging.Logger
}

// New creates a Roundtable with optional overrides. Any unset service gets a
// local default.
func New(optFns ...func(o *Options)) (*Roundtable, error) {
	opts := Options{
		DatabasePath:  "roundtable.db",
		WorkspaceRoot: "workspace",
		Sink:          core.NoopSink{},
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	db := opts.DB
	ownsDB := false
	if db == nil {
		var err error
		db, err = openDatabase(opts.DatabasePath)
		if err != nil {
			return nil, err
		}
		ownsDB = true
	}

	mem, err := memory.NewStore(db, opts.Embedder, func(o *memory.Options) {
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewSQLStore(db)
	if err != nil {
		return nil, err
	}

	engine := toolcall.NewEngine(func(o *toolcall.Options) {
		o.Root = opts.WorkspaceRoot
		o.Logger = opts.Logger
	})

	orch := orchestrator.New(func(o *orchestrator.Options) {
		o.SessionStore = sessions
		o.Memory = mem
		o.Sink = opts.Sink
		o.RoutingClient = opts.RoutingClient
		o.StrictRouting = opts.StrictRouting
		o.Logger = opts.Logger
	})

	registry := agent.NewRegistry()

	return &Roundtable{
		db:           db,
		ownsDB:       ownsDB,
		memory:       mem,
		sessions:     sessions,
		engine:       engine,
		orchestrator: orch,
		registry:     registry,
		bus: messagebus.New(mem, registry, func(o *messagebus.Options) {
			o.Logger = opts.Logger
		}),
		logger: opts.Logger,
	}, nil
}

func openDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap database handle: %w", err)
	}
	sqlDB.Exec("PRAGMA foreign_keys = ON;")
	sqlDB.Exec("PRAGMA journal_mode = WAL;")
	// SQLite allows one writer at a time; a single pooled connection keeps
	// concurrent sessions from tripping over locked-database errors.
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// NewAgent constructs an agent pre-wired with the shared memory store and
// tool engine and registers it under its name.
func (r *Roundtable) NewAgent(name, description string, client core.InferenceClient, optFns ...func(o *agent.Options)) (*agent.Agent, error) {
	a := agent.New(name, description, client, func(o *agent.Options) {
		o.Memory = r.memory
		o.Engine = r.engine
		o.Logger = r.logger
		for _, fn := range optFns {
			fn(o)
		}
	})
	if err := r.registry.Register(a); err != nil {
		return nil, err
	}
	return a, nil
}

// RegisterActor adds a custom core.Actor to the registry.
func (r *Roundtable) RegisterActor(a core.Actor) error { return r.registry.Register(a) }

// Collaborate starts a new session between the named registered actors.
func (r *Roundtable) Collaborate(ctx context.Context, objective string, actorNames []string, mode core.Mode, maxTurns int) (*core.Session, error) {
	actors, err := r.registry.Actors(actorNames...)
	if err != nil {
		return nil, err
	}
	return r.orchestrator.Start(ctx, objective, actors, mode, maxTurns)
}

// Resume continues a persisted session with a fresh turn budget, resolving
// its actors from the registry.
func (r *Roundtable) Resume(ctx context.Context, sessionID string, maxTurns int) (*core.Session, error) {
	sess, err := r.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	actors, err := r.registry.Actors(sess.Actors...)
	if err != nil {
		return nil, err
	}
	return r.orchestrator.Resume(ctx, sessionID, actors, maxTurns)
}

// Memory exposes the shared semantic memory store.
func (r *Roundtable) Memory() *memory.Store { return r.memory }

// Sessions exposes the session store.
func (r *Roundtable) Sessions() session.Store { return r.sessions }

// Engine exposes the tool engine, e.g. to register custom actions.
func (r *Roundtable) Engine() *toolcall.Engine { return r.engine }

// Bus exposes direct agent-to-agent messaging over the registered actors.
func (r *Roundtable) Bus() *messagebus.Bus { return r.bus }

// Close releases held resources. The database connection is closed only when
// it was opened by New.
func (r *Roundtable) Close() error {
	r.memory.Close()
	if !r.ownsDB {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return nil
	}
	return sqlDB.Close()
}
