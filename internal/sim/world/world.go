package world

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"kartoffels.dev/internal/persistence/store"
	"kartoffels.dev/internal/sim/tilemap"
)

// World is the whole mutable state of one game instance. It is owned by
// the goroutine started in spawn; nothing else may touch it.
type World struct {
	id     string
	name   string
	path   string
	policy Policy
	clock  Clock
	mode   Mode

	rng *rand.Rand
	m   tilemap.Map
	// tick counts simulated (unpaused) ticks.
	tick   uint64
	paused bool

	spawnPos *tilemap.Vec2
	spawnDir *tilemap.Dir

	bots   *bots
	events eventBus
	conns  []*Conn

	rx           chan request
	pendingStep  chan error
	carriedSteps []chan error
	nextConnID   uint64

	hub       *handleShared
	metronome *metronome
	runtimes  RuntimeFactory
	indexer   SaveIndexer
	log       *log.Logger

	spawnAttempts int
	saveEvery     time.Duration
	lastSave      time.Time
	snapVersion   uint64
	saves         uint64
	saveFails     uint64
	crashes       uint64
}

// Create builds a new world from cfg and starts its loop.
func Create(cfg Config) (*Handle, error) {
	if cfg.Seed != nil && cfg.Path != "" {
		return nil, ErrSeedWithPath
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.Runtimes == nil {
		return nil, errors.New("world: runtime factory is required")
	}
	cfg.applyDefaults()

	var rng *rand.Rand
	if cfg.Seed != nil {
		rng = newRNG(*cfg.Seed)
	} else {
		rng = newRNG(rand.Uint64())
	}

	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}

	var m tilemap.Map
	switch {
	case cfg.Map != nil:
		m = cfg.Map.Clone()
	case cfg.Theme != nil:
		var err error
		m, err = cfg.Theme.CreateMap(rng)
		if err != nil {
			return nil, fmt.Errorf("create map: %w", err)
		}
	}

	w := &World{
		id:            id,
		name:          cfg.Name,
		path:          cfg.Path,
		policy:        cfg.Policy,
		clock:         cfg.Clock,
		mode:          cfg.Mode,
		rng:           rng,
		m:             m,
		bots:          newBots(),
		events:        eventBus{capacity: cfg.EventCapacity},
		metronome:     newMetronome(),
		runtimes:      cfg.Runtimes,
		indexer:       cfg.Indexer,
		log:           worldLogger(cfg.Logger, id),
		spawnAttempts: cfg.SpawnAttempts,
		saveEvery:     cfg.SaveEvery,
	}
	return w.spawn(cfg.RequestCapacity), nil
}

// Resume loads the world saved at path, migrating it if needed, and starts
// its loop. The rng is freshly seeded and no spawn point is set.
func Resume(ctx context.Context, id, path string, opts ResumeOptions) (*Handle, error) {
	if opts.Runtimes == nil {
		return nil, errors.New("world: runtime factory is required")
	}
	cfg := Config{
		ID:              id,
		Path:            path,
		Clock:           opts.Clock,
		Events:          opts.Events,
		EventCapacity:   opts.EventCapacity,
		RequestCapacity: opts.RequestCapacity,
		SaveEvery:       opts.SaveEvery,
		SpawnAttempts:   opts.SpawnAttempts,
		Runtimes:        opts.Runtimes,
		Logger:          opts.Logger,
		Indexer:         opts.Indexer,
	}
	cfg.applyDefaults()

	_, doc, err := store.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load world %s: %w", id, err)
	}

	w := &World{
		id:            id,
		path:          path,
		clock:         cfg.Clock,
		rng:           newRNG(rand.Uint64()),
		bots:          newBots(),
		events:        eventBus{capacity: cfg.EventCapacity},
		metronome:     newMetronome(),
		runtimes:      cfg.Runtimes,
		indexer:       cfg.Indexer,
		log:           worldLogger(cfg.Logger, id),
		spawnAttempts: cfg.SpawnAttempts,
		saveEvery:     cfg.SaveEvery,
	}
	if err := w.restore(doc); err != nil {
		return nil, fmt.Errorf("load world %s: %w", id, err)
	}
	if err := w.policy.Validate(); err != nil {
		return nil, fmt.Errorf("load world %s: %w", id, err)
	}
	return w.spawn(cfg.RequestCapacity), nil
}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func worldLogger(parent *log.Logger, id string) *log.Logger {
	return log.New(parent.Writer(), fmt.Sprintf("%s[world %s] ", parent.Prefix(), id), parent.Flags())
}

func (w *World) spawn(capacity int) *Handle {
	h, rx := newHandle(w.id, w.name, capacity, w.events.enabled())
	w.rx = rx
	w.hub = h.shared
	w.lastSave = time.Now()
	go w.run()
	return h
}

func (w *World) run() {
	defer close(w.hub.done)

	w.log.Printf("ready name=%q clock=%s", w.name, w.clock)
	w.publishSnapshot()

	var token shutdownToken
	for {
		tok, stop := w.step()
		if stop {
			token = tok
			break
		}
		w.metronome.tick(w.clock)
		w.metronome.wait(w.clock)
	}
	w.teardown(token)
}

func (w *World) teardown(token shutdownToken) {
	w.log.Printf("shutting down")

	err := w.saveNow(context.Background())
	if err != nil {
		w.log.Printf("final save failed: %v", err)
	}
	if token.ack != nil {
		token.ack <- err
	}
	// Steps that never got their tick.
	if w.pendingStep != nil {
		w.pendingStep <- ErrWorldClosed
		w.pendingStep = nil
	}
	for _, ack := range w.carriedSteps {
		ack <- ErrWorldClosed
	}
	w.carriedSteps = nil

	w.events.closeAll()
	w.closeConns()
	w.log.Printf("shut down")
}

func (w *World) emit(ev Event) {
	if !w.events.enabled() {
		return
	}
	w.events.publish(EventLetter{Tick: w.tick, Event: ev})
}

func (w *World) publishSnapshot() *Snapshot {
	w.snapVersion++
	snap := w.buildSnapshot(w.snapVersion)
	w.hub.snapshots.publish(snap)
	return snap
}
