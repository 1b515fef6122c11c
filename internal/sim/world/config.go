package world

import (
	"context"
	"io"
	"log"
	"time"

	"kartoffels.dev/internal/sim/tilemap"
)

const (
	DefaultRequestCapacity = 128
	DefaultSaveEvery       = time.Minute
	DefaultSpawnAttempts   = 64
)

// SaveIndexer is told about every successful save. The server uses it to
// keep a queryable index of world files.
type SaveIndexer interface {
	RecordSave(ctx context.Context, rec SaveRecord) error
}

type SaveRecord struct {
	WorldID    string
	Name       string
	Path       string
	Tick       uint64
	AliveBots  int
	DeadBots   int
	QueuedBots int
	Duration   time.Duration
	At         time.Time
}

type Config struct {
	// ID defaults to a random uuid.
	ID   string
	Name string

	// Seed fixes the rng. It cannot be combined with Path because rng state
	// is not persisted.
	Seed *uint64
	// Path is where the world is saved. Empty means never saved.
	Path string

	Policy Policy
	Clock  Clock

	// Map wins over Theme; with neither the world starts with an empty map.
	Map   *tilemap.Map
	Theme tilemap.Theme
	Mode  Mode

	Events          bool
	EventCapacity   int
	RequestCapacity int
	SaveEvery       time.Duration
	SpawnAttempts   int

	Runtimes RuntimeFactory
	Logger   *log.Logger
	Indexer  SaveIndexer
}

func (c *Config) applyDefaults() {
	c.Clock.applyDefaults()
	if c.Events && c.EventCapacity <= 0 {
		c.EventCapacity = DefaultEventCapacity
	}
	if !c.Events {
		c.EventCapacity = 0
	}
	if c.RequestCapacity <= 0 {
		c.RequestCapacity = DefaultRequestCapacity
	}
	if c.SaveEvery <= 0 {
		c.SaveEvery = DefaultSaveEvery
	}
	if c.SpawnAttempts <= 0 {
		c.SpawnAttempts = DefaultSpawnAttempts
	}
	if c.Logger == nil {
		c.Logger = log.New(io.Discard, "", 0)
	}
}

// ResumeOptions carries the runtime-only settings of a resumed world; the
// rest comes from the saved file.
type ResumeOptions struct {
	Clock           Clock
	Events          bool
	EventCapacity   int
	RequestCapacity int
	SaveEvery       time.Duration
	SpawnAttempts   int
	Runtimes        RuntimeFactory
	Logger          *log.Logger
	Indexer         SaveIndexer
}
