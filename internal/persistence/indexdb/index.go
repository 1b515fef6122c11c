package indexdb

import (
	"context"

	"kartoffels.dev/internal/sim/world"
)

// Index is a secondary, queryable record of world saves and events. The
// world files and event journals stay the source of truth; writes that do
// not fit the queue are dropped and counted.
type Index interface {
	world.SaveIndexer
	RecordEvent(ctx context.Context, worldID string, tick uint64, typ string, payload []byte) error
	Stats() Stats
	Close() error
}

type Stats struct {
	QueueDepth    int `json:"queue_depth"`
	QueueCapacity int `json:"queue_capacity"`

	DropSaveTotal  uint64 `json:"drop_save_total"`
	DropEventTotal uint64 `json:"drop_event_total"`

	FlushFailTotal    uint64 `json:"flush_fail_total,omitempty"`
	QueueDroppedTotal uint64 `json:"queue_dropped_total,omitempty"`
}

type saveRow struct {
	WorldID    string `json:"world_id"`
	Name       string `json:"name"`
	Path       string `json:"path"`
	Tick       uint64 `json:"tick"`
	AliveBots  int    `json:"alive_bots"`
	DeadBots   int    `json:"dead_bots"`
	QueuedBots int    `json:"queued_bots"`
	DurationMS int64  `json:"duration_ms"`
	RecordedAt string `json:"recorded_at"`
}

type eventRow struct {
	WorldID    string `json:"world_id"`
	Tick       uint64 `json:"tick"`
	Type       string `json:"type"`
	Payload    string `json:"payload"`
	RecordedAt string `json:"recorded_at"`
}

func saveRowFrom(rec world.SaveRecord) saveRow {
	return saveRow{
		WorldID:    rec.WorldID,
		Name:       rec.Name,
		Path:       rec.Path,
		Tick:       rec.Tick,
		AliveBots:  rec.AliveBots,
		DeadBots:   rec.DeadBots,
		QueuedBots: rec.QueuedBots,
		DurationMS: rec.Duration.Milliseconds(),
		RecordedAt: rec.At.UTC().Format(timeLayout),
	}
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
