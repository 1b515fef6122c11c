package log

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"time"

	"kartoffels.dev/internal/sim/world"
)

// Entry is one journal line.
type Entry struct {
	WorldID string      `json:"world_id"`
	Tick    uint64      `json:"tick"`
	Type    string      `json:"type"`
	At      string      `json:"at"`
	Event   world.Event `json:"event"`
}

// RawEntry is an Entry read back from disk; the event payload stays raw.
type RawEntry struct {
	WorldID string          `json:"world_id"`
	Tick    uint64          `json:"tick"`
	Type    string          `json:"type"`
	At      string          `json:"at"`
	Event   json.RawMessage `json:"event"`
}

// Mirror receives every journaled event, e.g. the sqlite index.
type Mirror interface {
	RecordEvent(ctx context.Context, worldID string, tick uint64, typ string, payload []byte) error
}

// EventJournal writes world events to `<worldDir>/events/events-*.jsonl.zst`.
type EventJournal struct {
	worldID string
	w       *JSONLZstdWriter
	mirror  Mirror
}

func NewEventJournal(worldDir, worldID string, mirror Mirror) *EventJournal {
	return &EventJournal{
		worldID: worldID,
		w:       NewJSONLZstdWriter(filepath.Join(worldDir, "events"), "events"),
		mirror:  mirror,
	}
}

func (j *EventJournal) Write(ctx context.Context, l world.EventLetter) error {
	e := Entry{
		WorldID: j.worldID,
		Tick:    l.Tick,
		Type:    l.Event.EventType(),
		At:      j.w.now().UTC().Format(time.RFC3339Nano),
		Event:   l.Event,
	}
	if err := j.w.Write(e); err != nil {
		return err
	}
	if j.mirror == nil {
		return nil
	}
	payload, err := json.Marshal(l.Event)
	if err != nil {
		return err
	}
	return j.mirror.RecordEvent(ctx, j.worldID, e.Tick, e.Type, payload)
}

// Follow writes every letter of s until the stream ends or ctx is done.
// A stream ended by world shutdown is not an error.
func (j *EventJournal) Follow(ctx context.Context, s *world.EventStream) error {
	defer s.Close()
	for {
		l, err := s.Next(ctx)
		if errors.Is(err, world.ErrWorldClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := j.Write(ctx, l); err != nil {
			return err
		}
	}
}

func (j *EventJournal) Close() error { return j.w.Close() }

// ReadJournal returns every entry stored under `<worldDir>/events`.
func ReadJournal(worldDir string) ([]RawEntry, error) {
	files, err := Files(filepath.Join(worldDir, "events"), "events")
	if err != nil {
		return nil, err
	}
	var out []RawEntry
	for _, f := range files {
		err := ReadLines(f, func(line []byte) error {
			var e RawEntry
			if err := json.Unmarshal(line, &e); err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
