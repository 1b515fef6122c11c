package world

import (
	"context"
	"fmt"
	"time"

	"kartoffels.dev/internal/persistence/store"
	"kartoffels.dev/internal/sim/tilemap"
)

// saveNow writes the world to its path, if it has one.
func (w *World) saveNow(ctx context.Context) error {
	if w.path == "" {
		return nil
	}
	start := time.Now()
	doc, err := w.document()
	if err != nil {
		w.saveFails++
		return err
	}
	if err := store.Write(ctx, w.path, store.Header{WorldID: w.id, Name: w.name}, doc); err != nil {
		w.saveFails++
		return fmt.Errorf("save world: %w", err)
	}
	w.lastSave = time.Now()
	w.saves++

	if w.indexer != nil {
		rec := SaveRecord{
			WorldID:    w.id,
			Name:       w.name,
			Path:       w.path,
			Tick:       w.tick,
			AliveBots:  w.bots.alive.len(),
			DeadBots:   len(w.bots.dead),
			QueuedBots: len(w.bots.queued),
			Duration:   time.Since(start),
			At:         w.lastSave,
		}
		if err := w.indexer.RecordSave(ctx, rec); err != nil {
			w.log.Printf("index save: %v", err)
		}
	}
	return nil
}

// document captures everything that survives a restart. Rng state and the
// spawn point are not part of it.
func (w *World) document() (store.Document, error) {
	size := w.m.Size()
	doc := store.Document{
		Name: w.name,
		Policy: store.PolicyV4{
			MaxAliveBots:  w.policy.MaxAliveBots,
			MaxQueuedBots: w.policy.MaxQueuedBots,
			AutoRespawn:   w.policy.AutoRespawn,
			RespawnReset:  w.policy.RespawnReset,
		},
		Map: store.MapV4{Size: size.ToArray(), Tiles: w.m.EncodeTiles()},
		Bots: store.BotsV4{
			Alive:  []store.AliveBotV4{},
			Dead:   []store.DeadBotV4{},
			Queued: []store.QueuedBotV4{},
		},
	}
	if w.mode != nil {
		doc.Mode = w.mode.encode()
	}

	for _, b := range w.bots.alive.slots {
		if b == nil {
			continue
		}
		state, err := b.Runtime.State()
		if err != nil {
			return doc, fmt.Errorf("bot %s: %w", b.ID, err)
		}
		doc.Bots.Alive = append(doc.Bots.Alive, store.AliveBotV4{
			ID:       b.ID.String(),
			Pos:      b.Pos.ToArray(),
			Dir:      b.Dir.String(),
			Firmware: b.Firmware,
			State:    state,
		})
	}
	for _, d := range w.bots.dead {
		entry := store.DeadBotV4{ID: d.ID.String(), Reason: d.Reason, Firmware: d.Firmware}
		if d.Killer != nil {
			k := d.Killer.String()
			entry.Killer = &k
		}
		if d.Runtime != nil {
			state, err := d.Runtime.State()
			if err != nil {
				return doc, fmt.Errorf("bot %s: %w", d.ID, err)
			}
			entry.State = state
		}
		doc.Bots.Dead = append(doc.Bots.Dead, entry)
	}
	for _, q := range w.bots.queued {
		entry := store.QueuedBotV4{ID: q.ID.String(), Firmware: q.Firmware, Requeued: q.Requeued}
		if q.Pos != nil {
			p := q.Pos.ToArray()
			entry.Pos = &p
		}
		// Fresh uploads only hold a validation runtime; their state is
		// rebuilt from firmware.
		if q.Requeued && q.Runtime != nil {
			state, err := q.Runtime.State()
			if err != nil {
				return doc, fmt.Errorf("bot %s: %w", q.ID, err)
			}
			entry.State = state
		}
		doc.Bots.Queued = append(doc.Bots.Queued, entry)
	}
	return doc, nil
}

func (w *World) restore(doc store.Document) error {
	w.name = doc.Name
	w.policy = Policy{
		MaxAliveBots:  doc.Policy.MaxAliveBots,
		MaxQueuedBots: doc.Policy.MaxQueuedBots,
		AutoRespawn:   doc.Policy.AutoRespawn,
		RespawnReset:  doc.Policy.RespawnReset,
	}

	m, err := tilemap.DecodeMap(tilemap.Vec2FromArray(doc.Map.Size), doc.Map.Tiles)
	if err != nil {
		return err
	}
	w.m = m

	mode, err := decodeMode(doc.Mode)
	if err != nil {
		return err
	}
	w.mode = mode

	for _, b := range doc.Bots.Alive {
		id, err := ParseBotID(b.ID)
		if err != nil {
			return err
		}
		dir, err := tilemap.ParseDir(b.Dir)
		if err != nil {
			return fmt.Errorf("bot %s: %w", id, err)
		}
		rt, err := w.runtimes.New(b.Firmware, b.State)
		if err != nil {
			return fmt.Errorf("bot %s: %w", id, err)
		}
		w.bots.alive.add(&AliveBot{
			ID:       id,
			Pos:      tilemap.Vec2FromArray(b.Pos),
			Dir:      dir,
			Firmware: b.Firmware,
			Runtime:  rt,
		})
	}
	for _, d := range doc.Bots.Dead {
		id, err := ParseBotID(d.ID)
		if err != nil {
			return err
		}
		dead := &DeadBot{ID: id, Reason: d.Reason, Firmware: d.Firmware}
		if d.Killer != nil {
			k, err := ParseBotID(*d.Killer)
			if err != nil {
				return err
			}
			dead.Killer = &k
		}
		if d.State != nil {
			if dead.Runtime, err = w.runtimes.New(d.Firmware, d.State); err != nil {
				return fmt.Errorf("bot %s: %w", id, err)
			}
		}
		w.bots.dead = append(w.bots.dead, dead)
	}
	for _, q := range doc.Bots.Queued {
		id, err := ParseBotID(q.ID)
		if err != nil {
			return err
		}
		queued := &QueuedBot{ID: id, Firmware: q.Firmware, Requeued: q.Requeued}
		if q.Pos != nil {
			p := tilemap.Vec2FromArray(*q.Pos)
			queued.Pos = &p
		}
		if q.State != nil {
			if queued.Runtime, err = w.runtimes.New(q.Firmware, q.State); err != nil {
				return fmt.Errorf("bot %s: %w", id, err)
			}
		}
		w.bots.queued = append(w.bots.queued, queued)
	}
	return nil
}
