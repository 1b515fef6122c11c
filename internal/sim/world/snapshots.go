package world

import (
	"context"
	"sync"
	"sync/atomic"

	"kartoffels.dev/internal/sim/tilemap"
)

// Snapshot is an immutable view of a world at a tick boundary. Readers must
// not modify it.
type Snapshot struct {
	Tick    uint64
	Version uint64
	Paused  bool
	// Map has alive bots drawn onto it; bot tiles carry the slot index into
	// Alive in Meta[0].
	Map    tilemap.Map
	Alive  []*SnapshotAliveBot
	Dead   []SnapshotDeadBot
	Queued []SnapshotQueuedBot
	Scores map[BotID]uint64
}

type SnapshotAliveBot struct {
	ID  BotID
	Pos tilemap.Vec2
	Dir tilemap.Dir
	Age uint64
}

type SnapshotDeadBot struct {
	ID     BotID
	Reason string
	Killer *BotID
}

type SnapshotQueuedBot struct {
	ID       BotID
	Place    int
	Requeued bool
}

// BotAt resolves the bot drawn at p through the tile metadata.
func (s *Snapshot) BotAt(p tilemap.Vec2) (*SnapshotAliveBot, bool) {
	t := s.Map.Get(p)
	if !t.IsBot() {
		return nil, false
	}
	slot := int(t.Meta[0])
	if slot >= len(s.Alive) || s.Alive[slot] == nil {
		return nil, false
	}
	return s.Alive[slot], true
}

func (s *Snapshot) AliveBot(id BotID) (*SnapshotAliveBot, bool) {
	for _, b := range s.Alive {
		if b != nil && b.ID == id {
			return b, true
		}
	}
	return nil, false
}

func (s *Snapshot) AliveCount() int {
	n := 0
	for _, b := range s.Alive {
		if b != nil {
			n++
		}
	}
	return n
}

func (w *World) buildSnapshot(version uint64) *Snapshot {
	snap := &Snapshot{
		Tick:    w.tick,
		Version: version,
		Paused:  w.paused,
		Map:     w.m.Clone(),
		Alive:   make([]*SnapshotAliveBot, len(w.bots.alive.slots)),
	}

	for slot, b := range w.bots.alive.slots {
		if b == nil {
			continue
		}
		snap.Alive[slot] = &SnapshotAliveBot{
			ID:  b.ID,
			Pos: b.Pos,
			Dir: b.Dir,
			Age: w.tick - b.SpawnedAt,
		}
		meta := [3]uint8{uint8(slot), uint8(b.Dir), 0}
		snap.Map.Set(b.Pos, tilemap.Tile{Base: tilemap.TileBot, Meta: meta})
		front := b.Pos.Add(b.Dir.Vec())
		if snap.Map.Get(front).IsFloor() {
			snap.Map.Set(front, tilemap.Tile{Base: tilemap.TileBotChevron, Meta: meta})
		}
	}

	for _, d := range w.bots.dead {
		snap.Dead = append(snap.Dead, SnapshotDeadBot{ID: d.ID, Reason: d.Reason, Killer: d.Killer})
	}
	for i, q := range w.bots.queued {
		snap.Queued = append(snap.Queued, SnapshotQueuedBot{ID: q.ID, Place: i + 1, Requeued: q.Requeued})
	}
	if w.mode != nil {
		snap.Scores = w.mode.scores()
	}
	return snap
}

// snapshotPublisher holds the latest snapshot. Waiters block on notify,
// which is closed and replaced on every publish.
type snapshotPublisher struct {
	latest atomic.Pointer[Snapshot]

	mu     sync.Mutex
	notify chan struct{}
}

func newSnapshotPublisher() *snapshotPublisher {
	return &snapshotPublisher{notify: make(chan struct{})}
}

func (p *snapshotPublisher) publish(s *Snapshot) {
	p.latest.Store(s)
	p.mu.Lock()
	close(p.notify)
	p.notify = make(chan struct{})
	p.mu.Unlock()
}

func (p *snapshotPublisher) wait() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.notify
}

// SnapshotStream yields each new snapshot at most once. Snapshots published
// while the reader was busy are skipped, only the latest is returned.
type SnapshotStream struct {
	p    *snapshotPublisher
	done <-chan struct{}
	seen uint64
}

// Next returns the first snapshot newer than the last one returned. After
// the world has shut down it returns the final snapshot once and then
// ErrWorldClosed.
func (s *SnapshotStream) Next(ctx context.Context) (*Snapshot, error) {
	for {
		notify := s.p.wait()
		if snap := s.p.latest.Load(); snap != nil && snap.Version > s.seen {
			s.seen = snap.Version
			return snap, nil
		}
		select {
		case <-notify:
		case <-s.done:
			if snap := s.p.latest.Load(); snap != nil && snap.Version > s.seen {
				s.seen = snap.Version
				return snap, nil
			}
			return nil, ErrWorldClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
