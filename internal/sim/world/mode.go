package world

import (
	"fmt"
	"maps"

	"kartoffels.dev/internal/persistence/store"
)

// Mode hooks game rules into the tick. Implementations live in this
// package; DeathmatchMode is the only one.
type Mode interface {
	Name() string
	onKill(victim BotID, killer *BotID)
	afterTick() (RoundEnded, bool)
	scores() map[BotID]uint64
	encode() *store.ModeV4
}

// DeathmatchMode awards a point per kill. With RoundTicks set, a round ends
// after that many ticks: the best scorer wins and scores reset.
type DeathmatchMode struct {
	RoundTicks uint64

	elapsed uint64
	points  map[BotID]uint64
}

func NewDeathmatch(roundTicks uint64) *DeathmatchMode {
	return &DeathmatchMode{RoundTicks: roundTicks, points: map[BotID]uint64{}}
}

func (m *DeathmatchMode) Name() string { return "deathmatch" }

func (m *DeathmatchMode) onKill(victim BotID, killer *BotID) {
	if killer == nil || *killer == victim {
		return
	}
	if m.points == nil {
		m.points = map[BotID]uint64{}
	}
	m.points[*killer]++
}

func (m *DeathmatchMode) afterTick() (RoundEnded, bool) {
	if m.RoundTicks == 0 {
		return RoundEnded{}, false
	}
	m.elapsed++
	if m.elapsed < m.RoundTicks {
		return RoundEnded{}, false
	}

	ev := RoundEnded{Scores: m.scores()}
	var best uint64
	for id, pts := range m.points {
		// Ties go to the lower id so the winner does not depend on map order.
		if pts > best || (pts == best && pts > 0 && ev.Winner != nil && id < *ev.Winner) {
			best = pts
			winner := id
			ev.Winner = &winner
		}
	}
	m.elapsed = 0
	m.points = map[BotID]uint64{}
	return ev, true
}

func (m *DeathmatchMode) scores() map[BotID]uint64 {
	return maps.Clone(m.points)
}

func (m *DeathmatchMode) encode() *store.ModeV4 {
	out := &store.ModeV4{
		Type:       m.Name(),
		RoundTicks: m.RoundTicks,
		Elapsed:    m.elapsed,
	}
	if len(m.points) > 0 {
		out.Scores = make(map[string]uint64, len(m.points))
		for id, pts := range m.points {
			out.Scores[id.String()] = pts
		}
	}
	return out
}

func decodeMode(doc *store.ModeV4) (Mode, error) {
	if doc == nil {
		return nil, nil
	}
	switch doc.Type {
	case "deathmatch":
		m := NewDeathmatch(doc.RoundTicks)
		m.elapsed = doc.Elapsed
		for s, pts := range doc.Scores {
			id, err := ParseBotID(s)
			if err != nil {
				return nil, err
			}
			m.points[id] = pts
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown mode %q", doc.Type)
	}
}
