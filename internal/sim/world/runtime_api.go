package world

import (
	"math/rand/v2"

	"kartoffels.dev/internal/sim/tilemap"
)

// BotRuntime executes one bot's firmware, one turn per call. It is owned by
// exactly one bot entry and only ever called from the world goroutine.
type BotRuntime interface {
	// Tick runs a single turn. m must be treated as read-only; other bots
	// are visible through loc. A returned error is a firmware crash and kills
	// the bot, it never stops the world.
	Tick(rng *rand.Rand, m *tilemap.Map, loc Locator, pos tilemap.Vec2, dir tilemap.Dir) (Outcome, error)

	// State serializes the runtime so it can be restored with
	// RuntimeFactory.New.
	State() ([]byte, error)
}

// RuntimeFactory builds runtimes from uploaded firmware. A nil state starts
// fresh; a non-nil state restores a runtime previously saved with State.
type RuntimeFactory interface {
	New(firmware, state []byte) (BotRuntime, error)
}

type RuntimeFactoryFunc func(firmware, state []byte) (BotRuntime, error)

func (f RuntimeFactoryFunc) New(firmware, state []byte) (BotRuntime, error) {
	return f(firmware, state)
}

// Outcome is what a runtime wants to happen after its turn.
type Outcome struct {
	// Pos is where the bot wants to be. Equal to the current position means
	// no movement.
	Pos tilemap.Vec2
	Dir tilemap.Dir
	// Kill names a bot this one stabbed.
	Kill *BotID
	// Died is set when the firmware decided to end itself.
	Died string
}

// Stay returns an outcome that changes nothing.
func Stay(pos tilemap.Vec2, dir tilemap.Dir) Outcome {
	return Outcome{Pos: pos, Dir: dir}
}

// Locator is a read-only view of the alive bots around one position.
type Locator struct {
	pos   tilemap.Vec2
	alive *aliveBots
}

func (l Locator) Pos() tilemap.Vec2 { return l.pos }

// BotAt reports the alive bot standing at p.
func (l Locator) BotAt(p tilemap.Vec2) (BotID, bool) {
	if l.alive == nil {
		return 0, false
	}
	return l.alive.at(p)
}

// Scan lists alive bots within the given Manhattan radius, excluding the
// bot at the locator's own position, in slot order.
func (l Locator) Scan(radius int) []tilemap.Vec2 {
	if l.alive == nil {
		return nil
	}
	var out []tilemap.Vec2
	for _, b := range l.alive.slots {
		if b == nil || b.Pos == l.pos {
			continue
		}
		if tilemap.Manhattan(b.Pos, l.pos) <= radius {
			out = append(out, b.Pos)
		}
	}
	return out
}
