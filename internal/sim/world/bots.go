package world

import (
	"math/rand/v2"

	"kartoffels.dev/internal/sim/tilemap"
)

// BotEntry is one of *QueuedBot, *AliveBot or *DeadBot.
type BotEntry interface {
	BotID() BotID
	isBotEntry()
}

type QueuedBot struct {
	ID       BotID
	Firmware []byte
	// Requeued is set for bots that already ran once (respawned or
	// restarted), as opposed to fresh uploads.
	Requeued bool
	// Pos, when set, is where the bot asked to be spawned.
	Pos *tilemap.Vec2
	// Runtime is carried over from a previous life or from upload
	// validation. Nil means build a fresh one at spawn.
	Runtime BotRuntime
}

type AliveBot struct {
	ID       BotID
	Pos      tilemap.Vec2
	Dir      tilemap.Dir
	Firmware []byte
	Runtime  BotRuntime
	// SpawnedAt is the tick the bot was spawned at; not persisted.
	SpawnedAt uint64
}

type DeadBot struct {
	ID       BotID
	Reason   string
	Killer   *BotID
	Firmware []byte
	// Runtime is retained only when the policy keeps state across respawns.
	Runtime BotRuntime
}

func (b *QueuedBot) BotID() BotID { return b.ID }
func (b *AliveBot) BotID() BotID  { return b.ID }
func (b *DeadBot) BotID() BotID   { return b.ID }

func (*QueuedBot) isBotEntry() {}
func (*AliveBot) isBotEntry()  {}
func (*DeadBot) isBotEntry()   {}

// bots owns the three lifecycle collections. An id lives in exactly one of
// them; every transition goes through the methods below.
type bots struct {
	alive  aliveBots
	dead   []*DeadBot
	queued []*QueuedBot
}

func newBots() *bots {
	return &bots{alive: newAliveBots()}
}

func (b *bots) contains(id BotID) bool {
	if _, ok := b.alive.get(id); ok {
		return true
	}
	return b.deadIndex(id) >= 0 || b.queuedIndex(id) >= 0
}

// allocateID draws random ids until one is unused.
func (b *bots) allocateID(rng *rand.Rand) BotID {
	for {
		id := newBotID(rng)
		if !b.contains(id) {
			return id
		}
	}
}

func (b *bots) enqueue(bot *QueuedBot, maxQueued int) error {
	if len(b.queued) >= maxQueued {
		return ErrTooManyQueuedBots
	}
	b.queued = append(b.queued, bot)
	return nil
}

func (b *bots) queueHead() *QueuedBot {
	if len(b.queued) == 0 {
		return nil
	}
	return b.queued[0]
}

func (b *bots) popQueueHead() *QueuedBot {
	head := b.queueHead()
	if head == nil {
		return nil
	}
	b.queued[0] = nil
	b.queued = b.queued[1:]
	return head
}

func (b *bots) queuedIndex(id BotID) int {
	for i, q := range b.queued {
		if q.ID == id {
			return i
		}
	}
	return -1
}

func (b *bots) deadIndex(id BotID) int {
	for i, d := range b.dead {
		if d.ID == id {
			return i
		}
	}
	return -1
}

// kill moves an alive bot to the dead collection. keepRuntime carries the
// runtime over for respawning without a reset.
func (b *bots) kill(id BotID, reason string, killer *BotID, keepRuntime bool) (*DeadBot, bool) {
	alive, ok := b.alive.remove(id)
	if !ok {
		return nil, false
	}
	dead := &DeadBot{
		ID:       id,
		Reason:   reason,
		Killer:   killer,
		Firmware: alive.Firmware,
	}
	if keepRuntime {
		dead.Runtime = alive.Runtime
	}
	b.dead = append(b.dead, dead)
	return dead, true
}

func (b *bots) takeDead(id BotID) (*DeadBot, bool) {
	i := b.deadIndex(id)
	if i < 0 {
		return nil, false
	}
	d := b.dead[i]
	b.dead = append(b.dead[:i], b.dead[i+1:]...)
	return d, true
}

// remove deletes id from whichever collection holds it.
func (b *bots) remove(id BotID) bool {
	if _, ok := b.alive.remove(id); ok {
		return true
	}
	if _, ok := b.takeDead(id); ok {
		return true
	}
	if i := b.queuedIndex(id); i >= 0 {
		b.queued = append(b.queued[:i], b.queued[i+1:]...)
		return true
	}
	return false
}

// iter visits alive bots in slot order, then dead, then queued.
func (b *bots) iter(fn func(BotEntry)) {
	for _, a := range b.alive.slots {
		if a != nil {
			fn(a)
		}
	}
	for _, d := range b.dead {
		fn(d)
	}
	for _, q := range b.queued {
		fn(q)
	}
}

// aliveBots stores alive bots in numbered slots. The slot number is what
// snapshots write into bot tile metadata.
type aliveBots struct {
	slots []*AliveBot
	index map[BotID]int
	byPos map[tilemap.Vec2]BotID
}

func newAliveBots() aliveBots {
	return aliveBots{
		index: map[BotID]int{},
		byPos: map[tilemap.Vec2]BotID{},
	}
}

func (a *aliveBots) len() int { return len(a.index) }

func (a *aliveBots) add(bot *AliveBot) int {
	slot := -1
	for i, s := range a.slots {
		if s == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		slot = len(a.slots)
		a.slots = append(a.slots, nil)
	}
	a.slots[slot] = bot
	a.index[bot.ID] = slot
	a.byPos[bot.Pos] = bot.ID
	return slot
}

func (a *aliveBots) get(id BotID) (*AliveBot, bool) {
	slot, ok := a.index[id]
	if !ok {
		return nil, false
	}
	return a.slots[slot], true
}

func (a *aliveBots) slotOf(id BotID) (int, bool) {
	slot, ok := a.index[id]
	return slot, ok
}

func (a *aliveBots) at(p tilemap.Vec2) (BotID, bool) {
	id, ok := a.byPos[p]
	return id, ok
}

func (a *aliveBots) remove(id BotID) (*AliveBot, bool) {
	slot, ok := a.index[id]
	if !ok {
		return nil, false
	}
	bot := a.slots[slot]
	a.slots[slot] = nil
	delete(a.index, id)
	if cur, ok := a.byPos[bot.Pos]; ok && cur == id {
		delete(a.byPos, bot.Pos)
	}
	for len(a.slots) > 0 && a.slots[len(a.slots)-1] == nil {
		a.slots = a.slots[:len(a.slots)-1]
	}
	return bot, true
}

func (a *aliveBots) move(bot *AliveBot, to tilemap.Vec2) {
	if cur, ok := a.byPos[bot.Pos]; ok && cur == bot.ID {
		delete(a.byPos, bot.Pos)
	}
	bot.Pos = to
	a.byPos[to] = bot.ID
}

// pickIDs returns the alive ids in a random order drawn from rng.
func (a *aliveBots) pickIDs(rng *rand.Rand) []BotID {
	ids := make([]BotID, 0, len(a.index))
	for _, s := range a.slots {
		if s != nil {
			ids = append(ids, s.ID)
		}
	}
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids
}
