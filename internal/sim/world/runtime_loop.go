package world

import (
	"context"
	"fmt"
	"time"

	"kartoffels.dev/internal/sim/tilemap"
)

// step runs one iteration of the world loop. It reports true when the loop
// has to stop.
func (w *World) step() (shutdownToken, bool) {
	if tok, stop := w.processRequests(); stop {
		return tok, true
	}
	start := time.Now()

	if !w.paused {
		w.tick++
		w.spawnQueued()
		w.reapDead()
		w.runBots()
		w.runMode()
	}

	snap := w.publishSnapshot()
	w.feedConns(snap)

	if w.path != "" && time.Since(w.lastSave) >= w.saveEvery {
		if err := w.saveNow(context.Background()); err != nil {
			// Retry on the next interval, not on every tick.
			w.lastSave = time.Now()
			w.log.Printf("periodic save failed: %v", err)
		}
	}

	w.publishMetrics(float64(time.Since(start).Microseconds()) / 1000.0)

	if w.pendingStep != nil {
		w.pendingStep <- nil
		w.pendingStep = nil
	}
	return shutdownToken{}, false
}

func (w *World) createBot(firmware []byte, pos *tilemap.Vec2) (BotID, error) {
	if len(w.bots.queued) >= w.policy.MaxQueuedBots {
		return 0, ErrTooManyQueuedBots
	}
	rt, err := w.runtimes.New(firmware, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidFirmware, err)
	}
	id := w.bots.allocateID(w.rng)
	fw := append([]byte(nil), firmware...)
	if err := w.bots.enqueue(&QueuedBot{ID: id, Firmware: fw, Pos: pos, Runtime: rt}, w.policy.MaxQueuedBots); err != nil {
		return 0, err
	}
	w.log.Printf("bot %s queued", id)
	return id, nil
}

// spawnQueued promotes the head of the queue when there is room and a
// place to put it. At most one bot spawns per tick.
func (w *World) spawnQueued() {
	head := w.bots.queueHead()
	if head == nil || w.bots.alive.len() >= w.policy.MaxAliveBots {
		return
	}
	pos, ok := w.spawnPoint(head)
	if !ok {
		return
	}
	dir := tilemap.RandomDir(w.rng)
	if w.spawnDir != nil {
		dir = *w.spawnDir
	}

	rt := head.Runtime
	if rt == nil {
		var err error
		rt, err = w.runtimes.New(head.Firmware, nil)
		if err != nil {
			w.bots.popQueueHead()
			w.bots.dead = append(w.bots.dead, &DeadBot{ID: head.ID, Reason: "firmware crashed: " + err.Error(), Firmware: head.Firmware})
			w.emit(BotKilled{ID: head.ID, Reason: "firmware crashed: " + err.Error()})
			return
		}
	}

	w.bots.popQueueHead()
	w.bots.alive.add(&AliveBot{
		ID:        head.ID,
		Pos:       pos,
		Dir:       dir,
		Firmware:  head.Firmware,
		Runtime:   rt,
		SpawnedAt: w.tick,
	})
	w.emit(BotSpawned{ID: head.ID, Pos: pos, Dir: dir})
}

// spawnPoint resolves where bot goes: its requested position, then the
// world spawn point, then a random free floor tile. A fixed position that
// is taken or not floor means waiting.
func (w *World) spawnPoint(bot *QueuedBot) (tilemap.Vec2, bool) {
	free := func(p tilemap.Vec2) bool {
		_, taken := w.bots.alive.at(p)
		return !taken
	}
	fixed := bot.Pos
	if fixed == nil {
		fixed = w.spawnPos
	}
	if fixed != nil {
		if w.m.Get(*fixed).IsFloor() && free(*fixed) {
			return *fixed, true
		}
		return tilemap.Vec2{}, false
	}
	return w.m.SampleFloor(w.rng, w.spawnAttempts, free)
}

// reapDead requeues dead bots when the policy respawns them and drops them
// otherwise.
func (w *World) reapDead() {
	if len(w.bots.dead) == 0 {
		return
	}
	kept := w.bots.dead[:0]
	for _, d := range w.bots.dead {
		if !w.policy.AutoRespawn {
			continue
		}
		q := &QueuedBot{ID: d.ID, Firmware: d.Firmware, Requeued: true}
		if !w.policy.RespawnReset {
			q.Runtime = d.Runtime
		}
		if err := w.bots.enqueue(q, w.policy.MaxQueuedBots); err != nil {
			kept = append(kept, d)
		}
	}
	for i := len(kept); i < len(w.bots.dead); i++ {
		w.bots.dead[i] = nil
	}
	w.bots.dead = kept
}

// runBots gives every alive bot SubTicks turns. Turn order is shuffled once
// per tick.
func (w *World) runBots() {
	ids := w.bots.alive.pickIDs(w.rng)
	for range w.clock.SubTicks {
		for _, id := range ids {
			w.runBot(id)
		}
	}
}

func (w *World) runBot(id BotID) {
	bot, ok := w.bots.alive.get(id)
	if !ok {
		// Killed earlier in this batch.
		return
	}
	loc := Locator{pos: bot.Pos, alive: &w.bots.alive}
	out, err := bot.Runtime.Tick(w.rng, &w.m, loc, bot.Pos, bot.Dir)
	if err != nil {
		w.crashes++
		w.log.Printf("bot %s crashed: %v", id, err)
		w.killBot(id, "firmware crashed: "+err.Error(), nil)
		return
	}

	bot.Dir = out.Dir
	if out.Died != "" {
		w.killBot(id, out.Died, nil)
		return
	}
	if out.Kill != nil && *out.Kill != id {
		killer := id
		w.killBot(*out.Kill, "stabbed by "+id.String(), &killer)
	}
	if out.Pos == bot.Pos {
		return
	}

	tile := w.m.Get(out.Pos)
	switch {
	case tile.IsVoid():
		w.killBot(id, "fell into the void", nil)
	case !tile.IsFloor():
		// Walls block.
	default:
		if other, taken := w.bots.alive.at(out.Pos); taken {
			w.killBot(id, "crashed into "+other.String(), nil)
			return
		}
		w.bots.alive.move(bot, out.Pos)
	}
}

func (w *World) killBot(id BotID, reason string, killer *BotID) {
	if _, ok := w.bots.kill(id, reason, killer, !w.policy.RespawnReset); !ok {
		return
	}
	if w.mode != nil {
		w.mode.onKill(id, killer)
	}
	w.emit(BotKilled{ID: id, Reason: reason, Killer: killer})
}

// restartBot kills the bot and puts it straight back into the queue with a
// fresh runtime. With a full queue it stays dead and reapDead decides.
func (w *World) restartBot(id BotID) {
	w.killBot(id, "forcefully restarted", nil)
	if len(w.bots.queued) >= w.policy.MaxQueuedBots {
		return
	}
	d, ok := w.bots.takeDead(id)
	if !ok {
		return
	}
	_ = w.bots.enqueue(&QueuedBot{ID: d.ID, Firmware: d.Firmware, Requeued: true}, w.policy.MaxQueuedBots)
}

func (w *World) runMode() {
	if w.mode == nil {
		return
	}
	if ev, ended := w.mode.afterTick(); ended {
		w.log.Printf("round ended")
		w.emit(ev)
	}
}
