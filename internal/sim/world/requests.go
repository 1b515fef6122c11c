package world

import (
	"kartoffels.dev/internal/sim/tilemap"
)

type request interface {
	isRequest()
}

type stepReq struct{ ack chan error }

type pauseReq struct {
	paused bool
	ack    chan struct{}
}

type shutdownReq struct{ ack chan error }

type createBotReq struct {
	firmware []byte
	pos      *tilemap.Vec2
	ack      chan createBotResp
}

type createBotResp struct {
	id  BotID
	err error
}

type killBotReq struct {
	id     BotID
	reason string
	ack    chan struct{}
}

type restartBotReq struct {
	id  BotID
	ack chan struct{}
}

type destroyBotReq struct {
	id  BotID
	ack chan struct{}
}

type getBotsReq struct{ ack chan []BotInfo }

type setSpawnReq struct {
	pos *tilemap.Vec2
	dir *tilemap.Dir
	ack chan struct{}
}

type setMapReq struct {
	m   tilemap.Map
	ack chan struct{}
}

type listenReq struct{ ack chan listenResp }

type listenResp struct {
	stream *EventStream
	err    error
}

type joinReq struct {
	bot *BotID
	ack chan *Conn
}

func (stepReq) isRequest()       {}
func (pauseReq) isRequest()      {}
func (shutdownReq) isRequest()   {}
func (createBotReq) isRequest()  {}
func (killBotReq) isRequest()    {}
func (restartBotReq) isRequest() {}
func (destroyBotReq) isRequest() {}
func (getBotsReq) isRequest()    {}
func (setSpawnReq) isRequest()   {}
func (setMapReq) isRequest()     {}
func (listenReq) isRequest()     {}
func (joinReq) isRequest()       {}

// shutdownToken ends the loop. A nil ack means the world is tearing itself
// down because every handle was released.
type shutdownToken struct {
	ack chan error
}

// BotInfo summarizes a bot in any lifecycle state.
type BotInfo struct {
	ID       BotID         `json:"id"`
	State    string        `json:"state"`
	Pos      *tilemap.Vec2 `json:"pos,omitempty"`
	Dir      *tilemap.Dir  `json:"dir,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Killer   *BotID        `json:"killer,omitempty"`
	Requeued bool          `json:"requeued,omitempty"`
	Place    int           `json:"place,omitempty"`
}

const (
	BotStateAlive  = "alive"
	BotStateDead   = "dead"
	BotStateQueued = "queued"
)

// processRequests drains the request channel. In manual mode with no Step
// pending it blocks for the next request instead of returning. It reports
// true when the loop must stop.
func (w *World) processRequests() (shutdownToken, bool) {
	if w.pendingStep == nil && len(w.carriedSteps) > 0 {
		w.pendingStep = w.carriedSteps[0]
		w.carriedSteps = w.carriedSteps[1:]
	}

	for {
		var (
			req request
			ok  bool
		)
		if w.clock.Mode == ClockManual && w.pendingStep == nil {
			req, ok = <-w.rx
		} else {
			select {
			case req, ok = <-w.rx:
			default:
				return shutdownToken{}, false
			}
		}
		if !ok {
			return shutdownToken{}, true
		}

		switch r := req.(type) {
		case stepReq:
			if w.pendingStep != nil {
				// Whatever follows this Step belongs to the next tick.
				w.carriedSteps = append(w.carriedSteps, r.ack)
				return shutdownToken{}, false
			}
			w.pendingStep = r.ack

		case pauseReq:
			w.paused = r.paused
			r.ack <- struct{}{}

		case shutdownReq:
			w.log.Printf("shutdown requested")
			w.emit(ShutdownRequested{})
			return shutdownToken{ack: r.ack}, true

		case createBotReq:
			id, err := w.createBot(r.firmware, r.pos)
			r.ack <- createBotResp{id: id, err: err}
			if err == nil {
				w.emit(BotCreated{ID: id})
			}

		case killBotReq:
			r.ack <- struct{}{}
			w.killBot(r.id, r.reason, nil)

		case restartBotReq:
			r.ack <- struct{}{}
			w.restartBot(r.id)

		case destroyBotReq:
			removed := w.bots.remove(r.id)
			r.ack <- struct{}{}
			if removed {
				w.log.Printf("bot %s destroyed", r.id)
				w.emit(BotKilled{ID: r.id, Reason: "destroyed"})
				w.emit(BotDestroyed{ID: r.id})
			}

		case getBotsReq:
			r.ack <- w.botInfos()

		case setSpawnReq:
			w.spawnPos, w.spawnDir = r.pos, r.dir
			r.ack <- struct{}{}

		case setMapReq:
			w.m = r.m
			r.ack <- struct{}{}

		case listenReq:
			s, err := w.events.subscribe()
			r.ack <- listenResp{stream: s, err: err}

		case joinReq:
			w.nextConnID++
			c := newConn(w.nextConnID, r.bot)
			w.conns = append(w.conns, c)
			r.ack <- c
			w.emit(ConnectionCreated{ConnID: c.ID, Bot: r.bot})
		}
	}
}

func (w *World) botInfos() []BotInfo {
	out := make([]BotInfo, 0, w.bots.alive.len()+len(w.bots.dead)+len(w.bots.queued))
	w.bots.iter(func(e BotEntry) {
		out = append(out, w.describe(e))
	})
	return out
}

func (w *World) botInfo(id BotID) (BotInfo, bool) {
	if b, ok := w.bots.alive.get(id); ok {
		return w.describe(b), true
	}
	if i := w.bots.deadIndex(id); i >= 0 {
		return w.describe(w.bots.dead[i]), true
	}
	if i := w.bots.queuedIndex(id); i >= 0 {
		return w.describe(w.bots.queued[i]), true
	}
	return BotInfo{}, false
}

func (w *World) describe(e BotEntry) BotInfo {
	switch b := e.(type) {
	case *AliveBot:
		pos, dir := b.Pos, b.Dir
		return BotInfo{ID: b.ID, State: BotStateAlive, Pos: &pos, Dir: &dir}
	case *DeadBot:
		return BotInfo{ID: b.ID, State: BotStateDead, Reason: b.Reason, Killer: b.Killer}
	case *QueuedBot:
		return BotInfo{ID: b.ID, State: BotStateQueued, Requeued: b.Requeued, Place: w.bots.queuedIndex(b.ID) + 1}
	}
	return BotInfo{ID: e.BotID()}
}
