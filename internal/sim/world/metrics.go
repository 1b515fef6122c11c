package world

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick   uint64 `json:"tick"`
	Paused bool   `json:"paused"`

	AliveBots  int `json:"alive_bots"`
	DeadBots   int `json:"dead_bots"`
	QueuedBots int `json:"queued_bots"`

	Listeners  int `json:"listeners"`
	Conns      int `json:"conns"`
	QueueDepth int `json:"queue_depth"`

	StepMS float64 `json:"step_ms"`

	Saves     uint64 `json:"saves"`
	SaveFails uint64 `json:"save_fails"`
	Crashes   uint64 `json:"crashes"`
}

func (w *World) publishMetrics(stepMS float64) {
	w.hub.metrics.Store(WorldMetrics{
		Tick:       w.tick,
		Paused:     w.paused,
		AliveBots:  w.bots.alive.len(),
		DeadBots:   len(w.bots.dead),
		QueuedBots: len(w.bots.queued),
		Listeners:  w.events.len(),
		Conns:      len(w.conns),
		QueueDepth: len(w.rx),
		StepMS:     stepMS,
		Saves:      w.saves,
		SaveFails:  w.saveFails,
		Crashes:    w.crashes,
	})
}
