package world

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"kartoffels.dev/internal/sim/tilemap"
)

// Handle is the only way to talk to a running world. Handles are cheap to
// Clone; once every clone has been released the world shuts itself down.
type Handle struct {
	shared   *handleShared
	released atomic.Bool
}

type handleShared struct {
	id     string
	name   string
	events bool

	mu     sync.RWMutex
	closed bool
	tx     chan request
	refs   atomic.Int64

	snapshots *snapshotPublisher
	metrics   atomic.Value
	done      chan struct{}
}

func newHandle(id, name string, capacity int, events bool) (*Handle, chan request) {
	tx := make(chan request, capacity)
	shared := &handleShared{
		id:        id,
		name:      name,
		events:    events,
		tx:        tx,
		snapshots: newSnapshotPublisher(),
		done:      make(chan struct{}),
	}
	shared.refs.Store(1)
	return &Handle{shared: shared}, tx
}

func (h *Handle) ID() string   { return h.shared.id }
func (h *Handle) Name() string { return h.shared.name }

// Done is closed once the world loop has exited and its final save is done.
func (h *Handle) Done() <-chan struct{} { return h.shared.done }

// Clone returns another handle to the same world.
func (h *Handle) Clone() *Handle {
	h.shared.refs.Add(1)
	return &Handle{shared: h.shared}
}

// Release drops this handle. Releasing the last one closes the request
// channel, which makes the world save and exit. Extra calls are no-ops.
func (h *Handle) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}
	if h.shared.refs.Add(-1) > 0 {
		return
	}
	h.shared.mu.Lock()
	defer h.shared.mu.Unlock()
	if !h.shared.closed {
		h.shared.closed = true
		close(h.shared.tx)
	}
}

func (h *Handle) send(req request) error {
	if h.released.Load() {
		return ErrWorldClosed
	}
	s := h.shared
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrWorldClosed
	}
	select {
	case <-s.done:
		return ErrWorldClosed
	default:
	}
	select {
	case s.tx <- req:
		return nil
	default:
		return ErrWorldBusy
	}
}

// await waits for an ack. Acks are buffered and sent before the loop exits,
// so one that is ready wins over done.
func await[T any](ctx context.Context, h *Handle, ack chan T) (T, error) {
	var zero T
	select {
	case v := <-ack:
		return v, nil
	case <-h.shared.done:
		select {
		case v := <-ack:
			return v, nil
		default:
			return zero, ErrWorldClosed
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Step runs one tick of a manual-clock world and returns once that tick has
// completed.
func (h *Handle) Step(ctx context.Context) error {
	ack := make(chan error, 1)
	if err := h.send(stepReq{ack: ack}); err != nil {
		return err
	}
	err, aerr := await(ctx, h, ack)
	if aerr != nil {
		return aerr
	}
	return err
}

func (h *Handle) Pause(ctx context.Context) error  { return h.setPaused(ctx, true) }
func (h *Handle) Resume(ctx context.Context) error { return h.setPaused(ctx, false) }

func (h *Handle) setPaused(ctx context.Context, paused bool) error {
	ack := make(chan struct{}, 1)
	if err := h.send(pauseReq{paused: paused, ack: ack}); err != nil {
		return err
	}
	_, err := await(ctx, h, ack)
	return err
}

// Shutdown stops the world. It returns after the final save, with that
// save's error.
func (h *Handle) Shutdown(ctx context.Context) error {
	ack := make(chan error, 1)
	if err := h.send(shutdownReq{ack: ack}); err != nil {
		return err
	}
	err, aerr := await(ctx, h, ack)
	if aerr != nil {
		return aerr
	}
	return err
}

// CreateBot validates firmware and queues a new bot. pos optionally asks for
// a spawn position.
func (h *Handle) CreateBot(ctx context.Context, firmware []byte, pos *tilemap.Vec2) (BotID, error) {
	ack := make(chan createBotResp, 1)
	if err := h.send(createBotReq{firmware: slices.Clone(firmware), pos: cloned(pos), ack: ack}); err != nil {
		return 0, err
	}
	resp, err := await(ctx, h, ack)
	if err != nil {
		return 0, err
	}
	return resp.id, resp.err
}

func (h *Handle) KillBot(ctx context.Context, id BotID, reason string) error {
	ack := make(chan struct{}, 1)
	if err := h.send(killBotReq{id: id, reason: reason, ack: ack}); err != nil {
		return err
	}
	_, err := await(ctx, h, ack)
	return err
}

func (h *Handle) RestartBot(ctx context.Context, id BotID) error {
	ack := make(chan struct{}, 1)
	if err := h.send(restartBotReq{id: id, ack: ack}); err != nil {
		return err
	}
	_, err := await(ctx, h, ack)
	return err
}

func (h *Handle) DestroyBot(ctx context.Context, id BotID) error {
	ack := make(chan struct{}, 1)
	if err := h.send(destroyBotReq{id: id, ack: ack}); err != nil {
		return err
	}
	_, err := await(ctx, h, ack)
	return err
}

// GetBots lists alive bots in slot order, then dead, then queued.
func (h *Handle) GetBots(ctx context.Context) ([]BotInfo, error) {
	ack := make(chan []BotInfo, 1)
	if err := h.send(getBotsReq{ack: ack}); err != nil {
		return nil, err
	}
	return await(ctx, h, ack)
}

// SetSpawn overrides where and facing which way new bots spawn. Nil clears
// the override.
func (h *Handle) SetSpawn(ctx context.Context, pos *tilemap.Vec2, dir *tilemap.Dir) error {
	ack := make(chan struct{}, 1)
	if err := h.send(setSpawnReq{pos: cloned(pos), dir: cloned(dir), ack: ack}); err != nil {
		return err
	}
	_, err := await(ctx, h, ack)
	return err
}

// cloned copies a caller-owned optional value before it crosses into the
// world goroutine.
func cloned[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func (h *Handle) SetMap(ctx context.Context, m tilemap.Map) error {
	ack := make(chan struct{}, 1)
	if err := h.send(setMapReq{m: m.Clone(), ack: ack}); err != nil {
		return err
	}
	_, err := await(ctx, h, ack)
	return err
}

// Listen subscribes to events published from now on.
func (h *Handle) Listen(ctx context.Context) (*EventStream, error) {
	if !h.shared.events {
		return nil, ErrEventsDisabled
	}
	ack := make(chan listenResp, 1)
	if err := h.send(listenReq{ack: ack}); err != nil {
		return nil, err
	}
	resp, err := await(ctx, h, ack)
	if err != nil {
		return nil, err
	}
	return resp.stream, resp.err
}

// Join opens a per-connection feed, following bot when it is set.
func (h *Handle) Join(ctx context.Context, bot *BotID) (*Conn, error) {
	ack := make(chan *Conn, 1)
	if err := h.send(joinReq{bot: bot, ack: ack}); err != nil {
		return nil, err
	}
	return await(ctx, h, ack)
}

// Snapshot returns the latest published snapshot, nil before the first one.
func (h *Handle) Snapshot() *Snapshot { return h.shared.snapshots.latest.Load() }

func (h *Handle) Snapshots() *SnapshotStream {
	return &SnapshotStream{p: h.shared.snapshots, done: h.shared.done}
}

func (h *Handle) Metrics() WorldMetrics {
	v := h.shared.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

// QueueDepth is the number of requests waiting for the world.
func (h *Handle) QueueDepth() int { return len(h.shared.tx) }
