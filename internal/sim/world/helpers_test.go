package world

import (
	"context"
	"errors"
	"math/rand/v2"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"kartoffels.dev/internal/sim/tilemap"
)

// testRuntime interprets tiny firmware names:
//
//	idle   does nothing
//	fwd    moves one tile forward every turn
//	stab   kills whatever stands in front of it
//	crash  fails every turn
//	block  signals entered and waits for release
type testRuntime struct {
	prog  string
	ticks int

	entered chan struct{}
	release chan struct{}
}

func (r *testRuntime) Tick(_ *rand.Rand, _ *tilemap.Map, loc Locator, pos tilemap.Vec2, dir tilemap.Dir) (Outcome, error) {
	r.ticks++
	out := Stay(pos, dir)
	switch r.prog {
	case "fwd":
		out.Pos = pos.Add(dir.Vec())
	case "stab":
		if id, ok := loc.BotAt(pos.Add(dir.Vec())); ok {
			out.Kill = &id
		}
	case "crash":
		return Outcome{}, errors.New("trap")
	case "block":
		if r.entered != nil {
			r.entered <- struct{}{}
			<-r.release
		}
	}
	return out, nil
}

func (r *testRuntime) State() ([]byte, error) {
	return []byte(strconv.Itoa(r.ticks)), nil
}

type testFactory struct {
	created atomic.Int64
	last    atomic.Pointer[testRuntime]

	entered chan struct{}
	release chan struct{}
}

func (f *testFactory) New(firmware, state []byte) (BotRuntime, error) {
	prog := string(firmware)
	switch prog {
	case "idle", "fwd", "stab", "crash", "block":
	default:
		return nil, errors.New("unknown program " + strconv.Quote(prog))
	}
	r := &testRuntime{prog: prog, entered: f.entered, release: f.release}
	if len(state) > 0 {
		n, err := strconv.Atoi(string(state))
		if err != nil {
			return nil, err
		}
		r.ticks = n
	}
	f.created.Add(1)
	f.last.Store(r)
	return r, nil
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// startWorld creates a manual-clock world and shuts it down when the test
// ends.
func startWorld(t *testing.T, cfg Config) *Handle {
	t.Helper()
	if cfg.Runtimes == nil {
		cfg.Runtimes = &testFactory{}
	}
	if cfg.Policy == (Policy{}) {
		cfg.Policy = DefaultPolicy()
	}
	if cfg.Clock == (Clock{}) {
		cfg.Clock = ManualClock()
	}
	h, err := Create(cfg)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	})
	return h
}

func mustStep(t *testing.T, h *Handle) {
	t.Helper()
	if err := h.Step(testCtx(t)); err != nil {
		t.Fatalf("Step: %v", err)
	}
}

func mustCreateBot(t *testing.T, h *Handle, fw string, pos *tilemap.Vec2) BotID {
	t.Helper()
	id, err := h.CreateBot(testCtx(t), []byte(fw), pos)
	if err != nil {
		t.Fatalf("CreateBot(%s): %v", fw, err)
	}
	return id
}

func mustBots(t *testing.T, h *Handle) []BotInfo {
	t.Helper()
	bots, err := h.GetBots(testCtx(t))
	if err != nil {
		t.Fatalf("GetBots: %v", err)
	}
	return bots
}

func findBot(t *testing.T, bots []BotInfo, id BotID) BotInfo {
	t.Helper()
	for _, b := range bots {
		if b.ID == id {
			return b
		}
	}
	t.Fatalf("bot %s not found in %+v", id, bots)
	return BotInfo{}
}

func countState(bots []BotInfo, state string) int {
	n := 0
	for _, b := range bots {
		if b.State == state {
			n++
		}
	}
	return n
}

func vec(x, y int) *tilemap.Vec2 { return &tilemap.Vec2{X: x, Y: y} }

func dirPtr(d tilemap.Dir) *tilemap.Dir { return &d }

func mapPtr(rows ...string) *tilemap.Map {
	m := tilemap.Parse(rows...)
	return &m
}
