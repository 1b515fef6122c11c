package world

import (
	"errors"
	"testing"
)

func TestEvents_FanOutWithoutReplay(t *testing.T) {
	h := startWorld(t, Config{Events: true})

	a, err := h.Listen(testCtx(t))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	first := mustCreateBot(t, h, "idle", nil)

	b, err := h.Listen(testCtx(t))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	second := mustCreateBot(t, h, "idle", nil)

	for _, want := range []BotID{first, second} {
		l, err := a.Next(testCtx(t))
		if err != nil {
			t.Fatalf("a.Next: %v", err)
		}
		if ev, ok := l.Event.(BotCreated); !ok || ev.ID != want {
			t.Fatalf("a: got %+v want BotCreated(%s)", l, want)
		}
	}

	l, err := b.Next(testCtx(t))
	if err != nil {
		t.Fatalf("b.Next: %v", err)
	}
	if ev, ok := l.Event.(BotCreated); !ok || ev.ID != second {
		t.Fatalf("b: got %+v want BotCreated(%s)", l, second)
	}
}

func TestEvents_Disabled(t *testing.T) {
	h := startWorld(t, Config{})
	if _, err := h.Listen(testCtx(t)); !errors.Is(err, ErrEventsDisabled) {
		t.Fatalf("expected ErrEventsDisabled, got %v", err)
	}
}

func TestEvents_FullBufferDropsOldest(t *testing.T) {
	h := startWorld(t, Config{Events: true, EventCapacity: 2})
	s, err := h.Listen(testCtx(t))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	var ids []BotID
	for i := 0; i < 3; i++ {
		ids = append(ids, mustCreateBot(t, h, "idle", nil))
	}
	mustBots(t, h)

	if n := len(s.C()); n != 2 {
		t.Fatalf("buffered=%d want 2", n)
	}
	for _, want := range ids[1:] {
		l, err := s.Next(testCtx(t))
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if ev := l.Event.(BotCreated); ev.ID != want {
			t.Fatalf("got %s want %s", ev.ID, want)
		}
	}
}

func TestEvents_ClosedStreamPruned(t *testing.T) {
	h := startWorld(t, Config{Events: true})
	s, err := h.Listen(testCtx(t))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	mustStep(t, h)
	if m := h.Metrics(); m.Listeners != 1 {
		t.Fatalf("listeners=%d want 1", m.Listeners)
	}

	s.Close()
	mustCreateBot(t, h, "idle", nil)
	mustStep(t, h)
	if m := h.Metrics(); m.Listeners != 0 {
		t.Fatalf("listeners=%d want 0 after close", m.Listeners)
	}
}

func TestEvents_StreamEndsOnShutdown(t *testing.T) {
	h := startWorld(t, Config{Events: true})
	s, err := h.Listen(testCtx(t))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	if err := h.Shutdown(testCtx(t)); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	l, err := s.Next(testCtx(t))
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if _, ok := l.Event.(ShutdownRequested); !ok {
		t.Fatalf("expected ShutdownRequested, got %+v", l)
	}
	if _, err := s.Next(testCtx(t)); !errors.Is(err, ErrWorldClosed) {
		t.Fatalf("expected ErrWorldClosed, got %v", err)
	}
}

func TestSendLatest(t *testing.T) {
	ch := make(chan int, 2)
	for i := 1; i <= 5; i++ {
		sendLatest(ch, i)
	}
	if a, b := <-ch, <-ch; a != 4 || b != 5 {
		t.Fatalf("got %d,%d want 4,5", a, b)
	}
}
