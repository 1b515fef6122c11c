package world

import (
	"context"
	"sync"

	"kartoffels.dev/internal/sim/tilemap"
)

const DefaultEventCapacity = 128

// Event is one of the event structs below.
type Event interface {
	EventType() string
}

type BotCreated struct {
	ID BotID `json:"id"`
}

type BotSpawned struct {
	ID  BotID        `json:"id"`
	Pos tilemap.Vec2 `json:"pos"`
	Dir tilemap.Dir  `json:"dir"`
}

type BotKilled struct {
	ID     BotID  `json:"id"`
	Reason string `json:"reason"`
	Killer *BotID `json:"killer,omitempty"`
}

type BotDestroyed struct {
	ID BotID `json:"id"`
}

type ConnectionCreated struct {
	ConnID uint64 `json:"conn_id"`
	Bot    *BotID `json:"bot,omitempty"`
}

type ShutdownRequested struct{}

type RoundEnded struct {
	Winner *BotID           `json:"winner,omitempty"`
	Scores map[BotID]uint64 `json:"scores"`
}

func (BotCreated) EventType() string        { return "bot_created" }
func (BotSpawned) EventType() string        { return "bot_spawned" }
func (BotKilled) EventType() string         { return "bot_killed" }
func (BotDestroyed) EventType() string      { return "bot_destroyed" }
func (ConnectionCreated) EventType() string { return "connection_created" }
func (ShutdownRequested) EventType() string { return "shutdown_requested" }
func (RoundEnded) EventType() string        { return "round_ended" }

// EventLetter stamps an event with the tick it happened on.
type EventLetter struct {
	Tick  uint64
	Event Event
}

// EventStream receives every event published after it was created. A full
// buffer drops the oldest letter.
type EventStream struct {
	ch        chan EventLetter
	done      chan struct{}
	closeOnce sync.Once
}

func newEventStream(capacity int) *EventStream {
	return &EventStream{
		ch:   make(chan EventLetter, capacity),
		done: make(chan struct{}),
	}
}

// C is closed once the world shuts down or the stream is closed.
func (s *EventStream) C() <-chan EventLetter { return s.ch }

// Next waits for the next letter. It returns ErrWorldClosed after the
// stream has been closed and drained.
func (s *EventStream) Next(ctx context.Context) (EventLetter, error) {
	select {
	case l, ok := <-s.ch:
		if !ok {
			return EventLetter{}, ErrWorldClosed
		}
		return l, nil
	case <-ctx.Done():
		return EventLetter{}, ctx.Err()
	}
}

// Close unsubscribes. The world prunes the stream on its next publish.
func (s *EventStream) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *EventStream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// eventBus is only touched by the world goroutine.
type eventBus struct {
	capacity int
	streams  []*EventStream
}

func (b *eventBus) enabled() bool { return b.capacity > 0 }

func (b *eventBus) subscribe() (*EventStream, error) {
	if !b.enabled() {
		return nil, ErrEventsDisabled
	}
	s := newEventStream(b.capacity)
	b.streams = append(b.streams, s)
	return s, nil
}

func (b *eventBus) publish(l EventLetter) {
	live := b.streams[:0]
	for _, s := range b.streams {
		if s.closed() {
			close(s.ch)
			continue
		}
		sendLatest(s.ch, l)
		live = append(live, s)
	}
	for i := len(live); i < len(b.streams); i++ {
		b.streams[i] = nil
	}
	b.streams = live
}

func (b *eventBus) len() int { return len(b.streams) }

func (b *eventBus) closeAll() {
	for _, s := range b.streams {
		close(s.ch)
	}
	b.streams = nil
}

// sendLatest never blocks: when ch is full the oldest value is dropped to
// make room.
func sendLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
