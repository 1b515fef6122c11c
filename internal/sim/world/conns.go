package world

import (
	"context"
	"sync"
)

const connCapacity = 32

// ConnUpdate is what a joined connection receives after every tick.
type ConnUpdate struct {
	Snapshot *Snapshot
	// Bot is the followed bot, nil when the connection follows nothing or
	// the bot no longer exists.
	Bot *BotInfo
}

// Conn is a per-connection update feed, optionally following one bot.
type Conn struct {
	ID  uint64
	Bot *BotID

	ch        chan ConnUpdate
	done      chan struct{}
	closeOnce sync.Once
}

func newConn(id uint64, bot *BotID) *Conn {
	return &Conn{
		ID:   id,
		Bot:  bot,
		ch:   make(chan ConnUpdate, connCapacity),
		done: make(chan struct{}),
	}
}

func (c *Conn) C() <-chan ConnUpdate { return c.ch }

func (c *Conn) Next(ctx context.Context) (ConnUpdate, error) {
	select {
	case u, ok := <-c.ch:
		if !ok {
			return ConnUpdate{}, ErrWorldClosed
		}
		return u, nil
	case <-ctx.Done():
		return ConnUpdate{}, ctx.Err()
	}
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (w *World) feedConns(snap *Snapshot) {
	if len(w.conns) == 0 {
		return
	}
	live := w.conns[:0]
	for _, c := range w.conns {
		if c.closed() {
			close(c.ch)
			continue
		}
		u := ConnUpdate{Snapshot: snap}
		if c.Bot != nil {
			if info, ok := w.botInfo(*c.Bot); ok {
				u.Bot = &info
			}
		}
		sendLatest(c.ch, u)
		live = append(live, c)
	}
	for i := len(live); i < len(w.conns); i++ {
		w.conns[i] = nil
	}
	w.conns = live
}

func (w *World) closeConns() {
	for _, c := range w.conns {
		close(c.ch)
	}
	w.conns = nil
}
