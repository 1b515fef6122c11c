package world

import "time"

type ClockMode uint8

const (
	// ClockAuto paces ticks in real time.
	ClockAuto ClockMode = iota
	// ClockManual only ticks when a Step request arrives.
	ClockManual
)

const DefaultTickInterval = time.Second / 64

type Clock struct {
	Mode     ClockMode
	Interval time.Duration
	// SubTicks is the number of bot turns run per outer tick.
	SubTicks int
}

func AutoClock(interval time.Duration) Clock {
	return Clock{Mode: ClockAuto, Interval: interval, SubTicks: 1}
}

func ManualClock() Clock {
	return Clock{Mode: ClockManual, SubTicks: 1}
}

func (c *Clock) applyDefaults() {
	if c.Mode == ClockAuto && c.Interval <= 0 {
		c.Interval = DefaultTickInterval
	}
	if c.SubTicks <= 0 {
		c.SubTicks = 1
	}
}

func (c Clock) String() string {
	if c.Mode == ClockManual {
		return "manual"
	}
	return "auto(" + c.Interval.String() + ")"
}

// metronome paces the world loop in auto mode. An overrun moves the
// deadline to now, so at most one late tick is ever owed.
type metronome struct {
	deadline time.Time
	now      func() time.Time
	sleep    func(time.Duration)
}

func newMetronome() *metronome {
	return &metronome{now: time.Now, sleep: time.Sleep}
}

func (m *metronome) tick(c Clock) {
	if c.Mode != ClockAuto {
		return
	}
	now := m.now()
	if m.deadline.IsZero() {
		m.deadline = now
	}
	m.deadline = m.deadline.Add(c.Interval)
	if m.deadline.Before(now) {
		m.deadline = now
	}
}

func (m *metronome) wait(c Clock) {
	if c.Mode != ClockAuto {
		return
	}
	if d := m.deadline.Sub(m.now()); d > 0 {
		m.sleep(d)
	}
}
