package world

import (
	"testing"
	"time"
)

func TestMetronome_SleepsRemainingInterval(t *testing.T) {
	now := time.Unix(100, 0)
	var slept []time.Duration
	m := &metronome{
		now:   func() time.Time { return now },
		sleep: func(d time.Duration) { slept = append(slept, d); now = now.Add(d) },
	}
	c := AutoClock(10 * time.Millisecond)

	m.tick(c)
	now = now.Add(3 * time.Millisecond)
	m.wait(c)
	if len(slept) != 1 || slept[0] != 7*time.Millisecond {
		t.Fatalf("slept=%v want [7ms]", slept)
	}
}

func TestMetronome_OverrunHasNoBacklog(t *testing.T) {
	now := time.Unix(100, 0)
	var slept []time.Duration
	m := &metronome{
		now:   func() time.Time { return now },
		sleep: func(d time.Duration) { slept = append(slept, d); now = now.Add(d) },
	}
	c := AutoClock(10 * time.Millisecond)

	m.tick(c)
	now = now.Add(55 * time.Millisecond)
	m.wait(c)
	m.tick(c)
	m.wait(c)
	if len(slept) != 0 {
		t.Fatalf("overrun should start the next tick immediately, slept=%v", slept)
	}

	m.tick(c)
	m.wait(c)
	if len(slept) != 1 || slept[0] != 10*time.Millisecond {
		t.Fatalf("slept=%v want [10ms]", slept)
	}
}

func TestMetronome_ManualNeverSleeps(t *testing.T) {
	m := &metronome{
		now:   time.Now,
		sleep: func(time.Duration) { t.Fatalf("manual clock must not sleep") },
	}
	c := ManualClock()
	m.tick(c)
	m.wait(c)
}
