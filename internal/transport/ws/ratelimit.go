package ws

import (
	"net"
	"strings"
	"sync"
	"time"
)

// windowLimiter allows max hits per key within a fixed window that starts at
// the first hit after the previous window expired.
type windowLimiter struct {
	window time.Duration
	max    int
	now    func() time.Time

	mu      sync.Mutex
	windows map[string]*rateWindow
	sweepAt time.Time
}

type rateWindow struct {
	start time.Time
	count int
}

func newWindowLimiter(window time.Duration, max int) *windowLimiter {
	return &windowLimiter{
		window:  window,
		max:     max,
		now:     time.Now,
		windows: map[string]*rateWindow{},
	}
}

// Allow counts one hit for key. When the key is over its limit it returns
// false and the time until the window resets.
func (l *windowLimiter) Allow(key string) (bool, time.Duration) {
	if l == nil || l.window <= 0 || l.max <= 0 {
		return true, 0
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.sweepAt) {
		for k, w := range l.windows {
			if now.Sub(w.start) >= l.window {
				delete(l.windows, k)
			}
		}
		l.sweepAt = now.Add(l.window)
	}

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.window {
		w = &rateWindow{start: now}
		l.windows[key] = w
	}
	w.count++
	if w.count <= l.max {
		return true, 0
	}
	return false, w.start.Add(l.window).Sub(now)
}

func remoteHost(remoteAddr string) string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	return strings.TrimSuffix(host, "]")
}
