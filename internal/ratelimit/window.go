package ratelimit

import (
	"sync"
	"time"
)

// WindowLimiter implements per-identity fixed-window rate limiting for the
// server-side proxies. State is in process memory only; it does not survive
// a restart and is not shared across instances (best-effort, not exact).
type WindowLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	clients map[string]*windowState
	now     func() time.Time
}

type windowState struct {
	count       int
	windowStart time.Time
}

func NewWindowLimiter(max int, window time.Duration) *WindowLimiter {
	return &WindowLimiter{
		max:     max,
		window:  window,
		clients: make(map[string]*windowState),
		now:     time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (l *WindowLimiter) SetClock(now func() time.Time) { l.now = now }

// Admit reports whether identity may proceed, counting the request if so.
func (l *WindowLimiter) Admit(identity string) bool {
	ok, _ := l.AdmitWithRetry(identity)
	return ok
}

// AdmitWithRetry additionally returns, on denial, how many whole seconds
// remain until the identity's window resets.
func (l *WindowLimiter) AdmitWithRetry(identity string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st, ok := l.clients[identity]
	if !ok || now.Sub(st.windowStart) >= l.window {
		l.clients[identity] = &windowState{count: 1, windowStart: now}
		return true, 0
	}
	if st.count < l.max {
		st.count++
		return true, 0
	}
	retry := int((st.windowStart.Add(l.window).Sub(now) + time.Second - 1) / time.Second)
	if retry < 1 {
		retry = 1
	}
	return false, retry
}

// Sweep removes identities whose window expired more than one full window
// ago, bounding table memory between bursts.
func (l *WindowLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for identity, st := range l.clients {
		if now.Sub(st.windowStart) > 2*l.window {
			delete(l.clients, identity)
			removed++
		}
	}
	return removed
}

// Size returns the number of tracked identities.
func (l *WindowLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
