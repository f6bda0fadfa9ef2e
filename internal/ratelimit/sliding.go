package ratelimit

import (
	"encoding/json"
	"sync"
	"time"

	"chat-gateway/internal/i18n"
	"chat-gateway/internal/storage"
)

// Tier is one sliding-window rule. Multiple tiers compose via AND.
type Tier struct {
	Name   string
	Max    int
	Window time.Duration
}

// DefaultTiers match the browser client's limits, ordered strictest window
// first so the earliest-exhausted tier determines the denial message.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "minute", Max: 8, Window: time.Minute},
		{Name: "ten_minutes", Max: 20, Window: 10 * time.Minute},
		{Name: "day", Max: 50, Window: 24 * time.Hour},
	}
}

// Decision is the outcome of a sliding-limiter check.
type Decision struct {
	Allowed           bool
	Reason            i18n.Bilingual
	RetryAfterSeconds int
}

// SlidingLimiter gates events against a set of tiers, keeping a persisted
// sequence of event timestamps. State mutates only on the allowed path.
type SlidingLimiter struct {
	mu    sync.Mutex
	tiers []Tier
	store storage.Store
	key   string
	now   func() time.Time
}

func NewSlidingLimiter(store storage.Store, key string, tiers []Tier) *SlidingLimiter {
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}
	return &SlidingLimiter{
		tiers: tiers,
		store: store,
		key:   key,
		now:   time.Now,
	}
}

// SetClock overrides the time source. Tests only.
func (l *SlidingLimiter) SetClock(now func() time.Time) { l.now = now }

func (l *SlidingLimiter) largestWindow() time.Duration {
	var max time.Duration
	for _, t := range l.tiers {
		if t.Window > max {
			max = t.Window
		}
	}
	return max
}

func (l *SlidingLimiter) load() []int64 {
	data, err := l.store.Load(l.key)
	if err != nil || data == nil {
		return nil
	}
	var ts []int64
	if err := json.Unmarshal(data, &ts); err != nil {
		// Malformed state starts fresh rather than blocking the user.
		return nil
	}
	return ts
}

func (l *SlidingLimiter) save(ts []int64) error {
	data, err := json.Marshal(ts)
	if err != nil {
		return err
	}
	return l.store.Save(l.key, data)
}

// CheckAndRecord evaluates every tier and, if all pass, records the event.
// Persisted state mutates only on the allowed path; a denied check leaves
// the stored sequence byte-for-byte untouched.
func (l *SlidingLimiter) CheckAndRecord() Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UnixMilli()
	cutoff := now - l.largestWindow().Milliseconds()

	ts := l.load()
	pruned := ts[:0]
	for _, t := range ts {
		if t > cutoff {
			pruned = append(pruned, t)
		}
	}
	ts = pruned

	for _, tier := range l.tiers {
		tierCutoff := now - tier.Window.Milliseconds()
		count := 0
		oldest := int64(0)
		for _, t := range ts {
			if t > tierCutoff {
				// Persisted state is normally ascending, but merged or
				// hand-edited files need not be; take the true minimum.
				if count == 0 || t < oldest {
					oldest = t
				}
				count++
			}
		}
		if count >= tier.Max {
			retryMs := oldest + tier.Window.Milliseconds() - now
			retry := int((retryMs + 999) / 1000)
			if retry < 1 {
				retry = 1
			}
			return Decision{
				Allowed:           false,
				Reason:            i18n.TierMessage(tier.Name),
				RetryAfterSeconds: retry,
			}
		}
	}

	ts = append(ts, now)
	_ = l.save(ts)
	return Decision{Allowed: true}
}

// Recorded returns how many events are currently retained. Tests only.
func (l *SlidingLimiter) Recorded() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.load())
}
