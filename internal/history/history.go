package history

import (
	"encoding/json"
	"sync"
	"time"

	"chat-gateway/internal/i18n"
	"chat-gateway/internal/storage"
)

const (
	// persistLimit caps how many turns survive a page reload.
	persistLimit = 50
	// WireLimit caps how many turns travel with an outbound request.
	WireLimit = 5
)

// Turn is one message in a conversation, tagged user or assistant.
// Transient turns are display-only warning bubbles; they never reach
// persistence or the wire.
type Turn struct {
	Text      string    `json:"text"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`

	transient bool
}

// WireTurn is the role-mapped shape sent to the upstream service.
type WireTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Store holds the ordered conversation for one session and persists the
// most-recent suffix on every append.
type Store struct {
	mu    sync.RWMutex
	turns []Turn
	store storage.Store
	key   string
	now   func() time.Time
}

func NewStore(persist storage.Store, key string) *Store {
	return &Store{store: persist, key: key, now: time.Now}
}

// SetClock overrides the time source. Tests only.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Restore loads prior turns, seeding a language-selected greeting when no
// prior state exists. Called once per session activation.
func (s *Store) Restore(lang i18n.Language) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.store.Load(s.key)
	if err == nil && data != nil {
		var turns []Turn
		if json.Unmarshal(data, &turns) == nil && len(turns) > 0 {
			s.turns = turns
			return s.snapshot()
		}
	}
	s.turns = []Turn{{Text: i18n.Greeting(lang), IsUser: false, Timestamp: s.now()}}
	s.persistLocked()
	return s.snapshot()
}

// Append adds a turn and persists the most-recent suffix.
func (s *Store) Append(text string, isUser bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Text: text, IsUser: isUser, Timestamp: s.now()})
	s.persistLocked()
}

// AppendTransient adds a display-only turn, for warning bubbles that should
// not survive a reload or travel with outbound requests. Later appends keep
// skipping it when they persist.
func (s *Store) AppendTransient(text string, isUser bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Text: text, IsUser: isUser, Timestamp: s.now(), transient: true})
}

// RecentForWire returns the most-recent limit non-transient turns mapped to
// the wire role vocabulary, in original order.
func (s *Store) RecentForWire(limit int) []WireTurn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kept := s.durableLocked()
	start := len(kept) - limit
	if start < 0 {
		start = 0
	}
	out := make([]WireTurn, 0, len(kept)-start)
	for _, t := range kept[start:] {
		role := "assistant"
		if t.IsUser {
			role = "user"
		}
		out = append(out, WireTurn{Role: role, Content: t.Text})
	}
	return out
}

// All returns a copy of the full in-memory sequence.
func (s *Store) All() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// Clear drops all turns and the persisted state.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	_ = s.store.Delete(s.key)
}

func (s *Store) snapshot() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Store) persistLocked() {
	turns := s.durableLocked()
	if len(turns) > persistLimit {
		turns = turns[len(turns)-persistLimit:]
	}
	if data, err := json.Marshal(turns); err == nil {
		_ = s.store.Save(s.key, data)
	}
}

func (s *Store) durableLocked() []Turn {
	out := make([]Turn, 0, len(s.turns))
	for _, t := range s.turns {
		if !t.transient {
			out = append(out, t)
		}
	}
	return out
}
