package conversation

import (
	"sync"

	"github.com/jmcpheron/jcn-bot/internal/model/chat"
)

// Store keeps ordered per-principal conversation histories for private chats.
// Group chats never store role history here; their only cross-turn state is
// the engagement gate's activity window.
//
// Each principal owns its own lock, so a append for one user never waits on
// another's. The outer mutex guards only the principal map itself.
type Store struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

type entry struct {
	mu    sync.Mutex
	turns []chat.Turn
}

// NewStore returns an empty in-memory store.
func NewStore() *Store {
	return &Store{entries: make(map[int64]*entry)}
}

func (s *Store) entry(p chat.Principal) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[p.ID]
	if !ok {
		e = &entry{}
		s.entries[p.ID] = e
	}
	return e
}

// History returns a copy of the principal's ordered turns, empty if none.
func (s *Store) History(p chat.Principal) []chat.Turn {
	e := s.entry(p)
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]chat.Turn(nil), e.turns...)
}

// Append adds turns to the principal's history in one atomic step. A turn
// that produced both a function exchange and trailing text lands as a single
// append so concurrent readers never observe a half-written turn.
func (s *Store) Append(p chat.Principal, turns ...chat.Turn) {
	if len(turns) == 0 {
		return
	}
	e := s.entry(p)
	e.mu.Lock()
	e.turns = append(e.turns, turns...)
	e.mu.Unlock()
}

// Clear drops the principal's history; the next turn starts a fresh session.
func (s *Store) Clear(p chat.Principal) {
	s.mu.Lock()
	e, ok := s.entries[p.ID]
	if ok {
		delete(s.entries, p.ID)
	}
	s.mu.Unlock()

	if ok {
		// Let an in-flight append finish before the slice is dropped.
		e.mu.Lock()
		e.turns = nil
		e.mu.Unlock()
	}
}
