// Package dialogue keeps at most one outstanding follow-up question per user.
//
// A slot is set when the assistant asks the user something (currently only
// "what task should I add?") and is consumed by the next message from that
// user, whatever it says. Take is the only way to consume a slot and is a
// single indivisible read-and-clear, so two concurrent messages can never both
// claim the same slot.
package dialogue

import (
	"sync"
	"time"
)

// SlotType identifies the question a slot is waiting on.
type SlotType string

// AwaitingTask means the next message is the text of a task to add.
const AwaitingTask SlotType = "awaiting_task"

// Slot is a pending follow-up for one user.
type Slot struct {
	UserID int64
	Type   SlotType
	SetAt  time.Time
}

// Options configures a Store.
type Options struct {
	// TTL expires slots that have not been answered in time. Zero keeps them
	// until they are taken.
	TTL time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Store holds pending slots keyed by user id. It is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	slots map[int64]Slot
	ttl   time.Duration
	now   func() time.Time
}

// NewStore returns an empty Store.
func NewStore(opts Options) *Store {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		slots: make(map[int64]Slot),
		ttl:   opts.TTL,
		now:   now,
	}
}

// live returns the user's slot if present and not expired, dropping it when
// expired. Callers must hold s.mu.
func (s *Store) live(userID int64) (Slot, bool) {
	slot, ok := s.slots[userID]
	if !ok {
		return Slot{}, false
	}
	if s.ttl > 0 && s.now().Sub(slot.SetAt) >= s.ttl {
		delete(s.slots, userID)
		return Slot{}, false
	}
	return slot, true
}

// Peek returns the user's slot without consuming it.
func (s *Store) Peek(userID int64) (Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live(userID)
}

// Take returns and removes the user's slot in one step.
func (s *Store) Take(userID int64) (Slot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.live(userID)
	if ok {
		delete(s.slots, userID)
	}
	return slot, ok
}

// Set records a slot for the user, replacing any existing one.
func (s *Store) Set(userID int64, t SlotType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[userID] = Slot{UserID: userID, Type: t, SetAt: s.now()}
}

// Len returns the number of users with a live slot.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id := range s.slots {
		if _, ok := s.live(id); ok {
			n++
		}
	}
	return n
}
