package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/foreman-run/foreman/internal/engine"
)

// SlotStatus is a slot's lifecycle state (§4.H).
type SlotStatus string

const (
	SlotPending SlotStatus = "pending"
	SlotRunning SlotStatus = "running"
	SlotMerging SlotStatus = "merging"
	SlotDone    SlotStatus = "done"
	SlotFailed  SlotStatus = "failed"
	SlotBlocked SlotStatus = "blocked"
)

// IsActive reports whether the status counts against the window
// (§4.H: "A slot is 'active' while in running or merging").
func (s SlotStatus) IsActive() bool {
	return s == SlotRunning || s == SlotMerging
}

// IsTerminal reports whether the status is final for the slot.
func (s SlotStatus) IsTerminal() bool {
	return s == SlotDone || s == SlotFailed || s == SlotBlocked
}

// validSlotTransitions enumerates the legal status moves; anything not
// listed here is a programmer error, not a runtime condition to recover from.
var validSlotTransitions = map[SlotStatus][]SlotStatus{
	SlotPending: {SlotRunning, SlotBlocked, SlotFailed},
	SlotRunning: {SlotRunning, SlotMerging, SlotFailed, SlotBlocked},
	SlotMerging: {SlotRunning, SlotDone, SlotFailed, SlotBlocked},
	SlotDone:    {},
	SlotFailed:  {},
	SlotBlocked: {},
}

// canTransition reports whether from -> to is a legal slot status move.
func canTransition(from, to SlotStatus) bool {
	for _, allowed := range validSlotTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Slot tracks one item's journey through the attempt loop. A Slot exists
// only while its item is occupying one of the scheduler's window_size
// concurrent positions.
type Slot struct {
	mu sync.Mutex

	Index  int
	Item   PendingItem
	Status SlotStatus

	Attempt      int
	WorktreePath string
	Branch       string
	StartedAt    time.Time

	lastWarnAt time.Time

	// chain is the fallback chain for the attempt currently in flight, if
	// any, registered so the supervisor (timeouts) and Kill (shutdown) can
	// terminate it without waiting on the slot's own goroutine.
	chain *engine.Chain
}

// newSlot creates a pending slot at index for item.
func newSlot(index int, item PendingItem) *Slot {
	return &Slot{Index: index, Item: item, Status: SlotPending}
}

// setStatus validates and applies a status transition.
func (s *Slot) setStatus(to SlotStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !canTransition(s.Status, to) {
		panic(fmt.Sprintf("scheduler: invalid slot transition %s -> %s", s.Status, to))
	}
	s.Status = to
}

// snapshotStatus returns the slot's current status under lock.
func (s *Slot) snapshotStatus() SlotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status
}

// registerChain records the active fallback chain so the supervisor and
// shutdown path can kill it; passing nil unregisters.
func (s *Slot) registerChain(c *engine.Chain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chain = c
}

// hasActiveChain reports whether the slot currently has an engine chain
// registered, i.e. an attempt is in flight.
func (s *Slot) hasActiveChain() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chain != nil
}

// killActiveChain kills whatever engine chain the slot currently has
// registered. Safe to call whether or not an attempt is in flight.
func (s *Slot) killActiveChain() {
	s.mu.Lock()
	c := s.chain
	s.mu.Unlock()
	if c != nil {
		c.KillAll()
	}
}

// age returns how long the slot has been running since StartedAt.
func (s *Slot) age(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}
