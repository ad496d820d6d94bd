package web

import (
	"encoding/json"
	"sync"
	"time"
)

// Store maintains the current run state as observed through the event
// stream. Safe for concurrent access.
type Store struct {
	mu             sync.RWMutex
	connectedCount int // number of connected scheduler processes
	status         string
	startedAt      time.Time
	windowSize     int
	totalItems     int
	slots          map[int]*SlotState
	completed      int
	failed         int
	blocked        int
}

// NewStore creates an empty state store in "waiting" status.
func NewStore() *Store {
	return &Store{
		status: "waiting",
		slots:  make(map[int]*SlotState),
	}
}

// HandleEvent processes an event and updates state accordingly.
// Thread-safe. Event type determines the transition:
//   - run.started: status="running", records window_size/total_items
//   - slot.fill: a slot picked up a new item
//   - engine.invoke.started / engine.switch / merge.result: phase text
//     for the occupying slot
//   - slot.done: slot reached a terminal status; counters updated
//   - run.completed / run.failed: terminal run status
func (s *Store) HandleEvent(e *Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e.Type {
	case "run.started":
		var payload struct {
			WindowSize int `json:"window_size"`
			TotalItems int `json:"total_items"`
		}
		_ = json.Unmarshal(e.Payload, &payload)
		s.status = "running"
		s.startedAt = e.Time
		s.windowSize = payload.WindowSize
		s.totalItems = payload.TotalItems

	case "slot.fill":
		var payload struct {
			Number int    `json:"number"`
			Title  string `json:"title"`
			Domain string `json:"domain"`
		}
		_ = json.Unmarshal(e.Payload, &payload)
		idx := indexOf(e.Slot)
		s.slots[idx] = &SlotState{
			Index:     idx,
			ItemID:    e.Item,
			Number:    payload.Number,
			Title:     payload.Title,
			Domain:    payload.Domain,
			Status:    "running",
			StartedAt: e.Time,
		}

	case "engine.invoke.started":
		if slot := s.slotAt(e.Slot); slot != nil {
			slot.Phase = "invoking engine"
		}

	case "engine.switch":
		var payload struct {
			To string `json:"to"`
		}
		_ = json.Unmarshal(e.Payload, &payload)
		if slot := s.slotAt(e.Slot); slot != nil {
			slot.Phase = "falling back to " + payload.To
		}

	case "merge.result":
		if slot := s.slotAt(e.Slot); slot != nil {
			slot.Status = "merging"
			slot.Phase = "merging"
		}

	case "slot.done":
		var payload struct {
			Status string `json:"status"`
		}
		_ = json.Unmarshal(e.Payload, &payload)
		if slot := s.slotAt(e.Slot); slot != nil {
			slot.Status = payload.Status
			slot.Phase = ""
			slot.Error = e.Error
		}
		switch payload.Status {
		case "done":
			s.completed++
		case "blocked":
			s.blocked++
		default:
			s.failed++
		}

	case "run.completed":
		s.status = "completed"

	case "run.failed":
		s.status = "failed"
	}
}

func indexOf(slot *int) int {
	if slot == nil {
		return -1
	}
	return *slot
}

func (s *Store) slotAt(slot *int) *SlotState {
	if slot == nil {
		return nil
	}
	return s.slots[*slot]
}

// Snapshot returns the current state as a StateSnapshot. Thread-safe for
// concurrent reads.
func (s *Store) Snapshot() *StateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slots := make([]*SlotState, 0, len(s.slots))
	active := 0
	for _, slot := range s.slots {
		slotCopy := *slot
		slots = append(slots, &slotCopy)
		if slotCopy.Status == "running" || slotCopy.Status == "merging" {
			active++
		}
	}

	snapshot := &StateSnapshot{
		Connected:  s.connectedCount > 0,
		Status:     s.status,
		WindowSize: s.windowSize,
		TotalItems: s.totalItems,
		Slots:      slots,
		Summary: StateSummary{
			Total:     s.totalItems,
			Active:    active,
			Completed: s.completed,
			Failed:    s.failed,
			Blocked:   s.blocked,
		},
	}

	if !s.startedAt.IsZero() {
		snapshot.StartedAt = &s.startedAt
	}

	return snapshot
}

// SetConnected updates the connection status. Called when the scheduler
// process connects to / disconnects from the Unix socket. Uses reference
// counting to support multiple concurrent runs pushing to the same
// server instance.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if connected {
		s.connectedCount++
	} else if s.connectedCount > 0 {
		s.connectedCount--
	}
}

// Reset clears all state for a new run. Returns the store to "waiting"
// status with no slots.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectedCount = 0
	s.status = "waiting"
	s.startedAt = time.Time{}
	s.windowSize = 0
	s.totalItems = 0
	s.slots = make(map[int]*SlotState)
	s.completed = 0
	s.failed = 0
	s.blocked = 0
}
