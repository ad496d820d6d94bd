package events

import (
	"fmt"
	"strings"
	"time"
)

// Event represents a single occurrence in the scheduler's lifecycle.
type Event struct {
	// Time is when the event occurred (set by the bus on Emit).
	Time time.Time `json:"time"`

	// Type identifies what happened.
	Type EventType `json:"type"`

	// RunID identifies which run this event belongs to, so a single event
	// log (or store table) can hold the history of many runs.
	RunID string `json:"run_id,omitempty"`

	// Item is the work item ID this event relates to (empty for run-wide events).
	Item string `json:"item,omitempty"`

	// Slot is the slot index this event relates to, if any.
	Slot *int `json:"slot,omitempty"`

	// Payload contains event-specific data (shape varies by Type).
	Payload any `json:"payload,omitempty"`

	// Error contains an error message if this is a failure event.
	Error string `json:"error,omitempty"`
}

// EventType is a string constant identifying the event category.
type EventType string

// Run lifecycle events.
const (
	RunStarted   EventType = "run.started"
	RunCompleted EventType = "run.completed"
	RunFailed    EventType = "run.failed"
)

// Canonical variant set named by the spec: slot-fill, slot-done,
// engine-switch, merge-result, batch-complete, dashboard-snapshot,
// engine-kill.
const (
	SlotFill         EventType = "slot.fill"          // a slot was assigned a work item (before its workspace is created)
	SlotDone         EventType = "slot.done"           // a slot's attempt pipeline reached a terminal outcome
	EngineSwitch     EventType = "engine.switch"       // the fallback chain moved to the next engine for a slot
	EngineKill       EventType = "engine.kill"         // an engine subprocess was killed (hard slot timeout, shutdown)
	MergeResult      EventType = "merge.result"        // the integration manager finished a merge attempt
	BatchComplete    EventType = "batch.complete"      // the scheduler drained its window with no more eligible items
	DashboardSnapshot EventType = "dashboard.snapshot" // periodic full-state snapshot for UI consumers
)

// Engine invocation sub-events (finer-grained than slot.fill/slot.done,
// consumed by the TUI to render live phase text).
const (
	EngineInvokeStarted EventType = "engine.invoke.started"
	EngineInvokeDone    EventType = "engine.invoke.done"
)

// Reaper/coordinator events.
const (
	ReaperSweepStarted EventType = "reaper.sweep.started"
	ReaperOrphanKilled EventType = "reaper.orphan.killed"
	ReaperSweepDone    EventType = "reaper.sweep.done"
)

// NewEvent creates an event with the given type and item ID.
func NewEvent(eventType EventType, item string) Event {
	return Event{Type: eventType, Item: item}
}

// WithSlot returns a copy of the event with the slot index set.
func (e Event) WithSlot(slot int) Event {
	e.Slot = &slot
	return e
}

// WithRunID returns a copy of the event with the run ID set.
func (e Event) WithRunID(runID string) Event {
	e.RunID = runID
	return e
}

// WithPayload returns a copy of the event with the payload set.
func (e Event) WithPayload(payload any) Event {
	e.Payload = payload
	return e
}

// WithError returns a copy of the event with the error message set.
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Error = err.Error()
	}
	return e
}

// IsFailure returns true if this is a failure event type.
func (e Event) IsFailure() bool {
	return strings.HasSuffix(string(e.Type), ".failed") || e.Error != ""
}

// String returns a human-readable representation of the event.
func (e Event) String() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s]", e.Type))

	if e.Item != "" {
		parts = append(parts, e.Item)
	}
	if e.Slot != nil {
		parts = append(parts, fmt.Sprintf("slot=#%d", *e.Slot))
	}
	if e.Error != "" {
		parts = append(parts, "error="+e.Error)
	}

	return strings.Join(parts, " ")
}
