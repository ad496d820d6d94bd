package web

import (
	"encoding/json"
	"os"
	"time"
)

// Event is the wire representation of a scheduler event, decoded from
// newline-delimited JSON read off the pusher's Unix socket.
type Event struct {
	Type    string          `json:"type"`
	Time    time.Time       `json:"time"`
	RunID   string          `json:"run_id,omitempty"`
	Item    string          `json:"item,omitempty"`
	Slot    *int            `json:"slot,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// WireEvent mirrors events.Event for socket transmission, with Payload
// left as `any` so the pusher side only ever needs to encode, not decode.
type WireEvent struct {
	Type    string    `json:"type"`
	Time    time.Time `json:"time"`
	RunID   string    `json:"run_id,omitempty"`
	Item    string    `json:"item,omitempty"`
	Slot    *int      `json:"slot,omitempty"`
	Payload any       `json:"payload,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// SlotState tracks one scheduler slot's current occupant for browser
// display (spec.md's Run State, slot-shaped).
type SlotState struct {
	Index     int       `json:"index"`
	ItemID    string    `json:"itemId"`
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Domain    string    `json:"domain"`
	Status    string    `json:"status"` // "running", "merging", "done", "failed", "blocked"
	Phase     string    `json:"phase,omitempty"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"startedAt,omitempty"`
}

// StateSnapshot is the response for GET /api/state.
type StateSnapshot struct {
	Connected  bool         `json:"connected"`
	Status     string       `json:"status"` // "waiting", "running", "completed", "failed"
	StartedAt  *time.Time   `json:"startedAt,omitempty"`
	WindowSize int          `json:"windowSize,omitempty"`
	TotalItems int          `json:"totalItems,omitempty"`
	Slots      []*SlotState `json:"slots"`
	Summary    StateSummary `json:"summary"`
}

// StateSummary provides aggregate counts across the run.
type StateSummary struct {
	Total     int `json:"total"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Blocked   int `json:"blocked"`
}

// Config holds web server configuration.
type Config struct {
	// Addr is the HTTP listen address (default ":8080").
	Addr string

	// SocketPath is the Unix socket path the scheduler process pushes
	// events to (default DefaultSocketPath()).
	SocketPath string
}

// PusherConfig holds configuration for SocketPusher.
type PusherConfig struct {
	// SocketPath is the Unix socket path to connect to.
	SocketPath string

	// BufferSize is the event channel capacity (default: 1000).
	BufferSize int

	// WriteTimeout is the deadline for socket writes (default: 5s).
	WriteTimeout time.Duration

	// ReconnectBackoff is the initial retry delay (default: 100ms).
	ReconnectBackoff time.Duration

	// MaxReconnectBackoff is the maximum retry delay (default: 5s).
	MaxReconnectBackoff time.Duration
}

// DefaultPusherConfig returns sensible defaults.
func DefaultPusherConfig() PusherConfig {
	return PusherConfig{
		SocketPath:          DefaultSocketPath(),
		BufferSize:          1000,
		WriteTimeout:        5 * time.Second,
		ReconnectBackoff:    100 * time.Millisecond,
		MaxReconnectBackoff: 5 * time.Second,
	}
}

// DefaultSocketPath returns the default Unix socket path: honors
// $XDG_RUNTIME_DIR/foreman/web.sock if set, otherwise ~/.foreman/web.sock.
func DefaultSocketPath() string {
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		return xdg + "/foreman/web.sock"
	}
	home, _ := os.UserHomeDir()
	return home + "/.foreman/web.sock"
}
