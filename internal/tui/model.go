package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// SlotState tracks the state of one scheduler slot in the TUI.
type SlotState struct {
	Index     int
	ItemID    string
	Number    int
	Title     string
	Domain    string
	Attempt   int
	Phase     string
	PhaseIcon string
}

// Model is the bubbletea model for the dashboard.
type Model struct {
	// Configuration
	TotalItems int
	WindowSize int
	Styles     Styles

	// State
	ActiveSlots    map[int]*SlotState
	CompletedCount int
	FailedCount    int
	BlockedCount   int
	StartTime      time.Time
	LogLines       []string
	LogLimit       int
	ShowLogs       bool
	Width          int
	Height         int

	// Control
	Quitting bool
	Done     bool
}

// NewModel creates a new dashboard model.
func NewModel(totalItems, windowSize int) *Model {
	return &Model{
		TotalItems:  totalItems,
		WindowSize:  windowSize,
		Styles:      DefaultStyles(),
		ActiveSlots: make(map[int]*SlotState),
		StartTime:   time.Now(),
		LogLimit:    500,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(tickCmd())
}

// TickMsg is sent every second to update the timer.
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// DoneMsg signals the run finished and the TUI should exit.
type DoneMsg struct{}

// QuitMsg signals the user requested quit (q or Ctrl+C).
type QuitMsg struct{}

// RunStartedMsg carries the window size and total item count once known.
type RunStartedMsg struct {
	TotalItems int
	WindowSize int
}

// SlotFillMsg indicates a slot was assigned a work item.
type SlotFillMsg struct {
	Slot   int
	ItemID string
	Number int
	Title  string
	Domain string
}

// SlotPhaseMsg indicates a running slot moved to a new phase (engine
// invocation, engine switch, merging).
type SlotPhaseMsg struct {
	Slot      int
	Attempt   int
	Phase     string
	PhaseIcon string
}

// SlotDoneMsg indicates a slot reached a terminal outcome.
type SlotDoneMsg struct {
	Slot   int
	Status string // "done", "failed", "blocked"
	Error  string
}
