package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/foreman-run/foreman/internal/events"
)

// Bridge connects the scheduler's event bus to the bubbletea program.
type Bridge struct {
	program *tea.Program
}

// NewBridge creates a new bridge for the given program.
func NewBridge(program *tea.Program) *Bridge {
	return &Bridge{program: program}
}

// Handler returns an event handler suitable for events.Bus.Subscribe.
func (b *Bridge) Handler() events.Handler {
	return func(evt events.Event) {
		if msg := b.eventToMsg(evt); msg != nil {
			b.program.Send(msg)
		}
	}
}

func payloadInt(evt events.Event, key string) int {
	if payload, ok := evt.Payload.(map[string]any); ok {
		switch v := payload[key].(type) {
		case int:
			return v
		case float64:
			return int(v)
		}
	}
	return 0
}

func payloadString(evt events.Event, key string) string {
	if payload, ok := evt.Payload.(map[string]any); ok {
		if v, ok := payload[key].(string); ok {
			return v
		}
	}
	return ""
}

func slotIndex(evt events.Event) int {
	if evt.Slot != nil {
		return *evt.Slot
	}
	return -1
}

func (b *Bridge) eventToMsg(evt events.Event) tea.Msg {
	switch evt.Type {
	case events.RunStarted:
		return RunStartedMsg{
			TotalItems: payloadInt(evt, "total_items"),
			WindowSize: payloadInt(evt, "window_size"),
		}

	case events.RunCompleted, events.RunFailed:
		return DoneMsg{}

	case events.SlotFill:
		return SlotFillMsg{
			Slot:   slotIndex(evt),
			ItemID: evt.Item,
			Number: payloadInt(evt, "number"),
			Title:  payloadString(evt, "title"),
			Domain: payloadString(evt, "domain"),
		}

	case events.SlotDone:
		return SlotDoneMsg{
			Slot:   slotIndex(evt),
			Status: payloadString(evt, "status"),
			Error:  evt.Error,
		}

	case events.EngineInvokeStarted:
		return SlotPhaseMsg{
			Slot:      slotIndex(evt),
			Phase:     "invoking engine",
			PhaseIcon: IconEngine,
		}

	case events.EngineSwitch:
		to := payloadString(evt, "to")
		return SlotPhaseMsg{
			Slot:      slotIndex(evt),
			Phase:     "falling back to " + to,
			PhaseIcon: IconEngineSwitch,
		}

	case events.MergeResult:
		return SlotPhaseMsg{
			Slot:      slotIndex(evt),
			Phase:     "merging",
			PhaseIcon: IconMerge,
		}

	default:
		return nil
	}
}

// SendDone sends a DoneMsg to the program.
func (b *Bridge) SendDone() {
	b.program.Send(DoneMsg{})
}

// SendQuit sends a QuitMsg to the program.
func (b *Bridge) SendQuit() {
	b.program.Send(QuitMsg{})
}
