package tui

import tea "github.com/charmbracelet/bubbletea"

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.Quitting = true
			return m, tea.Quit
		}

	case TickMsg:
		return m, tickCmd()

	case DoneMsg:
		m.Done = true
		return m, tea.Quit

	case QuitMsg:
		m.Quitting = true
		return m, tea.Quit

	case RunStartedMsg:
		m.TotalItems = msg.TotalItems
		m.WindowSize = msg.WindowSize

	case SlotFillMsg:
		m.ActiveSlots[msg.Slot] = &SlotState{
			Index:     msg.Slot,
			ItemID:    msg.ItemID,
			Number:    msg.Number,
			Title:     msg.Title,
			Domain:    msg.Domain,
			Attempt:   1,
			Phase:     "starting",
			PhaseIcon: IconWaiting,
		}

	case SlotPhaseMsg:
		if slot, ok := m.ActiveSlots[msg.Slot]; ok {
			slot.Phase = msg.Phase
			slot.PhaseIcon = msg.PhaseIcon
		}

	case SlotDoneMsg:
		delete(m.ActiveSlots, msg.Slot)
		switch msg.Status {
		case "done":
			m.CompletedCount++
		case "blocked":
			m.BlockedCount++
		default:
			m.FailedCount++
		}

	case LogMsg:
		m.LogLines = append(m.LogLines, msg.Line)
		if m.LogLimit > 0 && len(m.LogLines) > m.LogLimit {
			m.LogLines = m.LogLines[len(m.LogLines)-m.LogLimit:]
		}
	}

	return m, nil
}
