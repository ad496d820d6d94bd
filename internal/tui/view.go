package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// View implements tea.Model.
func (m *Model) View() string {
	if m.Done || m.Quitting {
		return ""
	}

	showLogs := m.ShowLogs || len(m.LogLines) > 0
	if m.Height <= 0 || !showLogs {
		return m.renderBaseView()
	}
	logHeight := m.Height / 2
	if logHeight < 3 {
		return m.renderBaseView()
	}
	topHeight := m.Height - logHeight

	top := m.renderTopArea(topHeight)
	logs := m.renderLogArea(logHeight)

	if logs == "" {
		return top
	}

	return top + "\n" + logs
}

func (m *Model) renderBaseView() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	b.WriteString(m.renderActiveSlots())

	b.WriteString(m.renderStatusLine())
	b.WriteString("\n")

	b.WriteString(m.renderFooter())

	return b.String()
}

func (m *Model) renderTopArea(height int) string {
	if height <= 0 {
		return ""
	}

	header := m.renderHeader()
	status := m.renderStatusLine()
	footer := m.renderFooter()
	active := strings.TrimRight(m.renderActiveSlots(), "\n")
	activeLines := []string{}
	if active != "" {
		activeLines = strings.Split(active, "\n")
	}

	lines := []string{header}
	if height >= 4 {
		lines = append(lines, "")
	}

	reserved := 2
	remaining := height - len(lines) - reserved
	if remaining < 0 {
		remaining = 0
	}
	if len(activeLines) > remaining {
		activeLines = activeLines[:remaining]
	}
	lines = append(lines, activeLines...)
	lines = append(lines, status)
	lines = append(lines, footer)

	return padOrTrim(lines, height)
}

func (m *Model) renderLogArea(height int) string {
	if height <= 0 {
		return ""
	}

	lines := make([]string, 0, height)
	lines = append(lines, m.renderLogHeader())

	visible := height - 1
	logLines := m.tailLogLines(visible)
	for _, line := range logLines {
		lines = append(lines, m.Styles.LogLine.Render(m.truncateLine(line)))
	}

	return padOrTrim(lines, height)
}

func (m *Model) renderLogHeader() string {
	width := m.Width
	if width <= 0 {
		return m.Styles.LogTitle.Render("Logs")
	}
	title := " Logs "
	if len(title) >= width {
		return m.Styles.LogTitle.Render(title)
	}
	left := (width - len(title)) / 2
	right := width - len(title) - left
	return m.Styles.LogTitle.Render(strings.Repeat("─", left) + title + strings.Repeat("─", right))
}

func (m *Model) tailLogLines(max int) []string {
	if max <= 0 {
		return nil
	}
	if len(m.LogLines) == 0 {
		return []string{"(no logs yet)"}
	}
	if len(m.LogLines) <= max {
		return m.LogLines
	}
	return m.LogLines[len(m.LogLines)-max:]
}

func (m *Model) truncateLine(line string) string {
	if m.Width <= 0 {
		return line
	}
	if len(line) <= m.Width {
		return line
	}
	if m.Width <= 3 {
		return line[:m.Width]
	}
	return line[:m.Width-3] + "..."
}

func padOrTrim(lines []string, height int) string {
	if height <= 0 {
		return ""
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

// renderHeader renders the title line with timer and window size.
func (m *Model) renderHeader() string {
	elapsed := time.Since(m.StartTime).Round(time.Second)
	timer := fmt.Sprintf("[%s]", formatDuration(elapsed))
	window := fmt.Sprintf("Window: %d", m.WindowSize)

	return fmt.Sprintf("%s  %s  %s",
		m.Styles.Title.Render("Foreman"),
		m.Styles.Timer.Render(timer),
		m.Styles.WindowSize.Render(window),
	)
}

// renderActiveSlots renders the list of in-progress slots.
func (m *Model) renderActiveSlots() string {
	if len(m.ActiveSlots) == 0 {
		return "  No active slots\n\n"
	}

	var b strings.Builder

	indexes := make([]int, 0, len(m.ActiveSlots))
	for idx := range m.ActiveSlots {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	for _, idx := range indexes {
		slot := m.ActiveSlots[idx]
		b.WriteString(m.renderSlot(slot))
		b.WriteString("\n")
	}

	return b.String()
}

// renderSlot renders a single active slot.
func (m *Model) renderSlot(slot *SlotState) string {
	var b strings.Builder

	icon := m.Styles.SlotActive.Render(IconActive)
	name := m.Styles.SlotName.Render(fmt.Sprintf("#%d %s", slot.Number, slot.Title))

	fmt.Fprintf(&b, "  %s %s\n", icon, name)

	phaseIcon := m.Styles.PhaseIcon.Render(slot.PhaseIcon)
	domain := slot.Domain
	if domain == "" {
		domain = "unknown"
	}
	phaseText := m.Styles.PhaseText.Render(fmt.Sprintf("[%s] attempt %d: %s", domain, slot.Attempt, slot.Phase))
	fmt.Fprintf(&b, "      %s %s\n", phaseIcon, phaseText)

	return b.String()
}

// renderStatusLine renders the summary status line.
func (m *Model) renderStatusLine() string {
	activeCount := len(m.ActiveSlots)

	complete := m.Styles.StatusComplete.Render(fmt.Sprintf("%d done", m.CompletedCount))
	failed := m.Styles.StatusFailed.Render(fmt.Sprintf("%d failed", m.FailedCount))
	blocked := m.Styles.StatusBlocked.Render(fmt.Sprintf("%d blocked", m.BlockedCount))
	active := m.Styles.StatusActive.Render(fmt.Sprintf("%d active", activeCount))

	return fmt.Sprintf("  Items: %d/%d %s | %s | %s | %s",
		m.CompletedCount+m.FailedCount+m.BlockedCount,
		m.TotalItems,
		complete,
		failed,
		blocked,
		active,
	)
}

// renderFooter renders the help text.
func (m *Model) renderFooter() string {
	key := m.Styles.FooterKey.Render("q")
	return m.Styles.Footer.Render(fmt.Sprintf("  Press %s to quit", key))
}

func formatDuration(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
