package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// detailLogLines caps how much of the captured log the detail panel holds.
const detailLogLines = 500

// renderDetail renders the detail content for a build item
func (m WatchModel) renderDetail(item Item, maxWidth int) string {
	content := strings.Builder{}
	b := item.Build

	statusStyle := lipgloss.NewStyle().
		Foreground(m.styles.StatusColor(b.Status)).
		Bold(true)

	header := lipgloss.NewStyle().
		Foreground(m.styles.PrimaryBlue).
		Bold(true).
		Render(fmt.Sprintf("Build #%d | %s | %s @ %s",
			b.ID, item.ProjectTitle, b.Branch, item.ShortCommit()))
	fmt.Fprintf(&content, "%s\n", header)
	fmt.Fprintf(&content, "%s", statusStyle.Render(strings.ToUpper(b.Status.String())))
	if b.Tag != "" {
		fmt.Fprintf(&content, "  tag: %s", b.Tag)
	}
	if b.ErrorsTotal != nil {
		fmt.Fprintf(&content, "  errors: %d", *b.ErrorsTotal)
		if b.ErrorsPrevious != nil {
			fmt.Fprintf(&content, " (was %d)", *b.ErrorsPrevious)
		}
	}
	fmt.Fprintf(&content, "  duration: %s\n\n", item.Duration())

	if b.Committer != "" || b.Message != "" {
		meta := lipgloss.NewStyle().Foreground(m.styles.TextSecondary)
		fmt.Fprintln(&content, meta.Render(fmt.Sprintf("%s  %s",
			b.Committer, firstLine(b.Message))))
		fmt.Fprintln(&content, "")
	}

	logLines := TailLines(CleanLogText(b.Log), detailLogLines)
	if len(logLines) == 0 {
		fmt.Fprint(&content, lipgloss.NewStyle().
			Foreground(m.styles.TextSecondary).
			Faint(true).
			Render("No log output yet."))
		return content.String()
	}

	fmt.Fprintln(&content, lipgloss.NewStyle().Foreground(m.styles.TextSecondary).Bold(true).Render("Log:"))
	lineStyle := lipgloss.NewStyle().Foreground(m.styles.TextPrimary)
	for _, line := range logLines {
		wrapped := Truncate(line, maxWidth, true)
		fmt.Fprintln(&content, lineStyle.Render(wrapped))
	}

	return content.String()
}

// updateDetailContent updates the viewport with content from the selected item
func (m *WatchModel) updateDetailContent(item Item) {
	// The viewport's width is the max width for the content.
	// Subtract a small amount for internal padding.
	maxWidth := m.detailViewport.Width - 2
	content := m.renderDetail(item, maxWidth)
	m.detailViewport.SetContent(content)
}

// renderDetailPanel renders the right panel with detail viewport
func (m WatchModel) renderDetailPanel(width, height int) string {
	if selectedItem, ok := m.listView.GetSelectedItem(); ok {
		headerRow := lipgloss.NewStyle().
			Foreground(m.styles.PrimaryBlue).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("Project: %s", selectedItem.ProjectTitle))

		borderStyle := m.styles.BorderColor
		if m.detailFocused {
			borderStyle = m.styles.AccentBlue
		}

		return lipgloss.JoinVertical(lipgloss.Left, headerRow,
			lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(borderStyle).
				Width(width).
				Height(height).
				Render(m.detailViewport.View()))
	}

	placeholderRow := lipgloss.NewStyle().
		Foreground(m.styles.TextSecondary).
		Padding(0, 1).
		Render(" ")

	emptyStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.styles.BorderColor).
		Width(width).
		Height(height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(m.styles.TextSecondary).
		Faint(true)

	return lipgloss.JoinVertical(lipgloss.Left, placeholderRow, emptyStyle.Render("← Navigate list to view build log"))
}
