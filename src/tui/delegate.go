package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	// listRenderingOverhead accounts for padding added by bubbles/list and
	// panel borders: panel border (2) + list internal padding (8).
	listRenderingOverhead = 10

	statusWidth   = 7
	commitWidth   = 8
	durationWidth = 7
)

// Delegate renders builds as table rows.
type Delegate struct {
	IDWidth      int
	ProjectWidth int
	styles       *StyleConfig
}

// NewDelegate creates a new build table delegate with default styles
func NewDelegate() Delegate {
	return Delegate{
		IDWidth:      2, // default minimum
		ProjectWidth: 8,
		styles:       DefaultStyles(),
	}
}

// SetColumnWidths sizes the dynamic columns from the widest values present.
func (d *Delegate) SetColumnWidths(maxID int64, maxProjectTitle int) {
	d.IDWidth = len(fmt.Sprintf("%d", maxID))
	if d.IDWidth < 2 {
		d.IDWidth = 2
	}

	d.ProjectWidth = maxProjectTitle
	if d.ProjectWidth < 8 {
		d.ProjectWidth = 8
	}
	if d.ProjectWidth > 20 {
		d.ProjectWidth = 20
	}
}

// Height returns the height of a list item
func (d Delegate) Height() int {
	return 1
}

// Spacing returns spacing between items
func (d Delegate) Spacing() int {
	return 0
}

// Update handles item updates
func (d Delegate) Update(msg tea.Msg, m *list.Model) tea.Cmd {
	return nil
}

// getSnippetText returns the best text to show in the list snippet.
// It prefers the commit message, falling back to the branch.
func getSnippetText(entry Item) string {
	cleanMsg := CleanLogText(entry.Build.Message)
	if line := firstLine(cleanMsg); strings.TrimSpace(line) != "" {
		return line
	}
	return entry.Build.Branch
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// Render renders a list item
func (d Delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	entry, ok := item.(Item)
	if !ok {
		return
	}

	isSelected := index == m.Index()

	idFmt := fmt.Sprintf("%%%dd", d.IDWidth)

	idCol := fmt.Sprintf(idFmt, entry.Build.ID)
	statusCol := TruncateAndPad(entry.Build.Status.String(), statusWidth, false)
	projectCol := TruncateAndPad(entry.ProjectTitle, d.ProjectWidth, true)
	commitCol := TruncateAndPad(entry.ShortCommit(), commitWidth, false)
	durationCol := TruncateAndPad(entry.Duration(), durationWidth, false)

	// Fixed columns plus separators
	fixedWidth := d.IDWidth + statusWidth + d.ProjectWidth + commitWidth + durationWidth + 15
	availableWidth := m.Width() - fixedWidth - listRenderingOverhead

	var snippet string
	if availableWidth > 0 {
		snippet = TruncateAndPad(getSnippetText(entry), availableWidth, true)
	}

	statusStyle := lipgloss.NewStyle().Foreground(d.styles.StatusColor(entry.Build.Status))

	line := fmt.Sprintf("%s │ %s │ %s │ %s │ %s │ %s",
		idCol, statusStyle.Render(statusCol), projectCol, commitCol, durationCol, snippet)

	style := lipgloss.NewStyle().Foreground(d.styles.TextSecondary)
	if isSelected {
		style = style.Bold(true).Foreground(d.styles.PrimaryBlue).Background(d.styles.SelectedColor)
	}

	fmt.Fprint(w, style.Render(line))
}
