// Package tui provides the terminal interface for watching builds. It polls
// the store for recent builds and renders them in a split view: build table
// on the left, the selected build's log on the right.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"cadence-ci/src/store"
)

const (
	// refreshInterval is how often the store is polled for new builds.
	refreshInterval = 2 * time.Second

	// fetchLimit is how many recent builds each refresh loads.
	fetchLimit = 50
)

// Spinner frames for the refresh indicator
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// buildsMsg carries the result of a store refresh.
type buildsMsg struct {
	items []Item
	err   error
}

// refreshTickMsg triggers the next store poll.
type refreshTickMsg time.Time

// spinnerTickMsg advances the refresh indicator.
type spinnerTickMsg time.Time

// WatchModel is the Bubble Tea model for the build watch view.
type WatchModel struct {
	store          store.Store
	listView       View
	detailViewport viewport.Model
	styles         *StyleConfig

	width         int
	height        int
	ready         bool
	detailFocused bool
	spinnerFrame  int
	refreshing    bool
	lastErr       error
}

// NewWatchModel creates a watch model backed by the given store.
func NewWatchModel(s store.Store) WatchModel {
	return WatchModel{
		store:    s,
		listView: NewView(),
		styles:   DefaultStyles(),
	}
}

// Start runs the watch TUI until the user quits.
func Start(s store.Store) error {
	p := tea.NewProgram(NewWatchModel(s), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init kicks off the first refresh and the spinner.
func (m WatchModel) Init() tea.Cmd {
	return tea.Batch(m.fetchBuilds(), spinnerTick())
}

// fetchBuilds loads recent builds and resolves their project titles.
func (m WatchModel) fetchBuilds() tea.Cmd {
	s := m.store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		builds, err := s.RecentBuilds(ctx, fetchLimit)
		if err != nil {
			return buildsMsg{err: err}
		}

		titles := map[int64]string{}
		items := make([]Item, 0, len(builds))
		for _, b := range builds {
			title, ok := titles[b.ProjectID]
			if !ok {
				project, err := s.GetProject(ctx, b.ProjectID)
				if err != nil {
					title = fmt.Sprintf("project %d", b.ProjectID)
				} else {
					title = project.Title
				}
				titles[b.ProjectID] = title
			}
			items = append(items, Item{Build: b, ProjectTitle: title})
		}
		return buildsMsg{items: items}
	}
}

func refreshTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshTickMsg(t)
	})
}

func spinnerTick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(t time.Time) tea.Msg {
		return spinnerTickMsg(t)
	})
}

// Update handles messages and updates the model state.
func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeComponents()
		return m, nil

	case buildsMsg:
		m.refreshing = false
		if msg.err != nil {
			m.lastErr = msg.err
			return m, refreshTick()
		}
		m.lastErr = nil
		m.listView.SetItems(msg.items)
		if selected, ok := m.listView.GetSelectedItem(); ok {
			m.updateDetailContent(selected)
		}
		return m, refreshTick()

	case refreshTickMsg:
		m.refreshing = true
		return m, m.fetchBuilds()

	case spinnerTickMsg:
		m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		return m, spinnerTick()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m WatchModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "r":
		m.refreshing = true
		return m, m.fetchBuilds()

	case "enter":
		m.detailFocused = true
		return m, nil

	case "esc":
		m.detailFocused = false
		return m, nil
	}

	if m.detailFocused {
		var cmd tea.Cmd
		m.detailViewport, cmd = m.detailViewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.listView, cmd = m.listView.Update(msg)
	if selected, ok := m.listView.GetSelectedItem(); ok {
		m.updateDetailContent(selected)
		m.detailViewport.GotoTop()
	}
	return m, cmd
}

// panelDimensions holds calculated layout dimensions
type panelDimensions struct {
	availableHeight int
	leftPanelWidth  int
	rightPanelWidth int
}

// calculateDimensions computes panel sizes based on terminal dimensions.
func (m WatchModel) calculateDimensions() panelDimensions {
	// Account for: title row (1) + help line (1) + panel borders (2)
	availableHeight := m.height - 1 - 1 - 2

	// Two-panel layout: build list (45%) | log detail (55%)
	leftPanelWidth := int(float64(m.width) * 0.45)
	rightPanelWidth := m.width - leftPanelWidth

	return panelDimensions{
		availableHeight: availableHeight,
		leftPanelWidth:  leftPanelWidth,
		rightPanelWidth: rightPanelWidth,
	}
}

// resizeComponents handles window resize events
func (m *WatchModel) resizeComponents() {
	dims := m.calculateDimensions()

	m.listView.SetSize(dims.leftPanelWidth-2, dims.availableHeight)

	m.detailViewport.Width = dims.rightPanelWidth - 2
	m.detailViewport.Height = dims.availableHeight - 1 // -1 for the project header row

	if selectedItem, ok := m.listView.GetSelectedItem(); ok {
		m.updateDetailContent(selectedItem)
	}
}

// View renders the complete watch layout
func (m WatchModel) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	title := m.styles.TitleStyle().Render("Cadence - Build Watch")
	if m.refreshing {
		spinner := lipgloss.NewStyle().
			Foreground(m.styles.AccentBlue).
			Render(spinnerFrames[m.spinnerFrame])
		title = lipgloss.JoinHorizontal(lipgloss.Left, title, " ", spinner)
	}
	if m.lastErr != nil {
		errText := lipgloss.NewStyle().
			Foreground(m.styles.FailedColor).
			Render(fmt.Sprintf("  refresh failed: %v", m.lastErr))
		title = lipgloss.JoinHorizontal(lipgloss.Left, title, errText)
	}

	dims := m.calculateDimensions()

	leftPanel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.styles.BorderColor).
		Width(dims.leftPanelWidth - 2).
		Height(dims.availableHeight).
		Render(m.listView.Render())
	rightPanel := m.renderDetailPanel(dims.rightPanelWidth-2, dims.availableHeight)

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, rightPanel)

	help := m.renderHelpText()

	return lipgloss.JoinVertical(lipgloss.Left, title, mainContent, help)
}

// renderHelpText renders context-aware help text at the bottom
func (m WatchModel) renderHelpText() string {
	keyStyle := lipgloss.NewStyle().Foreground(m.styles.PrimaryBlue).Bold(true)
	sepStyle := lipgloss.NewStyle().Foreground(m.styles.TextSecondary)

	var helpText string
	if m.detailFocused {
		helpText = fmt.Sprintf("%s: Scroll %s %s: Back %s %s: Quit",
			keyStyle.Render("j/k"), sepStyle.Render("•"),
			keyStyle.Render("Esc"), sepStyle.Render("•"),
			keyStyle.Render("q"))
	} else {
		helpText = fmt.Sprintf("%s: Nav %s %s: View log %s %s: Refresh %s %s: Quit",
			keyStyle.Render("j/k"), sepStyle.Render("•"),
			keyStyle.Render("Enter"), sepStyle.Render("•"),
			keyStyle.Render("r"), sepStyle.Render("•"),
			keyStyle.Render("q"))
	}

	return m.styles.HelpStyle().Render(helpText)
}
