package tui

import (
	"github.com/charmbracelet/lipgloss"

	"cadence-ci/src/contracts"
)

// StyleConfig holds all customizable style colors for the watch UI.
type StyleConfig struct {
	// Primary colors
	PrimaryBlue    lipgloss.Color
	AccentBlue     lipgloss.Color
	DarkBackground lipgloss.Color
	CardBackground lipgloss.Color
	TextPrimary    lipgloss.Color
	TextSecondary  lipgloss.Color
	BorderColor    lipgloss.Color
	SelectedColor  lipgloss.Color

	// Status colors keyed by build lifecycle state
	PendingColor lipgloss.Color
	RunningColor lipgloss.Color
	SuccessColor lipgloss.Color
	FailedColor  lipgloss.Color
}

// DefaultStyles returns the default color palette
func DefaultStyles() *StyleConfig {
	return &StyleConfig{
		PrimaryBlue:    lipgloss.Color("#8AB4F8"),
		AccentBlue:     lipgloss.Color("#4285F4"),
		DarkBackground: lipgloss.Color("#1E1E1E"),
		CardBackground: lipgloss.Color("#2D2D2D"),
		TextPrimary:    lipgloss.Color("#E8EAED"),
		TextSecondary:  lipgloss.Color("#9AA0A6"),
		BorderColor:    lipgloss.Color("#5F6368"),
		SelectedColor:  lipgloss.Color("#303134"),
		PendingColor:   lipgloss.Color("#9AA0A6"), // Gray
		RunningColor:   lipgloss.Color("#FBBC04"), // Yellow
		SuccessColor:   lipgloss.Color("#34A853"), // Green
		FailedColor:    lipgloss.Color("#EA4335"), // Red
	}
}

// StatusColor returns the color for a build status.
func (s *StyleConfig) StatusColor(status contracts.Status) lipgloss.Color {
	switch status {
	case contracts.StatusRunning:
		return s.RunningColor
	case contracts.StatusSuccess:
		return s.SuccessColor
	case contracts.StatusFailed:
		return s.FailedColor
	}
	return s.PendingColor
}

// TitleStyle returns a title lipgloss style using this config
func (s *StyleConfig) TitleStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.PrimaryBlue).
		Bold(true).
		Padding(0, 1)
}

// HelpStyle returns a help text lipgloss style using this config
func (s *StyleConfig) HelpStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Foreground(s.TextSecondary).
		Padding(0, 2)
}
