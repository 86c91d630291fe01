package tui

import (
	"time"

	"cadence-ci/src/contracts"
)

// Item represents an item that can be displayed in the build list.
// It wraps the domain Build and implements bubbles/list.Item.
type Item struct {
	Build        contracts.Build
	ProjectTitle string
}

// FilterValue is the value used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Build.Message }

// Title returns the primary text for the item (required by list.Item).
func (i Item) Title() string { return i.Build.Message }

// Description returns the secondary text for the item (required by list.Item).
func (i Item) Description() string { return i.ProjectTitle }

// ShortCommit returns the abbreviated commit ID for table display.
func (i Item) ShortCommit() string {
	if len(i.Build.CommitID) > 8 {
		return i.Build.CommitID[:8]
	}
	return i.Build.CommitID
}

// Duration returns a human-readable run time, or "-" when the build has
// not started.
func (i Item) Duration() string {
	b := i.Build
	if b.StartedAt == nil {
		return "-"
	}
	end := b.FinishedAt
	if end == nil {
		return "..."
	}
	return end.Sub(*b.StartedAt).Round(time.Second).String()
}
