package tui

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
)

// View manages the list of build items.
type View struct {
	list     list.Model
	items    []Item
	delegate *Delegate
}

// NewView creates a new build list view
func NewView() View {
	delegate := NewDelegate()
	l := list.New([]list.Item{}, &delegate, 0, 0)
	l.SetShowStatusBar(false)
	l.SetShowTitle(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	return View{
		list:     l,
		items:    []Item{},
		delegate: &delegate,
	}
}

// Update handles build list updates
func (v View) Update(msg tea.Msg) (View, tea.Cmd) {
	var cmd tea.Cmd
	v.list, cmd = v.list.Update(msg)
	return v, cmd
}

// SetSize sets the list dimensions
func (v *View) SetSize(width, height int) {
	v.list.SetSize(width, height)
}

// SetItems sets the list items, keeping the selection on the same build
// across refreshes when it still exists.
func (v *View) SetItems(items []Item) {
	var selectedID int64
	if selected, ok := v.GetSelectedItem(); ok {
		selectedID = selected.Build.ID
	}

	v.items = items

	var maxID int64
	maxProject := 0
	for _, item := range items {
		if item.Build.ID > maxID {
			maxID = item.Build.ID
		}
		if w := VisualWidth(item.ProjectTitle); w > maxProject {
			maxProject = w
		}
	}
	v.delegate.SetColumnWidths(maxID, maxProject)

	listItems := make([]list.Item, len(items))
	selectIndex := -1
	for i, item := range items {
		listItems[i] = item
		if item.Build.ID == selectedID {
			selectIndex = i
		}
	}
	v.list.SetItems(listItems)
	if selectIndex >= 0 {
		v.list.Select(selectIndex)
	}
}

// GetSelectedItem returns the currently selected build item
func (v View) GetSelectedItem() (Item, bool) {
	if len(v.list.Items()) == 0 {
		return Item{}, false
	}
	return v.list.SelectedItem().(Item), true
}

// Render returns the string representation of the view
func (v View) Render() string {
	return v.list.View()
}
