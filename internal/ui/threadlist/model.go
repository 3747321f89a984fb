package threadlist

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/thread-reply/internal/keys"
	"github.com/nhle/thread-reply/internal/theme"
	"github.com/nhle/thread-reply/internal/thread"
)

// ToggleFailedMsg reports a selection change that was refused.
type ToggleFailedMsg struct {
	Err error
}

// Model lists the prior messages of the current search and lets the
// operator pick the one to reply to.
type Model struct {
	list      list.Model
	selection *thread.Selection
	keys      *keys.KeyMap
	width     int
	height    int
}

// New creates a thread list over selection.
func New(selection *thread.Selection, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, Delegate{selection: selection}, width, height)
	l.Title = "Prior messages"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle
	l.SetStatusBarItemName("message", "messages")

	return Model{
		list:      l,
		selection: selection,
		keys:      k,
		width:     width,
		height:    height,
	}
}

// Refresh reloads the items from the selection's result set.
func (m *Model) Refresh() tea.Cmd {
	records := m.selection.Records()
	items := make([]list.Item, len(records))
	for i, rec := range records {
		items[i] = Item{Record: rec}
	}
	m.list.ResetSelected()
	return m.list.SetItems(items)
}

// Cursor returns the index under the cursor.
func (m Model) Cursor() int {
	return m.list.Index()
}

// Update handles messages for the thread list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Toggle):
			if len(m.list.Items()) == 0 {
				return m, nil
			}
			if err := m.selection.Toggle(m.list.Index()); err != nil {
				return m, func() tea.Msg { return ToggleFailedMsg{Err: err} }
			}
			return m, nil

		case key.Matches(msg, m.keys.Clear):
			m.selection.Clear()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the thread list.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No prior messages found.\n\nPress enter to send the draft as a new message.")
	}
	return m.list.View()
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
