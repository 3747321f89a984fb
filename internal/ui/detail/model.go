package detail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/thread-reply/internal/keys"
	"github.com/nhle/thread-reply/internal/model"
	"github.com/nhle/thread-reply/internal/theme"
)

// BackMsg signals the parent to navigate back to the thread list.
type BackMsg struct{}

// LoadedMsg carries a record and the replies already sent onto it.
type LoadedMsg struct {
	Record  model.ThreadRecord
	Replies []model.SentReply
	Err     error
}

// Model shows one prior message and the journaled replies to it.
type Model struct {
	record   *model.ThreadRecord
	replies  []model.SentReply
	err      error
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
}

// New creates a new detail view model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Update handles messages for the detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case LoadedMsg:
		rec := msg.Record
		m.record = &rec
		m.replies = msg.Replies
		m.err = msg.Err
		m.viewport.SetContent(m.renderContent())
		m.viewport.GotoTop()
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Back) {
			return m, func() tea.Msg { return BackMsg{} }
		}
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the detail view.
func (m Model) View() string {
	if m.record == nil {
		return ""
	}
	return theme.PanelStyle.
		Width(m.width - 4).
		Render(m.viewport.View())
}

func (m Model) renderContent() string {
	rec := m.record
	label := lipgloss.NewStyle().Bold(true).Width(14)

	row := func(name, value string) string {
		if value == "" {
			value = theme.HelpStyle.Render("none")
		}
		return label.Render(name) + value
	}

	sent := rec.SentAt.Format("Mon, 02 Jan 2006 15:04 MST")
	if rec.DateSource == model.DateDefaulted {
		sent += theme.HelpStyle.Render(" (no usable Date header)")
	}

	lines := []string{
		lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).Render(rec.Subject),
		"",
		row("Sent", sent),
		row("From", rec.Sender),
		row("Reply to", rec.ReplyTarget),
		row("Message-ID", rec.MessageID),
		row("References", strings.Join(rec.References, " ")),
		row("Token", rec.CorrelationToken),
		row("Found via", fmt.Sprintf("%s %s", rec.Backend, rec.SourceRef)),
		"",
		lipgloss.NewStyle().Bold(true).Render("Sent from here"),
	}

	switch {
	case m.err != nil:
		lines = append(lines, theme.ErrorStyle.Render("journal unavailable: "+m.err.Error()))
	case len(m.replies) == 0:
		lines = append(lines, theme.HelpStyle.Render("no replies recorded"))
	default:
		for _, r := range m.replies {
			lines = append(lines, fmt.Sprintf("%s  %s  %s",
				r.SentAt.Local().Format("2006-01-02 15:04"), r.MessageID, r.Subject))
		}
	}

	return strings.Join(lines, "\n")
}

// SetSize updates the detail view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width - 8
	m.viewport.Height = height - 4
	if m.record != nil {
		m.viewport.SetContent(m.renderContent())
	}
}
