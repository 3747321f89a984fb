package threadlist

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/thread-reply/internal/model"
	"github.com/nhle/thread-reply/internal/theme"
	"github.com/nhle/thread-reply/internal/thread"
)

// Item wraps a model.ThreadRecord so it can be used in a bubbles/list.
type Item struct {
	Record model.ThreadRecord
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string { return i.Record.Subject }

// Title returns the record label.
func (i Item) Title() string { return i.Record.Label() }

// Description returns a short summary line for the list.
func (i Item) Description() string {
	parts := []string{string(i.Record.Backend), i.Record.ReplyTarget}
	if i.Record.DateSource == model.DateDefaulted {
		parts = append(parts, "date unknown")
	}
	return strings.Join(parts, " | ")
}

// Delegate implements list.ItemDelegate. It reads the selection at
// render time so the checkbox always reflects the current state.
type Delegate struct {
	selection *thread.Selection
}

// Height returns the number of lines each item takes.
func (d Delegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d Delegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d Delegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single list item line.
func (d Delegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	rec := it.Record

	check := "[ ]"
	if d.selection != nil && d.selection.Index() == index {
		check = theme.CheckedStyle.Render("[x]")
	}

	date := rec.SentAt.Format("2006-01-02 15:04")
	if rec.DateSource == model.DateDefaulted {
		date = theme.HelpStyle.Render("????-??-?? ??:??")
	}

	token := ""
	if rec.CorrelationToken != "" {
		token = " " + theme.TokenStyle.Render("["+rec.CorrelationToken+"]")
	}

	target := ""
	if rec.ReplyTarget != "" {
		target = theme.HelpStyle.Render(" → " + rec.ReplyTarget)
	}

	backend := theme.BackendLabelStyle(string(rec.Backend)).Render(strings.ToUpper(string(rec.Backend)))

	line := fmt.Sprintf("%s %s %s %s%s%s", check, backend, date, rec.Subject, token, target)
	if width := m.Width(); width > 4 && lipgloss.Width(line) > width-2 {
		line = truncate(line, width-2)
	}

	if index == m.Index() {
		fmt.Fprint(w, theme.CursorItemStyle.Render(line))
		return
	}
	fmt.Fprint(w, theme.ListItemStyle.Render(line))
}

// truncate shortens s to at most width cells, appending an ellipsis.
func truncate(s string, width int) string {
	if width <= 1 {
		return "…"
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
