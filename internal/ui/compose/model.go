package compose

import (
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/emersion/go-message/mail"

	appsync "github.com/nhle/thread-reply/internal/sync"
	"github.com/nhle/thread-reply/internal/theme"
)

// DraftSubmittedMsg is dispatched when the operator completes the form.
type DraftSubmittedMsg struct {
	Draft appsync.Draft
}

// CancelMsg is dispatched when the operator aborts the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	to          string
	subject     string
	body        string
	attachments string
	rework      bool
}

// Model is the Bubble Tea model for the draft form.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	marker string
	width  int
	height int
}

// New creates a draft form. marker is shown on the rework toggle.
func New(marker string, width, height int) Model {
	return Model{
		fb:     &formBindings{},
		marker: marker,
		width:  width,
		height: height,
	}
}

// Start initializes the form, prefilled with d.
func (m *Model) Start(d appsync.Draft) tea.Cmd {
	m.fb.to = d.To
	m.fb.subject = d.Subject
	m.fb.body = d.Body
	m.fb.attachments = strings.Join(d.Attachments, ", ")
	m.fb.rework = d.Rework
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		d := m.Draft()
		m.form = nil
		return m, func() tea.Msg { return DraftSubmittedMsg{Draft: d} }
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}

	return m, cmd
}

// Draft returns the values currently entered.
func (m Model) Draft() appsync.Draft {
	return appsync.Draft{
		To:          strings.TrimSpace(m.fb.to),
		Subject:     strings.TrimSpace(m.fb.subject),
		Body:        m.fb.body,
		Attachments: splitAttachments(m.fb.attachments),
		Rework:      m.fb.rework,
	}
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Draft") + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	reworkTitle := "Rework"
	if m.marker != "" {
		reworkTitle = fmt.Sprintf("Rework (append %q to the subject)", m.marker)
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("To").
				Placeholder("client@example.com").
				Value(&m.fb.to).
				Validate(validateAddress),
			huh.NewInput().
				Title("Subject").
				Placeholder("Order #42").
				Value(&m.fb.subject).
				Validate(validateRequired("Subject")),
			huh.NewConfirm().
				Title(reworkTitle).
				Value(&m.fb.rework),
		),
		huh.NewGroup(
			huh.NewText().
				Title("Body").
				Value(&m.fb.body).
				Validate(validateRequired("Body")),
			huh.NewInput().
				Title("Attachments").
				Placeholder("comma separated paths (optional)").
				Value(&m.fb.attachments).
				Validate(validateAttachments),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 4
	if h < 10 {
		h = 10
	}
	return h
}

func splitAttachments(s string) []string {
	var paths []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateAddress(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("To is required")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return fmt.Errorf("not an email address")
	}
	return nil
}

func validateAttachments(s string) error {
	for _, p := range splitAttachments(s) {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("%s does not exist", p)
		}
		if info.IsDir() {
			return fmt.Errorf("%s is a directory", p)
		}
	}
	return nil
}
