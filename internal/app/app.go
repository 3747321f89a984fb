package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/nhle/thread-reply/internal/dispatch"
	"github.com/nhle/thread-reply/internal/keys"
	"github.com/nhle/thread-reply/internal/model"
	"github.com/nhle/thread-reply/internal/source"
	appsync "github.com/nhle/thread-reply/internal/sync"
	"github.com/nhle/thread-reply/internal/theme"
	"github.com/nhle/thread-reply/internal/thread"
	"github.com/nhle/thread-reply/internal/ui"
	"github.com/nhle/thread-reply/internal/ui/compose"
	"github.com/nhle/thread-reply/internal/ui/detail"
	helpview "github.com/nhle/thread-reply/internal/ui/help"
	"github.com/nhle/thread-reply/internal/ui/threadlist"
)

// sendTimeout bounds a single dispatch from the TUI.
const sendTimeout = time.Minute

// historyTimeout bounds a journal lookup for the detail view.
const historyTimeout = 5 * time.Second

// History looks up replies already sent onto a message.
type History interface {
	RepliesTo(ctx context.Context, messageID string) ([]model.SentReply, error)
}

// sentMsg carries the outcome of a dispatch.
type sentMsg struct {
	msg *model.OutgoingMessage
	err error
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewCompose ViewState = iota
	ViewThreads
	ViewDetail
	ViewHelp
)

// replyMode tracks the reply target announced by the selection. It is
// shared by pointer so the listener registered on the selection keeps
// updating it across Bubble Tea model copies.
type replyMode struct {
	label string
}

// Model is the root Bubble Tea model. It owns the coordinator and is
// the only goroutine that touches the selection.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	keys         *keys.KeyMap
	coordinator  *appsync.Coordinator
	outbox       *dispatch.Outbox
	history      History
	account      string
	composeView  compose.Model
	threads      threadlist.Model
	detailView   detail.Model
	helpView     helpview.Model
	spinner      spinner.Model
	mode         *replyMode
	draft        appsync.Draft
	sending      bool
	status       string
	statusErr    bool
	ready        bool
	log          *logrus.Entry
}

// Options configures the root model.
type Options struct {
	Coordinator *appsync.Coordinator
	Outbox      *dispatch.Outbox
	History     History
	Account     string
	Marker      string
	Draft       appsync.Draft
	Logger      *logrus.Entry
}

// New creates the root application model.
func New(opts Options) Model {
	k := keys.DefaultKeyMap()
	sel := opts.Coordinator.Selection()

	mode := &replyMode{label: "new message"}
	sel.OnChange(func(rec *model.ThreadRecord) {
		if rec == nil {
			mode.label = "new message"
			return
		}
		mode.label = "reply to " + rec.Label()
	})

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return Model{
		currentView: ViewCompose,
		keys:        k,
		coordinator: opts.Coordinator,
		outbox:      opts.Outbox,
		history:     opts.History,
		account:     opts.Account,
		composeView: compose.New(opts.Marker, 80, 24),
		threads:     threadlist.New(sel, k, 80, 24),
		detailView:  detail.New(k, 80, 24),
		helpView:    helpview.New(k, 80, 24),
		spinner:     sp,
		mode:        mode,
		draft:       opts.Draft,
		log:         log.WithField("component", "app"),
	}
}

// Init starts the draft form and listens for search results.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.composeView.Start(m.draft),
		m.coordinator.WaitForResult(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.composeView.SetSize(w, h)
		m.threads.SetSize(w, h)
		m.detailView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		return m.updateActiveView(msg)

	case compose.DraftSubmittedMsg:
		m.draft = msg.Draft
		m.currentView = ViewThreads
		return m, m.startSearch()

	case compose.CancelMsg:
		return m, tea.Quit

	case appsync.SearchResultMsg:
		next := m.coordinator.WaitForResult()
		if !m.coordinator.Apply(msg) {
			return m, next
		}
		if msg.Err != nil {
			m.setError(describeSearchError(msg.Err))
			return m, next
		}
		m.setStatus(fmt.Sprintf("%d prior messages in %s", len(msg.Records), msg.Elapsed.Round(time.Millisecond)))
		return m, tea.Batch(next, m.threads.Refresh())

	case detail.LoadedMsg:
		m.detailView, _ = m.detailView.Update(msg)
		m.currentView = ViewDetail
		return m, nil

	case detail.BackMsg:
		m.currentView = ViewThreads
		return m, nil

	case threadlist.ToggleFailedMsg:
		m.setError(msg.Err.Error())
		return m, nil

	case sentMsg:
		m.sending = false
		if msg.err != nil {
			m.setError(describeSendError(msg.err))
			return m, nil
		}
		m.coordinator.MarkSent()
		m.setStatus("sent " + msg.msg.MessageID)
		m.draft = appsync.Draft{}
		m.currentView = ViewCompose
		return m, m.composeView.Start(m.draft)

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.updateActiveView(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.currentView {
	case ViewCompose:
		return m.updateActiveView(msg)

	case ViewHelp:
		if key.Matches(msg, m.keys.Help, m.keys.Back, m.keys.Quit) {
			m.currentView = m.previousView
		}
		return m, nil

	case ViewDetail:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		return m.updateActiveView(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil

	case key.Matches(msg, m.keys.Open):
		return m, m.openDetail()

	case key.Matches(msg, m.keys.Send):
		if m.busy() {
			return m, nil
		}
		return m, m.send()

	case key.Matches(msg, m.keys.Edit, m.keys.Back):
		if m.sending {
			return m, nil
		}
		m.coordinator.Abandon()
		m.currentView = ViewCompose
		return m, m.composeView.Start(m.draft)

	case key.Matches(msg, m.keys.Search):
		if m.busy() {
			return m, nil
		}
		return m, m.startSearch()
	}

	return m.updateActiveView(msg)
}

func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.currentView {
	case ViewCompose:
		m.composeView, cmd = m.composeView.Update(msg)
	case ViewThreads:
		m.threads, cmd = m.threads.Update(msg)
	case ViewDetail:
		m.detailView, cmd = m.detailView.Update(msg)
	}
	return m, cmd
}

// openDetail loads the record under the cursor together with the
// replies already journaled against it.
func (m Model) openDetail() tea.Cmd {
	records := m.coordinator.Selection().Records()
	i := m.threads.Cursor()
	if i < 0 || i >= len(records) {
		return nil
	}
	rec := records[i]
	history := m.history
	return func() tea.Msg {
		if history == nil {
			return detail.LoadedMsg{Record: rec}
		}
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		replies, err := history.RepliesTo(ctx, rec.MessageID)
		return detail.LoadedMsg{Record: rec, Replies: replies, Err: err}
	}
}

func (m *Model) startSearch() tea.Cmd {
	if _, err := m.coordinator.StartSearch(m.draft.Subject, m.draft.To); err != nil {
		m.setError(err.Error())
		return nil
	}
	m.setStatus("searching for prior messages…")
	return m.spinner.Tick
}

// send builds the outgoing message from the draft and the selection on
// the coordinating goroutine, then dispatches it in the background.
func (m *Model) send() tea.Cmd {
	out, err := m.coordinator.PrepareReply(m.draft)
	if err != nil {
		m.setError(err.Error())
		return nil
	}

	m.sending = true
	m.setStatus("sending…")
	ob := m.outbox
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		return sentMsg{msg: out, err: ob.Send(ctx, out)}
	})
}

func (m Model) busy() bool {
	return m.sending || m.coordinator.Searching()
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(s string) {
	m.status = s
	m.statusErr = true
}

func describeSearchError(err error) string {
	switch {
	case thread.IsValidationError(err):
		return err.Error()
	case source.IsAuthError(err):
		return "mailbox rejected the credentials; run `threadreply login imap` or `threadreply auth gmail`"
	case errors.Is(err, context.DeadlineExceeded):
		return "search timed out"
	default:
		return "search failed: " + err.Error()
	}
}

func describeSendError(err error) string {
	if dispatch.IsPreconditionError(err) {
		return err.Error()
	}
	return "send failed: " + err.Error()
}

// View renders the active view inside the header and status bar frame.
func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	var content string
	switch m.currentView {
	case ViewCompose:
		content = m.composeView.View()
	case ViewThreads:
		content = m.threads.View()
	case ViewDetail:
		content = m.detailView.View()
	case ViewHelp:
		content = m.helpView.View()
	}

	title := "threadreply"
	if m.account != "" {
		title += " · " + m.account
	}
	header := m.layout.RenderHeader(title, m.mode.label)

	status := m.status
	if m.busy() {
		status = m.spinner.View() + " " + status
	}
	if m.statusErr {
		status = theme.ErrorStyle.Render(status)
	}

	hints := ""
	if m.currentView == ViewThreads {
		hints = m.helpView.ShortView()
	}
	statusBar := m.layout.RenderStatusBar(hints, status)

	return m.layout.RenderWithFrame(header, content, statusBar)
}
