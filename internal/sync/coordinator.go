package sync

import (
	"context"
	"errors"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/nhle/thread-reply/internal/correlate"
	"github.com/nhle/thread-reply/internal/model"
	"github.com/nhle/thread-reply/internal/thread"
)

// searchTimeout is the default bound for a single search.
const searchTimeout = 30 * time.Second

// ErrSearchInFlight is returned by StartSearch while a search is running.
var ErrSearchInFlight = errors.New("a search is already running")

// Finder is the search side of the thread engine.
type Finder interface {
	FindThreads(ctx context.Context, subject, recipient string) ([]model.ThreadRecord, error)
}

// SearchResultMsg is a tea.Msg carrying the outcome of one search.
type SearchResultMsg struct {
	Seq       uint64
	Subject   string
	Recipient string
	Records   []model.ThreadRecord
	Err       error
	Elapsed   time.Duration
}

// Draft is what the operator wants to send.
type Draft struct {
	To          string
	Subject     string
	Body        string
	Attachments []string

	// Rework appends the subject marker to the subject.
	Rework bool
}

// Coordinator runs searches on background goroutines and applies their
// results to the selection. Apply, PrepareReply and MarkSent must be
// called from the coordinating goroutine only; workers never touch the
// selection.
type Coordinator struct {
	finder    Finder
	selection *thread.Selection
	resultCh  chan SearchResultMsg
	timeout   time.Duration
	marker    string
	log       *logrus.Entry

	seq      uint64
	inFlight bool

	// current identifies the search that produced the installed results.
	current queryKey
}

// queryKey compares searches the way the engine sees them: marker-free
// subject and recipient, both case-insensitive.
type queryKey struct {
	subject   string
	recipient string
}

func keyFor(subject, recipient string) queryKey {
	return queryKey{
		subject:   strings.ToLower(correlate.NormalizeSubject(subject)),
		recipient: strings.ToLower(strings.TrimSpace(recipient)),
	}
}

// Options configures a Coordinator.
type Options struct {
	Timeout       time.Duration
	SubjectMarker string
	Logger        *logrus.Entry
}

// New creates a Coordinator over finder and selection.
func New(finder Finder, selection *thread.Selection, opts Options) *Coordinator {
	if opts.Timeout <= 0 {
		opts.Timeout = searchTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Coordinator{
		finder:    finder,
		selection: selection,
		resultCh:  make(chan SearchResultMsg, 16),
		timeout:   opts.Timeout,
		marker:    opts.SubjectMarker,
		log:       opts.Logger.WithField("component", "coordinator"),
	}
}

// Selection returns the selection the coordinator maintains.
func (c *Coordinator) Selection() *thread.Selection {
	return c.selection
}

// Searching reports whether a search has been started and not applied.
func (c *Coordinator) Searching() bool {
	return c.inFlight
}

// StartSearch dispatches a search to a background goroutine and returns
// its sequence number. Only one search may be in flight; callers disable
// the triggering action until the result has been applied.
func (c *Coordinator) StartSearch(subject, recipient string) (uint64, error) {
	if c.inFlight {
		return 0, ErrSearchInFlight
	}
	c.seq++
	c.inFlight = true

	seq := c.seq
	go c.run(seq, subject, recipient)
	return seq, nil
}

// Abandon gives up on the running search. Its result, when it arrives,
// is treated as stale.
func (c *Coordinator) Abandon() {
	if !c.inFlight {
		return
	}
	c.seq++
	c.inFlight = false
}

func (c *Coordinator) run(seq uint64, subject, recipient string) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	records, err := c.finder.FindThreads(ctx, subject, recipient)
	c.resultCh <- SearchResultMsg{
		Seq:       seq,
		Subject:   subject,
		Recipient: recipient,
		Records:   records,
		Err:       err,
		Elapsed:   time.Since(start),
	}
}

// WaitForResult returns a tea.Cmd that waits for the next search result.
// Call it again after handling a SearchResultMsg to keep listening.
func (c *Coordinator) WaitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-c.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// Await blocks until the next search result arrives or ctx is done.
func (c *Coordinator) Await(ctx context.Context) (SearchResultMsg, error) {
	select {
	case msg := <-c.resultCh:
		return msg, nil
	case <-ctx.Done():
		return SearchResultMsg{}, ctx.Err()
	}
}

// Apply installs a finished search. Results from a search older than the
// latest one are ignored and Apply returns false. A failed search keeps
// the previous results; the selection survives only when the failed
// search asked for the same subject and recipient.
func (c *Coordinator) Apply(msg SearchResultMsg) bool {
	if msg.Seq != c.seq {
		c.log.WithFields(logrus.Fields{
			"seq":    msg.Seq,
			"latest": c.seq,
		}).Debug("ignoring stale search result")
		return false
	}
	c.inFlight = false
	key := keyFor(msg.Subject, msg.Recipient)

	if msg.Err != nil {
		c.log.WithError(msg.Err).Warn("search failed")
		if key != c.current {
			c.selection.Clear()
		}
		return true
	}

	c.current = key
	c.selection.Replace(msg.Records)
	c.log.WithFields(logrus.Fields{
		"threads": len(msg.Records),
		"elapsed": msg.Elapsed.Round(time.Millisecond),
	}).Debug("search results applied")
	return true
}

// PrepareReply composes the outgoing message for draft. With a selected
// thread the message carries its threading headers; without one it is a
// new message. A selection found for a different subject or recipient
// than the draft's is refused.
func (c *Coordinator) PrepareReply(draft Draft) (*model.OutgoingMessage, error) {
	subject := strings.TrimSpace(draft.Subject)
	if draft.Rework {
		subject = correlate.MarkSubject(subject, c.marker)
	}

	msg := &model.OutgoingMessage{
		To:          strings.TrimSpace(draft.To),
		Subject:     subject,
		Body:        draft.Body,
		Attachments: draft.Attachments,
	}

	rec, ok := c.selection.Selected()
	if !ok {
		return msg, nil
	}
	if keyFor(draft.Subject, draft.To) != c.current {
		return nil, &thread.ValidationError{
			Field:  "selection",
			Reason: "selected thread was found for a different subject or recipient; search again",
		}
	}

	headers, err := thread.BuildHeaders(*rec)
	if err != nil {
		return nil, err
	}
	msg.InReplyTo = headers.InReplyTo
	msg.References = headers.References
	return msg, nil
}

// MarkSent clears the selection after a message went out.
func (c *Coordinator) MarkSent() {
	c.selection.Clear()
}
