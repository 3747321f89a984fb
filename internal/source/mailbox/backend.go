package mailbox

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/sirupsen/logrus"

	"github.com/nhle/thread-reply/internal/model"
	"github.com/nhle/thread-reply/internal/source"
)

// Backend searches a mailbox over IMAP. Every Search opens its own
// session and releases it before returning.
type Backend struct {
	dial      func(ctx context.Context) (session, error)
	mailboxes []string
	now       func() time.Time
	log       *logrus.Entry
}

// New creates an IMAP backend for cfg.
func New(cfg Config, log *logrus.Entry) *Backend {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("backend", model.BackendIMAP)

	mailboxes := cfg.Mailboxes
	if len(mailboxes) == 0 {
		mailboxes = model.DefaultMailboxes
	}

	return &Backend{
		dial: func(ctx context.Context) (session, error) {
			return cfg.dial(ctx, log)
		},
		mailboxes: mailboxes,
		now:       time.Now,
		log:       log,
	}
}

// Kind implements source.Backend.
func (b *Backend) Kind() model.BackendKind {
	return model.BackendIMAP
}

// Search implements source.Backend.
func (b *Backend) Search(
	ctx context.Context, q model.SearchQuery,
) ([]source.RawMessage, error) {
	sess, err := b.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			b.log.WithError(err).Debug("imap logout")
		}
	}()

	mailbox, err := b.selectMailbox(sess)
	if err != nil {
		return nil, err
	}

	uids, err := sess.SearchUIDs(searchCriteria(q, b.now()))
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", mailbox, err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	// UIDs ascend with arrival, so the tail holds the newest messages.
	if q.MaxResults > 0 && len(uids) > q.MaxResults {
		uids = uids[len(uids)-q.MaxResults:]
	}

	messages := make([]source.RawMessage, 0, len(uids))
	fetchErr := sess.FetchRaw(uids, func(uid imap.UID, literal []byte, err error) {
		if err != nil {
			b.log.WithError(err).Warn("skipping message that could not be fetched")
			return
		}
		if len(literal) == 0 {
			b.log.WithField("uid", uid).Warn("skipping message without body")
			return
		}
		messages = append(messages, source.RawMessage{
			Ref:     strconv.FormatUint(uint64(uid), 10),
			Literal: literal,
		})
	})
	if err := ctx.Err(); err != nil {
		return nil, &source.ConnectionError{
			Backend: model.BackendIMAP,
			Op:      "fetch " + mailbox,
			Err:     err,
		}
	}
	if fetchErr != nil {
		if len(messages) == 0 {
			return nil, &source.ConnectionError{
				Backend: model.BackendIMAP,
				Op:      "fetch " + mailbox,
				Err:     fetchErr,
			}
		}
		b.log.WithError(fetchErr).
			WithField("collected", len(messages)).
			Warn("fetch ended with an error")
	}

	b.log.WithFields(logrus.Fields{
		"mailbox": mailbox,
		"matched": len(uids),
		"fetched": len(messages),
	}).Debug("imap search finished")

	return messages, nil
}

// ValidateConnection verifies credentials by logging in and selecting a
// candidate mailbox. Returns the selected mailbox on success.
func (b *Backend) ValidateConnection(ctx context.Context) (string, error) {
	sess, err := b.dial(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = sess.Close() }()

	return b.selectMailbox(sess)
}

// selectMailbox selects the first candidate mailbox that exists.
func (b *Backend) selectMailbox(sess session) (string, error) {
	var lastErr error
	for _, name := range b.mailboxes {
		err := sess.Select(name)
		if err == nil {
			return name, nil
		}
		lastErr = err
		b.log.WithField("mailbox", name).Debug("mailbox not selectable")
	}
	return "", &source.ConnectionError{
		Backend: model.BackendIMAP,
		Op:      "select mailbox",
		Err:     lastErr,
	}
}

// searchCriteria builds "HEADER Subject s HEADER To r SINCE d".
func searchCriteria(q model.SearchQuery, now time.Time) *imap.SearchCriteria {
	criteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{
			{Key: "Subject", Value: q.Subject},
			{Key: "To", Value: q.Recipient},
		},
	}
	if q.WindowDays > 0 {
		criteria.Since = q.Since(now)
	}
	return criteria
}
