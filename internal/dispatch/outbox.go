package dispatch

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/thread-reply/internal/model"
)

// Journal records dispatched messages.
type Journal interface {
	RecordReply(ctx context.Context, r model.SentReply) error
}

// Outbox stamps, validates and dispatches messages, and journals the
// ones that went out.
type Outbox struct {
	dispatcher Dispatcher
	journal    Journal
	from       string
	fromName   string
	now        func() time.Time
	log        *logrus.Entry
}

// NewOutbox creates an Outbox sending as from. journal may be nil.
func NewOutbox(d Dispatcher, journal Journal, from, fromName string, log *logrus.Entry) *Outbox {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Outbox{
		dispatcher: d,
		journal:    journal,
		from:       from,
		fromName:   fromName,
		now:        time.Now,
		log:        log.WithField("component", "outbox"),
	}
}

// Dispatcher returns the underlying dispatcher.
func (o *Outbox) Dispatcher() Dispatcher {
	return o.dispatcher
}

// Send fills in the sender and Message-ID, validates msg and hands it
// to the dispatcher. A journal failure is logged and does not fail the
// send.
func (o *Outbox) Send(ctx context.Context, msg *model.OutgoingMessage) error {
	if msg.From == "" {
		msg.From = o.from
		msg.FromName = o.fromName
	}
	if msg.MessageID == "" {
		msg.MessageID = NewMessageID(msg.From)
	}

	if err := Validate(msg); err != nil {
		return err
	}
	if err := o.dispatcher.Send(ctx, msg); err != nil {
		return err
	}

	if o.journal == nil {
		return nil
	}
	entry := model.SentReply{
		MessageID:   msg.MessageID,
		To:          msg.To,
		Subject:     msg.Subject,
		InReplyTo:   msg.InReplyTo,
		References:  msg.ThreadHeaders().ReferencesValue(),
		Attachments: strings.Join(msg.Attachments, "\n"),
		Dispatcher:  o.dispatcher.Name(),
		SentAt:      o.now(),
	}
	if err := o.journal.RecordReply(ctx, entry); err != nil {
		o.log.WithError(err).WithField("message_id", msg.MessageID).Warn("journal write failed")
	}
	return nil
}
