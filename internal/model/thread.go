package model

import (
	"strings"
	"time"
)

// BackendKind identifies the search backend that produced a record.
type BackendKind string

const (
	BackendGmail BackendKind = "gmail"
	BackendIMAP  BackendKind = "imap"
)

// DateSource records whether SentAt was parsed from the message or
// synthesized from the retrieval time.
type DateSource int

const (
	DateParsed DateSource = iota
	DateDefaulted
)

func (d DateSource) String() string {
	if d == DateDefaulted {
		return "defaulted"
	}
	return "parsed"
}

// MarshalText implements encoding.TextMarshaler.
func (d DateSource) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// ThreadRecord is one prior message that a reply can be threaded onto.
type ThreadRecord struct {
	// MessageID is the Message-ID header value, angle brackets included.
	MessageID string `json:"message_id"`

	// Subject is the decoded subject line.
	Subject string `json:"subject"`

	// SentAt is the origination date, or the retrieval time when the
	// Date header could not be parsed (see DateSource).
	SentAt     time.Time  `json:"sent_at"`
	DateSource DateSource `json:"date_source"`

	// CorrelationToken is the first [..] value found in the text body.
	CorrelationToken string `json:"correlation_token,omitempty"`

	// Sender is the decoded From header.
	Sender string `json:"sender"`

	// References lists ancestor message ids, oldest first.
	References []string `json:"references,omitempty"`

	// ReplyTarget is the Reply-To address, or the From address when the
	// message carries no Reply-To.
	ReplyTarget string `json:"reply_target"`

	// Backend and SourceRef identify where the record came from
	// (an IMAP UID or a Gmail message id).
	Backend   BackendKind `json:"backend"`
	SourceRef string      `json:"source_ref"`
}

// Label renders the record the way thread pickers display it.
func (r ThreadRecord) Label() string {
	var b strings.Builder
	b.WriteString(r.SentAt.Format("2006-01-02 15:04"))
	b.WriteString(" | ")
	b.WriteString(r.Subject)
	if r.CorrelationToken != "" {
		b.WriteString(" [")
		b.WriteString(r.CorrelationToken)
		b.WriteString("]")
	}
	return b.String()
}

// SearchQuery is the immutable input to a search backend.
type SearchQuery struct {
	Subject    string
	Recipient  string
	WindowDays int
	MaxResults int
}

// Since returns the start of the search window relative to now,
// truncated to the day.
func (q SearchQuery) Since(now time.Time) time.Time {
	y, m, d := now.AddDate(0, 0, -q.WindowDays).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// ReplyHeaders are the threading headers of an outgoing reply.
type ReplyHeaders struct {
	InReplyTo  string
	References []string
}

// ReferencesValue returns References formatted as a header value.
func (h ReplyHeaders) ReferencesValue() string {
	return strings.Join(h.References, " ")
}

// OutgoingMessage is a composed message handed to a dispatcher.
type OutgoingMessage struct {
	From        string
	FromName    string
	To          string   `validate:"notblank,email"`
	Subject     string   `validate:"notblank"`
	Body        string   `validate:"notblank"`
	Attachments []string `validate:"dive,required"`
	MessageID   string
	InReplyTo   string
	References  []string
}

// ThreadHeaders returns the threading headers the message carries.
func (m *OutgoingMessage) ThreadHeaders() ReplyHeaders {
	return ReplyHeaders{InReplyTo: m.InReplyTo, References: m.References}
}

// IsReply reports whether the message continues an existing thread.
func (m *OutgoingMessage) IsReply() bool {
	return m.InReplyTo != ""
}

// SentReply is a journal entry for one dispatched message.
type SentReply struct {
	ID          string    `db:"id"`
	MessageID   string    `db:"message_id"`
	To          string    `db:"to_address"`
	Subject     string    `db:"subject"`
	InReplyTo   string    `db:"in_reply_to"`
	References  string    `db:"references_chain"`
	Attachments string    `db:"attachments"`
	Dispatcher  string    `db:"dispatcher"`
	SentAt      time.Time `db:"sent_at"`
}
