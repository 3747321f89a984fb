package thread

import (
	"errors"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/thread-reply/internal/correlate"
	"github.com/nhle/thread-reply/internal/model"
	"github.com/nhle/thread-reply/internal/source"
)

// BodySource records how the correlation token was obtained.
type BodySource int

const (
	BodyDecoded BodySource = iota
	BodyMissing
	BodyUndecodable
)

// Parsed is a ThreadRecord together with the outcome of the best-effort
// steps that went into it.
type Parsed struct {
	Record model.ThreadRecord
	Body   BodySource
	// BodyErr is set when Body is BodyUndecodable.
	BodyErr error
}

var errNoMessageID = errors.New("message has no Message-ID")

// ParseMessage decodes raw into a ThreadRecord. The date falls back to
// now and the token to "" when they cannot be read; only an unreadable
// header or a missing Message-ID yields a *ParseError.
func ParseMessage(raw source.RawMessage, kind model.BackendKind, now time.Time) (Parsed, error) {
	h, err := raw.Header()
	if err != nil {
		return Parsed{}, &ParseError{Ref: raw.Ref, Err: err}
	}

	messageID := strings.TrimSpace(h.Get("Message-Id"))
	if messageID == "" {
		return Parsed{}, &ParseError{Ref: raw.Ref, Err: errNoMessageID}
	}

	rec := model.ThreadRecord{
		MessageID:  messageID,
		Subject:    decodedText(h, "Subject"),
		Sender:     decodedText(h, "From"),
		References: strings.Fields(h.Get("References")),
		Backend:    kind,
		SourceRef:  raw.Ref,
	}

	rec.SentAt, rec.DateSource = parseDate(h, now)
	rec.ReplyTarget = replyTarget(h, rec.Sender)

	p := Parsed{Record: rec}
	body, err := raw.TextBody()
	switch {
	case err != nil:
		p.Body = BodyUndecodable
		p.BodyErr = err
	case strings.TrimSpace(body) == "":
		p.Body = BodyMissing
	default:
		p.Record.CorrelationToken = correlate.ExtractToken(body)
	}

	return p, nil
}

func parseDate(h mail.Header, now time.Time) (time.Time, model.DateSource) {
	t, err := h.Date()
	if err != nil || t.IsZero() {
		return now, model.DateDefaulted
	}
	return t, model.DateParsed
}

// decodedText decodes RFC 2047 encoded words, falling back to the raw
// value when the charset is unknown.
func decodedText(h mail.Header, key string) string {
	if v, err := h.Text(key); err == nil {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(h.Get(key))
}

// replyTarget picks the first Reply-To address, then the first From
// address, then the decoded sender text.
func replyTarget(h mail.Header, sender string) string {
	for _, key := range []string{"Reply-To", "From"} {
		addrs, err := h.AddressList(key)
		if err == nil && len(addrs) > 0 && addrs[0].Address != "" {
			return addrs[0].Address
		}
	}
	return sender
}
