package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/nhle/thread-reply/internal/model"
)

// ConnectionError indicates that a backend could not reach or
// authenticate to the mailbox. It is the only error that triggers a
// fallback to another backend.
type ConnectionError struct {
	Backend model.BackendKind
	Op      string
	Err     error

	// Auth is set when the server rejected the credentials.
	Auth bool
}

func (e *ConnectionError) Error() string {
	kind := "connection error"
	if e.Auth {
		kind = "auth error"
	}
	return fmt.Sprintf("%s (%s): %s: %v", kind, e.Backend, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError reports whether err (or any error in its chain) is a
// ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// IsAuthError reports whether err is a ConnectionError caused by
// rejected credentials.
func IsAuthError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr) && connErr.Auth
}

// RawMessage is one message as delivered by a backend: the full RFC 5322
// literal plus the backend-local reference it was fetched by.
type RawMessage struct {
	Ref     string
	Literal []byte
}

// Header parses the message header. Header values stay encoded; use the
// mail.Header accessors (Subject, Text, AddressList) to decode them.
func (m RawMessage) Header() (mail.Header, error) {
	if len(m.Literal) == 0 {
		return mail.Header{}, errors.New("empty message")
	}
	entity, err := message.Read(bytes.NewReader(m.Literal))
	if err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err) {
		return mail.Header{}, fmt.Errorf("reading header of %s: %w", m.Ref, err)
	}
	if entity == nil {
		return mail.Header{}, fmt.Errorf("reading header of %s: no entity", m.Ref)
	}
	return mail.Header{Header: entity.Header}, nil
}

// TextBody returns the first text/plain part of the message decoded to
// UTF-8. A single-part text message counts as its own text part.
func (m RawMessage) TextBody() (string, error) {
	mr, err := mail.CreateReader(bytes.NewReader(m.Literal))
	if err != nil && !message.IsUnknownCharset(err) {
		return "", fmt.Errorf("reading body of %s: %w", m.Ref, err)
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return "", nil
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return "", fmt.Errorf("reading part of %s: %w", m.Ref, err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		if contentType != "" && !strings.HasPrefix(contentType, "text/plain") {
			continue
		}

		body, err := io.ReadAll(part.Body)
		if err != nil {
			return "", fmt.Errorf("decoding text part of %s: %w", m.Ref, err)
		}
		return string(body), nil
	}
}

// Backend executes a subject and recipient query against a remote
// mailbox.
type Backend interface {
	// Kind identifies the backend in logs and results.
	Kind() model.BackendKind

	// Search returns the raw messages matching q. Messages that cannot
	// be fetched individually are skipped; only connection and protocol
	// failures fail the call.
	Search(ctx context.Context, q model.SearchQuery) ([]RawMessage, error)
}
