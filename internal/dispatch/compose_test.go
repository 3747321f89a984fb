package dispatch

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/thread-reply/internal/source"
)

var composeDate = time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)

func TestComposeReplyHeaders(t *testing.T) {
	t.Parallel()

	msg := validMessage()
	msg.FromName = "Ops Desk"
	msg.Subject = "Заказ #42 (#ПЕР)"
	msg.MessageID = "<new@example.com>"
	msg.InReplyTo = "<c@example.com>"
	msg.References = []string{"<a@example.com>", "<b@example.com>", "<c@example.com>"}

	raw, err := Compose(msg, composeDate)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	h, err := source.RawMessage{Ref: "composed", Literal: raw}.Header()
	if err != nil {
		t.Fatalf("Header: %v", err)
	}

	if got := h.Get("In-Reply-To"); got != "<c@example.com>" {
		t.Errorf("In-Reply-To: got %q", got)
	}
	if got := strings.Fields(h.Get("References")); len(got) != 3 || got[2] != "<c@example.com>" {
		t.Errorf("References: got %v", got)
	}
	if got := h.Get("Message-Id"); got != "<new@example.com>" {
		t.Errorf("Message-Id: got %q", got)
	}
	if subject, _ := h.Subject(); subject != msg.Subject {
		t.Errorf("Subject: got %q, want %q", subject, msg.Subject)
	}

	body, err := source.RawMessage{Literal: raw}.TextBody()
	if err != nil {
		t.Fatalf("TextBody: %v", err)
	}
	if strings.TrimSpace(body) != msg.Body {
		t.Errorf("body: got %q", body)
	}
}

func TestComposeNewMessageHasNoThreadHeaders(t *testing.T) {
	t.Parallel()

	raw, err := Compose(validMessage(), composeDate)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	h, err := source.RawMessage{Literal: raw}.Header()
	if err != nil {
		t.Fatalf("Header: %v", err)
	}
	if h.Has("In-Reply-To") || h.Has("References") {
		t.Errorf("unexpected threading headers in %s", raw)
	}
}

func TestComposeWithAttachment(t *testing.T) {
	t.Parallel()

	path := writeTempFile(t, "invoice.txt", "line items")
	msg := validMessage()
	msg.Attachments = []string{path}

	raw, err := Compose(msg, composeDate)
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("CreateReader: %v", err)
	}

	var text, attachment, filename string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("NextPart: %v", err)
		}
		b, _ := io.ReadAll(part.Body)
		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			text = string(b)
		case *mail.AttachmentHeader:
			filename, _ = h.Filename()
			attachment = string(b)
		}
	}

	if strings.TrimSpace(text) != msg.Body {
		t.Errorf("text part: got %q", text)
	}
	if filename != "invoice.txt" || attachment != "line items" {
		t.Errorf("attachment: got %q = %q", filename, attachment)
	}
}

func TestComposeMissingAttachment(t *testing.T) {
	t.Parallel()

	msg := validMessage()
	msg.Attachments = []string{"/nonexistent/file.bin"}
	if _, err := Compose(msg, composeDate); err == nil {
		t.Fatal("Compose: expected error for missing attachment")
	}
}
