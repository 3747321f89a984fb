package dispatch

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"

	"github.com/nhle/thread-reply/internal/model"
)

// Compose renders msg as an RFC 5322 message with a text/plain body and
// one part per attachment.
func Compose(msg *model.OutgoingMessage, date time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(date)
	h.SetAddressList("From", []*mail.Address{{Name: msg.FromName, Address: msg.From}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	h.SetSubject(msg.Subject)
	if msg.MessageID != "" {
		h.SetMessageID(strings.Trim(msg.MessageID, "<>"))
	}
	if msg.IsReply() {
		h.Set("In-Reply-To", msg.InReplyTo)
		h.Set("References", msg.ThreadHeaders().ReferencesValue())
	}

	var buf bytes.Buffer

	if len(msg.Attachments) == 0 {
		h.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
		h.Set("Content-Transfer-Encoding", "quoted-printable")
		w, err := mail.CreateSingleInlineWriter(&buf, h)
		if err != nil {
			return nil, fmt.Errorf("creating message: %w", err)
		}
		if _, err := io.WriteString(w, msg.Body); err != nil {
			return nil, fmt.Errorf("writing body: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("closing message: %w", err)
		}
		return buf.Bytes(), nil
	}

	w, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("creating message: %w", err)
	}

	if err := writeTextPart(w, msg.Body); err != nil {
		return nil, err
	}
	for _, path := range msg.Attachments {
		if err := writeAttachment(w, path); err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing message: %w", err)
	}
	return buf.Bytes(), nil
}

func writeTextPart(w *mail.Writer, body string) error {
	tw, err := w.CreateInline()
	if err != nil {
		return fmt.Errorf("creating inline part: %w", err)
	}

	var th mail.InlineHeader
	th.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	th.Set("Content-Transfer-Encoding", "quoted-printable")
	pw, err := tw.CreatePart(th)
	if err != nil {
		return fmt.Errorf("creating text part: %w", err)
	}
	if _, err := io.WriteString(pw, body); err != nil {
		return fmt.Errorf("writing body: %w", err)
	}
	if err := pw.Close(); err != nil {
		return fmt.Errorf("closing text part: %w", err)
	}
	return tw.Close()
}

func writeAttachment(w *mail.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening attachment: %w", err)
	}
	defer f.Close()

	name := filepath.Base(path)
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	var ah mail.AttachmentHeader
	ah.Set("Content-Type", contentType)
	ah.Set("Content-Transfer-Encoding", "base64")
	ah.SetFilename(name)

	aw, err := w.CreateAttachment(ah)
	if err != nil {
		return fmt.Errorf("creating attachment part %s: %w", name, err)
	}
	if _, err := io.Copy(aw, f); err != nil {
		return fmt.Errorf("writing attachment %s: %w", name, err)
	}
	return aw.Close()
}
