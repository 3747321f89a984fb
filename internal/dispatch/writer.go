package dispatch

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/nhle/thread-reply/internal/model"
)

// Writer is a dry-run dispatcher that writes the composed message to an
// io.Writer instead of delivering it.
type Writer struct {
	w   io.Writer
	now func() time.Time
}

// NewWriter creates a dry-run dispatcher writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, now: time.Now}
}

// Name implements Dispatcher.
func (d *Writer) Name() string {
	return "dry-run"
}

// Send implements Dispatcher.
func (d *Writer) Send(_ context.Context, msg *model.OutgoingMessage) error {
	raw, err := Compose(msg, d.now())
	if err != nil {
		return err
	}
	if _, err := d.w.Write(raw); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}
