package dispatch

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/nhle/thread-reply/internal/model"
)

// SMTPConfig holds the relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

// sender is satisfied by *gomail.Dialer.
type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTP delivers messages through an SMTP relay.
type SMTP struct {
	dialer sender
	now    func() time.Time
	log    *logrus.Entry
}

// NewSMTP creates an SMTP dispatcher. Port 465 uses implicit TLS; other
// ports upgrade with STARTTLS when the server offers it.
func NewSMTP(cfg SMTPConfig, log *logrus.Entry) *SMTP {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	return newSMTP(d, log)
}

func newSMTP(d sender, log *logrus.Entry) *SMTP {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SMTP{
		dialer: d,
		now:    time.Now,
		log:    log.WithField("dispatcher", "smtp"),
	}
}

// Name implements Dispatcher.
func (s *SMTP) Name() string {
	return "smtp"
}

// Send implements Dispatcher. gomail has no context support, so a
// cancelled ctx abandons the send without interrupting it.
func (s *SMTP) Send(ctx context.Context, msg *model.OutgoingMessage) error {
	m := s.message(msg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", msg.To, err)
		}
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s: %w", msg.To, ctx.Err())
	}

	s.log.WithFields(logrus.Fields{
		"to":         msg.To,
		"message_id": msg.MessageID,
		"reply":      msg.IsReply(),
	}).Info("message sent")
	return nil
}

func (s *SMTP) message(msg *model.OutgoingMessage) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", msg.From, msg.FromName)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetDateHeader("Date", s.now())
	if msg.MessageID != "" {
		m.SetHeader("Message-ID", msg.MessageID)
	}
	if msg.IsReply() {
		m.SetHeader("In-Reply-To", msg.InReplyTo)
		m.SetHeader("References", msg.ThreadHeaders().ReferencesValue())
	}
	m.SetBody("text/plain", msg.Body)
	for _, path := range msg.Attachments {
		m.Attach(path)
	}
	return m
}
