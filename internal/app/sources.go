package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/thread-reply/internal/credential"
	"github.com/nhle/thread-reply/internal/dispatch"
	"github.com/nhle/thread-reply/internal/model"
	"github.com/nhle/thread-reply/internal/source"
	"github.com/nhle/thread-reply/internal/source/gmail"
	"github.com/nhle/thread-reply/internal/source/mailbox"
	"github.com/nhle/thread-reply/internal/thread"
)

// MailboxConfig resolves the IMAP settings for cfg. The host and port
// fall back to the provider defaults for the account domain, and the
// password comes from the credential store.
func MailboxConfig(cfg *model.AppConfig) (mailbox.Config, error) {
	host, port := cfg.IMAP.Host, cfg.IMAP.Port
	if host == "" {
		ep, ok := source.DefaultIMAPEndpoint(source.ProviderFor(cfg.Account.Email, cfg.Account.GoogleDomains))
		if !ok {
			return mailbox.Config{}, fmt.Errorf("imap.host is not set and %s has no known IMAP server", source.Domain(cfg.Account.Email))
		}
		host = ep.Host
		if port == 0 {
			port = ep.Port
		}
	}

	password, err := credential.Resolve(credential.KeyIMAPPassword)
	if err != nil {
		return mailbox.Config{}, fmt.Errorf("imap password: %w", err)
	}

	return mailbox.Config{
		Host:      host,
		Port:      port,
		Username:  cfg.IMAP.Username,
		Password:  password,
		Security:  mailbox.Security(cfg.IMAP.Security),
		Timeout:   time.Duration(cfg.Search.TimeoutSec) * time.Second,
		Mailboxes: cfg.Search.Mailboxes,
	}, nil
}

// BuildEngine wires the thread engine from cfg. The Gmail API backend
// is used when the account is Google-hosted, programmatic search is
// enabled and an OAuth token is cached; IMAP is the fallback, or the
// only backend otherwise.
func BuildEngine(ctx context.Context, cfg *model.AppConfig, log *logrus.Entry) (*thread.Engine, error) {
	var protocol source.Backend
	mcfg, imapErr := MailboxConfig(cfg)
	if imapErr == nil {
		protocol = mailbox.New(mcfg, log)
	} else {
		log.WithError(imapErr).Warn("imap backend unavailable")
	}

	var api source.Backend
	isGoogle := source.ProviderFor(cfg.Account.Email, cfg.Account.GoogleDomains) == source.ProviderGoogle
	if cfg.Account.UseProgrammaticSearch && isGoogle {
		svc, err := gmail.NewService(ctx, cfg.Gmail.CredentialsPath, cfg.Gmail.TokenPath)
		if err != nil {
			log.WithError(err).Warn("gmail api backend unavailable")
		} else {
			api = gmail.New(gmail.NewMessagesAPI(svc), log)
		}
	}

	backends := thread.SelectBackends(cfg.Account, api, protocol)
	if backends.Primary == nil {
		return nil, fmt.Errorf("no search backend available: %w", imapErr)
	}

	fields := logrus.Fields{"primary": backends.Primary.Kind()}
	if backends.Fallback != nil {
		fields["fallback"] = backends.Fallback.Kind()
	}
	log.WithFields(fields).Debug("search backends selected")

	return thread.NewEngine(thread.Options{
		Backends:   backends,
		WindowDays: cfg.Search.WindowDays,
		MaxResults: cfg.Search.MaxResults,
		Logger:     log,
	})
}

// BuildDispatcher creates the dispatcher named by cfg.Sender.Kind. A
// non-nil dryRun replaces it with a dispatcher that writes the composed
// message to dryRun.
func BuildDispatcher(ctx context.Context, cfg *model.AppConfig, dryRun io.Writer, log *logrus.Entry) (dispatch.Dispatcher, error) {
	if dryRun != nil {
		return dispatch.NewWriter(dryRun), nil
	}

	switch cfg.Sender.Kind {
	case "", "smtp":
		host, port := cfg.Sender.SMTP.Host, cfg.Sender.SMTP.Port
		if host == "" {
			ep, ok := source.DefaultSMTPEndpoint(source.ProviderFor(cfg.Account.Email, cfg.Account.GoogleDomains))
			if !ok {
				return nil, fmt.Errorf("sender.smtp.host is not set and %s has no known SMTP server", source.Domain(cfg.Account.Email))
			}
			host = ep.Host
			if port == 0 {
				port = ep.Port
			}
		}
		password, err := credential.Resolve(credential.KeySMTPPassword)
		if err != nil {
			return nil, fmt.Errorf("smtp password: %w", err)
		}
		return dispatch.NewSMTP(dispatch.SMTPConfig{
			Host:     host,
			Port:     port,
			Username: cfg.Sender.SMTP.Username,
			Password: password,
		}, log), nil

	case "ses":
		secret, err := credential.Resolve(credential.KeySESSecret)
		if err != nil && !errors.Is(err, credential.ErrNotFound) {
			return nil, fmt.Errorf("ses secret: %w", err)
		}
		return dispatch.NewSES(ctx, dispatch.SESConfig{
			Region:          cfg.Sender.SES.Region,
			AccessKeyID:     cfg.Sender.SES.AccessKeyID,
			SecretAccessKey: secret,
		}, log)

	default:
		return nil, fmt.Errorf("sender.kind %q: want smtp or ses", cfg.Sender.Kind)
	}
}

// BuildOutbox wires the dispatcher for cfg behind an Outbox that
// journals every sent message. journal may be nil.
func BuildOutbox(ctx context.Context, cfg *model.AppConfig, journal dispatch.Journal, dryRun io.Writer, log *logrus.Entry) (*dispatch.Outbox, error) {
	d, err := BuildDispatcher(ctx, cfg, dryRun, log)
	if err != nil {
		return nil, err
	}
	if dryRun != nil {
		journal = nil
	}
	return dispatch.NewOutbox(d, journal, cfg.Account.Email, cfg.Account.FromName, log), nil
}
