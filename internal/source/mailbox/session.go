package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/sirupsen/logrus"

	"github.com/nhle/thread-reply/internal/model"
	"github.com/nhle/thread-reply/internal/source"
)

// Security selects how the IMAP connection is protected.
type Security string

const (
	SecurityTLS      Security = "tls"
	SecurityStartTLS Security = "starttls"
	SecurityNone     Security = "none"
)

// session is the part of an IMAP connection the backend drives. Close
// logs out and releases the connection; it must be safe to call on a
// session whose connection already failed.
type session interface {
	Select(mailbox string) error
	SearchUIDs(criteria *imap.SearchCriteria) ([]imap.UID, error)
	FetchRaw(uids []imap.UID, each func(uid imap.UID, literal []byte, err error)) error
	Close() error
}

// logoutTimeout bounds the LOGOUT exchange when releasing a session.
const logoutTimeout = 2 * time.Second

var errLogoutTimeout = errors.New("imap logout timed out")

// clientSession adapts *imapclient.Client to session.
type clientSession struct {
	client   *imapclient.Client
	conn     net.Conn
	debug    io.Closer
	stop     func() bool
	deadline time.Time
}

func (s *clientSession) Select(mailbox string) error {
	_, err := s.client.Select(mailbox, &imap.SelectOptions{ReadOnly: true}).Wait()
	return err
}

func (s *clientSession) SearchUIDs(criteria *imap.SearchCriteria) ([]imap.UID, error) {
	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, err
	}
	return data.AllUIDs(), nil
}

func (s *clientSession) FetchRaw(
	uids []imap.UID,
	each func(uid imap.UID, literal []byte, err error),
) error {
	section := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := s.client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	})
	defer fetchCmd.Close()

	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			each(0, nil, err)
			continue
		}
		each(buf.UID, buf.FindBodySection(section), nil)
	}

	return fetchCmd.Close()
}

func (s *clientSession) Close() error {
	live := true
	if s.stop != nil && !s.stop() {
		// ctx already fired and closed the connection.
		live = false
	}
	if !s.deadline.IsZero() && !time.Now().Before(s.deadline) {
		live = false
	}

	var logoutErr error
	if live {
		logoutErr = s.logout()
	}
	closeErr := s.client.Close()
	if s.debug != nil {
		_ = s.debug.Close()
	}
	if logoutErr != nil {
		return logoutErr
	}
	return closeErr
}

// logout sends LOGOUT and waits at most logoutTimeout for the reply.
func (s *clientSession) logout() error {
	done := make(chan error, 1)
	go func() { done <- s.client.Logout().Wait() }()

	select {
	case err := <-done:
		return err
	case <-time.After(logoutTimeout):
		return errLogoutTimeout
	}
}

// Config holds the IMAP endpoint and credentials.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	Security Security

	// Timeout bounds dialing and the whole session after it.
	Timeout time.Duration

	// Mailboxes are tried in order; the first that can be selected is
	// searched.
	Mailboxes []string
}

func (c Config) addr() string {
	port := c.Port
	if port == 0 {
		port = 993
		if c.Security != SecurityTLS {
			port = 143
		}
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// dial connects, logs in and returns a session whose connection is
// closed when ctx is done or the timeout elapses. Failures are
// ConnectionErrors.
func (c Config) dial(ctx context.Context, log *logrus.Entry) (session, error) {
	addr := c.addr()
	tlsConfig := &tls.Config{ServerName: c.Host}
	dialer := &net.Dialer{Timeout: c.Timeout}

	var conn net.Conn
	var err error
	if c.Security == SecurityTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: tlsConfig}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, &source.ConnectionError{
			Backend: model.BackendIMAP,
			Op:      "dial " + addr,
			Err:     err,
		}
	}

	var deadline time.Time
	if c.Timeout > 0 {
		deadline = time.Now().Add(c.Timeout)
		_ = conn.SetDeadline(deadline)
	}

	opts := &imapclient.Options{TLSConfig: tlsConfig}
	var debug *io.PipeWriter
	if log.Logger.IsLevelEnabled(logrus.TraceLevel) {
		debug = log.WriterLevel(logrus.TraceLevel)
		opts.DebugWriter = debug
	}

	var client *imapclient.Client
	if c.Security == SecurityStartTLS {
		client, err = imapclient.NewStartTLS(conn, opts)
		if err != nil {
			_ = conn.Close()
			if debug != nil {
				_ = debug.Close()
			}
			return nil, &source.ConnectionError{
				Backend: model.BackendIMAP,
				Op:      "starttls " + addr,
				Err:     err,
			}
		}
	} else {
		client = imapclient.New(conn, opts)
	}

	sess := &clientSession{
		client:   client,
		conn:     conn,
		stop:     context.AfterFunc(ctx, func() { _ = conn.Close() }),
		deadline: deadline,
	}
	if debug != nil {
		sess.debug = debug
	}

	if err := client.Login(c.Username, c.Password).Wait(); err != nil {
		_ = sess.Close()
		var imapErr *imap.Error
		return nil, &source.ConnectionError{
			Backend: model.BackendIMAP,
			Op:      fmt.Sprintf("login as %s", c.Username),
			Err:     err,
			Auth:    errors.As(err, &imapErr),
		}
	}

	return sess, nil
}
