package mailbox

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/thread-reply/internal/source"
)

// silentServer accepts connections and never sends a greeting. Each
// accepted connection is reported on the returned channel once the
// client side has closed it.
func silentServer(t *testing.T) (Config, <-chan struct{}) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	released := make(chan struct{}, 4)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				_, _ = io.Copy(io.Discard, conn)
				_ = conn.Close()
				released <- struct{}{}
			}()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return Config{
		Host:      "127.0.0.1",
		Port:      addr.Port,
		Username:  "ops@example.com",
		Password:  "secret",
		Security:  SecurityNone,
		Mailboxes: []string{"INBOX"},
	}, released
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func waitReleased(t *testing.T, released <-chan struct{}) {
	t.Helper()
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("connection was not closed")
	}
}

func TestSessionTimeoutBoundsStalledServer(t *testing.T) {
	t.Parallel()

	cfg, released := silentServer(t)
	cfg.Timeout = 200 * time.Millisecond

	start := time.Now()
	_, err := New(cfg, quietLog()).Search(context.Background(), testQuery)
	elapsed := time.Since(start)

	if !source.IsConnectionError(err) {
		t.Fatalf("Search: got %v, want ConnectionError", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("Search returned after %s, want it bounded by the session timeout", elapsed)
	}
	waitReleased(t, released)
}

func TestSessionCancelClosesConnection(t *testing.T) {
	t.Parallel()

	cfg, released := silentServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	defer cancel()

	start := time.Now()
	_, err := New(cfg, quietLog()).Search(ctx, testQuery)
	elapsed := time.Since(start)

	if !source.IsConnectionError(err) {
		t.Fatalf("Search: got %v, want ConnectionError", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("Search returned after %s, want prompt return on cancel", elapsed)
	}
	waitReleased(t, released)
}
