package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/api/googleapi"

	"github.com/nhle/thread-reply/internal/model"
	"github.com/nhle/thread-reply/internal/source"
)

type fakeAPI struct {
	ids     []string
	raw     map[string]string
	listErr error

	mu        sync.Mutex
	query     string
	max       int64
	getCalls  int
	failedIDs map[string]bool
}

func (f *fakeAPI) List(_ context.Context, query string, maxResults int64) ([]string, error) {
	f.query = query
	f.max = maxResults
	return f.ids, f.listErr
}

func (f *fakeAPI) GetRaw(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.failedIDs[id] {
		return "", errors.New("backend error")
	}
	return f.raw[id], nil
}

func newTestBackend(api MessagesAPI) *Backend {
	log := logrus.New()
	log.SetOutput(io.Discard)
	b := New(api, logrus.NewEntry(log))
	b.now = func() time.Time { return time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC) }
	return b
}

func encode(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func TestBuildQuery(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 31, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		q    model.SearchQuery
		want string
	}{
		{
			q:    model.SearchQuery{Subject: "Order #42", Recipient: "client@example.com", WindowDays: 30},
			want: `to:client@example.com subject:"Order #42" after:2024/03/01`,
		},
		{
			q:    model.SearchQuery{Subject: `Say "hi"`, Recipient: "a@b.c"},
			want: `to:a@b.c subject:"Say  hi"`,
		},
	}
	for _, tt := range tests {
		if got := buildQuery(tt.q, now); got != tt.want {
			t.Errorf("buildQuery(%+v): got %q, want %q", tt.q, got, tt.want)
		}
	}
}

func TestSearchPreservesListOrderAndSkipsFailures(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		ids: []string{"a", "b", "c", "d"},
		raw: map[string]string{
			"a": encode("Message-Id: <a@x>\r\n\r\nA"),
			"b": "!!not base64!!",
			"c": base64.URLEncoding.EncodeToString([]byte("Message-Id: <c@x>\r\n\r\nC")),
		},
		failedIDs: map[string]bool{"d": true},
	}
	b := newTestBackend(api)

	msgs, err := b.Search(context.Background(), model.SearchQuery{
		Subject: "Order", Recipient: "client@example.com", WindowDays: 30, MaxResults: 10,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if api.max != 10 {
		t.Errorf("maxResults: got %d, want 10", api.max)
	}
	if api.getCalls != 4 {
		t.Errorf("GetRaw calls: got %d, want 4", api.getCalls)
	}
	if len(msgs) != 2 || msgs[0].Ref != "a" || msgs[1].Ref != "c" {
		t.Fatalf("messages: got %+v", msgs)
	}
	if !strings.Contains(string(msgs[1].Literal), "<c@x>") {
		t.Errorf("literal c: got %q", msgs[1].Literal)
	}
}

func TestSearchListFailureIsConnectionError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantAuth bool
	}{
		{"unauthorized", &googleapi.Error{Code: http.StatusUnauthorized}, true},
		{"server error", &googleapi.Error{Code: http.StatusInternalServerError}, false},
		{"network", errors.New("dial tcp: no route to host"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := newTestBackend(&fakeAPI{listErr: tt.err})

			_, err := b.Search(context.Background(), model.SearchQuery{Subject: "s", Recipient: "r@x.y"})
			if !source.IsConnectionError(err) {
				t.Fatalf("Search: got %v, want ConnectionError", err)
			}
			if got := source.IsAuthError(err); got != tt.wantAuth {
				t.Errorf("IsAuthError: got %v, want %v", got, tt.wantAuth)
			}
		})
	}
}

func TestSearchNoMatches(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	msgs, err := newTestBackend(api).Search(context.Background(), model.SearchQuery{Subject: "s", Recipient: "r@x.y"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("messages: got %d, want 0", len(msgs))
	}
	if api.max != 50 {
		t.Errorf("default maxResults: got %d, want 50", api.max)
	}
}

func TestAuthCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"  4/abc  ", "4/abc", false},
		{"http://127.0.0.1:8080/?state=s&code=4/xyz", "4/xyz", false},
		{"https://example.com/?state=s", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := authCode(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("authCode(%q): err = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("authCode(%q): got %q, want %q", tt.input, got, tt.want)
		}
	}
}

// stallingAPI lists messages but blocks every Get until ctx is done.
type stallingAPI struct {
	ids []string
}

func (a stallingAPI) List(context.Context, string, int64) ([]string, error) {
	return a.ids, nil
}

func (a stallingAPI) GetRaw(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestSearchDeadlineDuringFetchIsConnectionError(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	msgs, err := newTestBackend(stallingAPI{ids: []string{"a", "b"}}).
		Search(ctx, model.SearchQuery{Subject: "s", Recipient: "r@x.y"})
	if !source.IsConnectionError(err) {
		t.Fatalf("Search: got %d messages, err %v; want ConnectionError", len(msgs), err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error chain lacks DeadlineExceeded: %v", err)
	}
}

func TestSearchEveryGetFailingIsConnectionError(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		ids:       []string{"a", "b"},
		failedIDs: map[string]bool{"a": true, "b": true},
	}
	_, err := newTestBackend(api).Search(context.Background(), model.SearchQuery{Subject: "s", Recipient: "r@x.y"})
	if !source.IsConnectionError(err) {
		t.Fatalf("Search: got %v, want ConnectionError", err)
	}
}
