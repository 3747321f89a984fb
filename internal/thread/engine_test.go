package thread

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/nhle/thread-reply/internal/model"
	"github.com/nhle/thread-reply/internal/source"
)

var testNow = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

type fakeBackend struct {
	kind  model.BackendKind
	msgs  []source.RawMessage
	err   error
	calls int
	query model.SearchQuery
}

func (f *fakeBackend) Kind() model.BackendKind { return f.kind }

func (f *fakeBackend) Search(_ context.Context, q model.SearchQuery) ([]source.RawMessage, error) {
	f.calls++
	f.query = q
	return f.msgs, f.err
}

type rawFixture struct {
	ref, id, subject, date, body, references, replyTo string
}

func rawMessage(m rawFixture) source.RawMessage {
	var b strings.Builder
	b.WriteString("From: Shop <shop@example.com>\r\n")
	b.WriteString("To: client@example.com\r\n")
	if m.id != "" {
		b.WriteString("Message-Id: " + m.id + "\r\n")
	}
	b.WriteString("Subject: " + m.subject + "\r\n")
	if m.date != "" {
		b.WriteString("Date: " + m.date + "\r\n")
	}
	if m.references != "" {
		b.WriteString("References: " + m.references + "\r\n")
	}
	if m.replyTo != "" {
		b.WriteString("Reply-To: " + m.replyTo + "\r\n")
	}
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(m.body)
	return source.RawMessage{Ref: m.ref, Literal: []byte(b.String())}
}

func newTestEngine(t *testing.T, backends Backends, maxResults int) (*Engine, *test.Hook) {
	t.Helper()

	log, hook := test.NewNullLogger()
	log.SetOutput(io.Discard)
	e, err := NewEngine(Options{
		Backends:   backends,
		MaxResults: maxResults,
		Clock:      func() time.Time { return testNow },
		Logger:     logrus.NewEntry(log),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e, hook
}

func TestFindThreadsDeduplicatesAndExtractsToken(t *testing.T) {
	t.Parallel()

	first := rawFixture{
		ref: "1", id: "<id1@example.com>", subject: "Order #42",
		date: "Mon, 01 Apr 2024 10:00:00 +0000", body: "Total [Item: 1000.50] and [other]",
	}
	dup := first
	dup.ref = "2"
	dup.body = "[duplicate]"

	backend := &fakeBackend{kind: model.BackendIMAP, msgs: []source.RawMessage{rawMessage(first), rawMessage(dup)}}
	e, _ := newTestEngine(t, Backends{Primary: backend}, 50)

	got, err := e.FindThreads(context.Background(), "Order #42 (#ПЕР)", "client@example.com")
	if err != nil {
		t.Fatalf("FindThreads: %v", err)
	}

	if backend.query.Subject != "Order #42" {
		t.Errorf("query subject: got %q, want %q", backend.query.Subject, "Order #42")
	}
	if backend.query.WindowDays != 30 || backend.query.MaxResults != 50 {
		t.Errorf("query bounds: got %d/%d", backend.query.WindowDays, backend.query.MaxResults)
	}
	if len(got) != 1 {
		t.Fatalf("records: got %d, want 1", len(got))
	}
	rec := got[0]
	if rec.CorrelationToken != "Item: 1000.50" {
		t.Errorf("token: got %q, want %q", rec.CorrelationToken, "Item: 1000.50")
	}
	if len(rec.References) != 0 {
		t.Errorf("references: got %v, want empty", rec.References)
	}
	if rec.SourceRef != "1" {
		t.Errorf("first occurrence should win: got ref %q", rec.SourceRef)
	}
	if rec.ReplyTarget != "shop@example.com" {
		t.Errorf("reply target: got %q", rec.ReplyTarget)
	}
}

func TestFindThreadsSortsNewestFirstStable(t *testing.T) {
	t.Parallel()

	msgs := []source.RawMessage{
		rawMessage(rawFixture{ref: "a", id: "<a@x>", subject: "Order", date: "Mon, 01 Apr 2024 08:00:00 +0000"}),
		rawMessage(rawFixture{ref: "b", id: "<b@x>", subject: "Order", date: "Mon, 01 Apr 2024 09:00:00 +0000"}),
		rawMessage(rawFixture{ref: "c", id: "<c@x>", subject: "Order", date: "Mon, 01 Apr 2024 08:00:00 +0000"}),
		rawMessage(rawFixture{ref: "d", id: "<d@x>", subject: "Order", date: "not a date"}),
	}
	e, _ := newTestEngine(t, Backends{Primary: &fakeBackend{kind: model.BackendIMAP, msgs: msgs}}, 50)

	got, err := e.FindThreads(context.Background(), "Order", "client@example.com")
	if err != nil {
		t.Fatalf("FindThreads: %v", err)
	}

	var refs []string
	for _, r := range got {
		refs = append(refs, r.SourceRef)
	}
	// d has no parseable date and takes the retrieval time, the newest.
	want := "d,b,a,c"
	if strings.Join(refs, ",") != want {
		t.Errorf("order: got %v, want %s", refs, want)
	}
	if got[0].DateSource != model.DateDefaulted || !got[0].SentAt.Equal(testNow) {
		t.Errorf("defaulted date: got %v (%v)", got[0].SentAt, got[0].DateSource)
	}
}

func TestFindThreadsTruncatesAndFilters(t *testing.T) {
	t.Parallel()

	msgs := []source.RawMessage{
		rawMessage(rawFixture{ref: "1", id: "<1@x>", subject: "Re: ORDER #42", date: "Mon, 01 Apr 2024 01:00:00 +0000"}),
		rawMessage(rawFixture{ref: "2", id: "<2@x>", subject: "Unrelated", date: "Mon, 01 Apr 2024 02:00:00 +0000"}),
		rawMessage(rawFixture{ref: "3", id: "<3@x>", subject: "order #42", date: "Mon, 01 Apr 2024 03:00:00 +0000"}),
		rawMessage(rawFixture{ref: "4", id: "", subject: "Order #42", date: "Mon, 01 Apr 2024 04:00:00 +0000"}),
		rawMessage(rawFixture{ref: "5", id: "<5@x>", subject: "Order #42", date: "Mon, 01 Apr 2024 05:00:00 +0000"}),
	}
	e, hook := newTestEngine(t, Backends{Primary: &fakeBackend{kind: model.BackendIMAP, msgs: msgs}}, 2)

	got, err := e.FindThreads(context.Background(), "Order #42", "client@example.com")
	if err != nil {
		t.Fatalf("FindThreads: %v", err)
	}

	if len(got) != 2 || got[0].SourceRef != "5" || got[1].SourceRef != "3" {
		t.Errorf("records: got %+v", got)
	}

	var skipped int
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "skipping unparseable message" {
			skipped++
		}
	}
	if skipped != 1 {
		t.Errorf("parse warnings: got %d, want 1", skipped)
	}
}

func TestFindThreadsEmptyResultIsNotAnError(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, Backends{Primary: &fakeBackend{kind: model.BackendIMAP}}, 50)

	got, err := e.FindThreads(context.Background(), "Order", "client@example.com")
	if err != nil {
		t.Fatalf("FindThreads: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("records: got %d, want 0", len(got))
	}
}

func TestFindThreadsValidation(t *testing.T) {
	t.Parallel()

	backend := &fakeBackend{kind: model.BackendIMAP}
	e, _ := newTestEngine(t, Backends{Primary: backend}, 50)

	tests := []struct {
		subject, recipient string
	}{
		{"", "client@example.com"},
		{"   ", "client@example.com"},
		{"Order", " "},
		{"(#ПЕР)", "client@example.com"},
	}
	for _, tt := range tests {
		_, err := e.FindThreads(context.Background(), tt.subject, tt.recipient)
		if !IsValidationError(err) {
			t.Errorf("FindThreads(%q, %q): got %v, want ValidationError", tt.subject, tt.recipient, err)
		}
	}
	if backend.calls != 0 {
		t.Errorf("backend calls: got %d, want 0", backend.calls)
	}
}

func TestFindThreadsFallsBackOnConnectionError(t *testing.T) {
	t.Parallel()

	api := &fakeBackend{
		kind: model.BackendGmail,
		err:  &source.ConnectionError{Backend: model.BackendGmail, Op: "list", Err: errors.New("timeout")},
	}
	protocol := &fakeBackend{
		kind: model.BackendIMAP,
		msgs: []source.RawMessage{rawMessage(rawFixture{ref: "9", id: "<9@x>", subject: "Order"})},
	}
	e, hook := newTestEngine(t, Backends{Primary: api, Fallback: protocol}, 50)

	got, err := e.FindThreads(context.Background(), "Order", "client@example.com")
	if err != nil {
		t.Fatalf("FindThreads: %v", err)
	}
	if api.calls != 1 || protocol.calls != 1 {
		t.Errorf("calls: api %d, protocol %d, want 1 each", api.calls, protocol.calls)
	}
	if len(got) != 1 || got[0].Backend != model.BackendIMAP {
		t.Errorf("records: got %+v", got)
	}

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Data["backend"] == model.BackendGmail {
			warned = true
		}
	}
	if !warned {
		t.Error("expected the api failure to be logged")
	}
}

func TestFindThreadsFallbackFailureSurfaces(t *testing.T) {
	t.Parallel()

	connErr := func(kind model.BackendKind) error {
		return &source.ConnectionError{Backend: kind, Op: "dial", Err: errors.New("refused")}
	}
	api := &fakeBackend{kind: model.BackendGmail, err: connErr(model.BackendGmail)}
	protocol := &fakeBackend{kind: model.BackendIMAP, err: connErr(model.BackendIMAP)}
	e, _ := newTestEngine(t, Backends{Primary: api, Fallback: protocol}, 50)

	_, err := e.FindThreads(context.Background(), "Order", "client@example.com")
	if !source.IsConnectionError(err) {
		t.Fatalf("FindThreads: got %v, want ConnectionError", err)
	}
	if api.calls != 1 || protocol.calls != 1 {
		t.Errorf("calls: api %d, protocol %d, want 1 each", api.calls, protocol.calls)
	}
}

func TestFindThreadsNoFallbackOnProtocolError(t *testing.T) {
	t.Parallel()

	api := &fakeBackend{kind: model.BackendGmail, err: errors.New("bad query")}
	protocol := &fakeBackend{kind: model.BackendIMAP}
	e, _ := newTestEngine(t, Backends{Primary: api, Fallback: protocol}, 50)

	if _, err := e.FindThreads(context.Background(), "Order", "client@example.com"); err == nil {
		t.Fatal("FindThreads: expected error")
	}
	if protocol.calls != 0 {
		t.Errorf("protocol calls: got %d, want 0", protocol.calls)
	}
}

func TestSelectBackends(t *testing.T) {
	t.Parallel()

	api := &fakeBackend{kind: model.BackendGmail}
	protocol := &fakeBackend{kind: model.BackendIMAP}

	tests := []struct {
		name         string
		account      model.AccountConfig
		api          source.Backend
		wantPrimary  model.BackendKind
		wantFallback bool
	}{
		{"gmail enabled", model.AccountConfig{Email: "me@gmail.com", UseProgrammaticSearch: true}, api, model.BackendGmail, true},
		{"gmail disabled", model.AccountConfig{Email: "me@gmail.com"}, api, model.BackendIMAP, false},
		{"workspace domain", model.AccountConfig{Email: "me@corp.example", UseProgrammaticSearch: true, GoogleDomains: []string{"corp.example"}}, api, model.BackendGmail, true},
		{"other domain", model.AccountConfig{Email: "me@yandex.ru", UseProgrammaticSearch: true}, api, model.BackendIMAP, false},
		{"api unavailable", model.AccountConfig{Email: "me@gmail.com", UseProgrammaticSearch: true}, nil, model.BackendIMAP, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := SelectBackends(tt.account, tt.api, protocol)
			if got.Primary.Kind() != tt.wantPrimary {
				t.Errorf("primary: got %s, want %s", got.Primary.Kind(), tt.wantPrimary)
			}
			if (got.Fallback != nil) != tt.wantFallback {
				t.Errorf("fallback present: got %v, want %v", got.Fallback != nil, tt.wantFallback)
			}
		})
	}
}

func TestNewEngineRequiresBackend(t *testing.T) {
	t.Parallel()

	if _, err := NewEngine(Options{}); err == nil {
		t.Fatal("NewEngine: expected error without backend")
	}
}
