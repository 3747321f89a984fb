package thread

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/thread-reply/internal/correlate"
	"github.com/nhle/thread-reply/internal/model"
	"github.com/nhle/thread-reply/internal/source"
)

const (
	defaultWindowDays = 30
	defaultMaxResults = 50
)

// Backends is the outcome of backend selection: the backend tried first
// and the one used once if the first cannot connect.
type Backends struct {
	Primary  source.Backend
	Fallback source.Backend
}

// SelectBackends picks the Gmail API backend for Google-hosted accounts
// with programmatic search enabled and the IMAP backend otherwise. api
// may be nil when the API backend is unavailable.
func SelectBackends(account model.AccountConfig, api, protocol source.Backend) Backends {
	isGoogle := source.ProviderFor(account.Email, account.GoogleDomains) == source.ProviderGoogle
	if account.UseProgrammaticSearch && isGoogle && api != nil {
		return Backends{Primary: api, Fallback: protocol}
	}
	return Backends{Primary: protocol}
}

// Options configures an Engine.
type Options struct {
	Backends   Backends
	WindowDays int
	MaxResults int
	Clock      func() time.Time
	Logger     *logrus.Entry
}

// Engine finds prior messages a draft can be threaded onto.
type Engine struct {
	backends   Backends
	windowDays int
	maxResults int
	now        func() time.Time
	log        *logrus.Entry
}

// NewEngine creates an Engine. The backend choice in opts is fixed for
// the lifetime of the engine.
func NewEngine(opts Options) (*Engine, error) {
	if opts.Backends.Primary == nil {
		return nil, fmt.Errorf("thread engine: no search backend configured")
	}

	e := &Engine{
		backends:   opts.Backends,
		windowDays: opts.WindowDays,
		maxResults: opts.MaxResults,
		now:        opts.Clock,
		log:        opts.Logger,
	}
	if e.windowDays <= 0 {
		e.windowDays = defaultWindowDays
	}
	if e.maxResults <= 0 {
		e.maxResults = defaultMaxResults
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.log == nil {
		e.log = logrus.NewEntry(logrus.StandardLogger())
	}
	e.log = e.log.WithField("component", "thread")

	return e, nil
}

// Query builds the search query for a draft. It fails with a
// *ValidationError when subject or recipient is blank, including a
// subject that is blank once its markers are removed.
func (e *Engine) Query(subject, recipient string) (model.SearchQuery, error) {
	if strings.TrimSpace(subject) == "" {
		return model.SearchQuery{}, &ValidationError{Field: "subject", Reason: "must not be blank"}
	}
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return model.SearchQuery{}, &ValidationError{Field: "recipient", Reason: "must not be blank"}
	}

	normalized := correlate.NormalizeSubject(subject)
	if normalized == "" {
		return model.SearchQuery{}, &ValidationError{Field: "subject", Reason: "contains only a branch marker"}
	}

	return model.SearchQuery{
		Subject:    normalized,
		Recipient:  recipient,
		WindowDays: e.windowDays,
		MaxResults: e.maxResults,
	}, nil
}

// FindThreads returns the prior messages matching subject and recipient,
// most recent first. An empty result is not an error.
func (e *Engine) FindThreads(
	ctx context.Context, subject, recipient string,
) ([]model.ThreadRecord, error) {
	q, err := e.Query(subject, recipient)
	if err != nil {
		return nil, err
	}

	log := e.log.WithFields(logrus.Fields{
		"subject":   q.Subject,
		"recipient": q.Recipient,
	})

	raws, kind, err := e.search(ctx, q, log)
	if err != nil {
		return nil, err
	}

	now := e.now()
	needle := strings.ToLower(q.Subject)
	seen := make(map[string]bool, len(raws))
	records := make([]model.ThreadRecord, 0, len(raws))

	for _, raw := range raws {
		p, err := ParseMessage(raw, kind, now)
		if err != nil {
			log.WithError(err).Warn("skipping unparseable message")
			continue
		}

		rec := p.Record
		if p.Body == BodyUndecodable {
			log.WithError(p.BodyErr).WithField("ref", raw.Ref).Debug("body not decoded, token left empty")
		}
		if rec.DateSource == model.DateDefaulted {
			log.WithField("ref", raw.Ref).Debug("date not parsed, using retrieval time")
		}

		if !strings.Contains(strings.ToLower(rec.Subject), needle) {
			log.WithField("ref", raw.Ref).Debug("subject does not contain query, dropped")
			continue
		}
		if seen[rec.MessageID] {
			continue
		}
		seen[rec.MessageID] = true
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SentAt.After(records[j].SentAt)
	})

	if len(records) > q.MaxResults {
		records = records[:q.MaxResults]
	}

	log.WithFields(logrus.Fields{
		"backend": kind,
		"fetched": len(raws),
		"threads": len(records),
	}).Info("thread search finished")

	return records, nil
}

// search runs the primary backend and, when it cannot connect, the
// fallback exactly once.
func (e *Engine) search(
	ctx context.Context, q model.SearchQuery, log *logrus.Entry,
) ([]source.RawMessage, model.BackendKind, error) {
	primary := e.backends.Primary

	raws, err := primary.Search(ctx, q)
	if err == nil {
		return raws, primary.Kind(), nil
	}

	fallback := e.backends.Fallback
	if fallback == nil || !source.IsConnectionError(err) {
		return nil, primary.Kind(), fmt.Errorf("searching %s: %w", primary.Kind(), err)
	}

	log.WithError(err).
		WithField("backend", primary.Kind()).
		Warn("search backend unavailable, falling back")

	raws, err = fallback.Search(ctx, q)
	if err != nil {
		return nil, fallback.Kind(), fmt.Errorf("searching %s: %w", fallback.Kind(), err)
	}
	return raws, fallback.Kind(), nil
}
