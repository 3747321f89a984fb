package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	gmailv1 "google.golang.org/api/gmail/v1"

	"github.com/nhle/thread-reply/internal/model"
	"github.com/nhle/thread-reply/internal/source"
)

const user = "me"

// fetchWorkers bounds concurrent Messages.Get calls.
const fetchWorkers = 8

// MessagesAPI is the part of the Gmail API the backend uses.
type MessagesAPI interface {
	// List returns the ids of messages matching query, newest first.
	List(ctx context.Context, query string, maxResults int64) ([]string, error)

	// GetRaw returns the base64url-encoded RFC 5322 message.
	GetRaw(ctx context.Context, id string) (string, error)
}

type serviceAPI struct {
	svc *gmailv1.Service
}

// NewMessagesAPI adapts a Gmail service to MessagesAPI.
func NewMessagesAPI(svc *gmailv1.Service) MessagesAPI {
	return serviceAPI{svc: svc}
}

func (a serviceAPI) List(ctx context.Context, query string, maxResults int64) ([]string, error) {
	resp, err := a.svc.Users.Messages.List(user).
		Q(query).
		MaxResults(maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

func (a serviceAPI) GetRaw(ctx context.Context, id string) (string, error) {
	msg, err := a.svc.Users.Messages.Get(user, id).
		Format("raw").
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	return msg.Raw, nil
}

// Backend searches a Google mailbox through the Gmail REST API.
type Backend struct {
	api MessagesAPI
	now func() time.Time
	log *logrus.Entry
}

// New creates a Gmail API backend.
func New(api MessagesAPI, log *logrus.Entry) *Backend {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Backend{
		api: api,
		now: time.Now,
		log: log.WithField("backend", model.BackendGmail),
	}
}

// Kind implements source.Backend.
func (b *Backend) Kind() model.BackendKind {
	return model.BackendGmail
}

// Search implements source.Backend.
func (b *Backend) Search(
	ctx context.Context, q model.SearchQuery,
) ([]source.RawMessage, error) {
	query := buildQuery(q, b.now())
	maxResults := int64(q.MaxResults)
	if maxResults <= 0 {
		maxResults = 50
	}

	ids, err := b.api.List(ctx, query, maxResults)
	if err != nil {
		return nil, &source.ConnectionError{
			Backend: model.BackendGmail,
			Op:      "list messages",
			Err:     err,
			Auth:    isAuthFailure(err),
		}
	}
	b.log.WithFields(logrus.Fields{"query": query, "matched": len(ids)}).Debug("gmail search")

	fetched := make([][]byte, len(ids))
	getErrs := make([]error, len(ids))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(fetchWorkers, len(ids)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					getErrs[i] = err
					continue
				}
				fetched[i], getErrs[i] = b.fetch(ctx, ids[i])
			}
		}()
	}
	for i := range ids {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, &source.ConnectionError{
			Backend: model.BackendGmail,
			Op:      "get messages",
			Err:     err,
		}
	}
	if err := allFailed(getErrs); err != nil {
		return nil, &source.ConnectionError{
			Backend: model.BackendGmail,
			Op:      "get messages",
			Err:     err,
			Auth:    isAuthFailure(err),
		}
	}

	messages := make([]source.RawMessage, 0, len(ids))
	for i, literal := range fetched {
		if literal == nil {
			continue
		}
		messages = append(messages, source.RawMessage{Ref: ids[i], Literal: literal})
	}
	return messages, nil
}

// fetch returns the decoded message, or nil when it is unusable. The
// error is set only when the API call itself failed.
func (b *Backend) fetch(ctx context.Context, id string) ([]byte, error) {
	log := b.log.WithField("ref", id)

	raw, err := b.api.GetRaw(ctx, id)
	if err != nil {
		log.WithError(err).Warn("skipping message that could not be fetched")
		return nil, err
	}

	literal, err := decodeBase64URL(raw)
	if err != nil {
		log.WithError(err).Warn("skipping message with undecodable payload")
		return nil, nil
	}
	if len(literal) == 0 {
		log.Warn("skipping empty message")
		return nil, nil
	}
	return literal, nil
}

// allFailed returns the last error when every Get call failed. A
// mailbox that lists messages but serves none is unreachable, not empty.
func allFailed(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	for _, err := range errs {
		if err == nil {
			return nil
		}
	}
	return errs[len(errs)-1]
}

// buildQuery renders a Gmail search expression, e.g.
// `to:client@example.com subject:"Order #42" after:2024/03/01`.
func buildQuery(q model.SearchQuery, now time.Time) string {
	subject := strings.ReplaceAll(q.Subject, `"`, " ")

	var b strings.Builder
	fmt.Fprintf(&b, "to:%s", q.Recipient)
	fmt.Fprintf(&b, ` subject:"%s"`, strings.TrimSpace(subject))
	if q.WindowDays > 0 {
		fmt.Fprintf(&b, " after:%s", q.Since(now).Format("2006/01/02"))
	}
	return b.String()
}

// decodeBase64URL accepts padded and unpadded base64url; Gmail uses both.
func decodeBase64URL(data string) ([]byte, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(data)
}

func isAuthFailure(err error) bool {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return true
	}
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden
}
