package dispatch

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
)

// mockSESClient implements SendEmailAPI for testing.
type mockSESClient struct {
	sendFn    func(ctx context.Context, params *sesv2.SendEmailInput) (*sesv2.SendEmailOutput, error)
	callCount int
	lastInput *sesv2.SendEmailInput
}

func (m *mockSESClient) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.callCount++
	m.lastInput = params
	if m.sendFn != nil {
		return m.sendFn(ctx, params)
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-id")}, nil
}

func newTestSES(client SendEmailAPI) *SES {
	s := NewSESWithClient(client, quietLogger())
	s.retryDelay = 0
	return s
}

func TestSESSendRawWithThreadingHeaders(t *testing.T) {
	t.Parallel()

	mock := &mockSESClient{}
	msg := validMessage()
	msg.InReplyTo = "<id1>"
	msg.References = []string{"<id1>"}

	if err := newTestSES(mock).Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	in := mock.lastInput
	if in == nil || in.Content == nil || in.Content.Raw == nil {
		t.Fatalf("expected raw content, got %+v", in)
	}
	if aws.ToString(in.FromEmailAddress) != "me@example.com" {
		t.Errorf("FromEmailAddress: got %q", aws.ToString(in.FromEmailAddress))
	}
	if len(in.Destination.ToAddresses) != 1 || in.Destination.ToAddresses[0] != "client@example.com" {
		t.Errorf("ToAddresses: got %v", in.Destination.ToAddresses)
	}
	if !bytes.Contains(in.Content.Raw.Data, []byte("In-Reply-To: <id1>")) {
		t.Errorf("raw message lacks In-Reply-To:\n%s", in.Content.Raw.Data)
	}
}

func TestSESSendRetries(t *testing.T) {
	t.Parallel()

	throttled := &types.TooManyRequestsException{Message: aws.String("slow down")}
	mock := &mockSESClient{}
	mock.sendFn = func(context.Context, *sesv2.SendEmailInput) (*sesv2.SendEmailOutput, error) {
		if mock.callCount < 3 {
			return nil, throttled
		}
		return &sesv2.SendEmailOutput{MessageId: aws.String("ok")}, nil
	}

	if err := newTestSES(mock).Send(context.Background(), validMessage()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if mock.callCount != 3 {
		t.Errorf("call count: got %d, want 3", mock.callCount)
	}
}

func TestSESSendGivesUp(t *testing.T) {
	t.Parallel()

	failure := &smithy.GenericAPIError{Code: "InternalFailure", Message: "try later", Fault: smithy.FaultServer}
	mock := &mockSESClient{
		sendFn: func(context.Context, *sesv2.SendEmailInput) (*sesv2.SendEmailOutput, error) {
			return nil, failure
		},
	}

	err := newTestSES(mock).Send(context.Background(), validMessage())
	if !errors.Is(err, failure) {
		t.Fatalf("Send: got %v, want wrapped failure", err)
	}
	if mock.callCount != sesMaxRetries+1 {
		t.Errorf("call count: got %d, want %d", mock.callCount, sesMaxRetries+1)
	}
}

func TestSESSendDoesNotRetryRejections(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{"message rejected", &types.MessageRejected{Message: aws.String("Email address is not verified")}},
		{"bad request", &types.BadRequestException{Message: aws.String("invalid raw message")}},
		{"plain error", errors.New("access denied")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mock := &mockSESClient{
				sendFn: func(context.Context, *sesv2.SendEmailInput) (*sesv2.SendEmailOutput, error) {
					return nil, tt.err
				},
			}

			err := newTestSES(mock).Send(context.Background(), validMessage())
			if !errors.Is(err, tt.err) {
				t.Fatalf("Send: got %v, want wrapped %v", err, tt.err)
			}
			if mock.callCount != 1 {
				t.Errorf("call count: got %d, want 1", mock.callCount)
			}
		})
	}
}
