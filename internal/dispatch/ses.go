package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"

	"github.com/nhle/thread-reply/internal/model"
)

// sesMaxRetries is the maximum number of retries for a failed SendEmail.
const sesMaxRetries = 3

// SESConfig holds the AWS SES v2 settings.
type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
}

// SendEmailAPI is the SES v2 SendEmail operation.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SES delivers raw MIME messages through AWS SES v2.
type SES struct {
	client     SendEmailAPI
	retryDelay time.Duration
	now        func() time.Time
	log        *logrus.Entry
}

// NewSES loads the AWS configuration and creates an SES dispatcher.
// Static credentials are used when both key id and secret are given;
// otherwise the default AWS credential chain applies.
func NewSES(ctx context.Context, cfg SESConfig, log *logrus.Entry) (*SES, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return NewSESWithClient(sesv2.NewFromConfig(awsCfg), log), nil
}

// NewSESWithClient creates an SES dispatcher over client.
func NewSESWithClient(client SendEmailAPI, log *logrus.Entry) *SES {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SES{
		client:     client,
		retryDelay: time.Second,
		now:        time.Now,
		log:        log.WithField("dispatcher", "ses"),
	}
}

// Name implements Dispatcher.
func (s *SES) Name() string {
	return "ses"
}

// Send implements Dispatcher. Threading headers require the raw content
// form, so every message is sent as raw MIME.
func (s *SES) Send(ctx context.Context, msg *model.OutgoingMessage) error {
	raw, err := Compose(msg, s.now())
	if err != nil {
		return err
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.From),
		Destination:      &types.Destination{ToAddresses: []string{msg.To}},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= sesMaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.retryDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("ses send to %s: %w", msg.To, ctx.Err())
			}
		}

		out, err := s.client.SendEmail(ctx, input)
		if err == nil {
			s.log.WithFields(logrus.Fields{
				"to":         msg.To,
				"message_id": msg.MessageID,
				"ses_id":     aws.ToString(out.MessageId),
			}).Info("message sent")
			return nil
		}

		lastErr = err
		if !retryable(err) {
			return fmt.Errorf("ses send to %s: %w", msg.To, err)
		}
		s.log.WithError(err).WithField("attempt", attempt).Warn("ses send failed")
	}

	return fmt.Errorf("ses send to %s failed after %d retries: %w", msg.To, sesMaxRetries, lastErr)
}

// retryable reports whether a SendEmail failure is worth another attempt:
// throttling, transient connection errors and server-side faults.
// Rejections and validation errors fail at once.
func retryable(err error) bool {
	if retry.IsErrorRetryables(retry.DefaultRetryables).IsErrorRetryable(err) == aws.TrueTernary {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultServer
}
