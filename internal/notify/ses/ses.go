// Package ses implements a Notifier that forwards notifications by email
// via AWS SES v2.
package ses

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// maxRetries is the maximum number of retry attempts for transient failures.
const maxRetries = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 1 * time.Second

// subject is the fixed subject line of forwarded notifications.
const subject = "Inbound email notification"

// Config holds the configuration for creating a Notifier.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Sender          string
	Recipient       string
}

// Notifier forwards formatted notifications to a fixed recipient address
// via the AWS SES v2 API.
type Notifier struct {
	sender    string
	recipient string
	client    SendEmailAPI
}

// SendEmailAPI is the interface for the SES v2 SendEmail operation.
// Used for testing with mock implementations.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// New creates a Notifier with the given configuration.
func New(ctx context.Context, cfg Config) (*Notifier, error) {
	var opts []func(*awsconfig.LoadOptions) error

	opts = append(opts, awsconfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Notifier{
		sender:    cfg.Sender,
		recipient: cfg.Recipient,
		client:    sesv2.NewFromConfig(awsCfg),
	}, nil
}

// NewWithClient creates a Notifier with a custom client, used for testing.
func NewWithClient(sender, recipient string, client SendEmailAPI) *Notifier {
	return &Notifier{
		sender:    sender,
		recipient: recipient,
		client:    client,
	}
}

// Notify joins the messages into one plain-text email body and sends it to
// the configured recipient, retrying transient SES failures with
// exponential backoff.
func (n *Notifier) Notify(ctx context.Context, messages []string) error {
	input := buildInput(n.sender, n.recipient, strings.Join(messages, "\n\n"))

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying SES API request",
				"attempt", attempt,
				"max_retries", maxRetries,
			)
			delay := backoffDelay(attempt)
			if err := sleepWithContext(ctx, delay); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
		}

		_, err := n.client.SendEmail(ctx, input)
		if err == nil {
			return nil
		}

		lastErr = err
		slog.Warn("SES API error",
			"attempt", attempt,
			"error", err,
		)
	}

	return fmt.Errorf("SES API request failed after %d retries: %w", maxRetries, lastErr)
}

// Name returns the backend name.
func (n *Notifier) Name() string {
	return "ses"
}

// buildInput creates the SES SendEmailInput for a forwarded notification.
func buildInput(sender, recipient, body string) *sesv2.SendEmailInput {
	return &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(sender),
		Destination: &types.Destination{
			ToAddresses: []string{recipient},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Text: &types.Content{
						Data:    aws.String(body),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}
}

// backoffDelay returns the exponential backoff delay for the given attempt
// number. Delays are: 1s, 2s, 4s.
func backoffDelay(attempt int) time.Duration {
	delay := baseRetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// sleepWithContext waits for the specified duration or until the context is
// cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
