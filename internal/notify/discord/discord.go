// Package discord implements a Notifier that posts messages to a Discord
// webhook with rate-limit-aware retry.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// maxAttempts is the number of delivery attempts per message.
const maxAttempts = 3

// baseRetryDelay is the initial delay for exponential backoff.
const baseRetryDelay = 500 * time.Millisecond

// maxRetryDelay caps the exponential backoff.
const maxRetryDelay = 10 * time.Second

// Notifier posts messages to a Discord webhook URL.
type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

// New creates a Notifier for the given webhook URL.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewWithClient creates a Notifier with a custom HTTP client, used for testing.
func NewWithClient(webhookURL string, client *http.Client) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: client,
	}
}

// webhookRequest is the Discord webhook execution body.
type webhookRequest struct {
	Content         string          `json:"content"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

// allowedMentions restricts which mention tokens Discord resolves. Parse
// must always marshal as an empty array: forwarded email text is untrusted
// and must never trigger @everyone or role pings.
type allowedMentions struct {
	Parse []string `json:"parse"`
}

// StatusError reports a webhook response that ended delivery of a message,
// either a non-retryable status or a retryable one after the final attempt.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Discord webhook error (HTTP %d): %s", e.StatusCode, e.Body)
}

// Notify sends each message in order and stops at the first failure.
func (n *Notifier) Notify(ctx context.Context, messages []string) error {
	for i, msg := range messages {
		if err := n.send(ctx, msg); err != nil {
			return fmt.Errorf("message %d of %d: %w", i+1, len(messages), err)
		}
	}
	return nil
}

// Name returns the backend name.
func (n *Notifier) Name() string {
	return "discord"
}

// send delivers one message, retrying rate-limited and transient failures
// up to maxAttempts with a wait informed by Discord's rate-limit hints.
func (n *Notifier) send(ctx context.Context, message string) error {
	bodyJSON, err := json.Marshal(webhookRequest{
		Content:         message,
		AllowedMentions: allowedMentions{Parse: []string{}},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook body: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			slog.Debug("retrying Discord webhook",
				"attempt", attempt+1,
				"max_attempts", maxAttempts,
			)
		}

		res, err := n.post(ctx, bodyJSON)
		if err != nil {
			// Transport failure, no response to classify. Treat as
			// transient.
			lastErr = err
			if attempt == maxAttempts-1 {
				break
			}
			delay := backoffDelay(attempt)
			slog.Warn("Discord webhook request failed, retrying",
				"error", err,
				"delay", delay,
			)
			if err := sleepWithContext(ctx, delay); err != nil {
				return fmt.Errorf("context cancelled during retry wait: %w", err)
			}
			continue
		}

		if res == nil {
			return nil
		}

		statusErr := &StatusError{StatusCode: res.status, Body: res.body}
		if !retryable(res.status) {
			return statusErr
		}
		if attempt == maxAttempts-1 {
			// Final attempt: report immediately, no pointless wait.
			return statusErr
		}
		lastErr = statusErr

		delay := retryDelay(res, attempt, time.Now())
		slog.Info("Discord webhook retryable failure",
			"status", res.status,
			"delay", delay,
		)
		if err := sleepWithContext(ctx, delay); err != nil {
			return fmt.Errorf("context cancelled during retry wait: %w", err)
		}
	}

	return fmt.Errorf("Discord webhook failed after %d attempts: %w", maxAttempts, lastErr)
}

// response captures the metadata of a non-2xx webhook response needed for
// retry decisions.
type response struct {
	status     int
	body       string
	retryAfter string
}

// post performs a single webhook execution. A nil response with nil error
// means the message was delivered.
func (n *Notifier) post(ctx context.Context, bodyJSON []byte) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil, nil
	}

	body, _ := io.ReadAll(resp.Body)
	return &response{
		status:     resp.StatusCode,
		body:       string(body),
		retryAfter: resp.Header.Get("Retry-After"),
	}, nil
}

// retryable reports whether the status indicates a rate limit or a
// transient server failure.
func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// retryDelay computes the wait before the next attempt. Preference order:
// Retry-After header as integer seconds, Retry-After as an HTTP date
// (floored at zero), a retry_after seconds field in the JSON response body,
// then exponential backoff.
func retryDelay(res *response, attempt int, now time.Time) time.Duration {
	if res.retryAfter != "" {
		if seconds, err := strconv.Atoi(res.retryAfter); err == nil && seconds >= 0 {
			return time.Duration(seconds) * time.Second
		}
		if t, err := http.ParseTime(res.retryAfter); err == nil {
			if d := t.Sub(now); d > 0 {
				return d
			}
			return 0
		}
	}

	var hint struct {
		RetryAfter float64 `json:"retry_after"`
	}
	if err := json.Unmarshal([]byte(res.body), &hint); err == nil && hint.RetryAfter > 0 {
		return time.Duration(hint.RetryAfter * float64(time.Second))
	}

	return backoffDelay(attempt)
}

// backoffDelay returns the exponential backoff delay for the given 0-based
// attempt index: 500ms, 1s, 2s, ... capped at maxRetryDelay.
func backoffDelay(attempt int) time.Duration {
	delay := baseRetryDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
	}
	if delay > maxRetryDelay {
		return maxRetryDelay
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
