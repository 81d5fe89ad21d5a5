// Package notify defines the interface for notification delivery backends.
package notify

import "context"

// Notifier is the interface that delivery backends must implement. Each
// backend relays the formatted messages of one notification to its target
// (e.g., a Discord webhook, SES, stdout).
type Notifier interface {
	// Notify delivers the messages strictly in order, stopping at the
	// first message that cannot be delivered. It returns an error
	// describing that first failure.
	Notify(ctx context.Context, messages []string) error

	// Name returns the human-readable name of this backend.
	Name() string
}
