// Package stdout implements a Notifier that prints messages to standard
// output, for dry runs and local development.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
)

// separator visually delimits messages in the output.
const separator = "----------------------------------------\n"

// Notifier prints each formatted message to stdout.
type Notifier struct {
	writer io.Writer
}

// New creates a Notifier that writes to os.Stdout.
func New() *Notifier {
	return &Notifier{writer: os.Stdout}
}

// NewWithWriter creates a Notifier that writes to the given writer.
// This is useful for testing.
func NewWithWriter(w io.Writer) *Notifier {
	return &Notifier{writer: w}
}

// Notify writes each message between separator rules. It always succeeds.
func (n *Notifier) Notify(_ context.Context, messages []string) error {
	for _, msg := range messages {
		if _, err := fmt.Fprintf(n.writer, "%s%s\n%s", separator, msg, separator); err != nil {
			// A write error to stdout is not a delivery failure worth
			// re-triggering upstream redelivery for.
			return nil
		}
	}
	return nil
}

// Name returns the backend name.
func (n *Notifier) Name() string {
	return "stdout"
}
