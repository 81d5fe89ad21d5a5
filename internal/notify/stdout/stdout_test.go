package stdout

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNotify_WritesEachMessage(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n := NewWithWriter(&buf)

	err := n.Notify(context.Background(), []string{"first message", "second message"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "first message") {
		t.Error("output missing first message")
	}
	if !strings.Contains(output, "second message") {
		t.Error("output missing second message")
	}
	if strings.Index(output, "first message") > strings.Index(output, "second message") {
		t.Error("messages written out of order")
	}
	if !strings.HasPrefix(output, separator) {
		t.Error("output should start with a separator rule")
	}
	if !strings.HasSuffix(output, separator) {
		t.Error("output should end with a separator rule")
	}
}

func TestNotify_NoMessages(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	n := NewWithWriter(&buf)

	if err := n.Notify(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("output: got %q, want empty", buf.String())
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	if got := New().Name(); got != "stdout" {
		t.Errorf("Name(): got %q, want %q", got, "stdout")
	}
}
