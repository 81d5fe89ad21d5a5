package discord

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestNotify_Success(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)

		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type: got %q, want %q", r.Header.Get("Content-Type"), "application/json")
		}

		body, _ := io.ReadAll(r.Body)
		var req webhookRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if req.Content != "hello" {
			t.Errorf("content: got %q, want %q", req.Content, "hello")
		}
		if !strings.Contains(string(body), `"allowed_mentions":{"parse":[]}`) {
			t.Errorf("body must carry an empty allowed_mentions parse array, got %s", body)
		}

		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWithClient(srv.URL, srv.Client())
	if err := n.Notify(context.Background(), []string{"hello"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("request count: got %d, want 1", got)
	}
}

func TestNotify_SendsMessagesInOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var received []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req webhookRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		received = append(received, req.Content)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWithClient(srv.URL, srv.Client())
	messages := []string{"[part 1/3]\none", "[part 2/3]\ntwo", "[part 3/3]\nthree"}
	if err := n.Notify(context.Background(), messages); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 3 {
		t.Fatalf("request count: got %d, want 3", len(received))
	}
	for i := range messages {
		if received[i] != messages[i] {
			t.Errorf("request %d: got %q, want %q", i, received[i], messages[i])
		}
	}
}

func TestNotify_StopsAtFirstFailedMessage(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) > 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWithClient(srv.URL, srv.Client())
	err := n.Notify(context.Background(), []string{"one", "two", "three"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode != http.StatusForbidden {
		t.Errorf("status: got %d, want %d", statusErr.StatusCode, http.StatusForbidden)
	}
	// Message three must never be attempted.
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("request count: got %d, want 2", got)
	}
}

func TestSend_RetriesOn500ThenSucceeds(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWithClient(srv.URL, srv.Client())

	start := time.Now()
	err := n.Notify(context.Background(), []string{"retry me"})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("request count: got %d, want 2", got)
	}
	if elapsed < baseRetryDelay {
		t.Errorf("elapsed %v, want at least one backoff wait of %v", elapsed, baseRetryDelay)
	}
}

func TestSend_ExhaustedRetriesReturnStatus(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("upstream broke"))
	}))
	defer srv.Close()

	n := NewWithClient(srv.URL, srv.Client())
	err := n.Notify(context.Background(), []string{"doomed"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: got %d, want %d", statusErr.StatusCode, http.StatusInternalServerError)
	}
	if statusErr.Body != "upstream broke" {
		t.Errorf("body: got %q, want %q", statusErr.Body, "upstream broke")
	}
	if got := atomic.LoadInt32(&calls); got != maxAttempts {
		t.Errorf("request count: got %d, want %d", got, maxAttempts)
	}
}

func TestSend_NonRetryableFailsImmediately(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := NewWithClient(srv.URL, srv.Client())
	err := n.Notify(context.Background(), []string{"rejected"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T: %v", err, err)
	}
	if statusErr.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want %d", statusErr.StatusCode, http.StatusBadRequest)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("request count: got %d, want 1", got)
	}
}

func TestSend_HonorsRetryAfterHeader(t *testing.T) {
	t.Parallel()

	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWithClient(srv.URL, srv.Client())

	start := time.Now()
	err := n.Notify(context.Background(), []string{"rate limited"})
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed < 1*time.Second {
		t.Errorf("elapsed %v, want at least the 1s Retry-After wait", elapsed)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("request count: got %d, want 2", got)
	}
}

func TestSend_CancelledContextAbortsRetryWait(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	n := NewWithClient(srv.URL, srv.Client())

	start := time.Now()
	err := n.Notify(ctx, []string{"abandoned"})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if elapsed > 5*time.Second {
		t.Errorf("retry wait was not abandoned with the context, elapsed %v", elapsed)
	}
}

func TestRetryDelay(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 12, 9, 41, 0, 0, time.UTC)

	tests := []struct {
		name string
		res  *response
		want time.Duration
	}{
		{
			name: "numeric seconds header",
			res:  &response{retryAfter: "2"},
			want: 2 * time.Second,
		},
		{
			name: "http date header in the future",
			res:  &response{retryAfter: now.Add(3 * time.Second).Format(http.TimeFormat)},
			want: 3 * time.Second,
		},
		{
			name: "http date header in the past floors at zero",
			res:  &response{retryAfter: now.Add(-10 * time.Second).Format(http.TimeFormat)},
			want: 0,
		},
		{
			name: "retry_after in body",
			res:  &response{body: `{"retry_after": 1.5}`},
			want: 1500 * time.Millisecond,
		},
		{
			name: "header preferred over body",
			res:  &response{retryAfter: "4", body: `{"retry_after": 1}`},
			want: 4 * time.Second,
		},
		{
			name: "no hint falls back to backoff",
			res:  &response{body: "Too Many Requests"},
			want: baseRetryDelay,
		},
		{
			name: "garbage header falls back to backoff",
			res:  &response{retryAfter: "soon"},
			want: baseRetryDelay,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := retryDelay(tt.res, 0, now); got != tt.want {
				t.Errorf("retryDelay: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: 0, want: 500 * time.Millisecond},
		{attempt: 1, want: 1 * time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 5, want: 10 * time.Second},
		{attempt: 10, want: 10 * time.Second},
	}

	for _, tt := range tests {
		tt := tt
		if got := backoffDelay(tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d): got %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestWebhookRequest_ParseNeverMarshalsNull(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(webhookRequest{
		Content:         "@everyone hi",
		AllowedMentions: allowedMentions{Parse: []string{}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := `{"content":"@everyone hi","allowed_mentions":{"parse":[]}}`; string(data) != want {
		t.Errorf("marshal:\ngot  %s\nwant %s", data, want)
	}
}

func TestName(t *testing.T) {
	t.Parallel()

	if got := New("https://discord.example/webhook").Name(); got != "discord" {
		t.Errorf("Name(): got %q, want %q", got, "discord")
	}
}
