package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"bgmrules/internal/services"
)

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	client, err := NewClient(Config{Provider: ProviderDeepSeek, APIKey: "test", BaseURL: baseURL, Model: "demo-model"}, opts...)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func writeCompletion(t *testing.T, w http.ResponseWriter, content string) {
	t.Helper()
	payload := map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"content": content}, "finish_reason": "stop"},
		},
		"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 30},
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func TestClientCompleteSendsSingleUserMessage(t *testing.T) {
	prompts := []string{"match these", "again"}
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		call := int(calls.Add(1))
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected authorization header %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "demo-model" {
			t.Errorf("unexpected model %q", req.Model)
		}
		if call > len(prompts) {
			t.Errorf("unexpected request %d", call)
		} else if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != prompts[call-1] {
			t.Errorf("request %d: unexpected messages %+v", call, req.Messages)
		}
		writeCompletion(t, w, `{"matches":[]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	completion, err := client.Complete(context.Background(), "  match these ")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if completion.Content != `{"matches":[]}` {
		t.Fatalf("unexpected content %q", completion.Content)
	}
	if completion.Usage.PromptTokens != 120 || completion.Usage.CompletionTokens != 30 {
		t.Fatalf("unexpected usage %+v", completion.Usage)
	}

	if _, err := client.Complete(context.Background(), "again"); err != nil {
		t.Fatalf("second Complete returned error: %v", err)
	}
	total := client.Usage()
	if total.Requests != 2 || total.PromptTokens != 240 || total.CompletionTokens != 60 {
		t.Fatalf("unexpected cumulative usage %+v", total)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
}

func TestNewClientRejectsUnknownProviderAndMissingKey(t *testing.T) {
	if _, err := NewClient(Config{Provider: "claude", APIKey: "k"}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for unknown provider, got %v", err)
	}
	if _, err := NewClient(Config{Provider: ProviderOpenAI, APIKey: "  "}); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error for missing key, got %v", err)
	}
}

func TestNewClientProviderDefaults(t *testing.T) {
	client, err := NewClient(Config{Provider: "OpenRouter", APIKey: "k"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if client.Provider() != ProviderOpenRouter {
		t.Fatalf("unexpected provider %q", client.Provider())
	}
	if !strings.HasPrefix(client.cfg.BaseURL, "https://openrouter.ai/") {
		t.Fatalf("unexpected base url %q", client.cfg.BaseURL)
	}
	if client.Model() == "" {
		t.Fatal("expected default model")
	}
	if client.httpClient.Timeout != 180*time.Second {
		t.Fatalf("unexpected default timeout %v", client.httpClient.Timeout)
	}
}

func TestClientCompleteFailureIsBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, WithSleeper(func(time.Duration) {}))
	_, err := client.Complete(context.Background(), "prompt")
	if !errors.Is(err, services.ErrBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("401 must not be classified as rate limited: %v", err)
	}
	if client.Usage().Requests != 0 {
		t.Fatalf("failed requests must not count as usage, got %+v", client.Usage())
	}
}

func TestClientRetriesOnHTTP429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limited"})
			return
		}
		writeCompletion(t, w, `{"ok":true}`)
	}))
	defer server.Close()

	var slept []time.Duration
	client := newTestClient(t, server.URL,
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryBackoff(0, 10*time.Second),
		WithRetryMaxAttempts(5),
	)
	if _, err := client.Complete(context.Background(), "prompt"); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
	if len(slept) != 1 || slept[0] != time.Second {
		t.Fatalf("expected single sleep of 1s, got %v", slept)
	}
}

func TestClientPersistent429IsRateLimited(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	var slept []time.Duration
	client := newTestClient(t, server.URL,
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		WithRetryMaxAttempts(3),
	)
	_, err := client.Complete(context.Background(), "prompt")
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("expected rate limited error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("expected exponential backoff 1s, 2s; got %v", slept)
	}
}

func TestClientRetriesOnEmptyContentThenSucceeds(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		content := ""
		if calls >= 3 {
			content = `{"ok":true}`
		}
		writeCompletion(t, w, content)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL,
		WithRetryBackoff(0, 0),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(5),
	)
	if _, err := client.Complete(context.Background(), "prompt"); err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestClientEmptyContentHasSnippet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(t, w, "")
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, WithRetryMaxAttempts(1))
	_, err := client.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected error for empty content")
	}
	var emptyErr *emptyContentError
	if !errors.As(err, &emptyErr) {
		t.Fatalf("expected emptyContentError, got %T: %v", err, err)
	}
	if !strings.Contains(emptyErr.Snippet, "finish_reason") {
		t.Fatalf("expected response snippet in error, got %q", emptyErr.Snippet)
	}
}

// stallingServer holds the first stall requests open until the client gives
// up, then answers normally.
func stallingServer(t *testing.T, stall int32, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= stall {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
			return
		}
		writeCompletion(t, w, `{"ok":true}`)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClientRetriesRequestTimeout(t *testing.T) {
	var calls atomic.Int32
	server := stallingServer(t, 1, &calls)

	client := newTestClient(t, server.URL,
		WithHTTPClient(&http.Client{Timeout: 100 * time.Millisecond}),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(3),
	)
	completion, err := client.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if completion.Content != `{"ok":true}` {
		t.Fatalf("unexpected content %q", completion.Content)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
}

func TestClientReportsAttemptsMade(t *testing.T) {
	var calls atomic.Int32
	server := stallingServer(t, 10, &calls)

	client := newTestClient(t, server.URL,
		WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}),
		WithSleeper(func(time.Duration) {}),
		WithRetryMaxAttempts(2),
	)
	_, err := client.Complete(context.Background(), "prompt")
	if !errors.Is(err, services.ErrBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if !strings.Contains(err.Error(), "failed after 2 attempts") {
		t.Fatalf("expected attempt count in %q", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}

	unauthorized := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer unauthorized.Close()
	client = newTestClient(t, unauthorized.URL, WithRetryMaxAttempts(3))
	_, err = client.Complete(context.Background(), "prompt")
	if err == nil || strings.Contains(err.Error(), "failed after") {
		t.Fatalf("a single non-retryable attempt must not report a retry count: %v", err)
	}
}

func TestRetryableClassification(t *testing.T) {
	if _, ok := retryable(context.DeadlineExceeded); !ok {
		t.Fatal("expected a request deadline to be retryable")
	}
	if _, ok := retryable(context.Canceled); ok {
		t.Fatal("expected cancellation to be final")
	}
	if _, ok := retryable(&httpStatusError{StatusCode: http.StatusBadRequest}); ok {
		t.Fatal("expected 400 to be final")
	}
	if delay, ok := retryable(&httpStatusError{StatusCode: http.StatusServiceUnavailable, RetryAfter: 2 * time.Second}); !ok || delay != 2*time.Second {
		t.Fatalf("expected 503 to retry after 2s, got %v ok=%v", delay, ok)
	}
}

func TestClientCompleteHonoursCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(t, w, `{}`)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := newTestClient(t, server.URL)
	if _, err := client.Complete(ctx, "prompt"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if d, ok := parseRetryAfter("3"); !ok || d != 3*time.Second {
		t.Fatalf("unexpected delay %v ok=%v", d, ok)
	}
	if _, ok := parseRetryAfter("-1"); ok {
		t.Fatal("expected negative seconds to be rejected")
	}
	if _, ok := parseRetryAfter(""); ok {
		t.Fatal("expected blank header to be rejected")
	}
}

func TestBackoffDelayCaps(t *testing.T) {
	policy := backoff{attempts: 8, base: time.Second, max: 10 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second, 10 * time.Second}
	for i, expected := range want {
		if got := policy.step(i + 1); got != expected {
			t.Fatalf("attempt %d: got %v want %v", i+1, got, expected)
		}
	}
}
