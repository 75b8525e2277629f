package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"bgmrules/internal/services"
)

const defaultHTTPTimeout = 180 * time.Second

// Provider names a supported chat-completion backend.
type Provider string

const (
	ProviderDeepSeek   Provider = "deepseek"
	ProviderOpenRouter Provider = "openrouter"
	ProviderOpenAI     Provider = "openai"
)

var providerEndpoints = map[Provider]struct {
	baseURL string
	model   string
}{
	ProviderDeepSeek:   {"https://api.deepseek.com/v1/chat/completions", "deepseek-chat"},
	ProviderOpenRouter: {"https://openrouter.ai/api/v1/chat/completions", "deepseek/deepseek-chat"},
	ProviderOpenAI:     {"https://api.openai.com/v1/chat/completions", "gpt-4o-mini"},
}

// ParseProvider resolves a provider name case-insensitively. Blank selects DeepSeek.
func ParseProvider(value string) (Provider, error) {
	name := Provider(strings.ToLower(strings.TrimSpace(value)))
	if name == "" {
		return ProviderDeepSeek, nil
	}
	if _, ok := providerEndpoints[name]; !ok {
		return "", fmt.Errorf("unsupported llm provider %q", value)
	}
	return name, nil
}

// Config captures the runtime settings required to talk to the LLM.
type Config struct {
	Provider       Provider
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Usage accumulates request and token counts reported by the backend.
type Usage struct {
	Requests         int
	PromptTokens     int
	CompletionTokens int
}

// Add returns the sum of u and other.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		Requests:         u.Requests + other.Requests,
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
	}
}

// Completion is the text content of one chat completion and its token usage.
type Completion struct {
	Content string
	Usage   Usage
}

// Client wraps an OpenAI-compatible chat completion API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retry      backoff

	mu    sync.Mutex
	usage Usage
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts sets how many times a request is tried (default 3).
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) {
		c.retry.attempts = attempts
	}
}

// WithRetryBackoff sets the first retry delay and the cap on any delay.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retry.base = baseDelay
		c.retry.max = maxDelay
	}
}

// WithSleeper replaces the timer used between attempts.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.retry.sleep = sleeper
	}
}

// NewClient constructs an LLM client. An unknown provider or a missing API
// key is reported here rather than on the first request.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	provider, err := ParseProvider(string(cfg.Provider))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "llm", "new client", "", err)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, services.Wrap(services.ErrConfiguration, "llm", "new client", "api key required", nil)
	}
	endpoint := providerEndpoints[provider]
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			Provider:       provider,
			APIKey:         apiKey,
			BaseURL:        firstNonEmpty(cfg.BaseURL, endpoint.baseURL),
			Model:          firstNonEmpty(cfg.Model, endpoint.model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
		retry:      defaultBackoff(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Provider reports the backend this client talks to.
func (c *Client) Provider() Provider {
	return c.cfg.Provider
}

// Model reports the model name sent with every request.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Usage returns the cumulative usage of every successful request so far.
func (c *Client) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// Complete sends prompt as the single user message of a JSON-mode chat
// completion and returns the raw content. Failures are wrapped with
// services.ErrBackend, or services.ErrRateLimited when the final attempt
// was answered with HTTP 429.
func (c *Client) Complete(ctx context.Context, prompt string) (Completion, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Completion{}, services.Wrap(services.ErrValidation, "llm", "complete", "prompt required", nil)
	}
	request := chatRequest{
		Model:          c.cfg.Model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= c.retry.maxAttempts(); attempt++ {
		attempts = attempt
		completion, err := c.send(ctx, request)
		if err == nil {
			c.mu.Lock()
			c.usage = c.usage.Add(completion.Usage)
			c.mu.Unlock()
			return completion, nil
		}
		lastErr = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Completion{}, ctxErr
		}
		delay, again := c.retry.next(err, attempt)
		if !again {
			break
		}
		if err := c.retry.wait(ctx, delay); err != nil {
			return Completion{}, err
		}
	}

	marker := services.ErrBackend
	var statusErr *httpStatusError
	if errors.As(lastErr, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		marker = services.ErrRateLimited
	}
	msg := ""
	if attempts > 1 {
		msg = fmt.Sprintf("failed after %d attempts", attempts)
	}
	return Completion{}, services.Wrap(marker, "llm", "complete", msg, lastErr)
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
		Refusal string `json:"refusal"`
	} `json:"message"`
	// Some gateways answer with the streaming shape even for stream=false.
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	FinishReason string `json:"finish_reason"`
}

func (c chatChoice) content() string {
	return firstNonEmpty(c.Message.Content, c.Delta.Content)
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, snippet(e.Body))
}

// emptyContentError is a 200 reply without usable text, typically a
// length cut-off or a refusal.
type emptyContentError struct {
	FinishReason string
	Refusal      string
	Snippet      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("empty content (finish_reason=%q, refusal=%q, response=%s)", e.FinishReason, e.Refusal, e.Snippet)
}

// send performs one HTTP round-trip.
func (c *Client) send(ctx context.Context, request chatRequest) (Completion, error) {
	encoded, err := json.Marshal(request)
	if err != nil {
		return Completion{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return Completion{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Completion{}, fmt.Errorf("post %s (timeout=%s, latency=%v): %w", c.cfg.Provider, c.httpClient.Timeout, time.Since(start).Round(time.Millisecond), err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		return Completion{}, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			RetryAfter: retryAfter,
		}
	}

	var decoded chatResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Completion{}, fmt.Errorf("decode response: %w (body: %s)", err, snippet(string(body)))
	}
	if decoded.Error != nil {
		return Completion{}, fmt.Errorf("api error: %s", strings.TrimSpace(decoded.Error.Message))
	}
	if len(decoded.Choices) == 0 {
		return Completion{}, &emptyContentError{Snippet: snippet(string(body))}
	}
	for _, choice := range decoded.Choices {
		if text := choice.content(); text != "" {
			completion := Completion{Content: text, Usage: Usage{Requests: 1}}
			if decoded.Usage != nil {
				completion.Usage.PromptTokens = decoded.Usage.PromptTokens
				completion.Usage.CompletionTokens = decoded.Usage.CompletionTokens
			}
			return completion, nil
		}
	}
	first := decoded.Choices[0]
	return Completion{}, &emptyContentError{
		FinishReason: first.FinishReason,
		Refusal:      strings.TrimSpace(first.Message.Refusal),
		Snippet:      snippet(string(body)),
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
