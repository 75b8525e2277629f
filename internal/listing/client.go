package listing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"bgmrules/internal/logging"
	"bgmrules/internal/services"
)

const (
	defaultTimeout   = 30 * time.Second
	maxPageBytes     = 16 << 20
	defaultUserAgent = "Mozilla/5.0 (compatible; bgmrules)"
)

// Client downloads the listing page.
type Client struct {
	url        string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithTimeout sets the request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua = strings.TrimSpace(ua); ua != "" {
			c.userAgent = ua
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a Client for pageURL.
func New(pageURL string, opts ...Option) (*Client, error) {
	pageURL = strings.TrimSpace(pageURL)
	if pageURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "listing", "init", "listing url required", nil)
	}
	c := &Client{
		url:        pageURL,
		userAgent:  defaultUserAgent,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// FetchTables downloads the page and returns its tables.
func (c *Client) FetchTables(ctx context.Context) ([]Table, error) {
	start := time.Now()
	body, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}
	tables, err := ExtractTables(bytes.NewReader(body))
	if err != nil {
		return nil, services.Wrap(services.ErrRetrieval, "listing", "parse page", "", err)
	}
	c.logger.Info("listing page fetched",
		logging.String("url", c.url),
		logging.Int("bytes", len(body)),
		logging.Int("tables", len(tables)),
		logging.Duration("latency", time.Since(start)))
	return tables, nil
}

func (c *Client) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "listing", "build request", c.url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrRetrieval, "listing", "fetch", c.url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, services.Wrap(services.ErrRetrieval, "listing", "fetch", fmt.Sprintf("%s returned status %d", c.url, resp.StatusCode), nil)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, services.Wrap(services.ErrRetrieval, "listing", "read body", c.url, err)
	}
	if len(body) == 0 {
		return nil, services.Wrap(services.ErrRetrieval, "listing", "fetch", "", errors.New("empty response body"))
	}
	return body, nil
}
