package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"bgmrules/internal/anime"
	"bgmrules/internal/logging"
	"bgmrules/internal/services"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultWindowDays  = 100
	defaultSubjectType = 2
	searchPath         = "/v0/search/subjects"
)

// Searcher retrieves catalog candidates for a keyword.
type Searcher interface {
	Query(ctx context.Context, keyword string, airDate *time.Time) ([]anime.Candidate, error)
}

// Client talks to the Bangumi subject search API.
type Client struct {
	baseURL     string
	userAgent   string
	subjectType int
	windowDays  int
	location    *time.Location
	httpClient  *http.Client
	limiter     *rate.Limiter
	cache       *Cache
	logger      *slog.Logger
}

var _ Searcher = (*Client)(nil)

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

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

// WithRateLimit paces requests to at most rps per second. Zero or negative
// disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithDateWindow sets how many days around a work's air date are searched
// and the timezone the date is anchored in.
func WithDateWindow(days int, loc *time.Location) Option {
	return func(c *Client) {
		if days >= 0 {
			c.windowDays = days
		}
		if loc != nil {
			c.location = loc
		}
	}
}

// WithSubjectType restricts searches to one Bangumi subject type (2 = anime).
func WithSubjectType(subjectType int) Option {
	return func(c *Client) {
		if subjectType > 0 {
			c.subjectType = subjectType
		}
	}
}

// WithCache attaches a response cache.
func WithCache(cache *Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "bangumi")
	}
}

// New creates a Bangumi client.
func New(baseURL, userAgent string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("bangumi base url required")
	}
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return nil, errors.New("bangumi user agent required")
	}
	client := &Client{
		baseURL:     baseURL,
		userAgent:   userAgent,
		subjectType: defaultSubjectType,
		windowDays:  defaultWindowDays,
		location:    time.FixedZone("JST", 9*60*60),
		httpClient:  &http.Client{Timeout: defaultTimeout},
		logger:      logging.NewComponentLogger(nil, "bangumi"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type searchRequest struct {
	Keyword string       `json:"keyword"`
	Sort    string       `json:"sort"`
	Filter  searchFilter `json:"filter"`
}

type searchFilter struct {
	Type    []int    `json:"type"`
	AirDate []string `json:"air_date,omitempty"`
}

// Query searches for keyword, restricted to the configured subject type and,
// when airDate is set, to the date window around it. Records that fail to
// decode are skipped. Transport failures, non-2xx statuses, and undecodable
// bodies are returned wrapped with services.ErrRetrieval.
func (c *Client) Query(ctx context.Context, keyword string, airDate *time.Time) ([]anime.Candidate, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, services.Wrap(services.ErrValidation, "bangumi", "search", "keyword must not be empty", nil)
	}

	request := searchRequest{
		Keyword: keyword,
		Sort:    "rank",
		Filter:  searchFilter{Type: []int{c.subjectType}},
	}
	if airDate != nil {
		request.Filter.AirDate = AirDateFilter(*airDate, c.location, c.windowDays)
	}
	key := cacheKey(request)

	logger := logging.WithContext(ctx, c.logger)
	if payload, ok, err := c.cache.Get(ctx, key); err != nil {
		logger.Debug("bangumi cache read failed", logging.String("keyword", keyword), logging.Error(err))
	} else if ok {
		records, decodeErr := decodeRecords(payload)
		if decodeErr == nil {
			logger.Debug("bangumi cache hit", logging.String("keyword", keyword), logging.Int("records", len(records)))
			return c.candidates(logger, records), nil
		}
		logger.Debug("bangumi cache entry unreadable", logging.String("keyword", keyword), logging.Error(decodeErr))
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, services.Wrap(services.ErrRetrieval, "bangumi", "search", "rate limiter", err)
		}
	}

	data, err := c.search(ctx, request)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrRetrieval, "bangumi", "search", fmt.Sprintf("keyword %q", keyword), err)
	}

	records, err := decodeRecords(data)
	if err != nil {
		// data present but not an array: treat as no results
		logger.Debug("bangumi response data is not an array", logging.String("keyword", keyword), logging.Error(err))
		return []anime.Candidate{}, nil
	}
	if data != nil {
		if err := c.cache.Put(ctx, key, data); err != nil {
			logger.Debug("bangumi cache write failed", logging.String("keyword", keyword), logging.Error(err))
		}
	}

	candidates := c.candidates(logger, records)
	logger.Debug("bangumi search complete",
		logging.String("keyword", keyword),
		logging.Int("records", len(records)),
		logging.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// search performs one HTTP round-trip and returns the raw "data" member, or
// nil when the body has none.
func (c *Client) search(ctx context.Context, request searchRequest) (json.RawMessage, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response (latency=%v): %w", latency, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("bangumi search returned %d (latency=%v): %s", resp.StatusCode, latency, snippet(payload))
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode bangumi response: %w", err)
	}
	data, ok := envelope["data"]
	if !ok || string(data) == "null" {
		return nil, nil
	}
	return data, nil
}

func decodeRecords(data json.RawMessage) ([]json.RawMessage, error) {
	if data == nil {
		return nil, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) candidates(logger *slog.Logger, records []json.RawMessage) []anime.Candidate {
	candidates := make([]anime.Candidate, 0, len(records))
	for i, record := range records {
		var subject Subject
		if err := json.Unmarshal(record, &subject); err != nil {
			logger.Debug("skipping undecodable bangumi record", logging.Int("record_index", i), logging.Error(err))
			continue
		}
		candidates = append(candidates, subject.Candidate())
	}
	return candidates
}

func cacheKey(request searchRequest) string {
	var builder strings.Builder
	builder.WriteString("k=")
	builder.WriteString(request.Keyword)
	builder.WriteString("|t=")
	for i, t := range request.Filter.Type {
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.Itoa(t))
	}
	builder.WriteString("|d=")
	builder.WriteString(strings.Join(request.Filter.AirDate, ","))
	return builder.String()
}

func snippet(body []byte) string {
	text := strings.Join(strings.Fields(string(body)), " ")
	const limit = 160
	if runes := []rune(text); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return text
}
