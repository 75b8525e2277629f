package llm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

// backoff decides whether a failed attempt is retried and how long to wait.
// Delays double from base and never exceed max; a Retry-After header
// replaces the computed delay but is still capped.
type backoff struct {
	attempts int
	base     time.Duration
	max      time.Duration
	sleep    func(time.Duration)
}

func defaultBackoff() backoff {
	return backoff{
		attempts: defaultRetryAttempts,
		base:     defaultRetryBaseDelay,
		max:      defaultRetryMaxDelay,
	}
}

func (b backoff) maxAttempts() int {
	return max(b.attempts, 1)
}

// next reports the delay before attempt+1, or false when err is final.
func (b backoff) next(err error, attempt int) (time.Duration, bool) {
	if attempt >= b.maxAttempts() {
		return 0, false
	}
	retryAfter, ok := retryable(err)
	if !ok {
		return 0, false
	}
	if retryAfter > 0 {
		return b.limit(retryAfter), true
	}
	return b.step(attempt), true
}

// step is the exponential delay for the given 1-based attempt.
func (b backoff) step(attempt int) time.Duration {
	if b.base <= 0 {
		return 0
	}
	delay := b.base
	for i := 1; i < attempt; i++ {
		if delay >= b.ceiling()/2 {
			return b.ceiling()
		}
		delay *= 2
	}
	return b.limit(delay)
}

func (b backoff) ceiling() time.Duration {
	if b.max > 0 {
		return b.max
	}
	return defaultRetryMaxDelay
}

func (b backoff) limit(delay time.Duration) time.Duration {
	return max(0, min(delay, b.ceiling()))
}

func (b backoff) wait(ctx context.Context, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if delay <= 0 {
		return nil
	}
	if b.sleep != nil {
		b.sleep(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryable classifies err: empty replies, timeouts, 408, 429 and 5xx are
// worth another attempt. The returned duration is the server's Retry-After.
// Callers rule out their own cancellation first; a deadline seen here is the
// per-request timeout.
func retryable(err error) (time.Duration, bool) {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0, false
	}
	var empty *emptyContentError
	if errors.As(err, &empty) {
		return 0, true
	}
	var status *httpStatusError
	if errors.As(err, &status) {
		switch {
		case status.StatusCode == http.StatusRequestTimeout,
			status.StatusCode == http.StatusTooManyRequests,
			status.StatusCode >= http.StatusInternalServerError:
			return status.RetryAfter, true
		}
		return 0, false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return 0, true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return 0, true
	}
	return 0, false
}

// parseRetryAfter reads delta-seconds or an HTTP date.
func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay, true
		}
	}
	return 0, false
}
