package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"time"
)

// Backoff controls how connector calls are retried.
type Backoff struct {
	Attempts  int // retries after the first call
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Factor    float64
}

// DefaultBackoff is used by every source connector unless overridden.
var DefaultBackoff = Backoff{
	Attempts:  3,
	BaseDelay: 500 * time.Millisecond,
	MaxDelay:  10 * time.Second,
	Factor:    2.0,
}

func (b Backoff) delay(attempt int) time.Duration {
	d := time.Duration(float64(b.BaseDelay) * math.Pow(b.Factor, float64(attempt)))
	if d > b.MaxDelay {
		d = b.MaxDelay
	}
	return d
}

// Retry calls fn until it succeeds, returns a permanent error, or the attempts run out.
func Retry[T any](ctx context.Context, b Backoff, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= b.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !Transient(err) {
			return zero, err
		}
		if attempt == b.Attempts {
			break
		}
		wait := b.delay(attempt)
		slog.Debug("retrying", slog.Int("attempt", attempt+1), slog.Duration("wait", wait), slog.Any("error", err))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}

// StatusError is a non-2xx HTTP answer from an upstream service.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Body)
}

// Transient reports whether err is worth another attempt: throttling, 5xx,
// connection and DNS failures, timeouts.
func Transient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return retryableStatus(se.Code)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// FetchBody sends the request built by newReq with retries and returns at
// most limit bytes of a 200 body. Non-200 answers become *StatusError.
func FetchBody(ctx context.Context, client *http.Client, b Backoff, limit int64, newReq func() (*http.Request, error)) ([]byte, error) {
	return Retry(ctx, b, func() ([]byte, error) {
		req, err := newReq()
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return nil, &StatusError{Code: resp.StatusCode, Body: string(snippet)}
		}
		return io.ReadAll(io.LimitReader(resp.Body, limit))
	})
}
