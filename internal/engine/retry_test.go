package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

var fastBackoff = Backoff{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Factor: 2}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"http 429", &StatusError{Code: 429}, true},
		{"http 503", &StatusError{Code: 503}, true},
		{"http 403", &StatusError{Code: 403}, false},
		{"wrapped 502", fmt.Errorf("search: %w", &StatusError{Code: 502}), true},
		{"plain error", errors.New("something"), false},
		{"dns timeout", &net.DNSError{IsTimeout: true}, true},
		{"dial error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Transient(tt.err); got != tt.want {
				t.Errorf("Transient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRetry(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		failWith  error
		wantCalls int
		wantErr   bool
	}{
		{"first call succeeds", 0, nil, 1, false},
		{"transient then success", 2, &StatusError{Code: 503}, 3, false},
		{"exhausted", 10, &StatusError{Code: 502}, 4, true},
		{"permanent", 10, errors.New("bad request"), 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			got, err := Retry(context.Background(), fastBackoff, func() (string, error) {
				calls++
				if calls <= tt.failures {
					return "", tt.failWith
				}
				return "ok", nil
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != "ok" {
				t.Errorf("got %q", got)
			}
			if calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetryContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Retry(ctx, fastBackoff, func() (string, error) {
		return "", &StatusError{Code: 503}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFetchBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		switch r.URL.Path {
		case "/flaky":
			if n == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			_, _ = w.Write([]byte("hello world"))
		default:
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte("quota"))
		}
	}))
	defer srv.Close()

	get := func(path string) func() (*http.Request, error) {
		return func() (*http.Request, error) {
			return http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL+path, nil)
		}
	}

	body, err := FetchBody(context.Background(), srv.Client(), fastBackoff, 5, get("/flaky"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("body = %q, want truncated to limit", body)
	}

	calls.Store(0)
	_, err = FetchBody(context.Background(), srv.Client(), fastBackoff, 1024, get("/denied"))
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusForbidden {
		t.Fatalf("expected 403 StatusError, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("403 must not be retried, calls = %d", n)
	}
}
