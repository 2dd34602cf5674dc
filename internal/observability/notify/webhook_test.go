package notify

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func statusServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(calls.Add(1))
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			http.Error(w, "bad content type "+ct, http.StatusUnsupportedMediaType)
			return
		}
		_, _ = io.Copy(io.Discard, r.Body)
		status := statuses[min(n, len(statuses))-1]
		w.WriteHeader(status)
		_, _ = io.WriteString(w, http.StatusText(status))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestWebhookRetriesThrottling(t *testing.T) {
	srv, calls := statusServer(t, http.StatusTooManyRequests, http.StatusOK)

	hook := NewWebhook("test", srv.URL, time.Second, 2, nil)
	if err := hook.Post(context.Background(), map[string]string{"text": "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestWebhookClientErrorIsFinal(t *testing.T) {
	srv, calls := statusServer(t, http.StatusBadRequest)

	hook := NewWebhook("test", srv.URL, time.Second, 3, nil)
	err := hook.Post(context.Background(), map[string]string{"text": "hi"})

	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	if de.Status != http.StatusBadRequest || de.Sink != "test" || de.Body != "Bad Request" {
		t.Fatalf("unexpected delivery error: %+v", de)
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not be retried, got %d attempts", calls.Load())
	}
}

func TestWebhookGivesUpAfterRetries(t *testing.T) {
	srv, calls := statusServer(t, http.StatusBadGateway)

	hook := NewWebhook("test", srv.URL, time.Second, 1, nil)
	err := hook.Post(context.Background(), struct{}{})

	var de *DeliveryError
	if !errors.As(err, &de) || de.Status != http.StatusBadGateway {
		t.Fatalf("expected 502 delivery error, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 1 retry, got %d attempts", calls.Load())
	}
}

func TestWebhookStopsOnCancel(t *testing.T) {
	srv, calls := statusServer(t, http.StatusServiceUnavailable)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	hook := NewWebhook("test", srv.URL, time.Second, 100, nil)
	err := hook.Post(ctx, struct{}{})

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if calls.Load() > 2 {
		t.Fatalf("expected backoff to bound attempts, got %d", calls.Load())
	}
}

func TestWebhookEncodeError(t *testing.T) {
	hook := NewWebhook("test", "http://127.0.0.1:0", time.Second, 0, nil)
	if err := hook.Post(context.Background(), map[string]any{"bad": make(chan int)}); err == nil {
		t.Fatal("expected encode error")
	}
}
