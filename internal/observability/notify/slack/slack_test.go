package slack

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

	"github.com/Perkybeet/wasm/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when webhook url missing")
	}
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#deploys",
		Username:   "bot",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.JobFailurePayload{
		JobID:      "123",
		AppID:      "shop.example.com",
		Operation:  "update",
		Stage:      "activating",
		ErrorKind:  "integration",
		Error:      "boom",
		RolledBack: true,
	})

	if msg.Username != "bot" {
		t.Fatalf("expected username to be preserved, got %v", msg.Username)
	}
	if msg.Channel != "#deploys" {
		t.Fatalf("expected channel to be set, got %v", msg.Channel)
	}

	text := msg.Text
	if !containsAll(
		text,
		[]string{"Deployment failed", "123", "update", "shop.example.com", "activating", "integration", "boom", "restored previous version"},
	) {
		t.Fatalf("message text missing fields: %s", text)
	}
}

func TestFormatMessageRollbackFailure(t *testing.T) {
	client, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.JobFailurePayload{
		AppID:         "shop.example.com",
		RolledBack:    false,
		RollbackError: "archive checksum mismatch",
	})
	if !strings.Contains(msg.Text, "Rollback: failed: archive checksum mismatch") {
		t.Fatalf("expected rollback failure in text: %s", msg.Text)
	}
	if msg.Username != "wasm" {
		t.Fatalf("expected default username, got %v", msg.Username)
	}
}

func TestFormatAppValue(t *testing.T) {
	tcs := []struct {
		name   string
		appID  string
		prefix string
		want   string
	}{
		{
			name:   "id with link",
			appID:  "shop.example.com",
			prefix: "https://ops.example/apps",
			want:   "<https://ops.example/apps/shop.example.com|shop.example.com>",
		},
		{
			name:   "id without link",
			appID:  "shop.example.com",
			prefix: "not a url",
			want:   "shop.example.com",
		},
		{
			name:  "escaped",
			appID: "a<b>&c",
			want:  "a&lt;b&gt;&amp;c",
		},
		{
			name:   "empty",
			prefix: "https://ops.example/apps",
			want:   "",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(Config{
				WebhookURL:   "https://hooks.slack.com/services/test",
				AppURLPrefix: tc.prefix,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := client.formatAppValue(tc.appID)
			if got != tc.want {
				t.Fatalf("formatAppValue(%q) = %q, want %q", tc.appID, got, tc.want)
			}
		})
	}
}

func containsAll(text string, substrs []string) bool {
	for _, s := range substrs {
		if !strings.Contains(text, s) {
			return false
		}
	}
	return true
}

func TestSendJobFailureDelivery(t *testing.T) {
	var calls atomic.Int32
	received := make(chan message, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "try later", http.StatusInternalServerError)
			return
		}
		var m message
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			t.Errorf("decode body: %v", err)
		}
		received <- m
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, Channel: "#ops", RetryLimit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "j-9", AppID: "shop.example.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one retry after a 500, got %d calls", calls.Load())
	}
	got := <-received
	if got.Channel != "#ops" || !strings.Contains(got.Text, "`j-9`") {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestSendJobFailureRejectedWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "invalid_token", http.StatusForbidden)
	}))
	defer srv.Close()

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err = client.SendJobFailure(context.Background(), notify.JobFailurePayload{JobID: "j-9"})
	var de *notify.DeliveryError
	if !errors.As(err, &de) || de.Status != http.StatusForbidden || de.Body != "invalid_token" {
		t.Fatalf("expected delivery error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("client errors must not be retried, got %d calls", calls.Load())
	}
}
