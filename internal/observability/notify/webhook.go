package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Perkybeet/wasm/internal/util/backoff"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	retryBase             = 200 * time.Millisecond
	retryCap              = 2 * time.Second
	errorBodyLimit        = 4 << 10
)

// Webhook delivers JSON documents to an HTTP endpoint. Transport errors,
// 429 and 5xx answers are retried with exponential backoff; other statuses fail
// at once.
type Webhook struct {
	// Name labels errors, e.g. "slack".
	Name    string
	URL     string
	Retries int
	Client  *http.Client
}

// NewWebhook returns a webhook with its own client when hc is nil.
func NewWebhook(name, url string, timeout time.Duration, retries int, hc *http.Client) Webhook {
	if hc == nil {
		if timeout <= 0 {
			timeout = defaultWebhookTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return Webhook{Name: name, URL: url, Retries: max(retries, 0), Client: hc}
}

// DeliveryError is returned when the endpoint answers with a non-2xx status.
type DeliveryError struct {
	Sink   string
	Status int
	Body   string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s returned %d: %s", e.Sink, e.Status, e.Body)
}

func (e *DeliveryError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// Post encodes doc and sends it, retrying up to w.Retries times.
func (w Webhook) Post(ctx context.Context, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", w.Name, err)
	}

	bo := backoff.New(retryBase, retryCap)
	for attempt := 0; ; attempt++ {
		err = w.send(ctx, body)
		if err == nil {
			return nil
		}
		var de *DeliveryError
		if errors.As(err, &de) && !de.retryable() {
			return err
		}
		if attempt >= w.Retries {
			return err
		}
		if sleepErr := backoff.Sleep(ctx, bo.Next()); sleepErr != nil {
			return sleepErr
		}
	}
}

func (w Webhook) send(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", w.Name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", w.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	return &DeliveryError{Sink: w.Name, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
}
