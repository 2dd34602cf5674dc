package host

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Perkybeet/wasm/internal/core"
	"github.com/Perkybeet/wasm/internal/domain/model"
	apperrors "github.com/Perkybeet/wasm/internal/errors"
	jmespath "github.com/jmespath-community/go-jmespath"
)

const (
	defaultHealthTimeout = 10 * time.Second
	maxHealthBody        = 1 << 20
)

// HTTPHealthChecker probes an application over HTTP.
type HTTPHealthChecker struct {
	client *http.Client
}

var _ core.HealthChecker = (*HTTPHealthChecker)(nil)

// NewHTTPHealthChecker creates a checker. A nil client gets one that does not follow redirects.
func NewHTTPHealthChecker(client *http.Client) *HTTPHealthChecker {
	if client == nil {
		client = &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		}
	}
	return &HTTPHealthChecker{client: client}
}

// Check passes when the response status is below 400 and, if an expectation is
// set, the JSON body satisfies it.
func (h *HTTPHealthChecker) Check(ctx context.Context, check model.HealthCheck) error {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = defaultHealthTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, check.URL, nil)
	if err != nil {
		return apperrors.Integration("health check", "", err)
	}
	if check.Host != "" {
		req.Host = check.Host
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return apperrors.Integration("health check", "", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHealthBody))
	if err != nil {
		return apperrors.Integration("health check", "", fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return apperrors.Integration("health check", tail(string(body), 2048),
			fmt.Errorf("%s returned %d", check.URL, resp.StatusCode))
	}
	if check.Expect == "" {
		return nil
	}
	return evaluateExpectation(check.Expect, body)
}

func evaluateExpectation(expr string, body []byte) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return apperrors.Integration("health check", tail(string(body), 2048), fmt.Errorf("response is not JSON: %w", err))
	}
	got, err := jmespath.Search(expr, doc)
	if err != nil {
		return apperrors.Integration("health check", "", fmt.Errorf("evaluate %q: %w", expr, err))
	}
	if !truthy(got) {
		return apperrors.Integration("health check", tail(string(body), 2048), fmt.Errorf("expectation %q not met", expr))
	}
	return nil
}

// truthy follows JMESPath truthiness: false, null and empty values are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}
