// Package pagerduty raises incidents for failed deployments through the
// Events API v2.
package pagerduty

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/Perkybeet/wasm/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	// Endpoint defaults to APIEndpoint.
	Endpoint   string
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
}

// Client triggers one incident per failed job. Repeated failures of the same
// job share a dedup key.
type Client struct {
	hook       notify.Webhook
	routingKey string
	source     string
	component  string
}

var _ notify.Sink = (*Client)(nil)

// NewClient requires a routing key.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = APIEndpoint
	}
	return &Client{
		hook:       notify.NewWebhook("pagerduty", endpoint, cfg.Timeout, cfg.RetryLimit, cfg.Client),
		routingKey: key,
		source:     orDefault(cfg.Source, "wasm"),
		component:  orDefault(cfg.Component, "deployment-engine"),
	}, nil
}

// SendJobFailure submits a trigger event.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	return c.hook.Post(ctx, c.buildEvent(payload))
}

type event struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key,omitempty"`
	Payload     eventPayload `json:"payload"`
}

type eventPayload struct {
	Summary       string         `json:"summary"`
	Severity      string         `json:"severity"`
	Source        string         `json:"source"`
	Component     string         `json:"component"`
	Group         string         `json:"group,omitempty"`
	Class         string         `json:"class,omitempty"`
	Timestamp     string         `json:"timestamp"`
	CustomDetails map[string]any `json:"custom_details"`
}

func (c *Client) buildEvent(p notify.JobFailurePayload) event {
	at := p.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}

	details := make(map[string]any, len(p.Metadata)+8)
	for k, v := range p.Metadata {
		details[k] = v
	}
	details["job_id"] = p.JobID
	details["app_id"] = p.AppID
	details["operation"] = p.Operation
	details["stage"] = p.Stage
	details["error_kind"] = p.ErrorKind
	details["error"] = p.Error
	details["rolled_back"] = p.RolledBack
	if p.RollbackError != "" {
		details["rollback_error"] = p.RollbackError
	}

	return event{
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
		DedupKey:    strings.Trim(p.AppID+":"+p.JobID, ":"),
		Payload: eventPayload{
			Summary: "Deployment " + orDefault(p.Operation, "job") +
				" of " + orDefault(p.AppID, "unknown application") + " failed",
			Severity:      orDefault(strings.ToLower(p.Severity), notify.SeverityCritical),
			Source:        c.source,
			Component:     c.component,
			Group:         p.AppID,
			Class:         p.ErrorKind,
			Timestamp:     at.UTC().Format(time.RFC3339),
			CustomDetails: details,
		},
	}
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
