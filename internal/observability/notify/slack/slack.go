// Package slack posts deployment failures to a Slack incoming webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/Perkybeet/wasm/internal/observability/notify"
)

// Config configures the webhook client.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client

	// AppURLPrefix turns application IDs into links, e.g. https://ops.example.com/apps.
	AppURLPrefix string
}

// Client delivers deployment failure notifications to a Slack webhook.
type Client struct {
	hook     notify.Webhook
	channel  string
	username string
	appBase  *url.URL
}

var _ notify.Sink = (*Client)(nil)

// NewClient builds a Slack webhook client. The webhook URL is required.
func NewClient(cfg Config) (*Client, error) {
	hookURL := strings.TrimSpace(cfg.WebhookURL)
	if hookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}
	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "wasm"
	}
	c := &Client{
		hook:     notify.NewWebhook("slack", hookURL, cfg.Timeout, cfg.RetryLimit, cfg.Client),
		channel:  strings.TrimSpace(cfg.Channel),
		username: username,
	}
	if u, err := url.Parse(strings.TrimSpace(cfg.AppURLPrefix)); err == nil && u.Scheme != "" && u.Host != "" {
		c.appBase = u
	}
	return c, nil
}

// SendJobFailure posts one message per failed job.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	return c.hook.Post(ctx, c.formatMessage(payload))
}

type message struct {
	Text     string `json:"text"`
	Username string `json:"username"`
	Channel  string `json:"channel,omitempty"`
}

func (c *Client) formatMessage(p notify.JobFailurePayload) message {
	var b strings.Builder
	b.WriteString("*Deployment failed*")
	if p.JobID != "" {
		fmt.Fprintf(&b, " `%s`", p.JobID)
	}
	if p.Operation != "" {
		fmt.Fprintf(&b, " (%s)", p.Operation)
	}
	b.WriteByte('\n')

	severity := p.Severity
	if severity == "" {
		severity = notify.SeverityCritical
	}
	bullet(&b, "", "Severity", severity)
	bullet(&b, "", "Application", c.formatAppValue(p.AppID))
	bullet(&b, "", "Stage", p.Stage)
	bullet(&b, "", "Error kind", p.ErrorKind)
	bullet(&b, "", "Error", p.Error)
	switch {
	case p.RollbackError != "":
		bullet(&b, "", "Rollback", "failed: "+p.RollbackError)
	case p.RolledBack:
		bullet(&b, "", "Rollback", "restored previous version")
	}
	if len(p.Metadata) > 0 {
		b.WriteString("• Metadata:\n")
		for _, k := range slices.Sorted(maps.Keys(p.Metadata)) {
			bullet(&b, "    ", k, p.Metadata[k])
		}
	}

	at := p.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	b.WriteString("• Timestamp: " + at.UTC().Format(time.RFC3339))

	return message{Text: b.String(), Username: c.username, Channel: c.channel}
}

func bullet(b *strings.Builder, indent, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	b.WriteString(indent + "• " + label + ": " + value + "\n")
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// formatAppValue renders the application as an escaped Slack link when a
// base URL is configured.
func (c *Client) formatAppValue(appID string) string {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return ""
	}
	label := slackEscaper.Replace(appID)
	if c.appBase == nil {
		return label
	}
	return "<" + c.appBase.JoinPath(appID).String() + "|" + label + ">"
}
