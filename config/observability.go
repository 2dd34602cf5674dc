package config

import (
	"strings"
	"time"
)

// ObservabilityConfig groups metrics export and failure notifications.
type ObservabilityConfig struct {
	Metrics       ObservabilityMetricsConfig
	Notifications ObservabilityNotificationsConfig
}

// Sanitize applies guardrails to observability sub-configs.
func (c *ObservabilityConfig) Sanitize() {
	c.Metrics.Sanitize()
	c.Notifications.Sanitize()
}

// ObservabilityMetricsConfig selects the metric exporters. StatsD push and the
// Prometheus /metrics endpoint may both be active.
type ObservabilityMetricsConfig struct {
	// Prefix namespaces every metric name ("wasm.jobs.submitted", "wasm_jobs_submitted_total").
	Prefix string `env:"OBSERVABILITY_METRICS_PREFIX" envDefault:"wasm"`

	Statsd StatsdConfig `envPrefix:"OBSERVABILITY_METRICS_STATSD_"`

	// Prometheus exposes GET /metrics on the API listener.
	Prometheus bool `env:"OBSERVABILITY_METRICS_PROMETHEUS_ENABLED" envDefault:"false"`
}

// StatsdConfig points the engine at a StatsD agent.
type StatsdConfig struct {
	Enabled bool   `env:"ENABLED" envDefault:"false"`
	Address string `env:"ADDRESS" envDefault:"127.0.0.1:8125"`

	// Tags are added to every datagram, written as "env:prod,region:eu".
	Tags map[string]string `env:"TAGS"`
}

// Sanitize trims values and turns StatsD off when it has nowhere to send.
func (c *ObservabilityMetricsConfig) Sanitize() {
	c.Prefix = strings.Trim(strings.TrimSpace(c.Prefix), "._")
	c.Statsd.Address = strings.TrimSpace(c.Statsd.Address)
	if c.Statsd.Address == "" {
		c.Statsd.Enabled = false
	}
}

// ObservabilityNotificationsConfig controls outbound notices for failed jobs.
// A sink is used when its credential is set and the master switch is on.
type ObservabilityNotificationsConfig struct {
	Enabled    bool          `env:"OBSERVABILITY_NOTIFICATIONS_ENABLED"     envDefault:"false"`
	Timeout    time.Duration `env:"OBSERVABILITY_NOTIFICATIONS_TIMEOUT"     envDefault:"5s"`
	RetryLimit int           `env:"OBSERVABILITY_NOTIFICATIONS_RETRY_LIMIT" envDefault:"3"`

	Slack     SlackNotificationConfig     `envPrefix:"OBSERVABILITY_NOTIFICATIONS_SLACK_"`
	PagerDuty PagerDutyNotificationConfig `envPrefix:"OBSERVABILITY_NOTIFICATIONS_PAGERDUTY_"`
}

// Sanitize normalises notification configuration values.
func (c *ObservabilityNotificationsConfig) Sanitize() {
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	c.RetryLimit = max(c.RetryLimit, 0)

	c.Slack.WebhookURL = strings.TrimSpace(c.Slack.WebhookURL)
	c.Slack.Channel = strings.TrimSpace(c.Slack.Channel)
	c.Slack.AppURLPrefix = strings.TrimRight(strings.TrimSpace(c.Slack.AppURLPrefix), "/")
	c.Slack.Username = orDefault(c.Slack.Username, "wasm")

	c.PagerDuty.RoutingKey = strings.TrimSpace(c.PagerDuty.RoutingKey)
	c.PagerDuty.Source = orDefault(c.PagerDuty.Source, "wasm")
	c.PagerDuty.Component = orDefault(c.PagerDuty.Component, "deployment-engine")
}

// SlackActive reports whether failures go to the Slack webhook.
func (c *ObservabilityNotificationsConfig) SlackActive() bool {
	return c.Enabled && c.Slack.WebhookURL != ""
}

// PagerDutyActive reports whether failures page through PagerDuty.
func (c *ObservabilityNotificationsConfig) PagerDutyActive() bool {
	return c.Enabled && c.PagerDuty.RoutingKey != ""
}

// SlackNotificationConfig configures the Slack incoming webhook.
type SlackNotificationConfig struct {
	WebhookURL string `env:"WEBHOOK_URL"`
	Channel    string `env:"CHANNEL"`
	Username   string `env:"USERNAME" envDefault:"wasm"`

	// AppURLPrefix, when set, turns the application id into a link to "<prefix>/<app id>".
	AppURLPrefix string `env:"APP_URL_PREFIX"`
}

// PagerDutyNotificationConfig configures Events API v2 triggers.
type PagerDutyNotificationConfig struct {
	RoutingKey string `env:"ROUTING_KEY"`
	Source     string `env:"SOURCE"      envDefault:"wasm"`
	Component  string `env:"COMPONENT"   envDefault:"deployment-engine"`
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
