package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Perkybeet/wasm/internal/core"
	domainjob "github.com/Perkybeet/wasm/internal/domain/job"
	"github.com/Perkybeet/wasm/internal/domain/model"
)

// ProgressHubOptions groups dependencies for ProgressHub.
type ProgressHubOptions struct {
	Notifier domainjob.Notifier // Required: in-process wake-ups
	Relay    core.ProgressRelay // Optional: cross-process fan-out (Redis)
	Logger   *slog.Logger       // Optional: structured logger
}

// ProgressHub is the engine's ProgressPublisher. Every event wakes the job's
// in-process observers and, when a relay is configured, observers and
// workers in other processes.
type ProgressHub struct {
	notifier domainjob.Notifier
	relay    core.ProgressRelay
	logger   *slog.Logger
}

// NewProgressHub constructs a ProgressHub.
func NewProgressHub(opts ProgressHubOptions) *ProgressHub {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = domainjob.NewNotifier(domainjob.NotifierOptions{})
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressHub{
		notifier: notifier,
		relay:    opts.Relay,
		logger:   logger.With("component", "progress_hub"),
	}
}

// Publish implements core.ProgressPublisher.
func (h *ProgressHub) Publish(ctx context.Context, event model.ProgressEvent) {
	topic := domainjob.ProgressTopic(event.JobID)
	h.notifier.Notify(topic)
	if h.relay == nil {
		return
	}

	if err := h.relay.SaveSnapshot(ctx, event); err != nil {
		h.logger.WarnContext(ctx, "progress snapshot not saved", "job_id", event.JobID, "error", err)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.WarnContext(ctx, "progress event not encoded", "job_id", event.JobID, "error", err)
		return
	}
	if err := h.relay.Signal(ctx, topic, payload); err != nil {
		h.logger.WarnContext(ctx, "progress signal not sent", "job_id", event.JobID, "error", err)
	}
}

// JobAvailable wakes idle workers after a job was queued.
func (h *ProgressHub) JobAvailable(ctx context.Context) {
	h.notifier.Notify(domainjob.QueueTopic)
	if h.relay == nil {
		return
	}
	if err := h.relay.Signal(ctx, domainjob.QueueTopic, nil); err != nil {
		h.logger.WarnContext(ctx, "queue signal not sent", "error", err)
	}
}

// Subscribe returns wake-ups for topic; see domainjob.Notifier.
func (h *ProgressHub) Subscribe(topic string) (func(), <-chan struct{}) {
	return h.notifier.Subscribe(topic)
}

// Close stops every subscription.
func (h *ProgressHub) Close() {
	h.notifier.StopAll()
}

var _ core.ProgressPublisher = (*ProgressHub)(nil)
