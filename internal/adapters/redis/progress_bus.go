// Package redis provides Redis-based adapters for the deployment engine.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Perkybeet/wasm/internal/domain/model"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when no progress snapshot exists for a job.
var ErrNotFound = errors.New("not found")

const (
	defaultPrefix      = "wasm:"
	defaultSnapshotTTL = 24 * time.Hour
)

// ProgressBus carries wake-up signals and progress events between engine
// processes sharing one store: an API process submitting jobs and worker
// processes executing them.
//
// Signals go over pub/sub and are lossy; subscribers always re-read the
// store. The last event of each job is also kept under a TTL so observers in
// other processes can render current progress without the store.
type ProgressBus struct {
	client      redis.UniversalClient
	prefix      string
	snapshotTTL time.Duration
}

// ProgressBusOptions configures a ProgressBus.
type ProgressBusOptions struct {
	// Prefix namespaces channels and keys. Defaults to "wasm:".
	Prefix string
	// SnapshotTTL bounds how long the last event of a job is kept.
	SnapshotTTL time.Duration
}

// NewProgressBus creates a bus on client.
func NewProgressBus(client redis.UniversalClient, opts ProgressBusOptions) *ProgressBus {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}
	ttl := opts.SnapshotTTL
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &ProgressBus{client: client, prefix: prefix, snapshotTTL: ttl}
}

func (b *ProgressBus) channel(topic string) string {
	return b.prefix + "notify:" + topic
}

func (b *ProgressBus) snapshotKey(jobID string) string {
	return b.prefix + "progress:" + jobID
}

// Signal publishes payload on topic. Subscribers only use it as a wake-up.
func (b *ProgressBus) Signal(ctx context.Context, topic string, payload []byte) error {
	if topic == "" {
		return errors.New("topic cannot be empty")
	}
	if err := b.client.Publish(ctx, b.channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// SaveSnapshot stores ev as the latest progress of its job.
func (b *ProgressBus) SaveSnapshot(ctx context.Context, ev model.ProgressEvent) error {
	if ev.JobID == "" {
		return errors.New("job ID cannot be empty")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return b.client.Set(ctx, b.snapshotKey(ev.JobID), data, b.snapshotTTL).Err()
}

// Snapshot returns the latest progress event recorded for jobID.
func (b *ProgressBus) Snapshot(ctx context.Context, jobID string) (model.ProgressEvent, error) {
	if jobID == "" {
		return model.ProgressEvent{}, ErrNotFound
	}
	data, err := b.client.Get(ctx, b.snapshotKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.ProgressEvent{}, ErrNotFound
		}
		return model.ProgressEvent{}, fmt.Errorf("redis get: %w", err)
	}
	var ev model.ProgressEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return model.ProgressEvent{}, fmt.Errorf("unmarshal progress: %w", err)
	}
	return ev, nil
}

// WaitForNotification blocks until topic is signalled or ctx ends.
func (b *ProgressBus) WaitForNotification(ctx context.Context, topic string) error {
	sub := b.client.Subscribe(ctx, b.channel(topic))
	defer func() { _ = sub.Close() }()

	// Receive blocks until the subscription is confirmed, so no signal sent
	// after this point is missed.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-sub.Channel():
		if !ok {
			return errors.New("redis subscription closed")
		}
		return nil
	}
}
