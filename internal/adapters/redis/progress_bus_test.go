package redis

import (
	"context"
	"testing"
	"time"

	"github.com/Perkybeet/wasm/internal/domain/model"
	"github.com/Perkybeet/wasm/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestRedis creates a Redis client for testing.
// Tests will be skipped if Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	return testutil.SetupTestRedis(t)
}

func TestProgressBus_SnapshotRoundTrip(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	bus := NewProgressBus(client, ProgressBusOptions{Prefix: "test:"})
	ctx := context.Background()

	step := model.Step{JobID: "job-1", Seq: 2, Name: model.StageBuilding, Outcome: model.StepOutcomeOK}
	ev := model.ProgressEvent{JobID: "job-1", AppID: "shop.example.com", Status: model.JobStatusRunning, Step: &step}
	require.NoError(t, bus.SaveSnapshot(ctx, ev))

	got, err := bus.Snapshot(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusRunning, got.Status)
	require.NotNil(t, got.Step)
	assert.Equal(t, model.StageBuilding, got.Step.Name)

	ttl, err := client.TTL(ctx, "test:progress:job-1").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Hour)
}

func TestProgressBus_SnapshotMissing(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	bus := NewProgressBus(client, ProgressBusOptions{})
	_, err := bus.Snapshot(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = bus.Snapshot(context.Background(), "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestProgressBus_SignalWakesWaiter(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	bus := NewProgressBus(client, ProgressBusOptions{Prefix: "test:"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- bus.WaitForNotification(ctx, "queue") }()

	// Keep signalling until the subscriber is attached.
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			require.NoError(t, err)
			return
		case <-ticker.C:
			require.NoError(t, bus.Signal(ctx, "queue", nil))
		case <-ctx.Done():
			t.Fatal("waiter was not woken")
		}
	}
}

func TestProgressBus_WaitHonoursContext(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	bus := NewProgressBus(client, ProgressBusOptions{Prefix: "test:"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := bus.WaitForNotification(ctx, "job:idle")
	require.Error(t, err)
}

func TestProgressBus_RejectsEmptyTopic(t *testing.T) {
	bus := NewProgressBus(nil, ProgressBusOptions{})
	require.Error(t, bus.Signal(context.Background(), "", nil))
	require.Error(t, bus.SaveSnapshot(context.Background(), model.ProgressEvent{}))
}
