package jobrunner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Perkybeet/wasm/internal/core"
	"github.com/Perkybeet/wasm/internal/data"
	domainjob "github.com/Perkybeet/wasm/internal/domain/job"
	"github.com/Perkybeet/wasm/internal/domain/model"
	"github.com/Perkybeet/wasm/internal/observability/notify"
	"github.com/Perkybeet/wasm/internal/service/failurenotifier"
	"github.com/Perkybeet/wasm/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// executorFunc adapts a function to Executor.
type executorFunc func(ctx context.Context, job *model.Job) error

func (f executorFunc) Run(ctx context.Context, job *model.Job) error { return f(ctx, job) }

// heartbeatRepo counts heartbeats and can report the lease as lost.
type heartbeatRepo struct {
	core.JobRepository
	beats    atomic.Int32
	lostAt   int32
	lastSecs atomic.Int32
}

func (r *heartbeatRepo) Heartbeat(ctx context.Context, jobID string, leaseSeconds int) (bool, error) {
	n := r.beats.Add(1)
	r.lastSecs.Store(int32(leaseSeconds))
	if r.lostAt > 0 && n >= r.lostAt {
		return false, nil
	}
	return r.JobRepository.Heartbeat(ctx, jobID, leaseSeconds)
}

func newJobRepo(t *testing.T) *data.JobRepo {
	t.Helper()
	return data.NewJobRepo(testutil.SetupTestDB(t), data.RepoConfig{Dialect: data.DialectSQLite})
}

func queue(t *testing.T, repo core.JobRepository, appID string) *model.Job {
	t.Helper()
	job, err := repo.Create(context.Background(), testutil.NewJob(testutil.NewSubmitRequest().WithAppID(appID).Build()))
	require.NoError(t, err)
	return job
}

// succeed marks the job finished the way the pipeline would.
func succeed(ctx context.Context, repo core.JobRepository, job *model.Job) error {
	_, err := repo.UpdateStatus(ctx, model.JobStatusUpdate{ID: job.ID, Status: model.JobStatusSucceeded})
	return err
}

func startRunner(t *testing.T, opts RunnerOptions) {
	t.Helper()
	r, err := NewRunner(opts)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("runner did not stop")
		}
	})
}

func TestNewRunner_RequiresDependencies(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Jobs: &data.JobRepo{}})
	require.Error(t, err)

	r, err := NewRunner(RunnerOptions{Jobs: &data.JobRepo{}, Executor: executorFunc(nil)})
	require.NoError(t, err)
	assert.Equal(t, 1, r.workers)
	assert.Equal(t, defaultLease, r.lease.Default())
}

func TestRunner_ExecutesQueuedJobs(t *testing.T) {
	repo := newJobRepo(t)
	a := queue(t, repo, "a.example.com")
	b := queue(t, repo, "b.example.com")

	var mu sync.Mutex
	seen := map[string]bool{}
	allDone := make(chan struct{})
	exec := executorFunc(func(ctx context.Context, job *model.Job) error {
		assert.Equal(t, model.JobStatusRunning, job.Status)
		mu.Lock()
		seen[job.ID] = true
		if len(seen) == 2 {
			close(allDone)
		}
		mu.Unlock()
		return succeed(ctx, repo, job)
	})

	startRunner(t, RunnerOptions{Jobs: repo, Executor: exec, Concurrency: 2, PollInterval: 20 * time.Millisecond})

	select {
	case <-allDone:
	case <-time.After(5 * time.Second):
		t.Fatal("jobs were not executed")
	}
	for _, id := range []string{a.ID, b.ID} {
		job, err := repo.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatusSucceeded, job.Status)
	}
}

func TestRunner_WakesOnNotification(t *testing.T) {
	repo := newJobRepo(t)
	notifier := domainjob.NewNotifier(domainjob.NotifierOptions{})
	t.Cleanup(notifier.StopAll)

	ran := make(chan string, 1)
	exec := executorFunc(func(ctx context.Context, job *model.Job) error {
		ran <- job.ID
		return succeed(ctx, repo, job)
	})
	startRunner(t, RunnerOptions{Jobs: repo, Executor: exec, Waker: notifier, PollInterval: time.Hour})

	// Give the worker time to find the queue empty and go idle.
	time.Sleep(100 * time.Millisecond)
	job := queue(t, repo, "shop.example.com")
	notifier.Notify(domainjob.QueueTopic)

	select {
	case id := <-ran:
		assert.Equal(t, job.ID, id)
	case <-time.After(5 * time.Second):
		t.Fatal("idle worker was not woken")
	}
}

func TestRunner_HeartbeatsWhileRunning(t *testing.T) {
	repo := &heartbeatRepo{JobRepository: newJobRepo(t)}
	queue(t, repo, "shop.example.com")

	finished := make(chan struct{})
	exec := executorFunc(func(ctx context.Context, job *model.Job) error {
		defer close(finished)
		// A 1s lease renews every 333ms.
		time.Sleep(800 * time.Millisecond)
		return succeed(ctx, repo, job)
	})
	startRunner(t, RunnerOptions{Jobs: repo, Executor: exec, Lease: time.Second, PollInterval: time.Hour})

	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}
	assert.GreaterOrEqual(t, repo.beats.Load(), int32(2))
	assert.Equal(t, int32(1), repo.lastSecs.Load())
}

func TestRunner_LostLeaseStopsJob(t *testing.T) {
	repo := &heartbeatRepo{JobRepository: newJobRepo(t), lostAt: 1}
	queue(t, repo, "shop.example.com")

	cause := make(chan error, 1)
	exec := executorFunc(func(ctx context.Context, _ *model.Job) error {
		<-ctx.Done()
		cause <- context.Cause(ctx)
		return ctx.Err()
	})
	startRunner(t, RunnerOptions{Jobs: repo, Executor: exec, Lease: time.Second, PollInterval: time.Hour})

	select {
	case err := <-cause:
		assert.True(t, errors.Is(err, errLeaseLost), "unexpected cause: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("job was not stopped after losing its lease")
	}
}

func TestRunner_ShutdownIsGraceful(t *testing.T) {
	repo := newJobRepo(t)
	r, err := NewRunner(RunnerOptions{Jobs: repo, Executor: executorFunc(func(context.Context, *model.Job) error { return nil })})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunner_NotifiesFailedJobs(t *testing.T) {
	repo := newJobRepo(t)
	failed := queue(t, repo, "a.example.com")
	queue(t, repo, "b.example.com")

	alerts := make(chan notify.JobFailurePayload, 2)
	notifier := failurenotifier.NewService(failurenotifier.Options{
		Sinks: []failurenotifier.SinkRegistration{{
			Name: "capture",
			Sink: notify.SinkFunc(func(_ context.Context, p notify.JobFailurePayload) error {
				alerts <- p
				return nil
			}),
		}},
	})

	ran := make(chan struct{}, 2)
	exec := executorFunc(func(ctx context.Context, job *model.Job) error {
		defer func() { ran <- struct{}{} }()
		if job.ID != failed.ID {
			return succeed(ctx, repo, job)
		}
		_, err := repo.UpdateStatus(ctx, model.JobStatusUpdate{
			ID:         job.ID,
			Status:     model.JobStatusFailed,
			ErrorKind:  "integration",
			ErrorStage: model.StageBuilding,
			Detail:     "build exited with 1",
		})
		return err
	})
	startRunner(t, RunnerOptions{Jobs: repo, Executor: exec, Failures: notifier, PollInterval: 20 * time.Millisecond})

	for range 2 {
		select {
		case <-ran:
		case <-time.After(5 * time.Second):
			t.Fatal("jobs were not executed")
		}
	}
	select {
	case p := <-alerts:
		assert.Equal(t, failed.ID, p.JobID)
		assert.Equal(t, "building", p.Stage)
		assert.Equal(t, "build exited with 1", p.Error)
	case <-time.After(5 * time.Second):
		t.Fatal("failed job was not reported")
	}
	select {
	case p := <-alerts:
		t.Fatalf("unexpected alert for %s", p.JobID)
	case <-time.After(100 * time.Millisecond):
	}
}
