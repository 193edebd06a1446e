package jobqueue_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genflow/genflow/pkg/jobqueue"
	"github.com/genflow/genflow/pkg/jobqueue/deadletter"
	"github.com/genflow/genflow/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }

func fastRetry(attempts int) jobqueue.RetryPolicy {
	return jobqueue.RetryPolicy{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

// terminalWatcher collects terminal transitions so tests can wait on them.
type terminalWatcher struct {
	ch chan models.Job
}

func newTerminalWatcher() *terminalWatcher {
	return &terminalWatcher{ch: make(chan models.Job, 64)}
}

func (w *terminalWatcher) observe(job models.Job) {
	if job.Status.IsTerminal() {
		w.ch <- job
	}
}

func (w *terminalWatcher) wait(t *testing.T, n int) []models.Job {
	t.Helper()

	out := make([]models.Job, 0, n)

	for len(out) < n {
		select {
		case job := <-w.ch:
			out = append(out, job)
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %d terminal jobs, got %d", n, len(out))
		}
	}

	return out
}

func TestQueueRunsSubmittedJob(t *testing.T) {
	queue := jobqueue.NewQueue(jobqueue.Config{Retry: fastRetry(1)}, deadletter.NewMemoryStore(), testLogger())
	defer queue.Stop()

	watcher := newTerminalWatcher()
	queue.OnUpdate(watcher.observe)

	job, err := queue.Submit(context.Background(), "text.generate", "exec-1", "node-1",
		func(_ context.Context, _ models.Job, _ int, _ bool) (map[string]any, error) {
			return map[string]any{"text": "done"}, nil
		})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusStarting, job.Status)
	assert.Equal(t, "node-1", job.NodeID)

	done := watcher.wait(t, 1)[0]
	assert.Equal(t, models.JobStatusSucceeded, done.Status)
	assert.Equal(t, "done", done.Output["text"])
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, 1, done.Attempt)
}

func TestQueueEnforcesConcurrencyCap(t *testing.T) {
	const (
		limit   = 2
		jobs    = 10
		holdFor = 20 * time.Millisecond
	)

	queue := jobqueue.NewQueue(jobqueue.Config{
		Capabilities: map[string]int{"image.generate": limit},
		Retry:        fastRetry(1),
	}, deadletter.NewMemoryStore(), testLogger())
	defer queue.Stop()

	watcher := newTerminalWatcher()
	queue.OnUpdate(watcher.observe)

	var inFlight, peak atomic.Int64

	for i := 0; i < jobs; i++ {
		_, err := queue.Submit(context.Background(), "image.generate", "exec-1", "node",
			func(_ context.Context, _ models.Job, _ int, _ bool) (map[string]any, error) {
				current := inFlight.Add(1)
				defer inFlight.Add(-1)

				for {
					observed := peak.Load()
					if current <= observed || peak.CompareAndSwap(observed, current) {
						break
					}
				}

				time.Sleep(holdFor)

				return nil, nil
			})
		require.NoError(t, err)
	}

	watcher.wait(t, jobs)

	assert.LessOrEqual(t, peak.Load(), int64(limit),
		"in-flight jobs must never exceed the capability limit")
	assert.Greater(t, peak.Load(), int64(0))
}

func TestQueueLanesAreIndependent(t *testing.T) {
	queue := jobqueue.NewQueue(jobqueue.Config{
		Capabilities: map[string]int{"video.generate": 1, "text.generate": 1},
		Retry:        fastRetry(1),
	}, deadletter.NewMemoryStore(), testLogger())
	defer queue.Stop()

	watcher := newTerminalWatcher()
	queue.OnUpdate(watcher.observe)

	blocked := make(chan struct{})

	_, err := queue.Submit(context.Background(), "video.generate", "exec-1", "slow",
		func(_ context.Context, _ models.Job, _ int, _ bool) (map[string]any, error) {
			<-blocked

			return nil, nil
		})
	require.NoError(t, err)

	fast, err := queue.Submit(context.Background(), "text.generate", "exec-1", "fast",
		func(_ context.Context, _ models.Job, _ int, _ bool) (map[string]any, error) {
			return nil, nil
		})
	require.NoError(t, err)

	// The text lane completes even while the video lane is saturated.
	done := watcher.wait(t, 1)[0]
	assert.Equal(t, fast.ID, done.ID)
	assert.Equal(t, models.JobStatusSucceeded, done.Status)

	close(blocked)
	watcher.wait(t, 1)
}

func TestQueuePreservesFIFOWithinLane(t *testing.T) {
	queue := jobqueue.NewQueue(jobqueue.Config{
		Capabilities: map[string]int{"transform": 1},
		Retry:        fastRetry(1),
	}, deadletter.NewMemoryStore(), testLogger())
	defer queue.Stop()

	var (
		mu    sync.Mutex
		order []string
	)

	watcher := newTerminalWatcher()
	queue.OnUpdate(watcher.observe)

	const jobs = 8

	submitted := make([]string, 0, jobs)

	for i := 0; i < jobs; i++ {
		job, err := queue.Submit(context.Background(), "transform", "exec-1", "node",
			func(_ context.Context, self models.Job, _ int, _ bool) (map[string]any, error) {
				mu.Lock()
				order = append(order, self.ID)
				mu.Unlock()

				return nil, nil
			})
		require.NoError(t, err)

		submitted = append(submitted, job.ID)
	}

	watcher.wait(t, jobs)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, submitted, order, "a single-worker lane runs jobs in submission order")
}

func TestQueueRetriesThenDeadLetters(t *testing.T) {
	const attempts = 3

	store := deadletter.NewMemoryStore()
	queue := jobqueue.NewQueue(jobqueue.Config{Retry: fastRetry(attempts)}, store, testLogger())
	defer queue.Stop()

	watcher := newTerminalWatcher()
	queue.OnUpdate(watcher.observe)

	var calls atomic.Int64

	var sawLastAttempt atomic.Bool

	job, err := queue.Submit(context.Background(), "image.generate", "exec-1", "node-x",
		func(_ context.Context, _ models.Job, attempt int, lastAttempt bool) (map[string]any, error) {
			calls.Add(1)

			if lastAttempt {
				sawLastAttempt.Store(true)
				assert.Equal(t, attempts, attempt)
			}

			return nil, errors.New("provider rejected the request")
		})
	require.NoError(t, err)

	done := watcher.wait(t, 1)[0]
	assert.Equal(t, models.JobStatusFailed, done.Status)
	assert.Equal(t, "provider rejected the request", done.Error)

	assert.Equal(t, int64(attempts), calls.Load(), "handler runs exactly MaxAttempts times")
	assert.True(t, sawLastAttempt.Load())

	entries, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1, "exhausted job appears in the dead-letter channel exactly once")
	assert.Equal(t, job.ID, entries[0].JobID)
	assert.Equal(t, "node-x", entries[0].NodeID)
	assert.Equal(t, "image.generate", entries[0].Capability)
	assert.Equal(t, attempts, entries[0].Attempts)
	assert.Equal(t, "provider rejected the request", entries[0].Reason)
}

func TestQueueSucceedsAfterTransientFailure(t *testing.T) {
	store := deadletter.NewMemoryStore()
	queue := jobqueue.NewQueue(jobqueue.Config{Retry: fastRetry(3)}, store, testLogger())
	defer queue.Stop()

	watcher := newTerminalWatcher()
	queue.OnUpdate(watcher.observe)

	var calls atomic.Int64

	_, err := queue.Submit(context.Background(), "text.generate", "exec-1", "node",
		func(_ context.Context, _ models.Job, attempt int, _ bool) (map[string]any, error) {
			calls.Add(1)

			if attempt < 2 {
				return nil, errors.New("temporarily unavailable")
			}

			return map[string]any{"ok": true}, nil
		})
	require.NoError(t, err)

	done := watcher.wait(t, 1)[0]
	assert.Equal(t, models.JobStatusSucceeded, done.Status)
	assert.Equal(t, 2, done.Attempt)
	assert.Equal(t, int64(2), calls.Load())

	entries, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries, "recovered jobs never reach the dead letter")
}

func TestQueueCancelsJobWhenContextEnds(t *testing.T) {
	queue := jobqueue.NewQueue(jobqueue.Config{Retry: fastRetry(3)}, deadletter.NewMemoryStore(), testLogger())
	defer queue.Stop()

	watcher := newTerminalWatcher()
	queue.OnUpdate(watcher.observe)

	ctx, cancel := context.WithCancel(context.Background())

	_, err := queue.Submit(ctx, "video.generate", "exec-1", "node",
		func(jobCtx context.Context, _ models.Job, _ int, _ bool) (map[string]any, error) {
			cancel()
			<-jobCtx.Done()

			return nil, jobCtx.Err()
		})
	require.NoError(t, err)

	done := watcher.wait(t, 1)[0]
	assert.Equal(t, models.JobStatusCanceled, done.Status, "cancellation is not treated as a retryable failure")
}

func TestQueueUpdateStatusAndHeartbeat(t *testing.T) {
	queue := jobqueue.NewQueue(jobqueue.Config{Retry: fastRetry(1)}, deadletter.NewMemoryStore(), testLogger())
	defer queue.Stop()

	watcher := newTerminalWatcher()
	queue.OnUpdate(watcher.observe)

	release := make(chan struct{})
	started := make(chan string, 1)

	_, err := queue.Submit(context.Background(), "image.generate", "exec-1", "node",
		func(_ context.Context, self models.Job, _ int, _ bool) (map[string]any, error) {
			started <- self.ID
			<-release

			return nil, nil
		})
	require.NoError(t, err)

	jobID := <-started

	require.NoError(t, queue.UpdateStatus(jobID, models.JobStatusProcessing, 40, ""))
	require.NoError(t, queue.Heartbeat(jobID))

	current, ok := queue.Job(jobID)
	require.True(t, ok)
	assert.Equal(t, 40, current.Progress)
	require.NotNil(t, current.LastHeartbeatAt)

	// Progress never moves backwards.
	require.NoError(t, queue.UpdateStatus(jobID, models.JobStatusProcessing, 10, ""))
	current, _ = queue.Job(jobID)
	assert.Equal(t, 40, current.Progress)

	close(release)
	watcher.wait(t, 1)

	assert.ErrorIs(t, queue.UpdateStatus("missing", models.JobStatusProcessing, 0, ""), jobqueue.ErrJobNotFound)
	assert.ErrorIs(t, queue.Heartbeat("missing"), jobqueue.ErrJobNotFound)
}

func TestQueueForgetDropsOnlyTerminalJobs(t *testing.T) {
	queue := jobqueue.NewQueue(jobqueue.Config{Retry: fastRetry(1)}, deadletter.NewMemoryStore(), testLogger())
	defer queue.Stop()

	watcher := newTerminalWatcher()
	queue.OnUpdate(watcher.observe)

	release := make(chan struct{})

	live, err := queue.Submit(context.Background(), "transform", "exec-1", "live-node",
		func(_ context.Context, _ models.Job, _ int, _ bool) (map[string]any, error) {
			<-release

			return nil, nil
		})
	require.NoError(t, err)

	queue.Forget(live.ID)
	_, ok := queue.Job(live.ID)
	assert.True(t, ok, "non-terminal jobs stay tracked")

	close(release)
	done := watcher.wait(t, 1)[0]

	queue.Forget(done.ID)
	_, ok = queue.Job(done.ID)
	assert.False(t, ok)
}

func TestQueueHandsOutCopies(t *testing.T) {
	queue := jobqueue.NewQueue(jobqueue.Config{Retry: fastRetry(1)}, deadletter.NewMemoryStore(), testLogger())
	defer queue.Stop()

	watcher := newTerminalWatcher()
	queue.OnUpdate(watcher.observe)

	job, err := queue.Submit(context.Background(), "transform", "exec-1", "node",
		func(_ context.Context, _ models.Job, _ int, _ bool) (map[string]any, error) {
			return nil, nil
		})
	require.NoError(t, err)

	watcher.wait(t, 1)

	// Mutating the caller's copy must not leak into queue state.
	job.Status = models.JobStatusFailed
	job.Error = "tampered"

	tracked, ok := queue.Job(job.ID)
	require.True(t, ok)
	assert.Equal(t, models.JobStatusSucceeded, tracked.Status)
	assert.Empty(t, tracked.Error)
}

func TestQueueRejectsSubmitAfterStop(t *testing.T) {
	queue := jobqueue.NewQueue(jobqueue.Config{Retry: fastRetry(1)}, deadletter.NewMemoryStore(), testLogger())
	queue.Stop()

	_, err := queue.Submit(context.Background(), "transform", "exec-1", "node",
		func(_ context.Context, _ models.Job, _ int, _ bool) (map[string]any, error) {
			return nil, nil
		})
	assert.ErrorIs(t, err, jobqueue.ErrQueueClosed)
}

func TestQueueRejectsWhenLaneIsFull(t *testing.T) {
	queue := jobqueue.NewQueue(jobqueue.Config{
		Capabilities: map[string]int{"video.generate": 1},
		Retry:        fastRetry(1),
		QueueDepth:   1,
	}, deadletter.NewMemoryStore(), testLogger())
	defer queue.Stop()

	release := make(chan struct{})
	defer close(release)

	blocker := func(_ context.Context, _ models.Job, _ int, _ bool) (map[string]any, error) {
		<-release

		return nil, nil
	}

	// Saturate the single worker plus the one-slot lane, then overflow.
	var err error
	for i := 0; i < 8; i++ {
		if _, err = queue.Submit(context.Background(), "video.generate", "exec-1", "node", blocker); err != nil {
			break
		}
	}

	assert.ErrorIs(t, err, jobqueue.ErrLaneFull)
}

func TestQueueLaneFullRejectionLeavesNoTrace(t *testing.T) {
	queue := jobqueue.NewQueue(jobqueue.Config{
		Capabilities: map[string]int{"video.generate": 1},
		Retry:        fastRetry(1),
		QueueDepth:   1,
	}, deadletter.NewMemoryStore(), testLogger())
	defer queue.Stop()

	var (
		mu   sync.Mutex
		seen []string
	)

	queue.OnUpdate(func(job models.Job) {
		mu.Lock()
		seen = append(seen, job.ID)
		mu.Unlock()
	})

	release := make(chan struct{})
	defer close(release)

	blocker := func(_ context.Context, _ models.Job, _ int, _ bool) (map[string]any, error) {
		<-release

		return nil, nil
	}

	accepted := make(map[string]bool)

	var err error

	for i := 0; i < 8; i++ {
		var job models.Job

		job, err = queue.Submit(context.Background(), "video.generate", "exec-1", "node", blocker)
		if err != nil {
			break
		}

		accepted[job.ID] = true
	}

	require.ErrorIs(t, err, jobqueue.ErrLaneFull)

	// A rejected submission must not surface as a job update or stay tracked.
	mu.Lock()
	for _, id := range seen {
		assert.True(t, accepted[id], "update for a job that was never enqueued")
	}
	mu.Unlock()

	assert.Len(t, queue.Jobs(), len(accepted))
}

func TestSweeperFlagsStaleJobs(t *testing.T) {
	queue := jobqueue.NewQueue(jobqueue.Config{Retry: fastRetry(1)}, deadletter.NewMemoryStore(), testLogger())
	defer queue.Stop()

	release := make(chan struct{})
	started := make(chan string, 1)

	_, err := queue.Submit(context.Background(), "video.generate", "exec-1", "stuck-node",
		func(_ context.Context, self models.Job, _ int, _ bool) (map[string]any, error) {
			started <- self.ID
			<-release

			return nil, nil
		})
	require.NoError(t, err)

	jobID := <-started

	var (
		mu      sync.Mutex
		stalled []models.Job
	)

	sweeper := jobqueue.NewSweeper(queue, time.Millisecond, func(job models.Job) {
		mu.Lock()
		stalled = append(stalled, job)
		mu.Unlock()
	}, testLogger())

	// Let the heartbeat window lapse, then scan directly.
	time.Sleep(5 * time.Millisecond)
	sweeper.Sweep()

	mu.Lock()
	require.Len(t, stalled, 1)
	assert.Equal(t, jobID, stalled[0].ID)
	mu.Unlock()

	// A fresh heartbeat clears the stall condition.
	require.NoError(t, queue.Heartbeat(jobID))

	mu.Lock()
	stalled = nil
	mu.Unlock()

	sweeper.Sweep()

	mu.Lock()
	assert.Empty(t, stalled)
	mu.Unlock()

	close(release)
}

func TestRetryPolicyBackoff(t *testing.T) {
	policy := jobqueue.RetryPolicy{
		MaxAttempts:       5,
		InitialBackoff:    time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        5 * time.Second,
	}

	assert.Equal(t, time.Duration(0), policy.BackoffFor(1))
	assert.Equal(t, time.Second, policy.BackoffFor(2))
	assert.Equal(t, 2*time.Second, policy.BackoffFor(3))
	assert.Equal(t, 4*time.Second, policy.BackoffFor(4))
	assert.Equal(t, 5*time.Second, policy.BackoffFor(5), "backoff is capped")
}
