// Package jobqueue provides per-capability, concurrency-limited dispatch of
// provider work with bounded retries, heartbeats, and a dead-letter channel
// for work that exhausts its attempts.
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/genflow/genflow/pkg/jobqueue/deadletter"
	"github.com/genflow/genflow/pkg/models"
	"github.com/google/uuid"
)

// Handler executes one attempt of a job. attempt is 1-based; lastAttempt
// tells the handler no retry follows, so it can decide to degrade instead of
// erroring. A nil error marks the job succeeded with the returned output.
type Handler func(ctx context.Context, job models.Job, attempt int, lastAttempt bool) (map[string]any, error)

// UpdateFunc observes job state changes. The job is passed by value; the
// queue never hands out a mutable reference to its internal state.
type UpdateFunc func(job models.Job)

// Config tunes the queue.
type Config struct {
	// Capabilities maps a capability tag to its maximum simultaneously
	// in-flight jobs. Work beyond the bound waits in FIFO order.
	Capabilities map[string]int

	// DefaultLimit applies to capabilities absent from Capabilities.
	DefaultLimit int

	Retry RetryPolicy

	// QueueDepth bounds how many jobs may wait per capability lane.
	QueueDepth int
}

const (
	defaultLimit      = 2
	defaultQueueDepth = 256
)

var (
	// ErrQueueClosed is returned by Submit after Stop.
	ErrQueueClosed = errors.New("job queue is closed")

	// ErrLaneFull is returned when a capability's waiting lane is at capacity.
	ErrLaneFull = errors.New("job queue lane is full")

	// ErrJobNotFound is returned for operations on unknown job ids.
	ErrJobNotFound = errors.New("job not found")
)

type task struct {
	jobID   string
	handler Handler
	ctx     context.Context
}

type lane struct {
	tasks chan task
}

// Queue dispatches jobs with an independent FIFO lane and worker pool per
// capability, so one capability cannot starve another.
type Queue struct {
	config     Config
	logger     *slog.Logger
	deadLetter deadletter.Store
	onUpdate   UpdateFunc

	mu     sync.Mutex
	jobs   map[string]*models.Job
	lanes  map[string]*lane
	closed bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewQueue(config Config, deadLetter deadletter.Store, logger *slog.Logger) *Queue {
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = defaultLimit
	}

	if config.QueueDepth <= 0 {
		config.QueueDepth = defaultQueueDepth
	}

	if config.Retry.MaxAttempts == 0 {
		config.Retry = DefaultRetryPolicy()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Queue{
		config:     config,
		logger:     logger.With("module", "jobqueue"),
		deadLetter: deadLetter,
		jobs:       make(map[string]*models.Job),
		lanes:      make(map[string]*lane),
		baseCtx:    ctx,
		cancel:     cancel,
	}
}

// OnUpdate registers the observer notified on every job state change. Must
// be called before the first Submit.
func (q *Queue) OnUpdate(fn UpdateFunc) {
	q.onUpdate = fn
}

// Submit enqueues one unit of work for the capability and returns the job
// handle immediately; execution happens on the capability's worker pool.
func (q *Queue) Submit(ctx context.Context, capability, executionID, nodeID string, handler Handler) (models.Job, error) {
	now := time.Now().UTC()

	job := &models.Job{
		ID:          uuid.New().String(),
		ExecutionID: executionID,
		NodeID:      nodeID,
		Capability:  capability,
		Status:      models.JobStatusStarting,
		Attempt:     0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()

		return models.Job{}, ErrQueueClosed
	}

	capLane := q.laneFor(capability)

	// Reserve the lane slot before the job becomes visible anywhere. A
	// rejected submission must never surface as a job update.
	select {
	case capLane.tasks <- task{jobID: job.ID, handler: handler, ctx: ctx}:
	default:
		q.mu.Unlock()

		return models.Job{}, fmt.Errorf("%w: capability %s", ErrLaneFull, capability)
	}

	q.jobs[job.ID] = job
	snapshot := *job

	q.mu.Unlock()

	q.notify(snapshot)

	return snapshot, nil
}

// laneFor returns the lane for a capability, starting its workers on first
// use. Caller holds q.mu.
func (q *Queue) laneFor(capability string) *lane {
	if existing, ok := q.lanes[capability]; ok {
		return existing
	}

	limit, ok := q.config.Capabilities[capability]
	if !ok || limit <= 0 {
		limit = q.config.DefaultLimit
	}

	created := &lane{tasks: make(chan task, q.config.QueueDepth)}
	q.lanes[capability] = created

	for i := 0; i < limit; i++ {
		q.wg.Add(1)

		go q.worker(capability, created)
	}

	q.logger.Info("Started capability lane", "capability", capability, "concurrency", limit)

	return created
}

func (q *Queue) worker(capability string, capLane *lane) {
	defer q.wg.Done()

	for {
		select {
		case <-q.baseCtx.Done():
			return
		case item, ok := <-capLane.tasks:
			if !ok {
				return
			}

			q.run(item, capability)
		}
	}
}

func (q *Queue) run(item task, capability string) {
	ctx := item.ctx
	if ctx == nil {
		ctx = q.baseCtx
	}

	policy := q.config.Retry
	attempts := policy.attempts()

	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if backoff := policy.BackoffFor(attempt); backoff > 0 {
			select {
			case <-ctx.Done():
				q.finish(item.jobID, models.JobStatusCanceled, nil, ctx.Err().Error())

				return
			case <-q.baseCtx.Done():
				q.finish(item.jobID, models.JobStatusCanceled, nil, "queue shutting down")

				return
			case <-time.After(backoff):
			}
		}

		snapshot, ok := q.markAttempt(item.jobID, attempt)
		if !ok {
			return
		}

		output, err := item.handler(ctx, snapshot, attempt, attempt == attempts)
		if err == nil {
			q.finish(item.jobID, models.JobStatusSucceeded, output, "")

			return
		}

		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			q.finish(item.jobID, models.JobStatusCanceled, nil, err.Error())

			return
		}

		lastErr = err

		q.logger.Warn("Job attempt failed",
			"job_id", item.jobID,
			"capability", capability,
			"attempt", attempt,
			"error", err,
		)
	}

	q.moveToDeadLetter(item.jobID, capability, attempts, lastErr)
}

func (q *Queue) markAttempt(jobID string, attempt int) (models.Job, bool) {
	q.mu.Lock()

	job, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()

		return models.Job{}, false
	}

	job.Attempt = attempt
	job.Status = models.JobStatusProcessing
	job.UpdatedAt = time.Now().UTC()
	snapshot := *job

	q.mu.Unlock()

	q.notify(snapshot)

	return snapshot, true
}

func (q *Queue) finish(jobID string, status models.JobStatus, output map[string]any, errMessage string) {
	q.mu.Lock()

	job, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()

		return
	}

	job.Status = status
	job.Output = output
	job.Error = errMessage
	job.UpdatedAt = time.Now().UTC()

	if status == models.JobStatusSucceeded {
		job.Progress = 100
	}

	snapshot := *job

	q.mu.Unlock()

	q.notify(snapshot)
}

func (q *Queue) moveToDeadLetter(jobID, capability string, attempts int, cause error) {
	reason := "unknown failure"
	if cause != nil {
		reason = cause.Error()
	}

	q.finish(jobID, models.JobStatusFailed, nil, reason)

	q.mu.Lock()
	job, ok := q.jobs[jobID]

	var executionID, nodeID string
	if ok {
		executionID = job.ExecutionID
		nodeID = job.NodeID
	}
	q.mu.Unlock()

	entry := deadletter.Entry{
		JobID:       jobID,
		ExecutionID: executionID,
		NodeID:      nodeID,
		Capability:  capability,
		Reason:      reason,
		Attempts:    attempts,
		FailedAt:    time.Now().UTC(),
	}

	if err := q.deadLetter.Add(context.Background(), entry); err != nil {
		q.logger.Error("Failed to record dead-letter entry", "job_id", jobID, "error", err)
	}

	q.logger.Error("Job exhausted retries, moved to dead letter",
		"job_id", jobID,
		"capability", capability,
		"attempts", attempts,
		"reason", reason,
	)
}

// UpdateStatus records an externally observed status transition, such as
// progress reported by the completion poller.
func (q *Queue) UpdateStatus(jobID string, status models.JobStatus, progress int, errMessage string) error {
	q.mu.Lock()

	job, ok := q.jobs[jobID]
	if !ok {
		q.mu.Unlock()

		return ErrJobNotFound
	}

	job.Status = status

	if progress > job.Progress {
		job.Progress = progress
	}

	if errMessage != "" {
		job.Error = errMessage
	}

	job.UpdatedAt = time.Now().UTC()
	snapshot := *job

	q.mu.Unlock()

	q.notify(snapshot)

	return nil
}

// Heartbeat records liveness for a long-running job.
func (q *Queue) Heartbeat(jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}

	now := time.Now().UTC()
	job.LastHeartbeatAt = &now

	return nil
}

// Job returns a copy of the job with the given id.
func (q *Queue) Job(jobID string) (models.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, ok := q.jobs[jobID]
	if !ok {
		return models.Job{}, false
	}

	return *job, true
}

// Jobs returns a copy of every tracked job.
func (q *Queue) Jobs() []models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]models.Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		out = append(out, *job)
	}

	return out
}

// Forget drops a terminal job from the queue's tracking. The orchestrator
// calls this once it has consumed the result.
func (q *Queue) Forget(jobID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job, ok := q.jobs[jobID]; ok && job.Status.IsTerminal() {
		delete(q.jobs, jobID)
	}
}

// Stop shuts the queue down. In-flight handlers observe context
// cancellation; queued work is abandoned.
func (q *Queue) Stop() {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()

		return
	}

	q.closed = true

	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func (q *Queue) notify(job models.Job) {
	if q.onUpdate != nil {
		q.onUpdate(job)
	}
}
