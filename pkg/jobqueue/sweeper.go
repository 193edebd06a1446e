package jobqueue

import (
	"log/slog"
	"time"

	"github.com/genflow/genflow/pkg/models"
	"github.com/robfig/cron/v3"
)

// StallFunc is notified for each job whose heartbeat went silent. It is a
// signal for surfacing stuck executions, not a kill switch.
type StallFunc func(job models.Job)

const defaultSweepSchedule = "@every 30s"

// Sweeper periodically scans the queue for processing jobs whose last
// heartbeat is older than the configured window.
type Sweeper struct {
	queue   *Queue
	window  time.Duration
	onStall StallFunc
	logger  *slog.Logger
	cron    *cron.Cron
}

func NewSweeper(queue *Queue, window time.Duration, onStall StallFunc, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		queue:   queue,
		window:  window,
		onStall: onStall,
		logger:  logger.With("module", "jobqueue_sweeper"),
		cron:    cron.New(),
	}
}

// Start schedules the sweep. An empty schedule uses the default cadence.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = defaultSweepSchedule
	}

	if _, err := s.cron.AddFunc(schedule, s.Sweep); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Started stalled-job sweeper", "schedule", schedule, "window", s.window)

	return nil
}

func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep runs one scan. Exported so callers can trigger it on demand.
func (s *Sweeper) Sweep() {
	cutoff := time.Now().UTC().Add(-s.window)

	for _, job := range s.queue.Jobs() {
		if job.Status != models.JobStatusProcessing {
			continue
		}

		lastSeen := job.UpdatedAt
		if job.LastHeartbeatAt != nil && job.LastHeartbeatAt.After(lastSeen) {
			lastSeen = *job.LastHeartbeatAt
		}

		if lastSeen.Before(cutoff) {
			s.logger.Warn("Job heartbeat is stale",
				"job_id", job.ID,
				"node_id", job.NodeID,
				"capability", job.Capability,
				"last_seen", lastSeen,
			)

			if s.onStall != nil {
				s.onStall(job)
			}
		}
	}
}
