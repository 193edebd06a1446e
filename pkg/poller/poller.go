// Package poller provides the bounded polling loop that drives a submitted
// unit of provider work to a terminal state. It knows nothing about jobs,
// node results, or the status channel; callers surface incremental state
// through the progress and heartbeat callbacks.
package poller

import (
	"context"
	"time"

	"github.com/genflow/genflow/pkg/provider"
)

// Outcome is the terminal verdict of one polling loop. Timeout is kept
// distinct from failed: it means the poller gave up waiting, not that the
// provider rejected the work.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeCanceled  Outcome = "canceled"
	OutcomeTimeout   Outcome = "timeout"
)

// TerminalResult is the final observation of the polled work.
type TerminalResult struct {
	Outcome  Outcome
	Output   map[string]any
	Error    string
	Attempts int
}

// CheckFunc performs one status check against the provider.
type CheckFunc func(ctx context.Context) (provider.StatusUpdate, error)

// Options tunes one polling loop.
type Options struct {
	Interval    time.Duration
	MaxAttempts int

	// OnProgress is invoked after every non-terminal check that returned a
	// provider observation.
	OnProgress func(update provider.StatusUpdate)

	// OnHeartbeat is invoked once per attempt, including attempts whose
	// check errored, so liveness tracking keeps running.
	OnHeartbeat func()
}

const (
	defaultInterval    = 2 * time.Second
	defaultMaxAttempts = 150
)

// PollUntilTerminal loops up to MaxAttempts status checks, sleeping Interval
// between attempts. The sleep is cancellable through ctx. Transient check
// errors consume an attempt and the loop continues; exhausting all attempts
// yields OutcomeTimeout.
func PollUntilTerminal(ctx context.Context, check CheckFunc, opts Options) (TerminalResult, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	var lastError string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if opts.OnHeartbeat != nil {
			opts.OnHeartbeat()
		}

		update, err := check(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return TerminalResult{}, ctx.Err()
			}

			lastError = err.Error()
		} else {
			switch update.Status {
			case provider.StatusSucceeded:
				return TerminalResult{
					Outcome:  OutcomeSucceeded,
					Output:   update.Output,
					Attempts: attempt,
				}, nil
			case provider.StatusFailed:
				return TerminalResult{
					Outcome:  OutcomeFailed,
					Output:   update.Output,
					Error:    update.Error,
					Attempts: attempt,
				}, nil
			case provider.StatusCanceled:
				return TerminalResult{
					Outcome:  OutcomeCanceled,
					Error:    update.Error,
					Attempts: attempt,
				}, nil
			case provider.StatusProcessing:
				lastError = update.Error

				if opts.OnProgress != nil {
					opts.OnProgress(update)
				}
			}
		}

		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return TerminalResult{}, ctx.Err()
		case <-time.After(interval):
		}
	}

	return TerminalResult{
		Outcome:  OutcomeTimeout,
		Error:    lastError,
		Attempts: maxAttempts,
	}, nil
}
