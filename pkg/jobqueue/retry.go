package jobqueue

import "time"

// RetryPolicy bounds how often a submitted unit of work is re-attempted and
// how long the queue sleeps between attempts.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
}

// DefaultRetryPolicy retries three times with exponential backoff capped at
// thirty seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// BackoffFor returns the sleep before the given attempt (2-based: there is
// no sleep before the first attempt).
func (p RetryPolicy) BackoffFor(attempt int) time.Duration {
	if attempt <= 1 || p.InitialBackoff <= 0 {
		return 0
	}

	multiplier := p.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	backoff := p.InitialBackoff
	for i := 2; i < attempt; i++ {
		backoff = time.Duration(float64(backoff) * multiplier)

		if p.MaxBackoff > 0 && backoff >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}

	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		return p.MaxBackoff
	}

	return backoff
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}

	return p.MaxAttempts
}
