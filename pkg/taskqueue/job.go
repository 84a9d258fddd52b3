// Package taskqueue is a durable priority job queue.
//
// Ordering: lower Priority values are dequeued first; equal priorities are FIFO
// by enqueue time. A job that fails with a retryable error is parked in a
// delayed set and becomes ready again after an exponential backoff
// (base, 2*base, 4*base, ...). After MaxAttempts the job moves to the failed
// bucket where it stays for manual inspection. A job whose consumer vanished
// counts as a failed attempt once its lease runs out.
//
// Two implementations share these semantics: RedisQueue (multi-process,
// durable) and MemoryQueue (single process, used by tests and memory mode).
package taskqueue

import (
	"encoding/json"
	"errors"
	"time"
)

// State is the lifecycle position of a job.
type State string

const (
	StateWaiting   State = "waiting"
	StateDelayed   State = "delayed"
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

const (
	// MaxPriority bounds Priority so scores stay exact in float64.
	MaxPriority = 100

	defaultMaxAttempts  = 3
	defaultLeaseTimeout = 15 * time.Minute
	completedRetention  = 10000
)

// ErrJobNotActive is returned when completing or failing a job that is not
// currently held by a consumer.
var ErrJobNotActive = errors.New("taskqueue: job is not active")

// ErrLeaseExpired is the last error of a job whose consumer held it past its
// lease on the final attempt.
var ErrLeaseExpired = errors.New("taskqueue: lease expired")

// Job is one unit of queued work. Payload is opaque to the queue.
type Job struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"`
	Attempt     int             `json:"attempt"` // attempts started so far
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	State       State           `json:"state"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// EnqueueOptions tune a single Enqueue call.
type EnqueueOptions struct {
	Priority    int
	MaxAttempts int           // 0 uses the queue default
	Delay       time.Duration // job becomes ready after Delay
}

// Status is a point-in-time count of jobs per bucket.
type Status struct {
	Waiting   int64 `json:"waiting"`
	Delayed   int64 `json:"delayed"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Options configure a queue implementation.
type Options struct {
	Name        string
	MaxAttempts int
	BackoffBase time.Duration
	// LeaseTimeout bounds how long a consumer may hold a job before it is
	// handed out again. RedisQueue only; a MemoryQueue dies with its consumers.
	LeaseTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "default"
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = time.Second
	}
	if o.LeaseTimeout <= 0 {
		o.LeaseTimeout = defaultLeaseTimeout
	}
	return o
}

// Backoff returns the delay before retry number attempt (1-based):
// base, 2*base, 4*base, ...
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(1<<(attempt-1))
}

// clampPriority keeps priority within [0, MaxPriority].
func clampPriority(p int) int {
	switch {
	case p < 0:
		return 0
	case p > MaxPriority:
		return MaxPriority
	default:
		return p
	}
}

// score orders jobs by priority first, enqueue time second.
func score(priority int, enqueuedAt time.Time) float64 {
	return float64(clampPriority(priority))*1e13 + float64(enqueuedAt.UnixMilli())
}

// retryDecision reports whether a failed job should be retried and the
// resulting state.
func retryDecision(job *Job, retryable bool) State {
	if retryable && job.Attempt < job.MaxAttempts {
		return StateDelayed
	}
	return StateFailed
}
