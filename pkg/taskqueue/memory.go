package taskqueue

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Queue with the same ordering and retry
// semantics as RedisQueue. Jobs do not survive a restart.
type MemoryQueue struct {
	mu        sync.Mutex
	opts      Options
	now       func() time.Time
	seq       uint64
	waiting   jobHeap
	delayed   map[string]time.Time
	jobs      map[string]*memJob
	active    map[string]struct{}
	completed int64
	failed    []*Job
}

type memJob struct {
	job   *Job
	score float64
	seq   uint64
}

// NewMemoryQueue returns an empty MemoryQueue.
func NewMemoryQueue(opts Options) *MemoryQueue {
	return &MemoryQueue{
		opts:    opts.withDefaults(),
		now:     time.Now,
		delayed: map[string]time.Time{},
		jobs:    map[string]*memJob{},
		active:  map[string]struct{}{},
	}
}

// SetClock overrides the time source. Tests use it to step over backoff delays.
func (q *MemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

// Enqueue adds a job.
func (q *MemoryQueue) Enqueue(_ context.Context, name string, payload []byte, opts EnqueueOptions) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now().UTC()
	job := &Job{
		ID:          uuid.NewString(),
		Name:        name,
		Payload:     append([]byte(nil), payload...),
		Priority:    clampPriority(opts.Priority),
		MaxAttempts: opts.MaxAttempts,
		State:       StateWaiting,
		EnqueuedAt:  now,
		UpdatedAt:   now,
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.opts.MaxAttempts
	}
	q.seq++
	mj := &memJob{job: job, score: score(job.Priority, now), seq: q.seq}
	q.jobs[job.ID] = mj

	if opts.Delay > 0 {
		job.State = StateDelayed
		q.delayed[job.ID] = now.Add(opts.Delay)
	} else {
		heap.Push(&q.waiting, mj)
	}
	return job.ID, nil
}

// Dequeue claims the next ready job. Returns (nil, nil) when nothing is ready.
func (q *MemoryQueue) Dequeue(_ context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	for id, readyAt := range q.delayed {
		if !readyAt.After(now) {
			delete(q.delayed, id)
			heap.Push(&q.waiting, q.jobs[id])
		}
	}
	if q.waiting.Len() == 0 {
		return nil, nil
	}

	mj := heap.Pop(&q.waiting).(*memJob)
	mj.job.Attempt++
	mj.job.State = StateActive
	mj.job.UpdatedAt = now.UTC()
	q.active[mj.job.ID] = struct{}{}

	cp := *mj.job
	return &cp, nil
}

// Complete marks an active job done.
func (q *MemoryQueue) Complete(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.active[job.ID]; !ok {
		return ErrJobNotActive
	}
	delete(q.active, job.ID)
	delete(q.jobs, job.ID)
	q.completed++
	job.State = StateCompleted
	job.UpdatedAt = q.now().UTC()
	return nil
}

// Fail schedules a retry or moves the job to the failed bucket.
func (q *MemoryQueue) Fail(_ context.Context, job *Job, cause error, retryable bool) (State, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.active[job.ID]; !ok {
		return "", ErrJobNotActive
	}
	delete(q.active, job.ID)

	mj := q.jobs[job.ID]
	if cause != nil {
		mj.job.LastError = cause.Error()
	}
	now := q.now()
	mj.job.State = retryDecision(mj.job, retryable)
	mj.job.UpdatedAt = now.UTC()

	if mj.job.State == StateDelayed {
		q.delayed[job.ID] = now.Add(Backoff(q.opts.BackoffBase, mj.job.Attempt))
	} else {
		delete(q.jobs, job.ID)
		q.failed = append(q.failed, mj.job)
	}
	*job = *mj.job
	return mj.job.State, nil
}

// Counts returns the number of jobs in each bucket.
func (q *MemoryQueue) Counts(_ context.Context) (Status, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{
		Waiting:   int64(q.waiting.Len()),
		Delayed:   int64(len(q.delayed)),
		Active:    int64(len(q.active)),
		Completed: q.completed,
		Failed:    int64(len(q.failed)),
	}, nil
}

// Failed returns up to limit failed jobs, newest first.
func (q *MemoryQueue) Failed(_ context.Context, limit int64) ([]*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, 0, len(q.failed))
	for i := len(q.failed) - 1; i >= 0 && int64(len(out)) < limit; i-- {
		cp := *q.failed[i]
		out = append(out, &cp)
	}
	return out, nil
}

// Ping always succeeds.
func (q *MemoryQueue) Ping(_ context.Context) error { return nil }

// jobHeap orders by score, then insertion sequence.
type jobHeap []*memJob

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score < h[j].score
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*memJob)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
