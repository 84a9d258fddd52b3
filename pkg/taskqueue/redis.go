package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ghuser/procureflow/pkg/cache"
)

// popScript reclaims expired leases, promotes due delayed jobs, then
// atomically pops the best waiting job into the active set under a new lease.
// A reclaimed job goes back to waiting, or to failed once its attempts are
// used up. The job JSON is only read here; its state is corrected in Go.
//
// KEYS: waiting, delayed, active, jobs, scores, failed
// ARGV: now (unix ms), lease deadline (unix ms)
var popScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, id in ipairs(expired) do
  redis.call('ZREM', KEYS[3], id)
  local raw = redis.call('HGET', KEYS[4], id)
  if raw then
    local job = cjson.decode(raw)
    local s = redis.call('HGET', KEYS[5], id)
    if not s or (job.attempt or 0) >= (job.max_attempts or 1) then
      redis.call('ZADD', KEYS[6], ARGV[1], id)
      redis.call('HDEL', KEYS[5], id)
    else
      redis.call('ZADD', KEYS[1], s, id)
    end
  end
end
local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, 100)
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[2], id)
  local s = redis.call('HGET', KEYS[5], id)
  if s then
    redis.call('ZADD', KEYS[1], s, id)
  end
end
local popped = redis.call('ZPOPMIN', KEYS[1])
if #popped == 0 then
  return false
end
local id = popped[1]
redis.call('ZADD', KEYS[3], ARGV[2], id)
return redis.call('HGET', KEYS[4], id)
`)

// RedisQueue is a Redis-backed Queue safe for many consumer processes.
// A claimed job is leased for Options.LeaseTimeout; if its consumer dies the
// next Dequeue after the deadline hands it out again.
//
// Key layout for queue "q":
//
//	q:waiting    ZSET  id -> score(priority, enqueued_at)
//	q:delayed    ZSET  id -> ready_at (unix ms)
//	q:active     ZSET  id -> lease deadline (unix ms)
//	q:completed  ZSET  id -> finished_at (unix ms), trimmed
//	q:failed     ZSET  id -> failed_at (unix ms)
//	q:jobs       HASH  id -> job JSON
//	q:scores     HASH  id -> waiting score, kept across retries
type RedisQueue struct {
	client *redis.Client
	opts   Options
	now    func() time.Time
}

// NewRedisQueue returns a RedisQueue on the shared Redis client.
func NewRedisQueue(r *cache.RedisClient, opts Options) *RedisQueue {
	return &RedisQueue{client: r.Client(), opts: opts.withDefaults(), now: time.Now}
}

func (q *RedisQueue) key(suffix string) string {
	return q.opts.Name + ":" + suffix
}

// Enqueue stores a new job and makes it ready (or delayed) for consumers.
func (q *RedisQueue) Enqueue(ctx context.Context, name string, payload []byte, opts EnqueueOptions) (string, error) {
	now := q.now().UTC()
	job := &Job{
		ID:          uuid.NewString(),
		Name:        name,
		Payload:     payload,
		Priority:    clampPriority(opts.Priority),
		MaxAttempts: opts.MaxAttempts,
		State:       StateWaiting,
		EnqueuedAt:  now,
		UpdatedAt:   now,
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = q.opts.MaxAttempts
	}
	if opts.Delay > 0 {
		job.State = StateDelayed
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("taskqueue: encode job: %w", err)
	}
	s := score(job.Priority, now)

	pipe := q.client.TxPipeline()
	pipe.HSet(ctx, q.key("jobs"), job.ID, raw)
	pipe.HSet(ctx, q.key("scores"), job.ID, strconv.FormatFloat(s, 'f', 0, 64))
	if opts.Delay > 0 {
		pipe.ZAdd(ctx, q.key("delayed"), redis.Z{Score: float64(now.Add(opts.Delay).UnixMilli()), Member: job.ID})
	} else {
		pipe.ZAdd(ctx, q.key("waiting"), redis.Z{Score: s, Member: job.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("taskqueue: enqueue %s: %w", name, err)
	}
	return job.ID, nil
}

// Dequeue claims the next ready job. Returns (nil, nil) when nothing is ready.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	now := q.now()
	keys := []string{q.key("waiting"), q.key("delayed"), q.key("active"), q.key("jobs"), q.key("scores"), q.key("failed")}
	raw, err := popScript.Run(ctx, q.client, keys, now.UnixMilli(), now.Add(q.opts.LeaseTimeout).UnixMilli()).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("taskqueue: dequeue: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("taskqueue: decode job: %w", err)
	}
	job.Attempt++
	job.State = StateActive
	job.UpdatedAt = now.UTC()
	if err := q.save(ctx, q.client, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Complete marks an active job done.
func (q *RedisQueue) Complete(ctx context.Context, job *Job) error {
	now := q.now().UTC()
	removed, err := q.client.ZRem(ctx, q.key("active"), job.ID).Result()
	if err != nil {
		return fmt.Errorf("taskqueue: complete %s: %w", job.ID, err)
	}
	if removed == 0 {
		return ErrJobNotActive
	}

	pipe := q.client.TxPipeline()
	pipe.ZAdd(ctx, q.key("completed"), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
	pipe.ZRemRangeByRank(ctx, q.key("completed"), 0, -completedRetention-1)
	pipe.HDel(ctx, q.key("jobs"), job.ID)
	pipe.HDel(ctx, q.key("scores"), job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("taskqueue: complete %s: %w", job.ID, err)
	}
	job.State = StateCompleted
	job.UpdatedAt = now
	return nil
}

// Fail records cause on an active job and either schedules a retry with
// exponential backoff or moves the job to the failed bucket.
func (q *RedisQueue) Fail(ctx context.Context, job *Job, cause error, retryable bool) (State, error) {
	now := q.now().UTC()
	removed, err := q.client.ZRem(ctx, q.key("active"), job.ID).Result()
	if err != nil {
		return "", fmt.Errorf("taskqueue: fail %s: %w", job.ID, err)
	}
	if removed == 0 {
		return "", ErrJobNotActive
	}

	if cause != nil {
		job.LastError = cause.Error()
	}
	job.State = retryDecision(job, retryable)
	job.UpdatedAt = now

	pipe := q.client.TxPipeline()
	if err := q.save(ctx, pipe, job); err != nil {
		return "", err
	}
	if job.State == StateDelayed {
		readyAt := now.Add(Backoff(q.opts.BackoffBase, job.Attempt))
		pipe.ZAdd(ctx, q.key("delayed"), redis.Z{Score: float64(readyAt.UnixMilli()), Member: job.ID})
	} else {
		pipe.ZAdd(ctx, q.key("failed"), redis.Z{Score: float64(now.UnixMilli()), Member: job.ID})
		pipe.HDel(ctx, q.key("scores"), job.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("taskqueue: fail %s: %w", job.ID, err)
	}
	return job.State, nil
}

// Counts returns the number of jobs in each bucket.
func (q *RedisQueue) Counts(ctx context.Context) (Status, error) {
	pipe := q.client.Pipeline()
	waiting := pipe.ZCard(ctx, q.key("waiting"))
	delayed := pipe.ZCard(ctx, q.key("delayed"))
	active := pipe.ZCard(ctx, q.key("active"))
	completed := pipe.ZCard(ctx, q.key("completed"))
	failed := pipe.ZCard(ctx, q.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return Status{}, fmt.Errorf("taskqueue: counts: %w", err)
	}
	return Status{
		Waiting:   waiting.Val(),
		Delayed:   delayed.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
	}, nil
}

// Failed returns up to limit jobs from the failed bucket, newest first.
func (q *RedisQueue) Failed(ctx context.Context, limit int64) ([]*Job, error) {
	ids, err := q.client.ZRevRange(ctx, q.key("failed"), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("taskqueue: list failed: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	raws, err := q.client.HMGet(ctx, q.key("jobs"), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("taskqueue: load failed jobs: %w", err)
	}
	jobs := make([]*Job, 0, len(raws))
	for _, r := range raws {
		s, ok := r.(string)
		if !ok {
			continue
		}
		var job Job
		if err := json.Unmarshal([]byte(s), &job); err != nil {
			return nil, fmt.Errorf("taskqueue: decode failed job: %w", err)
		}
		// Only a reclaimed lease lands here still marked active.
		if job.State == StateActive {
			job.State = StateFailed
			job.LastError = ErrLeaseExpired.Error()
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}

// Ping checks the Redis connection backing the queue.
func (q *RedisQueue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("taskqueue: ping: %w", err)
	}
	return nil
}

func (q *RedisQueue) save(ctx context.Context, c redis.Cmdable, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("taskqueue: encode job: %w", err)
	}
	if err := c.HSet(ctx, q.key("jobs"), job.ID, raw).Err(); err != nil {
		return fmt.Errorf("taskqueue: save job %s: %w", job.ID, err)
	}
	return nil
}
