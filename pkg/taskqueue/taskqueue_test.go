package taskqueue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ghuser/procureflow/pkg/cache"
	"github.com/ghuser/procureflow/pkg/config"
)

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(time.Second, tt.attempt); got != tt.want {
			t.Errorf("Backoff(1s, %d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestScore_PriorityDominatesTime(t *testing.T) {
	early := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(365 * 24 * time.Hour)
	if score(1, late) >= score(2, early) {
		t.Fatal("priority 1 must sort before priority 2 regardless of enqueue time")
	}
	if score(2, early) >= score(2, late) {
		t.Fatal("equal priorities must sort by enqueue time")
	}
}

func TestClampPriority(t *testing.T) {
	if clampPriority(-5) != 0 {
		t.Error("negative priority must clamp to 0")
	}
	if clampPriority(MaxPriority+1) != MaxPriority {
		t.Errorf("priority above max must clamp to %d", MaxPriority)
	}
}

func TestMemoryQueue_PriorityOrder(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(Options{})

	for _, p := range []struct {
		name string
		prio int
	}{{"suggest", 3}, {"scan", 1}, {"analyze", 2}, {"predict", 2}} {
		if _, err := q.Enqueue(ctx, p.name, []byte(`{}`), EnqueueOptions{Priority: p.prio}); err != nil {
			t.Fatalf("enqueue %s: %v", p.name, err)
		}
	}

	var order []string
	for {
		job, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("dequeue: %v", err)
		}
		if job == nil {
			break
		}
		order = append(order, job.Name)
		if err := q.Complete(ctx, job); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}

	want := []string{"scan", "analyze", "predict", "suggest"}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
}

func TestMemoryQueue_RetryThenFail(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	q := NewMemoryQueue(Options{MaxAttempts: 3, BackoffBase: time.Second})
	q.SetClock(func() time.Time { return now })

	if _, err := q.Enqueue(ctx, "send", []byte(`{}`), EnqueueOptions{Priority: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	cause := errors.New("smtp hiccup")
	wantStates := []State{StateDelayed, StateDelayed, StateFailed}
	for i, want := range wantStates {
		job, err := q.Dequeue(ctx)
		if err != nil || job == nil {
			t.Fatalf("attempt %d: expected job, got %v / %v", i+1, job, err)
		}
		if job.Attempt != i+1 {
			t.Fatalf("attempt counter: got %d, want %d", job.Attempt, i+1)
		}
		state, err := q.Fail(ctx, job, cause, true)
		if err != nil {
			t.Fatalf("fail: %v", err)
		}
		if state != want {
			t.Fatalf("attempt %d: state %s, want %s", i+1, state, want)
		}
		// Not ready until the backoff elapses.
		if state == StateDelayed {
			if j, _ := q.Dequeue(ctx); j != nil {
				t.Fatal("job dequeued before backoff elapsed")
			}
			now = now.Add(Backoff(time.Second, job.Attempt))
		}
	}

	st, _ := q.Counts(ctx)
	if st.Failed != 1 || st.Waiting != 0 || st.Delayed != 0 || st.Active != 0 {
		t.Fatalf("unexpected counts: %+v", st)
	}
	failed, _ := q.Failed(ctx, 10)
	if len(failed) != 1 || failed[0].LastError != cause.Error() {
		t.Fatalf("unexpected failed bucket: %+v", failed)
	}
}

func TestMemoryQueue_NonRetryableFailsImmediately(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(Options{MaxAttempts: 3})
	_, _ = q.Enqueue(ctx, "lookup", nil, EnqueueOptions{})
	job, _ := q.Dequeue(ctx)
	state, err := q.Fail(ctx, job, errors.New("supplier not found"), false)
	if err != nil {
		t.Fatalf("fail: %v", err)
	}
	if state != StateFailed {
		t.Fatalf("expected failed, got %s", state)
	}
}

func TestMemoryQueue_DelayedEnqueue(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	q := NewMemoryQueue(Options{})
	q.SetClock(func() time.Time { return now })

	_, _ = q.Enqueue(ctx, "later", nil, EnqueueOptions{Delay: time.Minute})
	if j, _ := q.Dequeue(ctx); j != nil {
		t.Fatal("delayed job must not be ready yet")
	}
	now = now.Add(time.Minute)
	if j, _ := q.Dequeue(ctx); j == nil {
		t.Fatal("delayed job should be ready after delay")
	}
}

func TestMemoryQueue_CompleteUnknownJob(t *testing.T) {
	q := NewMemoryQueue(Options{})
	if err := q.Complete(context.Background(), &Job{ID: "nope"}); !errors.Is(err, ErrJobNotActive) {
		t.Fatalf("expected ErrJobNotActive, got %v", err)
	}
}

// Integration tests: skipped unless REDIS_URL is set.
func TestRedisQueueIntegration(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set; skipping integration tests")
	}

	rc, err := cache.NewRedisClient(&config.Config{RedisURL: redisURL})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	defer rc.Close() //nolint:errcheck

	ctx := context.Background()
	name := "test-" + time.Now().Format("150405.000000")
	q := NewRedisQueue(rc, Options{Name: name, MaxAttempts: 2, BackoffBase: time.Millisecond})
	defer rc.Client().Del(ctx, q.key("waiting"), q.key("delayed"), q.key("active"),
		q.key("completed"), q.key("failed"), q.key("jobs"), q.key("scores"))

	t.Run("PriorityOrder", func(t *testing.T) {
		_, _ = q.Enqueue(ctx, "low", []byte(`{}`), EnqueueOptions{Priority: 3})
		_, _ = q.Enqueue(ctx, "high", []byte(`{}`), EnqueueOptions{Priority: 1})
		first, err := q.Dequeue(ctx)
		if err != nil || first == nil || first.Name != "high" {
			t.Fatalf("expected high first, got %+v (%v)", first, err)
		}
		second, _ := q.Dequeue(ctx)
		if second == nil || second.Name != "low" {
			t.Fatalf("expected low second, got %+v", second)
		}
		_ = q.Complete(ctx, first)
		_ = q.Complete(ctx, second)
	})

	t.Run("RetryThenFailed", func(t *testing.T) {
		_, _ = q.Enqueue(ctx, "flaky", []byte(`{}`), EnqueueOptions{Priority: 1})
		job, _ := q.Dequeue(ctx)
		if state, err := q.Fail(ctx, job, errors.New("boom"), true); err != nil || state != StateDelayed {
			t.Fatalf("expected delayed, got %s (%v)", state, err)
		}
		time.Sleep(5 * time.Millisecond)
		job, _ = q.Dequeue(ctx)
		if job == nil || job.Attempt != 2 {
			t.Fatalf("expected second attempt, got %+v", job)
		}
		if state, _ := q.Fail(ctx, job, errors.New("boom"), true); state != StateFailed {
			t.Fatalf("expected failed, got %s", state)
		}
		st, err := q.Counts(ctx)
		if err != nil {
			t.Fatalf("counts: %v", err)
		}
		if st.Failed != 1 || st.Completed != 2 {
			t.Fatalf("unexpected counts: %+v", st)
		}
	})

	t.Run("ExpiredLeaseIsReclaimed", func(t *testing.T) {
		lq := NewRedisQueue(rc, Options{Name: name + "-lease", MaxAttempts: 2, LeaseTimeout: time.Minute})
		defer rc.Client().Del(ctx, lq.key("waiting"), lq.key("delayed"), lq.key("active"),
			lq.key("completed"), lq.key("failed"), lq.key("jobs"), lq.key("scores"))
		clock := time.Now()
		lq.now = func() time.Time { return clock }

		id, _ := lq.Enqueue(ctx, "orphan", []byte(`{}`), EnqueueOptions{Priority: 1})
		if job, _ := lq.Dequeue(ctx); job == nil || job.ID != id {
			t.Fatalf("expected orphan, got %+v", job)
		}
		if job, _ := lq.Dequeue(ctx); job != nil {
			t.Fatalf("a leased job must not be handed out twice, got %+v", job)
		}

		clock = clock.Add(2 * time.Minute)
		job, err := lq.Dequeue(ctx)
		if err != nil || job == nil || job.ID != id || job.Attempt != 2 {
			t.Fatalf("expected reclaimed second attempt, got %+v (%v)", job, err)
		}

		clock = clock.Add(2 * time.Minute)
		if job, _ := lq.Dequeue(ctx); job != nil {
			t.Fatalf("expected nothing after final lease expired, got %+v", job)
		}
		st, err := lq.Counts(ctx)
		if err != nil {
			t.Fatalf("counts: %v", err)
		}
		if st.Active != 0 || st.Waiting != 0 || st.Failed != 1 {
			t.Fatalf("unexpected counts: %+v", st)
		}
		failed, err := lq.Failed(ctx, 10)
		if err != nil || len(failed) != 1 {
			t.Fatalf("failed: %+v (%v)", failed, err)
		}
		if failed[0].State != StateFailed || failed[0].LastError != ErrLeaseExpired.Error() {
			t.Fatalf("unexpected failed job: %+v", failed[0])
		}
	})
}
