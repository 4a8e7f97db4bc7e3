package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice-platform/internal/metrics"
	"voice-platform/pkg/logger"
)

func testPool(t *testing.T) (*Pool, *MemoryQueue, *time.Time) {
	t.Helper()
	now := time.Unix(1_700_000_000, 0)
	q := NewMemoryQueue(func() time.Time { return now })
	p := NewPool(q, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.New(prometheus.NewRegistry()))
	return p, q, &now
}

var opts = QueueOptions{Name: QueueWebhooks, Lease: time.Minute, RetryBase: time.Second}

func TestPool_AcksSuccessfulJob(t *testing.T) {
	p, q, now := testPool(t)
	var gotLogger bool
	p.Handle("k", func(ctx context.Context, job Job) error {
		gotLogger = logger.From(ctx) != nil
		var payload map[string]int
		require.NoError(t, job.Decode(&payload))
		assert.Equal(t, 7, payload["n"])
		return nil
	})

	job, _ := New(QueueWebhooks, "k", "", map[string]int{"n": 7}, 0, *now)
	_, _ = q.Enqueue(context.Background(), job)

	ran, err := p.ProcessOne(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.True(t, gotLogger)
	assert.Empty(t, q.Pending(QueueWebhooks))
}

func TestPool_RetriesThenDeadLetters(t *testing.T) {
	p, q, now := testPool(t)
	var calls int32
	p.Handle("k", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("transient")
	})

	job, _ := New(QueueWebhooks, "k", "j1", struct{}{}, 0, *now)
	job.MaxAttempts = 3
	_, _ = q.Enqueue(context.Background(), job)

	for i := 0; i < 3; i++ {
		ran, err := p.ProcessOne(context.Background(), opts)
		require.NoError(t, err)
		require.True(t, ran, "attempt %d should run", i+1)
		*now = now.Add(time.Hour)
	}

	ran, _ := p.ProcessOne(context.Background(), opts)
	assert.False(t, ran)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	dead := q.DeadLetters(QueueWebhooks)
	require.Len(t, dead, 1)
	assert.Equal(t, 2, dead[0].Attempt)
}

func TestPool_PermanentAndPanicGoStraightToDead(t *testing.T) {
	p, q, now := testPool(t)
	p.Handle("perm", func(ctx context.Context, job Job) error { return Permanent(errors.New("bad payload")) })
	p.Handle("panic", func(ctx context.Context, job Job) error { panic("oops") })

	for _, kind := range []string{"perm", "panic", "unknown"} {
		job, _ := New(QueueWebhooks, kind, kind, struct{}{}, 0, *now)
		_, _ = q.Enqueue(context.Background(), job)
		ran, err := p.ProcessOne(context.Background(), opts)
		require.NoError(t, err)
		require.True(t, ran)
	}
	assert.Len(t, q.DeadLetters(QueueWebhooks), 3)
	assert.Empty(t, q.Pending(QueueWebhooks))
}

func TestPool_RunStopsOnCancel(t *testing.T) {
	p, q, now := testPool(t)
	done := make(chan struct{}, 1)
	p.Handle("k", func(ctx context.Context, job Job) error {
		done <- struct{}{}
		return nil
	})
	p.AddQueue(QueueOptions{Name: QueueWebhooks, Workers: 2, PollInterval: 5 * time.Millisecond})

	job, _ := New(QueueWebhooks, "k", "", struct{}{}, 0, *now)
	_, _ = q.Enqueue(context.Background(), job)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(stopped)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("job did not run")
	}
	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("pool did not stop")
	}
}
