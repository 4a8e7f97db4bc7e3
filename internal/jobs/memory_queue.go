package jobs

import (
	"context"
	"sync"
	"time"
)

// MemoryQueue implements Queue in memory for tests.
type MemoryQueue struct {
	mu    sync.Mutex
	clock func() time.Time
	jobs  map[string]map[string]Job // queue -> id -> job
	due   map[string]map[string]time.Time
	dead  map[string][]Job
}

func NewMemoryQueue(clock func() time.Time) *MemoryQueue {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryQueue{
		clock: clock,
		jobs:  map[string]map[string]Job{},
		due:   map[string]map[string]time.Time{},
		dead:  map[string][]Job{},
	}
}

func (q *MemoryQueue) ensure(queue string) {
	if q.jobs[queue] == nil {
		q.jobs[queue] = map[string]Job{}
		q.due[queue] = map[string]time.Time{}
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) (bool, error) {
	if job.ID == "" || job.Queue == "" || job.Kind == "" {
		return false, ErrInvalidJob
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensure(job.Queue)
	if _, ok := q.jobs[job.Queue][job.ID]; ok {
		return false, nil
	}
	if job.DueAt.IsZero() {
		job.DueAt = q.clock()
	}
	q.jobs[job.Queue][job.ID] = job
	q.due[job.Queue][job.ID] = job.DueAt
	return true, nil
}

func (q *MemoryQueue) Reserve(ctx context.Context, queue string, lease time.Duration) (Job, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensure(queue)
	now := q.clock()

	var (
		pick  string
		pickT time.Time
	)
	for id, t := range q.due[queue] {
		if t.After(now) {
			continue
		}
		if pick == "" || t.Before(pickT) || (t.Equal(pickT) && id < pick) {
			pick, pickT = id, t
		}
	}
	if pick == "" {
		return Job{}, false, nil
	}
	q.due[queue][pick] = now.Add(lease)
	return q.jobs[queue][pick], true, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensure(job.Queue)
	delete(q.jobs[job.Queue], job.ID)
	delete(q.due[job.Queue], job.ID)
	return nil
}

func (q *MemoryQueue) Retry(ctx context.Context, job Job, delay time.Duration, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensure(job.Queue)
	job.Attempt++
	if cause != nil {
		job.LastError = cause.Error()
	}
	job.DueAt = q.clock().Add(delay)
	q.jobs[job.Queue][job.ID] = job
	q.due[job.Queue][job.ID] = job.DueAt
	return nil
}

func (q *MemoryQueue) Dead(ctx context.Context, job Job, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ensure(job.Queue)
	if cause != nil {
		job.LastError = cause.Error()
	}
	delete(q.jobs[job.Queue], job.ID)
	delete(q.due[job.Queue], job.ID)
	q.dead[job.Queue] = append(q.dead[job.Queue], job)
	return nil
}

// Pending returns the jobs still stored for queue, due or leased.
func (q *MemoryQueue) Pending(queue string) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.jobs[queue]))
	for _, j := range q.jobs[queue] {
		out = append(out, j)
	}
	return out
}

func (q *MemoryQueue) DeadLetters(queue string) []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.dead[queue]...)
}
