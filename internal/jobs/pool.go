package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"voice-platform/internal/metrics"
	"voice-platform/pkg/logger"
)

// Handler processes one job. Returning an error schedules a retry unless the
// error is Permanent or the job has used its attempts.
type Handler func(ctx context.Context, job Job) error

type QueueOptions struct {
	Name         string
	Workers      int
	Lease        time.Duration
	JobTimeout   time.Duration
	PollInterval time.Duration
	// RetryBase and RetryMax shape the backoff between failed attempts.
	RetryBase time.Duration
	RetryMax  time.Duration
}

func (o QueueOptions) withDefaults() QueueOptions {
	out := o
	if out.Workers <= 0 {
		out.Workers = 1
	}
	if out.Lease <= 0 {
		out.Lease = 2 * time.Minute
	}
	if out.JobTimeout <= 0 || out.JobTimeout >= out.Lease {
		out.JobTimeout = out.Lease / 2
	}
	if out.PollInterval <= 0 {
		out.PollInterval = 250 * time.Millisecond
	}
	if out.RetryBase <= 0 {
		out.RetryBase = 2 * time.Second
	}
	if out.RetryMax <= 0 {
		out.RetryMax = 5 * time.Minute
	}
	return out
}

// Pool runs a bounded number of workers per queue.
type Pool struct {
	q        Queue
	log      *slog.Logger
	metrics  *metrics.Metrics
	mu       sync.RWMutex
	handlers map[string]Handler
	queues   []QueueOptions
}

func NewPool(q Queue, log *slog.Logger, m *metrics.Metrics) *Pool {
	return &Pool{q: q, log: log, metrics: m, handlers: map[string]Handler{}}
}

// Handle registers h for jobs of kind.
func (p *Pool) Handle(kind string, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = h
}

// AddQueue configures workers for a queue. Call before Run.
func (p *Pool) AddQueue(opts QueueOptions) {
	p.queues = append(p.queues, opts.withDefaults())
}

// Run starts every worker and blocks until ctx is cancelled and all in-flight
// jobs have returned.
func (p *Pool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, qo := range p.queues {
		for i := 0; i < qo.Workers; i++ {
			wg.Add(1)
			go func(qo QueueOptions, worker int) {
				defer wg.Done()
				p.worker(ctx, qo, worker)
			}(qo, i)
		}
		p.log.Info("jobs: queue started", "queue", qo.Name, "workers", qo.Workers)
	}
	wg.Wait()
}

func (p *Pool) worker(ctx context.Context, qo QueueOptions, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}
		ran, err := p.ProcessOne(ctx, qo)
		if err != nil {
			p.log.Error("jobs: reserve failed", "queue", qo.Name, "worker", worker, "err", err)
		}
		if ran {
			continue
		}
		t := time.NewTimer(qo.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// ProcessOne reserves and runs at most one job. It reports whether a job ran.
// Job failures are handled (retry or dead-letter) and not returned.
func (p *Pool) ProcessOne(ctx context.Context, qo QueueOptions) (bool, error) {
	qo = qo.withDefaults()
	job, ok, err := p.q.Reserve(ctx, qo.Name, qo.Lease)
	if err != nil || !ok {
		return false, err
	}

	log := p.log.With("queue", job.Queue, "kind", job.Kind, "job_id", job.ID, "attempt", job.Attempt+1)
	jctx := logger.With(ctx, log)

	p.mu.RLock()
	h := p.handlers[job.Kind]
	p.mu.RUnlock()

	start := time.Now()
	if h == nil {
		p.finish(jctx, qo, job, Permanent(fmt.Errorf("no handler for kind %q", job.Kind)), start)
		return true, nil
	}

	runCtx, cancel := context.WithTimeout(jctx, qo.JobTimeout)
	err = safeRun(runCtx, h, job)
	cancel()
	p.finish(jctx, qo, job, err, start)
	return true, nil
}

func (p *Pool) finish(ctx context.Context, qo QueueOptions, job Job, err error, start time.Time) {
	log := logger.From(ctx)
	elapsed := time.Since(start)

	// Use a fresh context so queue bookkeeping survives shutdown of ctx.
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err == nil {
		if aerr := p.q.Ack(bctx, job); aerr != nil {
			log.Error("jobs: ack failed", "err", aerr)
		}
		p.metrics.RecordJob(job.Queue, job.Kind, "ok", elapsed)
		return
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if IsPermanent(err) || job.Attempt+1 >= maxAttempts {
		log.Error("jobs: job dead-lettered", "err", err, "duration_ms", elapsed.Milliseconds())
		if derr := p.q.Dead(bctx, job, err); derr != nil {
			log.Error("jobs: dead-letter failed", "err", derr)
		}
		p.metrics.RecordJob(job.Queue, job.Kind, "dead", elapsed)
		return
	}

	delay := Backoff(qo.RetryBase, qo.RetryMax, job.Attempt+1)
	log.Warn("jobs: job failed, retrying", "err", err, "retry_in", delay.String())
	if rerr := p.q.Retry(bctx, job, delay, err); rerr != nil {
		log.Error("jobs: retry scheduling failed", "err", rerr)
	}
	p.metrics.RecordJob(job.Queue, job.Kind, "retry", elapsed)
}

func safeRun(ctx context.Context, h Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
		}
	}()
	return h(ctx, job)
}
