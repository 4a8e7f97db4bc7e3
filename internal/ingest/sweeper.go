package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"voice-platform/internal/events"
	"voice-platform/internal/jobs"
	"voice-platform/pkg/logger"
)

type StaleLister interface {
	ListStale(ctx context.Context, olderThan time.Duration, limit int) ([]events.WebhookEvent, error)
}

type SweeperConfig struct {
	Schedule   string
	StaleAfter time.Duration
	BatchSize  int
}

// Sweeper re-enqueues events that were stored but never finished, such as
// after a worker crash between append and completion.
type Sweeper struct {
	cron   *cron.Cron
	events StaleLister
	jobs   Enqueuer
	cfg    SweeperConfig
	log    *slog.Logger
}

func NewSweeper(ev StaleLister, q Enqueuer, cfg SweeperConfig, log *slog.Logger) *Sweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 10 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{cron: cron.New(), events: ev, jobs: q, cfg: cfg, log: log.With("component", "sweeper")}
}

// Start registers the sweep and starts the scheduler.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := s.Sweep(logger.With(ctx, s.log))
		if err != nil {
			s.log.Error("sweep failed", "err", err)
			return
		}
		if n > 0 {
			s.log.Info("sweep re-enqueued stale events", "count", n)
		}
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep enqueues a replay job for every stale received event and returns how
// many were enqueued. A replay already pending is not duplicated.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	stale, err := s.events.ListStale(ctx, s.cfg.StaleAfter, s.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, ev := range stale {
		ok, err := s.jobs.Enqueue(ctx, ReplaySpec(ev.ID))
		if err != nil {
			s.log.Error("sweep enqueue failed", "event_id", ev.ID, "err", err)
			continue
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// ReplaySpec is the job that re-runs a stored event.
func ReplaySpec(eventID string) jobs.Spec {
	return jobs.Spec{
		Queue:       jobs.QueueWebhooks,
		Kind:        KindReplay,
		ID:          "replay:" + eventID,
		Payload:     Replay{EventID: eventID},
		MaxAttempts: 3,
	}
}
