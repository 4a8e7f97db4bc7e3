package main

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"voice-platform/internal/appointments"
	"voice-platform/internal/audit"
	"voice-platform/internal/calls"
	"voice-platform/internal/config"
	"voice-platform/internal/events"
	"voice-platform/internal/extraction"
	"voice-platform/internal/httpapi"
	"voice-platform/internal/ingest"
	"voice-platform/internal/jobs"
	"voice-platform/internal/leads"
	"voice-platform/internal/metrics"
	"voice-platform/internal/outbound"
	"voice-platform/internal/reporting"
	"voice-platform/internal/telephony"
	"voice-platform/internal/tenancy"
	"voice-platform/internal/transcripts"
	"voice-platform/pkg/phone"
)

// app holds the wired services. Construction lives here so routes.go stays
// free of business wiring.
type app struct {
	webhooks telephony.WebhookHandler
	api      httpapi.Handlers
	pool     *jobs.Pool
	sweeper  *ingest.Sweeper
}

func buildApp(cfg config.Config, db *sql.DB, rdb *redis.Client, m *metrics.Metrics, log *slog.Logger) *app {
	callRepo := calls.NewPostgresRepo(db)
	reconciler := calls.NewReconciler(callRepo)
	eventSvc := events.NewService(events.NewPostgresRepo(db), cfg.Idempotency.Window)
	tenantRepo := tenancy.NewPostgresRepo(db)
	identity := tenancy.NewResolver(reconciler, tenantRepo, phone.DefaultRegion)
	settings := tenancy.NewSettingsResolver(tenantRepo, tenancy.Settings{
		WebhookSecret:   cfg.Vapi.WebhookSecret,
		VapiAPIKey:      cfg.Vapi.APIKey,
		OpenAIAPIKey:    cfg.OpenAI.APIKey,
		TwilioAuthToken: cfg.Twilio.AuthToken,
	}, time.Minute)

	queue := jobs.NewRedisQueue(rdb)
	enq := jobs.NewEnqueuer(queue)

	vapi := telephony.NewVapiClient(telephony.VapiClientConfig{
		BaseURL:           cfg.Vapi.BaseURL,
		Timeout:           cfg.Vapi.Timeout,
		RequestsPerSecond: cfg.Vapi.RequestsPerSecond,
	}, func(ctx context.Context, tenantID string) (string, error) {
		s, err := settings.Resolve(ctx, tenantID)
		return s.VapiAPIKey, err
	})
	ai := extraction.NewOpenAIExtractor(extraction.OpenAIConfig{
		Model:   cfg.OpenAI.Model,
		Timeout: cfg.OpenAI.Timeout,
	}, func(ctx context.Context, tenantID string) (string, error) {
		s, err := settings.Resolve(ctx, tenantID)
		return s.OpenAIAPIKey, err
	})

	aggregates := reporting.NewService(callRepo, reporting.NewPostgresRepo(db))
	scheduler := transcripts.NewScheduler(vapi, callRepo, reconciler, enq, ingest.ExtractionQueue{Jobs: enq}, transcripts.Policy{
		BaseDelay:   cfg.Transcript.BaseDelay,
		MaxAttempts: cfg.Transcript.MaxAttempts,
	}, m)
	leadRepo := leads.NewPostgresRepo(db)

	proc := ingest.NewProcessor(ingest.Deps{
		Events:       eventSvc,
		Identity:     identity,
		Reconciler:   reconciler,
		Calls:        callRepo,
		Jobs:         enq,
		Extractor:    extraction.NewPipeline(ai, extraction.Policy{InterestThreshold: cfg.Qualification.InterestThreshold}, m),
		Aggregates:   aggregates,
		Transcripts:  scheduler,
		Leads:        leads.NewMaterializer(leadRepo, leads.Policy{ScoreMultiplier: cfg.Qualification.ScoreMultiplier}, m),
		Appointments: appointments.NewService(appointments.NewPostgresRepo(db)),
		Metrics:      m,
	})

	pool := jobs.NewPool(queue, log, m)
	pool.Handle(telephony.KindWebhookIngest, proc.HandleWebhook)
	pool.Handle(ingest.KindReplay, proc.HandleReplay)
	pool.Handle(ingest.KindExtract, proc.HandleExtraction)
	pool.Handle(transcripts.KindPoll, scheduler.HandlePoll)

	w := cfg.Workers
	pool.AddQueue(jobs.QueueOptions{Name: jobs.QueueWebhooks, Workers: w.WebhookConcurrency, Lease: w.Lease, JobTimeout: w.JobTimeout, PollInterval: w.PollInterval})
	pool.AddQueue(jobs.QueueOptions{Name: jobs.QueueExtraction, Workers: w.ExtractionConcurrency, Lease: w.Lease, JobTimeout: w.JobTimeout, PollInterval: w.PollInterval})
	pool.AddQueue(jobs.QueueOptions{Name: jobs.QueueProvider, Workers: w.ProviderConcurrency, Lease: w.Lease, JobTimeout: w.JobTimeout, PollInterval: w.PollInterval})

	return &app{
		webhooks: telephony.WebhookHandler{
			Identity:      identity,
			Settings:      settings,
			Jobs:          enq,
			Metrics:       m,
			Production:    cfg.IsProduction(),
			PublicBaseURL: cfg.Twilio.PublicBaseURL,
		},
		api: httpapi.Handlers{
			Outbound:  outbound.NewService(vapi, reconciler, phone.DefaultRegion),
			Calls:     callRepo,
			Events:    eventSvc,
			Campaigns: aggregates,
			Leads:     leadRepo,
			Jobs:      enq,
			Replay:    ingest.ReplaySpec,
			Audit:     audit.NewService(audit.NewPostgresRepo(db)),
			Region:    phone.DefaultRegion,
		},
		pool:    pool,
		sweeper: ingest.NewSweeper(eventSvc, enq, ingest.SweeperConfig{
			Schedule:   cfg.Sweeper.Schedule,
			StaleAfter: cfg.Sweeper.StaleAfter,
		}, log),
	}
}
