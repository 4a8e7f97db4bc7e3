package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values come from env (or an env-file loaded by the process runner).
// Per-tenant overrides of the provider credentials live in tenant settings;
// the values here are platform defaults.
type Config struct {
	App           AppConfig
	DB            DBConfig
	Redis         RedisConfig
	Auth          AuthConfig
	Vapi          VapiConfig
	Twilio        TwilioConfig
	OpenAI        OpenAIConfig
	Workers       WorkersConfig
	Transcript    TranscriptConfig
	Qualification QualificationConfig
	Idempotency   IdempotencyConfig
	Sweeper       SweeperConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type VapiConfig struct {
	APIKey            string
	BaseURL           string
	WebhookSecret     string
	RequestsPerSecond float64
	Timeout           time.Duration
}

type TwilioConfig struct {
	AuthToken string
	// PublicBaseURL is the externally visible origin Twilio signs against.
	PublicBaseURL string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

type WorkersConfig struct {
	WebhookConcurrency    int
	ExtractionConcurrency int
	ProviderConcurrency   int
	PollInterval          time.Duration
	Lease                 time.Duration
	JobTimeout            time.Duration
}

type TranscriptConfig struct {
	BaseDelay   time.Duration
	MaxAttempts int
}

type QualificationConfig struct {
	InterestThreshold int
	ScoreMultiplier   int
}

type IdempotencyConfig struct {
	Window time.Duration
}

type SweeperConfig struct {
	Schedule   string
	StaleAfter time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error
	intVar := func(dst *int, key string, required bool) {
		n, err := parseInt(key, required)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		*dst = n
	}
	floatVar := func(dst *float64, key string) {
		f, err := optionalFloat(key)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		*dst = f
	}

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	intVar(&c.App.Port, "APP_PORT", true)

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	intVar(&c.DB.Port, "DB_PORT", true)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	intVar(&c.Redis.Port, "REDIS_PORT", true)
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration and tuning env vars are optional; defaults are applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Vapi.APIKey = os.Getenv("VAPI_API_KEY")
	c.Vapi.BaseURL = strings.TrimSpace(os.Getenv("VAPI_BASE_URL"))
	c.Vapi.WebhookSecret = os.Getenv("VAPI_WEBHOOK_SECRET")
	floatVar(&c.Vapi.RequestsPerSecond, "VAPI_RPS")
	c.Vapi.Timeout = mustDuration("VAPI_TIMEOUT")

	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")

	c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAI.Model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	c.OpenAI.Timeout = mustDuration("OPENAI_TIMEOUT")

	intVar(&c.Workers.WebhookConcurrency, "WORKERS_WEBHOOKS", false)
	intVar(&c.Workers.ExtractionConcurrency, "WORKERS_EXTRACTION", false)
	intVar(&c.Workers.ProviderConcurrency, "WORKERS_PROVIDER", false)
	c.Workers.PollInterval = mustDuration("WORKERS_POLL_INTERVAL")
	c.Workers.Lease = mustDuration("WORKERS_LEASE")
	c.Workers.JobTimeout = mustDuration("WORKERS_JOB_TIMEOUT")

	c.Transcript.BaseDelay = mustDuration("TRANSCRIPT_BASE_DELAY")
	intVar(&c.Transcript.MaxAttempts, "TRANSCRIPT_MAX_ATTEMPTS", false)

	intVar(&c.Qualification.InterestThreshold, "QUALIFY_INTEREST_THRESHOLD", false)
	intVar(&c.Qualification.ScoreMultiplier, "QUALIFY_SCORE_MULTIPLIER", false)

	c.Idempotency.Window = mustDuration("IDEMPOTENCY_WINDOW")

	c.Sweeper.Schedule = strings.TrimSpace(os.Getenv("SWEEPER_SCHEDULE"))
	c.Sweeper.StaleAfter = mustDuration("SWEEPER_STALE_AFTER")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate applies defaults for optional values and reports every problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
		if c.Vapi.WebhookSecret == "" {
			errs = append(errs, errors.New("VAPI_WEBHOOK_SECRET is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Vapi.BaseURL == "" {
		c.Vapi.BaseURL = "https://api.vapi.ai"
	}
	if c.Vapi.RequestsPerSecond <= 0 {
		c.Vapi.RequestsPerSecond = 5
	}
	if c.Vapi.Timeout <= 0 {
		c.Vapi.Timeout = 15 * time.Second
	}

	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.OpenAI.Timeout <= 0 {
		c.OpenAI.Timeout = 45 * time.Second
	}

	if c.Workers.WebhookConcurrency <= 0 {
		c.Workers.WebhookConcurrency = 5
	}
	if c.Workers.ExtractionConcurrency <= 0 {
		c.Workers.ExtractionConcurrency = 3
	}
	if c.Workers.ProviderConcurrency <= 0 {
		c.Workers.ProviderConcurrency = 2
	}
	if c.Workers.PollInterval <= 0 {
		c.Workers.PollInterval = 250 * time.Millisecond
	}
	if c.Workers.Lease <= 0 {
		c.Workers.Lease = 2 * time.Minute
	}
	if c.Workers.JobTimeout <= 0 {
		c.Workers.JobTimeout = 90 * time.Second
	}
	if c.Workers.JobTimeout >= c.Workers.Lease {
		errs = append(errs, errors.New("WORKERS_JOB_TIMEOUT must be shorter than WORKERS_LEASE"))
	}

	if c.Transcript.BaseDelay <= 0 {
		c.Transcript.BaseDelay = 5 * time.Second
	}
	if c.Transcript.MaxAttempts <= 0 {
		c.Transcript.MaxAttempts = 6
	}

	if c.Qualification.InterestThreshold <= 0 {
		c.Qualification.InterestThreshold = 6
	}
	if c.Qualification.InterestThreshold > 10 {
		errs = append(errs, fmt.Errorf("QUALIFY_INTEREST_THRESHOLD must be within 1..10, got %d", c.Qualification.InterestThreshold))
	}
	if c.Qualification.ScoreMultiplier <= 0 {
		c.Qualification.ScoreMultiplier = 10
	}

	if c.Idempotency.Window <= 0 {
		c.Idempotency.Window = 60 * time.Second
	}

	if c.Sweeper.Schedule == "" {
		c.Sweeper.Schedule = "@every 1m"
	}
	if c.Sweeper.StaleAfter <= 0 {
		c.Sweeper.StaleAfter = 10 * time.Minute
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func parseInt(key string, required bool) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		if required {
			return 0, fmt.Errorf("%s is required", key)
		}
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalFloat(key string) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q", key, v)
	}
	return f, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
