package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the service.
// Values come from the environment only; cmd may populate it from a .env file first.
type Config struct {
	App        AppConfig
	DB         DBConfig
	Redis      RedisConfig
	Auth       AuthConfig
	Twilio     TwilioConfig
	OpenAI     OpenAIConfig
	Enrichment EnrichmentConfig
	Stats      StatsConfig
	S3         S3Config
}

type AppConfig struct {
	Env  string
	Port int

	// CORSOrigins lists dashboard origins allowed to call the API.
	CORSOrigins []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional. Without REDIS_HOST the stats cache and the
// provider concurrency cap are disabled.
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

type TwilioConfig struct {
	AccountSID string
	AuthToken  string

	// PublicBaseURL is the externally reachable origin used for callbacks and
	// signature validation. Empty means derive it from the request.
	PublicBaseURL string
}

// OpenAIConfig configures transcription and analysis. An empty APIKey leaves
// both services unconfigured; enrichment then fails permanently.
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	TranscribeModel string
	Language        string
	Timeout         time.Duration
}

type EnrichmentConfig struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	TaskTimeout time.Duration

	SweepInterval time.Duration
	StaleAfter    time.Duration

	// ProviderConcurrency caps concurrent provider calls across replicas (needs Redis). 0 disables.
	ProviderConcurrency int
}

type StatsConfig struct {
	CacheTTL time.Duration
}

// S3Config is optional. Without a bucket recordings are not archived.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	PublicURL string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error
	intVar := func(dst *int, key string, def int) {
		n, err := optionalInt(key, def)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		*dst = n
	}
	durVar := func(dst *time.Duration, key string, def time.Duration) {
		d, err := optionalDuration(key, def)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		*dst = d
	}

	c.App.Env = env("APP_ENV")
	if n, err := mustInt("APP_PORT"); err != nil {
		parseErrs = append(parseErrs, err)
	} else {
		c.App.Port = n
	}
	c.App.CORSOrigins = splitList(os.Getenv("CORS_ORIGINS"))

	c.DB.Host = env("DB_HOST")
	intVar(&c.DB.Port, "DB_PORT", 5432)
	c.DB.User = env("DB_USER")
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = env("DB_NAME")
	c.DB.SSLMode = env("DB_SSLMODE")

	c.Redis.Host = env("REDIS_HOST")
	intVar(&c.Redis.Port, "REDIS_PORT", 6379)
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = env("JWT_ISSUER")
	c.Auth.JWTAudience = env("JWT_AUDIENCE")
	durVar(&c.Auth.AccessTokenTTL, "JWT_ACCESS_TTL", 0)
	durVar(&c.Auth.RefreshTokenTTL, "JWT_REFRESH_TTL", 0)

	c.Twilio.AccountSID = env("TWILIO_ACCOUNT_SID")
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.PublicBaseURL = strings.TrimRight(env("PUBLIC_BASE_URL"), "/")

	c.OpenAI.APIKey = env("OPENAI_API_KEY")
	c.OpenAI.BaseURL = env("OPENAI_BASE_URL")
	c.OpenAI.Model = env("OPENAI_MODEL")
	c.OpenAI.TranscribeModel = env("OPENAI_TRANSCRIBE_MODEL")
	c.OpenAI.Language = env("TRANSCRIBE_LANGUAGE")
	durVar(&c.OpenAI.Timeout, "OPENAI_TIMEOUT", 0)

	intVar(&c.Enrichment.Workers, "ENRICH_WORKERS", 0)
	intVar(&c.Enrichment.QueueSize, "ENRICH_QUEUE_SIZE", 0)
	intVar(&c.Enrichment.MaxAttempts, "ENRICH_MAX_ATTEMPTS", 0)
	durVar(&c.Enrichment.TaskTimeout, "ENRICH_TASK_TIMEOUT", 0)
	durVar(&c.Enrichment.SweepInterval, "ENRICH_SWEEP_INTERVAL", 0)
	durVar(&c.Enrichment.StaleAfter, "ENRICH_STALE_AFTER", 0)
	intVar(&c.Enrichment.ProviderConcurrency, "ENRICH_PROVIDER_CONCURRENCY", 0)

	durVar(&c.Stats.CacheTTL, "STATS_CACHE_TTL", 30*time.Second)

	c.S3.Bucket = env("S3_BUCKET")
	c.S3.Region = env("S3_REGION")
	c.S3.Endpoint = env("S3_ENDPOINT")
	c.S3.AccessKey = env("S3_ACCESS_KEY")
	c.S3.SecretKey = os.Getenv("S3_SECRET_KEY")
	c.S3.PublicURL = strings.TrimRight(env("S3_PUBLIC_URL"), "/")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if !validPort(c.App.Port) {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if !validPort(c.DB.Port) {
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

	if c.Redis.Host != "" && !validPort(c.Redis.Port) {
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
		if c.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Twilio.PublicBaseURL != "" {
		if u, err := url.Parse(c.Twilio.PublicBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an absolute URL, got %q", c.Twilio.PublicBaseURL))
		}
	}

	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o"
	}
	if c.OpenAI.TranscribeModel == "" {
		c.OpenAI.TranscribeModel = "whisper-1"
	}
	if c.OpenAI.Language == "" {
		c.OpenAI.Language = "de"
	}
	if c.OpenAI.Timeout <= 0 {
		c.OpenAI.Timeout = 60 * time.Second
	}

	e := &c.Enrichment
	if e.Workers <= 0 {
		e.Workers = 4
	}
	if e.QueueSize <= 0 {
		e.QueueSize = 100
	}
	if e.MaxAttempts <= 0 {
		e.MaxAttempts = 3
	}
	if e.TaskTimeout <= 0 {
		e.TaskTimeout = 5 * time.Minute
	}
	if e.SweepInterval <= 0 {
		e.SweepInterval = time.Minute
	}
	if e.StaleAfter <= 0 {
		e.StaleAfter = 10 * time.Minute
	}
	if e.StaleAfter <= e.TaskTimeout {
		errs = append(errs, errors.New("ENRICH_STALE_AFTER must be greater than ENRICH_TASK_TIMEOUT"))
	}
	if e.ProviderConcurrency < 0 {
		errs = append(errs, fmt.Errorf("ENRICH_PROVIDER_CONCURRENCY must be >= 0, got %d", e.ProviderConcurrency))
	}

	if c.Stats.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("STATS_CACHE_TTL must be >= 0, got %s", c.Stats.CacheTTL))
	}

	if c.S3.Bucket != "" {
		if c.S3.AccessKey == "" || c.S3.SecretKey == "" {
			errs = append(errs, errors.New("S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_BUCKET is set"))
		}
		if c.S3.Region == "" {
			c.S3.Region = "eu-central-1"
		}
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

// RedisEnabled reports whether a Redis endpoint is configured.
func (c Config) RedisEnabled() bool {
	return c.Redis.Host != ""
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func mustInt(key string) (int, error) {
	v := env(key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string, def int) (int, error) {
	if env(key) == "" {
		return def, nil
	}
	return mustInt(key)
}

func optionalDuration(key string, def time.Duration) (time.Duration, error) {
	v := env(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s must be a duration like 30s or 5m, got %q", key, v)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
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
