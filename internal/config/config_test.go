package config

import (
	"strings"
	"testing"
	"time"
)

func validLocal() Config {
	return Config{
		App:  AppConfig{Env: "local", Port: 8080},
		DB:   DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "medicall"},
		Auth: AuthConfig{JWTSecret: "secret"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"APP_ENV", "DB_HOST", "JWT_SECRET"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %s in %q", want, err.Error())
		}
	}
}

func TestValidate_ProductionRequiresSSLModeAndTwilioToken(t *testing.T) {
	c := validLocal()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "medicall"
	c.Auth.JWTAudience = "dashboard"
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
	if !strings.Contains(err.Error(), "TWILIO_AUTH_TOKEN") {
		t.Fatalf("expected twilio token error, got %v", err)
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := validLocal()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.OpenAI.Model != "gpt-4o" || c.OpenAI.TranscribeModel != "whisper-1" || c.OpenAI.Language != "de" {
		t.Fatalf("unexpected openai defaults: %+v", c.OpenAI)
	}
	if c.Enrichment.Workers != 4 || c.Enrichment.QueueSize != 100 || c.Enrichment.MaxAttempts != 3 {
		t.Fatalf("unexpected enrichment defaults: %+v", c.Enrichment)
	}
	if c.RedisEnabled() {
		t.Fatalf("redis should be disabled without host")
	}
}

func TestValidate_S3NeedsCredentials(t *testing.T) {
	c := validLocal()
	c.S3.Bucket = "recordings"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for bucket without credentials")
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8000")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_USER", "medicall")
	t.Setenv("DB_NAME", "medicall")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("ENRICH_WORKERS", "2")
	t.Setenv("STATS_CACHE_TTL", "1m")
	t.Setenv("CORS_ORIGINS", "http://localhost:5173, https://praxis.example")
	t.Setenv("PUBLIC_BASE_URL", "https://hooks.example/")

	c, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.DB.Port != 5432 || c.RedisAddr() != "cache:6379" {
		t.Fatalf("unexpected defaults: db port %d, redis %s", c.DB.Port, c.RedisAddr())
	}
	if c.Enrichment.Workers != 2 || c.Stats.CacheTTL != time.Minute {
		t.Fatalf("unexpected values: %+v %+v", c.Enrichment, c.Stats)
	}
	if len(c.App.CORSOrigins) != 2 {
		t.Fatalf("expected 2 cors origins, got %v", c.App.CORSOrigins)
	}
	if c.Twilio.PublicBaseURL != "https://hooks.example" {
		t.Fatalf("expected trailing slash trimmed, got %q", c.Twilio.PublicBaseURL)
	}
}

func TestLoad_RejectsMalformedDuration(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("APP_PORT", "8000")
	t.Setenv("ENRICH_SWEEP_INTERVAL", "often")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "ENRICH_SWEEP_INTERVAL") {
		t.Fatalf("expected duration parse error, got %v", err)
	}
}
