package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.StateBackend != "file" {
		t.Errorf("expected default state backend file, got %s", cfg.StateBackend)
	}
	if cfg.NotifyInterval != 5*time.Second {
		t.Errorf("expected default notify interval 5s, got %s", cfg.NotifyInterval)
	}
	if cfg.MPBaseURL != "https://api.mercadopago.com" {
		t.Errorf("unexpected default MP base URL: %s", cfg.MPBaseURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STATE_BACKEND", "redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("NOTIFY_INTERVAL", "30s")
	t.Setenv("LLM_MODEL", "gpt-4o-mini")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.StateBackend != "redis" {
		t.Errorf("expected state backend redis, got %s", cfg.StateBackend)
	}
	if cfg.RedisDB != 3 {
		t.Errorf("expected redis db 3, got %d", cfg.RedisDB)
	}
	if cfg.NotifyInterval != 30*time.Second {
		t.Errorf("expected notify interval 30s, got %s", cfg.NotifyInterval)
	}
	if cfg.LLMModel != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %s", cfg.LLMModel)
	}
}

func TestGetEnvAsDurationInvalid(t *testing.T) {
	t.Setenv("NOTIFY_INTERVAL", "not-a-duration")
	if got := getEnvAsDuration("NOTIFY_INTERVAL", 5*time.Second); got != 5*time.Second {
		t.Errorf("expected fallback 5s, got %s", got)
	}
}

func TestGetEnvAsInt(t *testing.T) {
	t.Setenv("SOME_INT", "42")
	if got := getEnvAsInt("SOME_INT", 7); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	if got := getEnvAsInt("SOME_MISSING_INT", 7); got != 7 {
		t.Errorf("expected fallback 7, got %d", got)
	}
}
