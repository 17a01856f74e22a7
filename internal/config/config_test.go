package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.ToolsTimeout != 6*time.Second {
		t.Errorf("ToolsTimeout = %v, want 6s", cfg.ToolsTimeout)
	}
	if cfg.WorkerPollInterval != 5*time.Second {
		t.Errorf("WorkerPollInterval = %v, want 5s", cfg.WorkerPollInterval)
	}
	if cfg.WorkerMaxAttempts != 5 {
		t.Errorf("WorkerMaxAttempts = %d, want 5", cfg.WorkerMaxAttempts)
	}
	if cfg.WorkerBackoffBase != 60*time.Second {
		t.Errorf("WorkerBackoffBase = %v, want 60s", cfg.WorkerBackoffBase)
	}
	if cfg.SchedulerBatchSize != 200 {
		t.Errorf("SchedulerBatchSize = %d, want 200", cfg.SchedulerBatchSize)
	}
	if cfg.StaleHours != 0 {
		t.Errorf("StaleHours = %d, want 0 (randomized per run)", cfg.StaleHours)
	}
	if !cfg.VerifyLinks {
		t.Error("VerifyLinks should default to true")
	}
	if !cfg.CaptureCandidates {
		t.Error("CaptureCandidates should default to true")
	}
	if len(cfg.Routes) != 0 {
		t.Errorf("Routes = %d, want 0 without API keys", len(cfg.Routes))
	}
}

func TestLoadClampsWorkerSettings(t *testing.T) {
	t.Setenv("WORKER_POLL_MS", "100")
	t.Setenv("WORKER_MAX_ATTEMPTS", "500")
	t.Setenv("WORKER_BACKOFF_BASE_SEC", "1")
	t.Setenv("TOOLS_TIMEOUT_MS", "90000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.WorkerPollInterval != time.Second {
		t.Errorf("WorkerPollInterval = %v, want 1s (clamped)", cfg.WorkerPollInterval)
	}
	if cfg.WorkerMaxAttempts != 20 {
		t.Errorf("WorkerMaxAttempts = %d, want 20 (clamped)", cfg.WorkerMaxAttempts)
	}
	if cfg.WorkerBackoffBase != 10*time.Second {
		t.Errorf("WorkerBackoffBase = %v, want 10s (clamped)", cfg.WorkerBackoffBase)
	}
	if cfg.ToolsTimeout != 20*time.Second {
		t.Errorf("ToolsTimeout = %v, want 20s (clamped)", cfg.ToolsTimeout)
	}
}

func TestLoadClampsStaleHours(t *testing.T) {
	t.Setenv("STALE_HOURS", "5")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StaleHours != 24 {
		t.Errorf("StaleHours = %d, want 24 (clamped)", cfg.StaleHours)
	}
}

func TestLoadRoutes(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY_PRIMARY", "sk-or-primary")
	t.Setenv("OPENROUTER_MODEL_PRIMARY", "deepseek/deepseek-chat")
	t.Setenv("OPENROUTER_API_KEY_TERTIARY", "sk-or-tertiary")
	t.Setenv("OPENROUTER_LABEL_TERTIARY", "fallback")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Secondary has no key so it is dropped; order is preserved.
	if len(cfg.Routes) != 2 {
		t.Fatalf("Routes = %d, want 2", len(cfg.Routes))
	}
	if cfg.Routes[0].Model != "deepseek/deepseek-chat" {
		t.Errorf("Routes[0].Model = %q", cfg.Routes[0].Model)
	}
	if cfg.Routes[0].Label != "primary" {
		t.Errorf("Routes[0].Label = %q, want primary", cfg.Routes[0].Label)
	}
	if cfg.Routes[1].Label != "fallback" {
		t.Errorf("Routes[1].Label = %q, want fallback", cfg.Routes[1].Label)
	}
	if cfg.Routes[1].Model == "" {
		t.Error("tertiary route should fall back to a default model")
	}
}

func TestLoadDatabaseURLFallback(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://fallback/db")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabaseURL != "postgres://fallback/db" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}

	t.Setenv("NEON_DATABASE_URL", "postgres://neon/db")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DatabaseURL != "postgres://neon/db" {
		t.Errorf("DatabaseURL = %q, want NEON_DATABASE_URL to win", cfg.DatabaseURL)
	}
}
