// Package config handles application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Route names for the upstream model fan-out, in failover order.
const (
	RoutePrimary   = "PRIMARY"
	RouteSecondary = "SECONDARY"
	RouteTertiary  = "TERTIARY"
)

// defaultRouteModels are used when OPENROUTER_MODEL_{name} is unset.
var defaultRouteModels = map[string]string{
	RoutePrimary:   "openrouter/auto",
	RouteSecondary: "meta-llama/llama-3.3-70b-instruct:free",
	RouteTertiary:  "mistralai/mistral-7b-instruct:free",
}

// Route is one configured upstream model route.
type Route struct {
	APIKey string
	Model  string
	Label  string
}

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port        int
	CORSOrigins []string

	// Store
	DatabaseURL string

	// Upstream model routes (primary -> secondary -> tertiary)
	Routes      []Route
	HTTPReferer string
	AppTitle    string

	// Tools service
	ToolsBaseURL string
	ToolsAPIKey  string
	ToolsTimeout time.Duration

	// Policy / ops
	AllowedOrigins    []string
	VerifyLinks       bool
	CaptureCandidates bool
	AuditSalt         string

	// Worker
	WorkerPollInterval time.Duration
	WorkerMaxAttempts  int
	WorkerBackoffBase  time.Duration

	// Scheduler
	StaleHours         int // 0 means "pick a random value in 24..72 per run"
	SchedulerBatchSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnvInt("PORT", 8080),
		CORSOrigins: getEnvCSV("CORS_ORIGINS", []string{"*"}),

		DatabaseURL: getEnv("NEON_DATABASE_URL", getEnv("DATABASE_URL", "")),

		HTTPReferer: getEnv("OPENROUTER_HTTP_REFERER", "https://aicenghub.top"),
		AppTitle:    getEnv("OPENROUTER_APP_TITLE", "AICENGHUB"),

		ToolsBaseURL: strings.TrimRight(getEnv("TOOLS_BASE_URL", ""), "/"),
		ToolsAPIKey:  getEnv("TOOLS_API_KEY", ""),
		ToolsTimeout: clampDuration(getEnvDuration("TOOLS_TIMEOUT_MS", 6*time.Second), time.Second, 20*time.Second),

		AllowedOrigins:    getEnvCSV("JULEHA_ALLOWED_ORIGINS", nil),
		VerifyLinks:       getEnvBool("JULEHA_VERIFY_LINKS", true),
		CaptureCandidates: getEnvBool("JULEHA_CAPTURE_CANDIDATES", true),
		AuditSalt:         getEnv("JULEHA_AUDIT_SALT", "juleha"),

		WorkerPollInterval: clampDuration(getEnvDuration("WORKER_POLL_MS", 5*time.Second), time.Second, 60*time.Second),
		WorkerMaxAttempts:  clampInt(getEnvInt("WORKER_MAX_ATTEMPTS", 5), 1, 20),
		WorkerBackoffBase:  clampDuration(time.Duration(getEnvInt("WORKER_BACKOFF_BASE_SEC", 60))*time.Second, 10*time.Second, 3600*time.Second),

		SchedulerBatchSize: clampInt(getEnvInt("SCHEDULER_BATCH_SIZE", 200), 1, 5000),
	}

	// STALE_HOURS unset leaves zero; the scheduler randomizes 24..72 per run.
	if raw := os.Getenv("STALE_HOURS"); raw != "" {
		hours, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("invalid STALE_HOURS %q: %w", raw, err)
		}
		cfg.StaleHours = clampInt(hours, 24, 72)
	}

	// A route without an API key or model is not usable and is dropped.
	for _, name := range []string{RoutePrimary, RouteSecondary, RouteTertiary} {
		route := Route{
			APIKey: getEnv("OPENROUTER_API_KEY_"+name, ""),
			Model:  getEnv("OPENROUTER_MODEL_"+name, defaultRouteModels[name]),
			Label:  getEnv("OPENROUTER_LABEL_"+name, strings.ToLower(name)),
		}
		if route.APIKey == "" || route.Model == "" {
			continue
		}
		cfg.Routes = append(cfg.Routes, route)
	}

	return cfg, nil
}

// getEnv returns the environment variable value or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as an int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBool parses 1/0 and true/false, defaulting on anything else.
func getEnvBool(key string, defaultValue bool) bool {
	switch strings.TrimSpace(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return defaultValue
	}
}

// getEnvDuration reads a millisecond count from the environment.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

// getEnvCSV splits a comma-separated environment variable, trimming blanks.
func getEnvCSV(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
