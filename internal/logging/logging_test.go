package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
)

// ========================================
// parseLogLevel Tests
// ========================================

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{" debug ", slog.LevelDebug},

		{"info", slog.LevelInfo},
		{"", slog.LevelInfo}, // default

		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},

		{"error", slog.LevelError},

		{"invalid", slog.LevelInfo}, // default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLogLevel(tt.input)
			if got != tt.expected {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

// ========================================
// New Logger Tests
// ========================================

func TestNew(t *testing.T) {
	logger := New()
	if logger == nil {
		t.Fatal("New() should return a logger")
	}
}

func TestSetDefault(t *testing.T) {
	logger := SetDefault()
	if logger == nil {
		t.Fatal("SetDefault() should return a logger")
	}

	// Default logger should be set
	if slog.Default() == nil {
		t.Error("slog.Default() should not be nil after SetDefault()")
	}
}

// ========================================
// Source Attribute Tests
// ========================================

func TestNewEmitsRelativeSourcePath(t *testing.T) {
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "info")

	out := captureStdout(t, func() {
		New().Info("source path check")
	})

	if !strings.Contains(out, `"source"`) {
		t.Fatalf("log output missing source attribute: %s", out)
	}
	// The file path is shortened relative to the working directory, so
	// the test file appears by its bare name rather than an absolute path.
	if !strings.Contains(out, `"file":"logging_test.go"`) {
		t.Errorf("source file should be relative, got: %s", out)
	}
}

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything written while fn ran.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	w.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read captured output: %v", err)
	}
	return string(data)
}
