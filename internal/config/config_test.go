package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"digest/internal/config"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
[smtp]
host = "smtp.example.com"
from_address = "digest@example.com"

[summarizer]
api_key = "test-key"
`

func TestLoadAppliesDefaultsAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	path := writeConfig(t, minimalConfig)
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved != path {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "digest", "data")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.SMTP.Port != 587 {
		t.Fatalf("unexpected smtp port: %d", cfg.SMTP.Port)
	}
	if !cfg.SMTP.StartTLS {
		t.Fatal("expected starttls enabled by default")
	}
	if cfg.Summarizer.BaseURL != config.Default().Summarizer.BaseURL {
		t.Fatalf("unexpected summarizer base url: %q", cfg.Summarizer.BaseURL)
	}
	if cfg.Schedule.Weekday != "monday" || cfg.Schedule.Hour != 8 {
		t.Fatalf("unexpected schedule defaults: %+v", cfg.Schedule)
	}
	if cfg.Workflow.WorkerCount != 4 {
		t.Fatalf("unexpected worker count: %d", cfg.Workflow.WorkerCount)
	}
	if cfg.Workflow.RetryMaxAttempts != 4 {
		t.Fatalf("unexpected retry attempts: %d", cfg.Workflow.RetryMaxAttempts)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "info" {
		t.Fatalf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadRejectsMissingSummarizerKey(t *testing.T) {
	path := writeConfig(t, `
[smtp]
host = "smtp.example.com"
from_address = "digest@example.com"
`)
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "summarizer.api_key") {
		t.Fatalf("expected summarizer.api_key error, got %v", err)
	}
}

func TestLoadRejectsInvalidFromAddress(t *testing.T) {
	path := writeConfig(t, `
[smtp]
host = "smtp.example.com"
from_address = "not-an-address"

[summarizer]
api_key = "test-key"
`)
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "smtp.from_address") {
		t.Fatalf("expected from_address error, got %v", err)
	}
}

func TestLoadRejectsUnknownWeekday(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[schedule]
weekday = "someday"
`)
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "schedule.weekday") {
		t.Fatalf("expected weekday error, got %v", err)
	}
}

func TestLoadRejectsBackoffInversion(t *testing.T) {
	path := writeConfig(t, minimalConfig+`
[workflow]
retry_base_delay_seconds = 600
retry_max_delay_seconds = 60
`)
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "retry_base_delay_seconds") {
		t.Fatalf("expected backoff error, got %v", err)
	}
}

func TestCreateSampleWritesParseableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(data), "[smtp]") {
		t.Fatal("sample config missing [smtp] section")
	}
}
