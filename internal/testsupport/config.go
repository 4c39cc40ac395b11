// Package testsupport provides shared helpers for package tests: temp-dir
// configs and store openers with registered cleanup.
package testsupport

import (
	"path/filepath"
	"testing"

	"digest/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.SMTP.Host = "smtp.test.invalid"
	cfg.SMTP.FromAddress = "digest@test.invalid"
	cfg.Summarizer.APIKey = "test-key"
	cfg.Schedule.Enabled = false

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// WithWorkerCount overrides the worker pool size on the test config.
func WithWorkerCount(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.WorkerCount = n
	}
}

// WithRetryPolicy overrides the task retry policy on the test config.
func WithRetryPolicy(maxAttempts, baseDelaySeconds, maxDelaySeconds int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.RetryMaxAttempts = maxAttempts
		cfg.Workflow.RetryBaseDelaySeconds = baseDelaySeconds
		cfg.Workflow.RetryMaxDelaySeconds = maxDelaySeconds
	}
}
