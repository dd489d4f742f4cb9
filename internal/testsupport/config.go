// Package testsupport provides shared fixtures for package tests: a config
// seeded with per-test temp directories, scratch media files, and a fake
// delivery messenger.
package testsupport

import (
	"path/filepath"
	"testing"

	"clipforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.TempDir = filepath.Join(base, "temp")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.Bind = "127.0.0.1:0"
	cfg.Discord.Token = "test-token"
	cfg.Discord.ChannelID = "chan-1"

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// WithDelivery overrides the size budget and ceiling on the test config.
func WithDelivery(targetBytes, maxBytes int64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Delivery.TargetSizeBytes = targetBytes
		cfg.Delivery.MaxUploadBytes = maxBytes
	}
}

// WithMaxConcurrentJobs overrides the render worker ceiling.
func WithMaxConcurrentJobs(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Workflow.MaxConcurrentJobs = n
	}
}
