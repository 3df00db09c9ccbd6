package testsupport

import (
	"path/filepath"
	"testing"

	"reelsmith/internal/config"
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
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Paths.PublicBaseURL = "https://reels.test"
	cfg.Generation.BaseURL = "https://gen.test"
	cfg.Composition.BaseURL = "https://compose.test"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithAdmissionCap overrides the concurrency cap on the test config.
func WithAdmissionCap(cap int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Admission.MaxConcurrentJobs = cap
	}
}

// WithNtfyTopic points notifications at a test server.
func WithNtfyTopic(topic string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Notifications.NtfyTopic = topic
	}
}
