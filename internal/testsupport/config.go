package testsupport

import (
	"path/filepath"
	"testing"

	"hillview/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// Retry and polling timings are shrunk so workflow tests finish quickly.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Upload.BaseURL = "http://127.0.0.1:0"
	cfgVal.Upload.AuthToken = "test-token"
	cfgVal.Capture.RetryBaseDelayMS = 5
	cfgVal.Capture.RetryMaxDelayMS = 20
	cfgVal.Workflow.QueuePollInterval = 1
	cfgVal.Workflow.ErrorRetryInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithMaxQueueSize overrides the queue capacity on the test config.
func WithMaxQueueSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Capture.MaxQueueSize = size
	}
}

// WithMaxAttempts overrides the per-capture attempt limit.
func WithMaxAttempts(attempts int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Capture.MaxAttempts = attempts
	}
}

// WithUploadBaseURL points the upload client at a test server.
func WithUploadBaseURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Upload.BaseURL = url
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
