package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/webshot/internal/capture"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("WEBSHOT_TARGETS_FILE", "targets.txt")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "targets.txt", cfg.Targets.File)
	assert.Equal(t, BackendChromedp, cfg.Capture.Backend)
	assert.Equal(t, 4, cfg.Capture.Concurrency)
	assert.Equal(t, 5, cfg.Capture.TimeoutSeconds)
	assert.Equal(t, 30, cfg.Capture.NavigationTimeoutSeconds)
	assert.True(t, cfg.Capture.Headless)
	assert.Equal(t, 414, cfg.Capture.WindowWidth)
	assert.Equal(t, 896, cfg.Capture.WindowHeight)
	assert.Equal(t, capture.DefaultUserAgent, cfg.Capture.UserAgent)
	assert.True(t, cfg.Capture.AddressBar)
	assert.Equal(t, ProviderLocal, cfg.Storage.Provider)
	assert.Equal(t, "screen_shots", cfg.Storage.Local.BaseDir)
	assert.Equal(t, "screenshot_results", cfg.Results.Postgres.Table)
	assert.True(t, cfg.Progress.Bar)
	assert.False(t, cfg.Tracing.Enabled)
	assert.True(t, cfg.Logging.Development)

	assert.Equal(t, filepath.Join("screen_shots", "screenshot_log.csv"), cfg.CSVPath())
	assert.Equal(t, filepath.Join("screen_shots", "screenshot_log.txt"), cfg.LogPath())
	assert.Zero(t, cfg.ExecutorConfig().StartRate)
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
targets:
  file: hosts.txt
capture:
  backend: rod
  concurrency: 6
  timeout_seconds: 2
  navigation_timeout_seconds: 45
  headless: false
  window_width: 390
  window_height: 844
  user_agent: custom-agent
  address_bar: false
  delay_seconds: 0.5
storage:
  provider: gcs
  prefix: shots
  gcs:
    bucket: bucket
results:
  csv_path: out/results.csv
  postgres:
    dsn: postgres://localhost/db
    table: shots
  pubsub:
    project_id: proj
    topic: results
progress:
  bar: false
metrics:
  addr: ":9090"
logging:
  development: false
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "hosts.txt", cfg.Targets.File)
	assert.Equal(t, BackendRod, cfg.Capture.Backend)
	assert.Equal(t, "out/results.csv", cfg.CSVPath())
	assert.Equal(t, "shots", cfg.Results.Postgres.Table)
	assert.Equal(t, "results", cfg.Results.PubSub.Topic)
	assert.False(t, cfg.Progress.Bar)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.False(t, cfg.Logging.Development)

	settings := cfg.CaptureSettings()
	assert.Equal(t, "custom-agent", settings.UserAgent)
	assert.Equal(t, 390, settings.Width)
	assert.Equal(t, 844, settings.Height)
	assert.False(t, settings.Headless)
	assert.False(t, settings.AddressBar)
	assert.Equal(t, 2*time.Second, settings.Settle)
	assert.Equal(t, 45*time.Second, settings.NavigationTimeout)
	assert.Equal(t, "shots", settings.Prefix)

	exec := cfg.ExecutorConfig()
	assert.Equal(t, 6, exec.Concurrency)
	assert.InDelta(t, 2.0, exec.StartRate, 1e-9)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("WEBSHOT_TARGETS_FILE", "env.txt")
	t.Setenv("WEBSHOT_CAPTURE_CONCURRENCY", "3")

	flags := pflag.NewFlagSet("capture", pflag.ContinueOnError)
	flags.StringP("file", "f", "", "")
	flags.IntP("concurrency", "c", 4, "")
	flags.IntP("timeout", "t", 5, "")
	flags.Bool("headless", true, "")
	require.NoError(t, flags.Parse([]string{"-f", "flag.txt", "--timeout", "9", "--headless=false"}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, "flag.txt", cfg.Targets.File)
	// Unset flags leave lower layers alone.
	assert.Equal(t, 3, cfg.Capture.Concurrency)
	assert.Equal(t, 9, cfg.Capture.TimeoutSeconds)
	assert.False(t, cfg.Capture.Headless)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "absent.env")))

	path := filepath.Join(t.TempDir(), "bad.env")
	require.NoError(t, os.WriteFile(path, []byte("BAD-KEY=1\n"), 0o600))
	require.Error(t, loadDotEnv(path))
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Targets: TargetsConfig{File: "targets.txt"},
		Capture: CaptureConfig{
			Backend:                  BackendChromedp,
			Concurrency:              1,
			TimeoutSeconds:           5,
			NavigationTimeoutSeconds: 30,
			WindowWidth:              414,
			WindowHeight:             896,
		},
		Storage: StorageConfig{Provider: ProviderLocal, Local: LocalStorageConfig{BaseDir: "shots"}},
	}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing targets", func(c *Config) { c.Targets.File = " " }, "targets.file"},
		{"unknown backend", func(c *Config) { c.Capture.Backend = "selenium" }, "capture.backend"},
		{"zero concurrency", func(c *Config) { c.Capture.Concurrency = 0 }, "capture.concurrency"},
		{"negative settle", func(c *Config) { c.Capture.TimeoutSeconds = -1 }, "capture.timeout_seconds"},
		{"zero navigation timeout", func(c *Config) { c.Capture.NavigationTimeoutSeconds = 0 }, "navigation_timeout_seconds"},
		{"zero window", func(c *Config) { c.Capture.WindowHeight = 0 }, "window_height"},
		{"negative delay", func(c *Config) { c.Capture.DelaySeconds = -1 }, "delay_seconds"},
		{"missing base dir", func(c *Config) { c.Storage.Local.BaseDir = "" }, "base_dir"},
		{"gcs without bucket", func(c *Config) { c.Storage.Provider = ProviderGCS }, "storage.gcs.bucket"},
		{"unknown provider", func(c *Config) { c.Storage.Provider = "s3" }, "storage.provider"},
		{"pubsub without project", func(c *Config) { c.Results.PubSub.Topic = "results" }, "project_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
