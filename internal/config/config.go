// Package config loads and validates webshot configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/webshot/internal/capture"
	"github.com/JakeFAU/webshot/internal/executor"
	"github.com/JakeFAU/webshot/internal/results/postgres"
)

// EnvPrefix namespaces environment overrides, e.g. WEBSHOT_CAPTURE_CONCURRENCY.
const EnvPrefix = "WEBSHOT"

// Capture backends.
const (
	BackendChromedp    = "chromedp"
	BackendRod         = "rod"
	BackendPlaceholder = "placeholder"
)

// Storage providers.
const (
	ProviderLocal  = "local"
	ProviderMemory = "memory"
	ProviderGCS    = "gcs"
)

// Config captures all knobs loaded via Viper.
type Config struct {
	Targets  TargetsConfig  `mapstructure:"targets"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Results  ResultsConfig  `mapstructure:"results"`
	Progress ProgressConfig `mapstructure:"progress"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// TargetsConfig points at the target list.
type TargetsConfig struct {
	File string `mapstructure:"file"`
}

// CaptureConfig controls the browser and the executor.
type CaptureConfig struct {
	Backend                  string  `mapstructure:"backend"`
	Concurrency              int     `mapstructure:"concurrency"`
	TimeoutSeconds           int     `mapstructure:"timeout_seconds"`
	NavigationTimeoutSeconds int     `mapstructure:"navigation_timeout_seconds"`
	Headless                 bool    `mapstructure:"headless"`
	WindowWidth              int     `mapstructure:"window_width"`
	WindowHeight             int     `mapstructure:"window_height"`
	UserAgent                string  `mapstructure:"user_agent"`
	AddressBar               bool    `mapstructure:"address_bar"`
	DelaySeconds             float64 `mapstructure:"delay_seconds"`
	BrowserPath              string  `mapstructure:"browser_path"`
}

// StorageConfig selects where screenshots are written.
type StorageConfig struct {
	Provider string             `mapstructure:"provider"`
	Prefix   string             `mapstructure:"prefix"`
	Local    LocalStorageConfig `mapstructure:"local"`
	GCS      GCSStorageConfig   `mapstructure:"gcs"`
}

// LocalStorageConfig configures the filesystem store.
type LocalStorageConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSStorageConfig configures the bucket store.
type GCSStorageConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// ResultsConfig selects the result sinks.
type ResultsConfig struct {
	CSVPath  string         `mapstructure:"csv_path"`
	LogPath  string         `mapstructure:"log_path"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
}

// PostgresConfig enables the Postgres sink when DSN is set.
type PostgresConfig struct {
	DSN   string `mapstructure:"dsn"`
	Table string `mapstructure:"table"`
}

// PubSubConfig enables the Pub/Sub sink when Topic is set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ProgressConfig toggles the terminal progress bar.
type ProgressConfig struct {
	Bar bool `mapstructure:"bar"`
}

// MetricsConfig enables the HTTP metrics endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TracingConfig toggles the OpenTelemetry SDK provider.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// flagKeys maps CLI flag names to configuration keys.
var flagKeys = map[string]string{
	"file":        "targets.file",
	"timeout":     "capture.timeout_seconds",
	"headless":    "capture.headless",
	"output":      "storage.local.base_dir",
	"concurrency": "capture.concurrency",
	"backend":     "capture.backend",
	"delay":       "capture.delay_seconds",
	"storage":     "storage.provider",
	"bar":         "progress.bar",
	"metrics":     "metrics.addr",
}

// Load builds a Config from an optional file, a .env file in the working
// directory, WEBSHOT_* environment variables and flags, in increasing order of
// precedence.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if err := bindFlags(v, flags); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load %s: %w", path, err)
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	var err error
	flags.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		if bindErr := v.BindPFlag(key, f); bindErr != nil {
			err = fmt.Errorf("bind flag %s: %w", f.Name, bindErr)
		}
	})
	return err
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("targets.file", "")
	v.SetDefault("capture.backend", BackendChromedp)
	v.SetDefault("capture.concurrency", 4)
	v.SetDefault("capture.timeout_seconds", 5)
	v.SetDefault("capture.navigation_timeout_seconds", 30)
	v.SetDefault("capture.headless", true)
	v.SetDefault("capture.window_width", 414)
	v.SetDefault("capture.window_height", 896)
	v.SetDefault("capture.user_agent", capture.DefaultUserAgent)
	v.SetDefault("capture.address_bar", true)
	v.SetDefault("capture.delay_seconds", 0)
	v.SetDefault("capture.browser_path", "")
	v.SetDefault("storage.provider", ProviderLocal)
	v.SetDefault("storage.prefix", "")
	v.SetDefault("storage.local.base_dir", "screen_shots")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("results.csv_path", "")
	v.SetDefault("results.log_path", "")
	v.SetDefault("results.postgres.dsn", "")
	v.SetDefault("results.postgres.table", postgres.DefaultTable)
	v.SetDefault("results.pubsub.project_id", "")
	v.SetDefault("results.pubsub.topic", "")
	v.SetDefault("progress.bar", true)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Targets.File) == "" {
		return fmt.Errorf("targets.file is required")
	}
	switch c.Capture.Backend {
	case BackendChromedp, BackendRod, BackendPlaceholder:
	default:
		return fmt.Errorf("capture.backend %q is not one of chromedp, rod, placeholder", c.Capture.Backend)
	}
	if c.Capture.Concurrency < 1 {
		return fmt.Errorf("capture.concurrency must be >= 1")
	}
	if c.Capture.TimeoutSeconds < 0 {
		return fmt.Errorf("capture.timeout_seconds must be >= 0")
	}
	if c.Capture.NavigationTimeoutSeconds <= 0 {
		return fmt.Errorf("capture.navigation_timeout_seconds must be > 0")
	}
	if c.Capture.WindowWidth <= 0 || c.Capture.WindowHeight <= 0 {
		return fmt.Errorf("capture.window_width and capture.window_height must be > 0")
	}
	if c.Capture.DelaySeconds < 0 {
		return fmt.Errorf("capture.delay_seconds must be >= 0")
	}
	switch c.Storage.Provider {
	case ProviderLocal:
		if strings.TrimSpace(c.Storage.Local.BaseDir) == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local provider")
		}
	case ProviderMemory:
	case ProviderGCS:
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("storage.provider %q is not one of local, memory, gcs", c.Storage.Provider)
	}
	if c.Results.PubSub.Topic != "" && c.Results.PubSub.ProjectID == "" {
		return fmt.Errorf("results.pubsub.project_id must be set when results.pubsub.topic is set")
	}
	return nil
}

// CaptureSettings converts the capture section for the backends.
func (c Config) CaptureSettings() capture.Settings {
	return capture.Settings{
		UserAgent:         c.Capture.UserAgent,
		Width:             c.Capture.WindowWidth,
		Height:            c.Capture.WindowHeight,
		Headless:          c.Capture.Headless,
		Settle:            time.Duration(c.Capture.TimeoutSeconds) * time.Second,
		NavigationTimeout: time.Duration(c.Capture.NavigationTimeoutSeconds) * time.Second,
		AddressBar:        c.Capture.AddressBar,
		BrowserPath:       c.Capture.BrowserPath,
		Prefix:            c.Storage.Prefix,
	}.WithDefaults()
}

// ExecutorConfig converts the capture section for the executor.
func (c Config) ExecutorConfig() executor.Config {
	delay := time.Duration(c.Capture.DelaySeconds * float64(time.Second))
	return executor.Config{
		Concurrency: c.Capture.Concurrency,
		StartRate:   executor.StartRateForDelay(delay),
	}
}

// CSVPath returns the CSV result log path, defaulting under the local base dir.
func (c Config) CSVPath() string {
	if c.Results.CSVPath != "" {
		return c.Results.CSVPath
	}
	return filepath.Join(c.logDir(), "screenshot_log.csv")
}

// LogPath returns the text session log path, defaulting under the local base dir.
func (c Config) LogPath() string {
	if c.Results.LogPath != "" {
		return c.Results.LogPath
	}
	return filepath.Join(c.logDir(), "screenshot_log.txt")
}

func (c Config) logDir() string {
	if c.Storage.Local.BaseDir != "" {
		return c.Storage.Local.BaseDir
	}
	return "screen_shots"
}
