// Package app turns a loaded Config into a runnable capture batch, acting as
// the dependency injection container for the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/webshot/internal/api"
	"github.com/JakeFAU/webshot/internal/capture/headless"
	"github.com/JakeFAU/webshot/internal/capture/placeholder"
	rodcapture "github.com/JakeFAU/webshot/internal/capture/rod"
	"github.com/JakeFAU/webshot/internal/clock/system"
	"github.com/JakeFAU/webshot/internal/config"
	"github.com/JakeFAU/webshot/internal/executor"
	"github.com/JakeFAU/webshot/internal/id/uuid"
	"github.com/JakeFAU/webshot/internal/progress"
	"github.com/JakeFAU/webshot/internal/progress/sinks"
	"github.com/JakeFAU/webshot/internal/results"
	"github.com/JakeFAU/webshot/internal/results/csvlog"
	"github.com/JakeFAU/webshot/internal/results/postgres"
	"github.com/JakeFAU/webshot/internal/results/pubsub"
	"github.com/JakeFAU/webshot/internal/results/textlog"
	"github.com/JakeFAU/webshot/internal/screenshot"
	"github.com/JakeFAU/webshot/internal/storage/gcs"
	"github.com/JakeFAU/webshot/internal/storage/local"
	"github.com/JakeFAU/webshot/internal/storage/memory"
	"github.com/JakeFAU/webshot/internal/target"
	"github.com/JakeFAU/webshot/internal/telemetry"
)

const serviceName = "webshot"

// Version is stamped on trace resources. It is overridden at link time.
var Version = "dev"

// Option customizes App construction, mostly for tests.
type Option func(*options)

type options struct {
	clock      screenshot.Clock
	ids        screenshot.IDGenerator
	store      screenshot.BlobStore
	capturer   screenshot.Capturer
	barOut     io.Writer
	registerer prometheus.Registerer
}

// WithClock overrides the time source.
func WithClock(c screenshot.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(g screenshot.IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithBlobStore replaces the configured storage provider.
func WithBlobStore(s screenshot.BlobStore) Option {
	return func(o *options) { o.store = s }
}

// WithCapturer replaces the configured capture backend.
func WithCapturer(c screenshot.Capturer) Option {
	return func(o *options) { o.capturer = c }
}

// WithProgressOutput sends the progress bar to w instead of stdout.
func WithProgressOutput(w io.Writer) Option {
	return func(o *options) { o.barOut = w }
}

// WithRegisterer sets the registry run-level progress metrics are added to.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// App holds the services for one capture run.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	clock      screenshot.Clock
	runID      string
	store      screenshot.BlobStore
	executor   *executor.Executor
	dispatcher *results.Dispatcher
	hub        *progress.Hub
	tracer     *sdktrace.TracerProvider

	// closers run in reverse order on Close.
	closers   []func(context.Context) error
	drainDone chan struct{}
	closeOnce sync.Once
}

// New builds every service named by cfg. It fails fast if any of them cannot
// be initialized, releasing whatever was already opened.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (a *App, err error) {
	o := options{
		clock:      system.New(),
		ids:        uuid.New(),
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	runID, err := o.ids.NewID()
	if err != nil {
		return nil, fmt.Errorf("generate run id: %w", err)
	}
	a = &App{
		cfg:       cfg,
		logger:    logger.With(zap.String("run_id", runID)),
		clock:     o.clock,
		runID:     runID,
		drainDone: make(chan struct{}),
	}
	built := a
	defer func() {
		if err != nil {
			_ = built.closeAll(context.WithoutCancel(ctx))
		}
	}()

	if cfg.Tracing.Enabled {
		tp, tErr := telemetry.InitTracerProvider(ctx, serviceName, Version,
			sdktrace.NewBatchSpanProcessor(telemetry.NewLogExporter(a.logger.Named("trace"))))
		if tErr != nil {
			return nil, fmt.Errorf("init tracing: %w", tErr)
		}
		a.tracer = tp
		a.closers = append(a.closers, tp.Shutdown)
	}

	if a.store = o.store; a.store == nil {
		if a.store, err = a.openStore(ctx); err != nil {
			return nil, err
		}
	}

	capturer := o.capturer
	if capturer == nil {
		if capturer, err = a.openCapturer(); err != nil {
			return nil, err
		}
	}

	if a.hub, err = a.openHub(o); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.hub.Close)

	a.executor, err = executor.New(capturer, cfg.ExecutorConfig(),
		executor.WithReporter(a.hub),
		executor.WithLogger(a.logger.Named("executor")),
		executor.WithClock(a.clock),
	)
	if err != nil {
		return nil, fmt.Errorf("create executor: %w", err)
	}
	a.closers = append(a.closers, func(context.Context) error {
		a.executor.Close()
		return nil
	})

	a.dispatcher = results.NewDispatcher(runID, a.clock, a.logger, 0)
	go a.drainSinkErrors()
	a.closers = append(a.closers, func(context.Context) error {
		err := a.dispatcher.Close()
		<-a.drainDone
		return err
	})
	if err = a.openSinks(ctx); err != nil {
		return nil, err
	}

	a.logger.Info("application services initialized",
		zap.String("backend", cfg.Capture.Backend),
		zap.String("storage", cfg.Storage.Provider),
		zap.Int("sinks", a.dispatcher.Len()),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context) (screenshot.BlobStore, error) {
	switch a.cfg.Storage.Provider {
	case config.ProviderLocal:
		store, err := local.New(local.Config{BaseDir: a.cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local storage: %w", err)
		}
		return store, nil
	case config.ProviderMemory:
		return memory.NewBlobStore(), nil
	case config.ProviderGCS:
		store, err := gcs.Open(ctx, gcs.Config{Bucket: a.cfg.Storage.GCS.Bucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs storage: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", a.cfg.Storage.Provider)
	}
}

func (a *App) openCapturer() (screenshot.Capturer, error) {
	settings := a.cfg.CaptureSettings()
	logger := a.logger.Named("capture")
	switch a.cfg.Capture.Backend {
	case config.BackendChromedp:
		c, err := headless.New(settings, a.store, a.clock, logger)
		if err != nil {
			return nil, fmt.Errorf("init chromedp capturer: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error {
			c.Close()
			return nil
		})
		return c, nil
	case config.BackendRod:
		c, err := rodcapture.New(settings, a.store, a.clock, logger)
		if err != nil {
			return nil, fmt.Errorf("init rod capturer: %w", err)
		}
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
		return c, nil
	case config.BackendPlaceholder:
		c, err := placeholder.New(settings, a.store, a.clock)
		if err != nil {
			return nil, fmt.Errorf("init placeholder capturer: %w", err)
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown capture backend: %s", a.cfg.Capture.Backend)
	}
}

func (a *App) openHub(o options) (*progress.Hub, error) {
	hubSinks := []progress.Sink{sinks.NewLogSink(a.logger.Named("progress"))}
	if a.cfg.Progress.Bar {
		hubSinks = append(hubSinks, sinks.NewBarSink(o.barOut))
	}
	if a.cfg.Metrics.Addr != "" {
		prom, err := sinks.NewPrometheusSink(o.registerer)
		if err != nil {
			return nil, fmt.Errorf("init prometheus progress sink: %w", err)
		}
		hubSinks = append(hubSinks, prom)
	}
	return progress.NewHub(progress.Config{
		RunID:  a.runID,
		Clock:  a.clock,
		Logger: a.logger.Named("progress"),
	}, hubSinks...), nil
}

func (a *App) openSinks(ctx context.Context) error {
	csvSink, err := csvlog.Create(a.cfg.CSVPath())
	if err != nil {
		return fmt.Errorf("init csv log: %w", err)
	}
	a.dispatcher.Add("csv", csvSink)

	textSink, err := textlog.Open(a.cfg.LogPath(), a.clock)
	if err != nil {
		return fmt.Errorf("init text log: %w", err)
	}
	a.dispatcher.Add("text", textSink)

	if dsn := a.cfg.Results.Postgres.DSN; dsn != "" {
		store, err := postgres.New(ctx, postgres.Config{DSN: dsn, Table: a.cfg.Results.Postgres.Table})
		if err != nil {
			return fmt.Errorf("init postgres results: %w", err)
		}
		a.dispatcher.Add("postgres", store)
	}

	if topic := a.cfg.Results.PubSub.Topic; topic != "" {
		pub, err := pubsub.Open(ctx, pubsub.Config{ProjectID: a.cfg.Results.PubSub.ProjectID, Topic: topic})
		if err != nil {
			return fmt.Errorf("init pubsub results: %w", err)
		}
		a.dispatcher.Add("pubsub", pubsub.NewSink(pub, a.clock))
	}
	return nil
}

func (a *App) drainSinkErrors() {
	defer close(a.drainDone)
	for se := range a.dispatcher.Errors() {
		a.logger.Warn("result sink failed",
			zap.String("sink", se.Sink),
			zap.String("target", se.Target),
			zap.Error(se.Err),
		)
	}
}

// RunID returns the identifier stamped on every record of this run.
func (a *App) RunID() string {
	return a.runID
}

// Executor exposes the executor for progress queries.
func (a *App) Executor() *executor.Executor {
	return a.executor
}

// Run captures every target. The summary is always returned; the error is
// non-nil only when a result sink failed, wrapping results.ErrSinkFailures.
func (a *App) Run(ctx context.Context, targets []target.Target) (screenshot.Summary, error) {
	stopServer := a.startMetricsServer(ctx)
	defer stopServer()

	sinkCtx := context.WithoutCancel(ctx)
	a.hub.RunStarted(len(targets))
	a.dispatcher.Begin(sinkCtx, len(targets))

	summary := a.executor.Run(ctx, targets, a.dispatcher.Callback())

	a.dispatcher.End(sinkCtx, summary)
	if n := a.dispatcher.Failures(); n > 0 {
		return summary, fmt.Errorf("%w: %d sink operations failed", results.ErrSinkFailures, n)
	}
	return summary, nil
}

func (a *App) startMetricsServer(ctx context.Context) func() {
	if a.cfg.Metrics.Addr == "" {
		return func() {}
	}
	server := api.NewServer(api.NewProgressHandler(a.executor, a.runID), a.logger.Named("api"))
	serveCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := server.ListenAndServe(serveCtx, a.cfg.Metrics.Addr); err != nil {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Close releases every service in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	return a.closeAll(ctx)
}

func (a *App) closeAll(ctx context.Context) error {
	var errs []error
	a.closeOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
