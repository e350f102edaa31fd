// Package executor runs a batch of screenshot captures under a concurrency
// limit and reports each result as it completes.
//
// Every target gets its own goroutine gated by a permit pool. Results are
// sent over a channel to the goroutine that called Run, which records them,
// reports progress and invokes the result callback in completion order, so
// the callback never runs concurrently with itself.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/webshot/internal/clock/system"
	"github.com/JakeFAU/webshot/internal/progress"
	"github.com/JakeFAU/webshot/internal/screenshot"
	"github.com/JakeFAU/webshot/internal/target"
)

const tracerName = "github.com/JakeFAU/webshot/internal/executor"

// Config controls Executor behavior.
type Config struct {
	// Concurrency is the maximum number of captures in flight. Must be >= 1.
	Concurrency int
	// StartRate caps capture starts per second across the batch. Zero disables it.
	StartRate float64
}

// Callback receives each task result exactly once, in completion order.
type Callback func(ctx context.Context, t target.Target, res screenshot.TaskResult)

// Option customizes an Executor.
type Option func(*Executor)

// WithReporter sets the progress reporter. The default discards progress.
func WithReporter(r screenshot.Reporter) Option {
	return func(e *Executor) {
		if r != nil {
			e.reporter = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock sets the time source.
func WithClock(c screenshot.Clock) Option {
	return func(e *Executor) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithTracer sets the tracer used for per-capture spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Executor) {
		if t != nil {
			e.tracer = t
		}
	}
}

// Executor runs capture batches.
type Executor struct {
	cfg      Config
	capturer screenshot.Capturer
	pool     *Pool
	reporter screenshot.Reporter
	logger   *zap.Logger
	clock    screenshot.Clock
	tracer   trace.Tracer
	runner   *Runner

	mu      sync.RWMutex
	current *Stats
}

// New constructs an Executor.
func New(capturer screenshot.Capturer, cfg Config, opts ...Option) (*Executor, error) {
	if capturer == nil {
		return nil, fmt.Errorf("capturer is required")
	}
	if cfg.StartRate < 0 {
		return nil, fmt.Errorf("start rate must be >= 0, got %v", cfg.StartRate)
	}
	pool, err := NewPool(cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("create permit pool: %w", err)
	}
	e := &Executor{
		cfg:      cfg,
		capturer: capturer,
		pool:     pool,
		reporter: progress.Noop{},
		logger:   zap.NewNop(),
		clock:    system.New(),
		tracer:   otel.Tracer(tracerName),
		current:  NewStats(0),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.runner = &Runner{
		capturer: capturer,
		pool:     pool,
		limiter:  newLimiter(cfg.StartRate),
		clock:    e.clock,
		tracer:   e.tracer,
		logger:   e.logger,
	}
	return e, nil
}

// Run captures every target and returns once all of them have completed.
// Cancelling ctx fails the tasks that have not started yet; each target still
// produces exactly one result. onResult may be nil.
func (e *Executor) Run(ctx context.Context, targets []target.Target, onResult Callback) screenshot.Summary {
	start := e.clock.Now()
	stats := NewStats(len(targets))
	e.mu.Lock()
	e.current = stats
	e.mu.Unlock()

	e.logger.Info("run started",
		zap.Int("targets", len(targets)),
		zap.Int("concurrency", e.pool.Limit()),
	)

	results := make(chan screenshot.TaskResult, e.pool.Limit())
	var wg conc.WaitGroup
	for _, t := range targets {
		wg.Go(func() {
			results <- e.runner.Run(ctx, t)
		})
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Sinks still get the results of cancelled tasks.
	cbCtx := context.WithoutCancel(ctx)
	for res := range results {
		stats.Record(res)
		e.reporter.TaskCompleted(stats.Progress())
		e.dispatch(cbCtx, onResult, res)
	}

	ok, failed := stats.Snapshot()
	summary := screenshot.Summary{
		Succeeded: ok,
		Failed:    failed,
		Total:     len(targets),
		Elapsed:   e.clock.Now().Sub(start),
	}
	e.reporter.RunFinished(summary)
	e.logger.Info("run finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("total", summary.Total),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary
}

func (e *Executor) dispatch(ctx context.Context, cb Callback, res screenshot.TaskResult) {
	if cb == nil {
		return
	}
	var pc panics.Catcher
	pc.Try(func() { cb(ctx, res.Target, res) })
	if rec := pc.Recovered(); rec != nil {
		e.logger.Error("result callback panicked",
			zap.String("target", res.Target.Original),
			zap.Error(rec.AsError()),
		)
	}
}

// Stats returns the aggregate of the most recent run. It keeps its values
// after the run ends.
func (e *Executor) Stats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.current
}

// Progress returns a snapshot of the most recent run.
func (e *Executor) Progress() screenshot.Progress {
	return e.Stats().Progress()
}

// Close shuts the permit pool. Tasks still waiting for a permit fail with
// ErrPoolClosed.
func (e *Executor) Close() {
	e.pool.Close()
}

// StartRateForDelay converts a fixed delay between capture starts into a rate.
func StartRateForDelay(delay time.Duration) float64 {
	if delay <= 0 {
		return 0
	}
	return float64(time.Second) / float64(delay)
}
