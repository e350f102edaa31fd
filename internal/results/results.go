// Package results fans completed task results out to persistent sinks: CSV
// and text logs, Postgres rows and Pub/Sub notifications. Sink failures are
// surfaced on an error channel and never change a task's outcome.
package results

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JakeFAU/webshot/internal/executor"
	"github.com/JakeFAU/webshot/internal/metrics"
	"github.com/JakeFAU/webshot/internal/screenshot"
	"github.com/JakeFAU/webshot/internal/target"
)

// ErrSinkFailures reports that at least one sink write failed during a run.
var ErrSinkFailures = errors.New("one or more result sinks failed")

// Sink persists result records.
type Sink interface {
	Write(ctx context.Context, rec screenshot.Record) error
	Close() error
}

// SessionSink is implemented by sinks that mark the start and end of a run.
type SessionSink interface {
	Sink
	Begin(ctx context.Context, runID string, total int) error
	End(ctx context.Context, runID string, summary screenshot.Summary) error
}

// SinkError describes one failed sink operation.
type SinkError struct {
	Sink   string
	Target string
	Err    error
}

func (e SinkError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("sink %s: %v", e.Sink, e.Err)
	}
	return fmt.Sprintf("sink %s: target %s: %v", e.Sink, e.Target, e.Err)
}

func (e SinkError) Unwrap() error {
	return e.Err
}

type namedSink struct {
	name string
	mu   sync.Mutex
	sink Sink
}

const defaultErrorBuffer = 256

// Dispatcher writes every record to all registered sinks.
type Dispatcher struct {
	runID    string
	clock    screenshot.Clock
	logger   *zap.Logger
	sinks    []*namedSink
	errs     chan SinkError
	failures atomic.Int64
	closed   atomic.Bool

	// errMu orders sends on errs against its close.
	errMu     sync.RWMutex
	closeOnce sync.Once
}

// NewDispatcher creates a Dispatcher for one run. errorBuffer bounds the
// Errors channel; errors beyond it are still counted.
func NewDispatcher(runID string, clock screenshot.Clock, logger *zap.Logger, errorBuffer int) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if errorBuffer <= 0 {
		errorBuffer = defaultErrorBuffer
	}
	return &Dispatcher{
		runID:  runID,
		clock:  clock,
		logger: logger,
		errs:   make(chan SinkError, errorBuffer),
	}
}

// Add registers a sink under name. It must be called before the run starts.
func (d *Dispatcher) Add(name string, sink Sink) {
	if sink == nil {
		return
	}
	d.sinks = append(d.sinks, &namedSink{name: name, sink: sink})
}

// Len returns the number of registered sinks.
func (d *Dispatcher) Len() int {
	return len(d.sinks)
}

// Errors delivers sink failures. It is closed by Close.
func (d *Dispatcher) Errors() <-chan SinkError {
	return d.errs
}

// Failures returns how many sink operations have failed.
func (d *Dispatcher) Failures() int {
	return int(d.failures.Load())
}

// Begin notifies session-aware sinks that a run of total targets started.
func (d *Dispatcher) Begin(ctx context.Context, total int) {
	if d.closed.Load() {
		return
	}
	for _, ns := range d.sinks {
		ss, ok := ns.sink.(SessionSink)
		if !ok {
			continue
		}
		ns.mu.Lock()
		err := ss.Begin(ctx, d.runID, total)
		ns.mu.Unlock()
		if err != nil {
			d.fail(ns.name, "", err)
		}
	}
}

// End notifies session-aware sinks that the run finished.
func (d *Dispatcher) End(ctx context.Context, summary screenshot.Summary) {
	if d.closed.Load() {
		return
	}
	for _, ns := range d.sinks {
		ss, ok := ns.sink.(SessionSink)
		if !ok {
			continue
		}
		ns.mu.Lock()
		err := ss.End(ctx, d.runID, summary)
		ns.mu.Unlock()
		if err != nil {
			d.fail(ns.name, "", err)
		}
	}
}

// Write persists res to every sink.
func (d *Dispatcher) Write(ctx context.Context, res screenshot.TaskResult) {
	if d.closed.Load() {
		d.logger.Debug("result dropped after dispatcher close", zap.String("target", res.Target.Original))
		return
	}
	rec := screenshot.NewRecord(d.runID, d.clock.Now(), res)
	for _, ns := range d.sinks {
		ns.mu.Lock()
		err := ns.sink.Write(ctx, rec)
		ns.mu.Unlock()
		if err != nil {
			d.fail(ns.name, rec.Target, err)
		}
	}
}

// Callback adapts the dispatcher to the executor's result callback.
func (d *Dispatcher) Callback() executor.Callback {
	return func(ctx context.Context, _ target.Target, res screenshot.TaskResult) {
		d.Write(ctx, res)
	}
}

func (d *Dispatcher) fail(sink, target string, err error) {
	d.failures.Add(1)
	metrics.ObserveSinkError(sink)
	se := SinkError{Sink: sink, Target: target, Err: err}
	d.errMu.RLock()
	defer d.errMu.RUnlock()
	if d.closed.Load() {
		d.logger.Warn("sink failed after dispatcher close", zap.Error(se))
		return
	}
	select {
	case d.errs <- se:
	default:
		d.logger.Warn("sink error buffer full", zap.Error(se))
	}
}

// Close closes every sink and the Errors channel. Close errors are joined.
// Writes after Close are dropped.
func (d *Dispatcher) Close() error {
	var errs []error
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		for _, ns := range d.sinks {
			ns.mu.Lock()
			if err := ns.sink.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", ns.name, err))
			}
			ns.mu.Unlock()
		}
		d.errMu.Lock()
		close(d.errs)
		d.errMu.Unlock()
	})
	return errors.Join(errs...)
}
