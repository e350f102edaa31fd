package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/webshot/internal/clock/system"
	"github.com/JakeFAU/webshot/internal/metrics"
	"github.com/JakeFAU/webshot/internal/screenshot"
)

// Config controls buffering and batching for the Hub.
//   - BufferSize: size of the internal channel (default 4096).
//   - MaxBatchEvents: flush once this many events queue (default 1000).
//   - MaxBatchWait: flush after this duration even if the batch is small (default 500ms).
//   - SinkTimeout: per-sink timeout while flushing (default 10s).
//   - FinalTimeout: how long RunFinished may wait for buffer space (default 5s).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - RunID: stamped on every event built from reporter calls.
//   - Clock: timestamps events (defaults to time.Now in UTC).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize     int
	MaxBatchEvents int
	MaxBatchWait   time.Duration
	SinkTimeout    time.Duration
	FinalTimeout   time.Duration
	BaseContext    context.Context
	RunID          string
	Clock          screenshot.Clock
	Logger         *zap.Logger
}

const (
	defaultBufferSize     = 4096
	defaultMaxBatchEvents = 1000
	defaultMaxBatchWait   = 500 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	defaultFinalTimeout   = 5 * time.Second
	dropLogInterval       = 5 * time.Second
)

// Hub turns reporter calls into Events and hands them to its sinks in batches
// on a single background goroutine. Per-task progress never blocks the
// caller; the final run summary is never dropped. Safe for concurrent use.
type Hub struct {
	cfg     Config
	sinks   []Sink
	events  chan Event
	stopCh  chan struct{}
	doneCh  chan struct{}
	logger  *zap.Logger
	dropLog rate.Sometimes
	dropped atomic.Int64
	closed  atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts the batching goroutine. The returned Hub accepts events
// immediately.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	cfg = cfg.withDefaults()
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:     cfg,
		sinks:   append([]Sink(nil), sinks...),
		events:  make(chan Event, cfg.BufferSize),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  logger,
		dropLog: rate.Sometimes{Interval: dropLogInterval},
	}
	go h.run()
	return h
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.MaxBatchEvents <= 0 {
		c.MaxBatchEvents = defaultMaxBatchEvents
	}
	if c.MaxBatchWait <= 0 {
		c.MaxBatchWait = defaultMaxBatchWait
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = defaultSinkTimeout
	}
	if c.FinalTimeout <= 0 {
		c.FinalTimeout = defaultFinalTimeout
	}
	if c.BaseContext == nil {
		c.BaseContext = context.Background()
	}
	if c.Clock == nil {
		c.Clock = system.New()
	}
	return c
}

// Emit queues evt without blocking. When the buffer is full the event is
// dropped and counted; the count is logged at most once per dropLogInterval.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.events <- evt:
	default:
		h.dropped.Add(1)
		h.dropLog.Do(func() {
			h.logger.Warn("progress events dropped due to backpressure",
				zap.Int64("dropped", h.dropped.Swap(0)),
			)
		})
	}
}

// RunStarted announces a batch of total targets.
func (h *Hub) RunStarted(total int) {
	if h == nil {
		return
	}
	h.Emit(RunStartEvent(h.cfg.RunID, h.cfg.Clock.Now(), total))
}

// TaskCompleted implements screenshot.Reporter.
func (h *Hub) TaskCompleted(p screenshot.Progress) {
	if h == nil {
		return
	}
	h.Emit(TaskDoneEvent(h.cfg.RunID, h.cfg.Clock.Now(), p))
}

// RunFinished implements screenshot.Reporter. Unlike Emit it waits up to
// FinalTimeout for buffer space.
func (h *Hub) RunFinished(s screenshot.Summary) {
	if h == nil || h.closed.Load() {
		return
	}
	evt := RunDoneEvent(h.cfg.RunID, h.cfg.Clock.Now(), s)
	if err := evt.Validate(); err != nil {
		h.logger.Warn("discarding invalid run summary", zap.Error(err))
		return
	}
	wait := time.NewTimer(h.cfg.FinalTimeout)
	defer wait.Stop()
	select {
	case h.events <- evt:
	case <-wait.C:
		h.logger.Error("run summary not delivered to progress sinks", zap.Duration("waited", h.cfg.FinalTimeout))
	}
}

// Close flushes whatever is queued, closes the sinks and waits for the
// background goroutine. Only the first call starts shutdown; later calls just
// wait.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	pending := make([]Event, 0, h.cfg.MaxBatchEvents)
	deadline := newBatchTimer(h.cfg.MaxBatchWait)
	for {
		select {
		case evt := <-h.events:
			pending = append(pending, evt)
			if len(pending) < h.cfg.MaxBatchEvents {
				deadline.arm()
				continue
			}
			deadline.disarm()
			pending = h.flush(pending)
		case <-deadline.C():
			deadline.fired()
			pending = h.flush(pending)
		case <-h.stopCh:
			deadline.disarm()
			h.drain(pending)
			h.closeSinks()
			return
		}
	}
}

// drain flushes everything still buffered once shutdown starts.
func (h *Hub) drain(pending []Event) {
	for {
		select {
		case evt := <-h.events:
			pending = append(pending, evt)
			if len(pending) >= h.cfg.MaxBatchEvents {
				pending = h.flush(pending)
			}
		default:
			h.flush(pending)
			return
		}
	}
}

// flush hands a copy of batch to every sink and returns batch emptied for reuse.
func (h *Hub) flush(batch []Event) []Event {
	if len(batch) == 0 {
		return batch
	}
	out := append([]Event(nil), batch...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, out); err != nil {
			metrics.ObserveSinkError("progress")
			h.logger.Warn("progress sink consume failed", zap.Int("events", len(out)), zap.Error(err))
		}
		cancel()
	}
	return batch[:0]
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}

// batchTimer bounds how long a partial batch waits. It is armed by the first
// event of a batch and left running for the ones that follow.
type batchTimer struct {
	wait   time.Duration
	timer  *time.Timer
	active bool
}

func newBatchTimer(wait time.Duration) *batchTimer {
	t := time.NewTimer(wait)
	t.Stop()
	return &batchTimer{wait: wait, timer: t}
}

func (b *batchTimer) C() <-chan time.Time {
	return b.timer.C
}

func (b *batchTimer) arm() {
	if b.active {
		return
	}
	b.timer.Reset(b.wait)
	b.active = true
}

func (b *batchTimer) fired() {
	b.active = false
}

func (b *batchTimer) disarm() {
	if !b.active {
		return
	}
	if !b.timer.Stop() {
		select {
		case <-b.timer.C:
		default:
		}
	}
	b.active = false
}
