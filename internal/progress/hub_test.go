package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/webshot/internal/clock/fixed"
	"github.com/JakeFAU/webshot/internal/screenshot"
	"github.com/JakeFAU/webshot/internal/target"
)

// TestHubBatchBySize verifies the hub flushes immediately once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	evt := sampleEvent(StageRunStart)
	hub.Emit(evt)
	hub.Emit(evt)
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1 && len(sink.Batches()[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies the timer-based flush kicks in when the batch is small.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Emit(sampleEvent(StageRunStart))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubEmitNonBlockingWithoutConsumers asserts Emit never blocks callers, even without sinks.
func TestHubEmitNonBlockingWithoutConsumers(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:    Config{},
		events: make(chan Event),
		logger: zap.NewNop(),
	}
	start := time.Now()
	hub.Emit(sampleEvent(StageRunStart))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

// TestHubFlushOnClose ensures Close drains any buffered events before returning.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Emit(sampleEvent(StageRunStart))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
	assert.True(t, sink.closed)
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{BufferSize: 4, MaxBatchEvents: 1}, sink)

	hub.Emit(Event{Stage: StageRunStart})
	hub.Emit(Event{TS: time.Now(), Stage: "BOGUS"})
	hub.Emit(Event{TS: time.Now(), Stage: StageTaskDone})

	require.NoError(t, hub.Close(context.Background()))
	assert.Empty(t, sink.Events())
}

// TestHubReporterLifecycle drives the hub through the reporter interface.
func TestHubReporterLifecycle(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	now := time.Unix(1700000000, 0).UTC()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
		RunID:          "run-42",
		Clock:          fixed.New(now),
	}, sink)

	tgt, err := target.New(0, "example.com")
	require.NoError(t, err)

	var reporter screenshot.Reporter = hub
	hub.RunStarted(2)
	reporter.TaskCompleted(screenshot.Progress{
		Succeeded: 1, Completed: 1, Total: 2,
		Last: screenshot.TaskResult{Target: tgt, ArtifactPath: "file:///a.png", Bytes: 10},
	})
	reporter.TaskCompleted(screenshot.Progress{
		Succeeded: 1, Failed: 1, Completed: 2, Total: 2,
		Last: screenshot.TaskResult{Target: tgt, Err: errors.New("timeout")},
	})
	reporter.RunFinished(screenshot.Summary{Succeeded: 1, Failed: 1, Total: 2, Elapsed: time.Second})
	require.NoError(t, hub.Close(context.Background()))

	events := sink.Events()
	require.Len(t, events, 4)
	assert.Equal(t, StageRunStart, events[0].Stage)
	assert.Equal(t, 2, events[0].Total)

	assert.Equal(t, StageTaskDone, events[1].Stage)
	assert.True(t, events[1].Success)
	assert.Equal(t, "file:///a.png", events[1].Artifact)
	assert.Equal(t, "https://example.com", events[1].URL)

	assert.False(t, events[2].Success)
	assert.Equal(t, "timeout", events[2].Note)

	assert.Equal(t, StageRunDone, events[3].Stage)
	assert.Equal(t, 1, events[3].Succeeded)
	assert.Equal(t, 1, events[3].Failed)
	for _, evt := range events {
		assert.Equal(t, "run-42", evt.RunID)
		assert.Equal(t, now, evt.TS)
	}
}

// TestHubRunFinishedWaitsForSpace verifies the summary survives a full buffer.
func TestHubRunFinishedWaitsForSpace(t *testing.T) {
	t.Parallel()

	sink := newBlockingSink()
	hub := NewHub(Config{
		BufferSize:     1,
		MaxBatchEvents: 1,
		MaxBatchWait:   time.Minute,
		FinalTimeout:   5 * time.Second,
	}, sink)

	// First event is held by the blocked sink, the second fills the buffer,
	// the third is dropped.
	hub.Emit(sampleEvent(StageRunStart))
	<-sink.entered
	hub.Emit(sampleEvent(StageRunStart))
	hub.Emit(sampleEvent(StageRunStart))

	done := make(chan struct{})
	go func() {
		hub.RunFinished(screenshot.Summary{Total: 0})
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("RunFinished returned while the buffer was full")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.release)
	<-done
	require.NoError(t, hub.Close(context.Background()))

	stages := []Stage{}
	for _, evt := range sink.Events() {
		stages = append(stages, evt.Stage)
	}
	assert.Equal(t, []Stage{StageRunStart, StageRunStart, StageRunDone}, stages)
}

func TestHubNilSafe(t *testing.T) {
	t.Parallel()

	var hub *Hub
	hub.Emit(sampleEvent(StageRunStart))
	hub.RunStarted(1)
	hub.TaskCompleted(screenshot.Progress{})
	hub.RunFinished(screenshot.Summary{})
	require.NoError(t, hub.Close(context.Background()))
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Event
	closed  bool
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Event{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyBatch := append([]Event(nil), batch...)
	s.batches = append(s.batches, copyBatch)
	return nil
}

func (s *stubSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) Batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Event, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Event(nil), b...)
	}
	return out
}

func (s *stubSink) Events() []Event {
	var out []Event
	for _, b := range s.Batches() {
		out = append(out, b...)
	}
	return out
}

type blockingSink struct {
	stubSink
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingSink() *blockingSink {
	return &blockingSink{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (s *blockingSink) Consume(ctx context.Context, batch []Event) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.stubSink.Consume(ctx, batch)
}

func sampleEvent(stage Stage) Event {
	evt := Event{
		RunID: "run-1",
		TS:    time.Now(),
		Stage: stage,
		Total: 1,
	}
	if stage == StageTaskDone {
		evt.Target = "example.com"
		evt.URL = "https://example.com"
		evt.Success = true
		evt.Succeeded = 1
		evt.Completed = 1
	}
	return evt
}
