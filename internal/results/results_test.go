package results

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/webshot/internal/clock/fixed"
	"github.com/JakeFAU/webshot/internal/screenshot"
	"github.com/JakeFAU/webshot/internal/target"
)

type recordingSink struct {
	mu       sync.Mutex
	records  []screenshot.Record
	writeErr error
	closeErr error
	closed   bool
}

func (s *recordingSink) Write(_ context.Context, rec screenshot.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

type sessionSink struct {
	recordingSink
	events []string
}

func (s *sessionSink) Begin(_ context.Context, runID string, _ int) error {
	s.events = append(s.events, "begin:"+runID)
	return nil
}

func (s *sessionSink) End(_ context.Context, runID string, _ screenshot.Summary) error {
	s.events = append(s.events, "end:"+runID)
	return errors.New("summary write failed")
}

func mustTarget(t *testing.T, text string) target.Target {
	t.Helper()
	tgt, err := target.New(0, text)
	require.NoError(t, err)
	return tgt
}

func TestDispatcherFansOut(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	d := NewDispatcher("run-1", fixed.New(now), nil, 0)
	a, b := &recordingSink{}, &recordingSink{}
	d.Add("a", a)
	d.Add("b", b)
	d.Add("nil", nil)
	assert.Equal(t, 2, d.Len())

	cb := d.Callback()
	tgt := mustTarget(t, "example.com")
	cb(context.Background(), tgt, screenshot.TaskResult{Target: tgt, ArtifactPath: "file:///x.png"})

	for _, s := range []*recordingSink{a, b} {
		require.Len(t, s.records, 1)
		assert.Equal(t, "run-1", s.records[0].RunID)
		assert.Equal(t, now, s.records[0].Timestamp)
		assert.Equal(t, "example.com", s.records[0].Target)
		assert.True(t, s.records[0].Success)
	}
	assert.Zero(t, d.Failures())

	require.NoError(t, d.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	_, open := <-d.Errors()
	assert.False(t, open)
}

func TestDispatcherReportsSinkErrors(t *testing.T) {
	t.Parallel()

	d := NewDispatcher("run-1", fixed.New(time.Unix(1, 0)), nil, 1)
	diskFull := errors.New("disk full")
	bad := &recordingSink{writeErr: diskFull}
	good := &recordingSink{}
	d.Add("csv", bad)
	d.Add("text", good)

	tgt := mustTarget(t, "a.com")
	d.Write(context.Background(), screenshot.TaskResult{Target: tgt, ArtifactPath: "p"})
	d.Write(context.Background(), screenshot.TaskResult{Target: tgt, Err: errors.New("timeout")})

	// One failing sink never stops the others.
	assert.Len(t, good.records, 2)
	assert.Equal(t, 2, d.Failures())

	// The buffer holds one error; the second is counted but dropped.
	select {
	case se := <-d.Errors():
		assert.Equal(t, "csv", se.Sink)
		assert.Equal(t, "a.com", se.Target)
		require.ErrorIs(t, se, diskFull)
		assert.Equal(t, "sink csv: target a.com: disk full", se.Error())
	default:
		t.Fatal("expected a sink error")
	}
	select {
	case se := <-d.Errors():
		t.Fatalf("unexpected second error %v", se)
	default:
	}
}

func TestDispatcherSessionHooks(t *testing.T) {
	t.Parallel()

	d := NewDispatcher("run-9", fixed.New(time.Unix(1, 0)), nil, 4)
	ss := &sessionSink{}
	plain := &recordingSink{}
	d.Add("text", ss)
	d.Add("csv", plain)

	d.Begin(context.Background(), 3)
	d.End(context.Background(), screenshot.Summary{Total: 3})

	assert.Equal(t, []string{"begin:run-9", "end:run-9"}, ss.events)
	assert.Equal(t, 1, d.Failures())
	se := <-d.Errors()
	assert.Equal(t, "text", se.Sink)
	assert.Empty(t, se.Target)
	assert.Equal(t, "sink text: summary write failed", se.Error())
}

func TestDispatcherCloseJoinsErrors(t *testing.T) {
	t.Parallel()

	d := NewDispatcher("run-1", fixed.New(time.Time{}), nil, 0)
	d.Add("a", &recordingSink{closeErr: errors.New("a broke")})
	d.Add("b", &recordingSink{closeErr: errors.New("b broke")})

	err := d.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close a: a broke")
	assert.Contains(t, err.Error(), "close b: b broke")

	// Second close is a no-op.
	require.NoError(t, d.Close())
}

func TestDispatcherIgnoresCallsAfterClose(t *testing.T) {
	t.Parallel()

	d := NewDispatcher("run-1", fixed.New(time.Unix(1, 0)), nil, 0)
	failing := &sessionSink{recordingSink: recordingSink{writeErr: errors.New("closed file")}}
	d.Add("text", failing)
	require.NoError(t, d.Close())

	tgt := mustTarget(t, "late.example")
	require.NotPanics(t, func() {
		d.Begin(context.Background(), 1)
		d.Write(context.Background(), screenshot.TaskResult{Target: tgt, ArtifactPath: "p"})
		d.End(context.Background(), screenshot.Summary{Total: 1})
		d.fail("text", "late.example", errors.New("closed file"))
	})
	assert.Empty(t, failing.events)
	assert.Empty(t, failing.records)
	_, open := <-d.Errors()
	assert.False(t, open)
}
