package pubsub

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/webshot/internal/clock/system"
	"github.com/JakeFAU/webshot/internal/screenshot"
)

// Message kinds.
const (
	KindRunStarted  = "run_started"
	KindResult      = "result"
	KindRunFinished = "run_finished"
)

// ResultMessage is published once per target.
type ResultMessage struct {
	RunID          string    `json:"run_id"`
	Timestamp      time.Time `json:"timestamp"`
	Target         string    `json:"target"`
	URL            string    `json:"url"`
	TargetType     string    `json:"target_type"`
	Success        bool      `json:"success"`
	Error          string    `json:"error,omitempty"`
	ScreenshotPath string    `json:"screenshot_path,omitempty"`
	SHA256         string    `json:"sha256,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
}

// RunStartedMessage opens a run.
type RunStartedMessage struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Total     int       `json:"total"`
}

// RunFinishedMessage closes a run.
type RunFinishedMessage struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Total     int       `json:"total"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	ElapsedMS int64     `json:"elapsed_ms"`
}

// Sink publishes run and result messages.
type Sink struct {
	pub   Publisher
	clock screenshot.Clock
}

// NewSink wraps pub.
func NewSink(pub Publisher, clock screenshot.Clock) *Sink {
	if clock == nil {
		clock = system.New()
	}
	return &Sink{pub: pub, clock: clock}
}

// Begin publishes a run_started message.
func (s *Sink) Begin(ctx context.Context, runID string, total int) error {
	return s.publish(ctx, KindRunStarted, RunStartedMessage{
		RunID:     runID,
		Timestamp: s.clock.Now().UTC(),
		Total:     total,
	})
}

// Write publishes rec.
func (s *Sink) Write(ctx context.Context, rec screenshot.Record) error {
	return s.publish(ctx, KindResult, ResultMessage{
		RunID:          rec.RunID,
		Timestamp:      rec.Timestamp.UTC(),
		Target:         rec.Target,
		URL:            rec.URL,
		TargetType:     string(rec.TargetKind),
		Success:        rec.Success,
		Error:          rec.Error,
		ScreenshotPath: rec.ArtifactPath,
		SHA256:         rec.SHA256,
		DurationMS:     rec.Duration.Milliseconds(),
	})
}

// End publishes a run_finished message.
func (s *Sink) End(ctx context.Context, runID string, summary screenshot.Summary) error {
	return s.publish(ctx, KindRunFinished, RunFinishedMessage{
		RunID:     runID,
		Timestamp: s.clock.Now().UTC(),
		Total:     summary.Total,
		Succeeded: summary.Succeeded,
		Failed:    summary.Failed,
		ElapsedMS: summary.Elapsed.Milliseconds(),
	})
}

// Close closes the publisher.
func (s *Sink) Close() error {
	return s.pub.Close()
}

func (s *Sink) publish(ctx context.Context, kind string, payload any) error {
	if _, err := s.pub.Publish(ctx, kind, payload); err != nil {
		return fmt.Errorf("publish %s: %w", kind, err)
	}
	return nil
}
