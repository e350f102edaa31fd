package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/webshot/internal/screenshot"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart Stage = "RUN_START"
	StageTaskDone Stage = "TASK_DONE"
	StageRunDone  Stage = "RUN_DONE"
)

// Event captures one step of a capture run.
type Event struct {
	// RunID identifies the batch.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which milestone occurred.
	Stage Stage
	// Target is the raw target text for TASK_DONE events.
	Target string
	// URL is the normalized target URL for TASK_DONE events.
	URL string
	// Success reports the outcome of the task for TASK_DONE events.
	Success bool
	// Artifact is the stored screenshot location on success.
	Artifact string
	// Bytes is the encoded screenshot size on success.
	Bytes int64
	// Succeeded, Failed and Completed are running counts after this event.
	Succeeded int
	Failed    int
	Completed int
	// Total is the batch size.
	Total int
	// Dur is the capture latency (TASK_DONE) or the run wall time (RUN_DONE).
	Dur time.Duration
	// Note carries the failure text for failed tasks.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageTaskDone:
		if e.Target == "" {
			return errors.New("task done requires target")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Total < 0 {
		return errors.New("total must be >= 0")
	}
	if e.Succeeded+e.Failed > e.Total {
		return fmt.Errorf("counts %d+%d exceed total %d", e.Succeeded, e.Failed, e.Total)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunStartEvent builds the event announcing a batch of total targets.
func RunStartEvent(runID string, ts time.Time, total int) Event {
	return Event{RunID: runID, TS: ts, Stage: StageRunStart, Total: total}
}

// TaskDoneEvent converts an executor progress snapshot into an event.
func TaskDoneEvent(runID string, ts time.Time, p screenshot.Progress) Event {
	last := p.Last
	return Event{
		RunID:     runID,
		TS:        ts,
		Stage:     StageTaskDone,
		Target:    last.Target.Original,
		URL:       last.Target.URL,
		Success:   last.Success(),
		Artifact:  last.ArtifactPath,
		Bytes:     int64(last.Bytes),
		Succeeded: p.Succeeded,
		Failed:    p.Failed,
		Completed: p.Completed,
		Total:     p.Total,
		Dur:       last.Duration,
		Note:      last.ErrorText(),
	}
}

// RunDoneEvent converts the final run summary into an event.
func RunDoneEvent(runID string, ts time.Time, s screenshot.Summary) Event {
	return Event{
		RunID:     runID,
		TS:        ts,
		Stage:     StageRunDone,
		Succeeded: s.Succeeded,
		Failed:    s.Failed,
		Completed: s.Succeeded + s.Failed,
		Total:     s.Total,
		Dur:       s.Elapsed,
	}
}
