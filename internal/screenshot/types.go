// Package screenshot defines the types and collaborator interfaces shared by
// the capture executor, the capture backends, and the result sinks.
package screenshot

import (
	"errors"
	"time"

	"github.com/JakeFAU/webshot/internal/target"
)

// ErrCapture marks failures reported by a Capturer for a specific target.
var ErrCapture = errors.New("capture failed")

// Artifact describes a stored screenshot.
type Artifact struct {
	// Path is the location the artifact was written to (file:// URI, gs:// URI, ...).
	Path string
	// Bytes is the encoded image size.
	Bytes int
	// SHA256 is the hex digest of the encoded image.
	SHA256 string
}

// TaskResult is the outcome of one target's capture attempt. Err is nil on
// success, in which case ArtifactPath is set.
type TaskResult struct {
	Target       target.Target
	ArtifactPath string
	Bytes        int
	SHA256       string
	Err          error
	Started      time.Time
	Duration     time.Duration
}

// Success reports whether the capture produced an artifact.
func (r TaskResult) Success() bool {
	return r.Err == nil
}

// ErrorText returns the failure description, or "" on success.
func (r TaskResult) ErrorText() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Progress is the view handed to a Reporter after each completion.
type Progress struct {
	Succeeded int
	Failed    int
	Completed int
	Total     int
	Last      TaskResult
}

// Summary is the final aggregate of a run.
type Summary struct {
	Succeeded int
	Failed    int
	Total     int
	Elapsed   time.Duration
}

// Record is one persisted result row.
type Record struct {
	RunID        string
	Timestamp    time.Time
	Target       string
	URL          string
	TargetKind   target.Kind
	Success      bool
	Error        string
	ArtifactPath string
	SHA256       string
	Duration     time.Duration
}

// NewRecord converts a TaskResult into a Record stamped at now.
func NewRecord(runID string, now time.Time, res TaskResult) Record {
	return Record{
		RunID:        runID,
		Timestamp:    now,
		Target:       res.Target.Original,
		URL:          res.Target.URL,
		TargetKind:   res.Target.Kind(),
		Success:      res.Success(),
		Error:        res.ErrorText(),
		ArtifactPath: res.ArtifactPath,
		SHA256:       res.SHA256,
		Duration:     res.Duration,
	}
}
