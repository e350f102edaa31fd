package api

import (
	"net/http"
	"time"

	"github.com/JakeFAU/webshot/internal/screenshot"
)

// ProgressSource reports the state of the current run.
type ProgressSource interface {
	Progress() screenshot.Progress
}

// ProgressHandler exposes read-only run progress endpoints.
type ProgressHandler struct {
	source ProgressSource
	runID  string
}

// NewProgressHandler serves snapshots from source.
func NewProgressHandler(source ProgressSource, runID string) *ProgressHandler {
	return &ProgressHandler{source: source, runID: runID}
}

// ProgressDTO is the /progress payload.
type ProgressDTO struct {
	RunID     string `json:"run_id"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Done      bool   `json:"done"`
}

// LastResultDTO is the /progress/last payload.
type LastResultDTO struct {
	RunID        string    `json:"run_id"`
	Target       string    `json:"target"`
	URL          string    `json:"url"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	DurationMS   int64     `json:"duration_ms"`
}

// Snapshot handles GET /progress. It returns 503 when no source is wired.
func (h *ProgressHandler) Snapshot(w http.ResponseWriter, _ *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "no run in progress")
		return
	}
	p := h.source.Progress()
	writeJSON(w, http.StatusOK, ProgressDTO{
		RunID:     h.runID,
		Succeeded: p.Succeeded,
		Failed:    p.Failed,
		Completed: p.Completed,
		Total:     p.Total,
		Done:      p.Completed == p.Total,
	})
}

// Last handles GET /progress/last. It returns 404 until a target completes.
func (h *ProgressHandler) Last(w http.ResponseWriter, _ *http.Request) {
	if h.source == nil {
		writeError(w, http.StatusServiceUnavailable, "no run in progress")
		return
	}
	p := h.source.Progress()
	if p.Completed == 0 {
		writeError(w, http.StatusNotFound, "no target has completed yet")
		return
	}
	last := p.Last
	writeJSON(w, http.StatusOK, LastResultDTO{
		RunID:        h.runID,
		Target:       last.Target.Original,
		URL:          last.Target.URL,
		Success:      last.Success(),
		Error:        last.ErrorText(),
		ArtifactPath: last.ArtifactPath,
		StartedAt:    last.Started,
		DurationMS:   last.Duration.Milliseconds(),
	})
}
