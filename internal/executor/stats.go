package executor

import (
	"sync/atomic"

	"github.com/JakeFAU/webshot/internal/screenshot"
)

// Stats aggregates outcomes for one run. It is safe for concurrent readers
// while the run's consumer goroutine records results.
type Stats struct {
	total     int
	successes atomic.Int64
	failures  atomic.Int64
	last      atomic.Pointer[screenshot.TaskResult]
}

// NewStats returns an empty aggregate for a batch of total targets.
func NewStats(total int) *Stats {
	return &Stats{total: total}
}

// Record counts one completed task.
func (s *Stats) Record(res screenshot.TaskResult) {
	if res.Success() {
		s.successes.Add(1)
	} else {
		s.failures.Add(1)
	}
	s.last.Store(&res)
}

// Snapshot returns the current success and failure counts.
func (s *Stats) Snapshot() (successes, failures int) {
	return int(s.successes.Load()), int(s.failures.Load())
}

// Completed returns how many tasks have been recorded.
func (s *Stats) Completed() int {
	ok, failed := s.Snapshot()
	return ok + failed
}

// Total returns the batch size the stats were created for.
func (s *Stats) Total() int {
	return s.total
}

// Progress builds the reporter view of the current counts.
func (s *Stats) Progress() screenshot.Progress {
	ok, failed := s.Snapshot()
	p := screenshot.Progress{
		Succeeded: ok,
		Failed:    failed,
		Completed: ok + failed,
		Total:     s.total,
	}
	if last := s.last.Load(); last != nil {
		p.Last = *last
	}
	return p
}
