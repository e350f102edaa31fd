package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/webshot/internal/progress"
)

// PrometheusSink exports run-level progress via Prometheus: runs started and
// finished, the current batch position and the run wall time.
type PrometheusSink struct {
	runsStarted  prometheus.Counter
	runsFinished *prometheus.CounterVec
	runTotal     prometheus.Gauge
	runCompleted *prometheus.GaugeVec
	runDuration  prometheus.Histogram
	bytesTotal   prometheus.Counter
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webshot_runs_started_total",
			Help: "Total capture runs that have started.",
		}),
		runsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webshot_runs_finished_total",
			Help: "Total capture runs finished, partitioned by whether any task failed.",
		}, []string{"result"}),
		runTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webshot_run_targets",
			Help: "Number of targets in the current run.",
		}),
		runCompleted: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "webshot_run_completed_targets",
			Help: "Targets completed in the current run, partitioned by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "webshot_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}),
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webshot_screenshot_bytes_total",
			Help: "Encoded screenshot bytes written.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsFinished,
		s.runTotal,
		s.runCompleted,
		s.runDuration,
		s.bytesTotal,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.Inc()
		s.runTotal.Set(float64(evt.Total))
		s.runCompleted.WithLabelValues("success").Set(0)
		s.runCompleted.WithLabelValues("failure").Set(0)
	case progress.StageTaskDone:
		s.setCompleted(evt)
		if evt.Success && evt.Bytes > 0 {
			s.bytesTotal.Add(float64(evt.Bytes))
		}
	case progress.StageRunDone:
		s.setCompleted(evt)
		result := "success"
		if evt.Failed > 0 {
			result = "partial"
		}
		s.runsFinished.WithLabelValues(result).Inc()
		if evt.Dur > 0 {
			s.runDuration.Observe(evt.Dur.Seconds())
		}
	}
}

func (s *PrometheusSink) setCompleted(evt progress.Event) {
	s.runTotal.Set(float64(evt.Total))
	s.runCompleted.WithLabelValues("success").Set(float64(evt.Succeeded))
	s.runCompleted.WithLabelValues("failure").Set(float64(evt.Failed))
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
