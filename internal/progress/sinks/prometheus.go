package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/literature-crawler/internal/progress"
)

// PrometheusSink exports crawl progress via Prometheus. It owns the collectors
// for runs started/completed/running, per-stage transitions and per-source
// adapter outcomes.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec
	stages        *prometheus.CounterVec

	sourceCalls   *prometheus.CounterVec
	sourceRecords *prometheus.CounterVec
	sourceLatency *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "litcrawler_runs_started_total",
			Help: "Total crawl runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "litcrawler_runs_completed_total",
			Help: "Total crawl runs finished partitioned by result.",
		}, []string{"result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "litcrawler_runs_running",
			Help: "Current number of in-flight crawl runs.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "litcrawler_run_runtime_seconds",
			Help:    "Wall time per finished crawl run.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}, []string{"result"}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "litcrawler_run_stage_transitions_total",
			Help: "Crawl stage transitions observed by the progress hub.",
		}, []string{"stage"}),
		sourceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "litcrawler_run_source_calls_total",
			Help: "Adapter calls per run partitioned by source and result.",
		}, []string{"source", "result"}),
		sourceRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "litcrawler_run_source_records_total",
			Help: "Records reported by adapters per source.",
		}, []string{"source"}),
		sourceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "litcrawler_run_source_duration_seconds",
			Help:    "Adapter call latency as reported on source completion.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"source"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.stages,
		s.sourceCalls,
		s.sourceRecords,
		s.sourceLatency,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.stages.WithLabelValues(string(evt.Stage)).Inc()
		switch evt.Stage {
		case progress.StageCreated:
			s.runsStarted.Inc()
			if s.tracker.start(evt.RunID) {
				s.runsRunning.Inc()
			}
		case progress.StageCompleted:
			s.finish(evt, "success")
		case progress.StageFailed:
			s.finish(evt, "error")
		case progress.StageSourceDone:
			s.handleSourceEvent(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) finish(evt progress.Event, label string) {
	s.runsCompleted.WithLabelValues(label).Inc()
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) handleSourceEvent(evt progress.Event) {
	result := "ok"
	if evt.Failed {
		result = "error"
	}
	s.sourceCalls.WithLabelValues(evt.Source, result).Inc()
	if evt.Found > 0 {
		s.sourceRecords.WithLabelValues(evt.Source).Add(float64(evt.Found))
	}
	if evt.Dur > 0 {
		s.sourceLatency.WithLabelValues(evt.Source).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
