package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/area-listing-scraper/internal/progress"
)

// PrometheusSink exports job progress via Prometheus. It owns the collectors
// for jobs started/running/completed, job runtime, and per-item counters.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec

	pagesScanned     prometheus.Counter
	recordsProcessed prometheus.Counter
	reportRows       *prometheus.CounterVec

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_jobs_started_total",
			Help: "Total jobs that were assigned a token.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_jobs_completed_total",
			Help: "Total jobs finished, partitioned by terminal event.",
		}, []string{"outcome"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scraper_jobs_running",
			Help: "Current number of running jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scraper_job_runtime_seconds",
			Help:    "Wall time per finished job.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"outcome"}),
		pagesScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_listing_pages_scanned_total",
			Help: "Listing pages whose URL extraction completed.",
		}),
		recordsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_records_processed_total",
			Help: "Record detail extractions that completed.",
		}),
		reportRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_report_rows_total",
			Help: "Rows written to reports, partitioned by sheet.",
		}, []string{"sheet"}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.pagesScanned,
		s.recordsProcessed,
		s.reportRows,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register job event collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Type {
	case progress.TypeJobID:
		s.jobsStarted.Inc()
		if s.tracker.start(evt.JobToken, evt.TS) {
			s.jobsRunning.Inc()
		}
	case progress.TypeURLProgress:
		s.pagesScanned.Inc()
	case progress.TypeProgress:
		s.recordsProcessed.Inc()
	case progress.TypeResult, progress.TypeError, progress.TypeCancelled, progress.TypeAborted:
		s.handleTerminal(evt)
	}
}

func (s *PrometheusSink) handleTerminal(evt progress.Event) {
	outcome := string(evt.Type)
	s.jobsCompleted.WithLabelValues(outcome).Inc()
	if res, ok := evt.Payload.(progress.Result); ok {
		s.reportRows.WithLabelValues("target").Add(float64(res.TargetCount))
		s.reportRows.WithLabelValues("excluded").Add(float64(res.ExcludedCount))
	}
	// Jobs that fail before a token exists were never counted as running.
	started, ok := s.tracker.complete(evt.JobToken)
	if !ok {
		return
	}
	s.jobsRunning.Dec()
	if !started.IsZero() && evt.TS.After(started) {
		s.jobRuntime.WithLabelValues(outcome).Observe(evt.TS.Sub(started).Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[string]time.Time
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[string]time.Time)}
}

func (t *jobTracker) start(token string, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[token]; ok {
		return false
	}
	t.running[token] = at
	return true
}

func (t *jobTracker) complete(token string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	at, ok := t.running[token]
	if !ok {
		return time.Time{}, false
	}
	delete(t.running, token)
	return at, true
}
