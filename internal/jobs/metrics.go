// Package jobmetrics instruments the background mail worker.
package jobmetrics

import (
	"errors"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Run results.
const (
	ResultOK      = "ok"
	ResultRetry   = "retry"
	ResultDropped = "dropped"
)

// Metrics holds the job collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs     *prometheus.CounterVec
	inflight *prometheus.GaugeVec
	duration *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer. A nil registerer means
// the process-wide default registry, registered once.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storeadmin_jobs_total",
			Help: "Finished job runs by job and result (ok, retry, dropped).",
		}, []string{"job", "result"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "storeadmin_jobs_inflight",
			Help: "Job runs currently executing.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "storeadmin_job_duration_seconds",
			Help:    "Job run time.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"job"}),
	}
	registerer.MustRegister(m.runs, m.inflight, m.duration)
	return m
}

// Tracker measures one run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track marks job as started.
func (m *Metrics) Track(job string) *Tracker {
	if m != nil {
		m.inflight.WithLabelValues(job).Inc()
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run and passes err through. Errors wrapping asynq.SkipRetry
// count as dropped, any other error as retry.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil {
		return err
	}
	t.metrics.inflight.WithLabelValues(t.job).Dec()
	t.metrics.runs.WithLabelValues(t.job, result(err)).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

func result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, asynq.SkipRetry):
		return ResultDropped
	default:
		return ResultRetry
	}
}
