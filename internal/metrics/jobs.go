package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	jobsEnqueued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "analysis_jobs_enqueued_total",
		Help: "Analysis jobs accepted by the queue.",
	})

	jobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "analysis_jobs_finished_total",
		Help: "Analysis jobs that reached a terminal state.",
	}, []string{"state"})

	jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "analysis_job_duration_seconds",
		Help:    "Wall time from dequeue to terminal state.",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"state"})

	jobsQueued = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "analysis_jobs_queued",
		Help: "Jobs waiting for a worker.",
	})

	jobsRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "analysis_jobs_running",
		Help: "Jobs currently held by a worker.",
	})
)

func init() {
	prometheus.MustRegister(jobsEnqueued, jobsFinished, jobDuration, jobsQueued, jobsRunning)
}

// Jobs reports queue lifecycle transitions to Prometheus.
type Jobs struct{}

func (Jobs) Enqueued() {
	jobsEnqueued.Inc()
	jobsQueued.Inc()
}

func (Jobs) Started() {
	jobsQueued.Dec()
	jobsRunning.Inc()
}

func (Jobs) Finished(state string, d time.Duration) {
	jobsRunning.Dec()
	jobsFinished.WithLabelValues(state).Inc()
	jobDuration.WithLabelValues(state).Observe(d.Seconds())
}
