package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(jobsTotal, jobDuration, jobProgress, pollTicks) }

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_jobs_total",
			Help: "Render jobs finished by terminal status.",
		},
		[]string{"status", "mode"},
	)

	jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "render_job_duration_seconds",
			Help:    "Wall time from claim to terminal status.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"status"},
	)

	jobProgress = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "render_job_checkpoints_total",
			Help: "Progress checkpoints reached by render jobs.",
		},
		[]string{"checkpoint"},
	)

	pollTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_poll_ticks_total",
			Help: "Poll ticks by outcome (busy, idle, claimed, lost, error).",
		},
		[]string{"outcome"},
	)
)

func ObserveJob(status, mode string, took time.Duration) {
	jobsTotal.WithLabelValues(status, mode).Inc()
	jobDuration.WithLabelValues(status).Observe(took.Seconds())
}

func IncCheckpoint(checkpoint string) {
	jobProgress.WithLabelValues(checkpoint).Inc()
}

func IncPollTick(outcome string) {
	pollTicks.WithLabelValues(outcome).Inc()
}
