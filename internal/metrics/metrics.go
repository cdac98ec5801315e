// Package metrics exposes Prometheus collectors for the pipeline engine.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksTotal          *prometheus.CounterVec
	retriesTotal        *prometheus.CounterVec
	activeWorkers       *prometheus.GaugeVec
	stepDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		tasksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webharvest_tasks_total",
				Help: "Task attempts resolved, labeled by step and outcome.",
			},
			[]string{"step", "outcome"},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "webharvest_retries_total",
				Help: "Retries scheduled after retryable failures, labeled by step.",
			},
			[]string{"step"},
		)

		activeWorkers = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "webharvest_active_workers",
				Help: "Workers currently running for a step.",
			},
			[]string{"step"},
		)

		stepDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "webharvest_step_duration_seconds",
				Help:    "Wall time per completed step, labeled by final status.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 14400},
			},
			[]string{"step", "status"},
		)
	})
}

// ObserveTask records a resolved task attempt.
func ObserveTask(step, outcome string) {
	if tasksTotal == nil {
		return
	}
	tasksTotal.WithLabelValues(step, outcome).Inc()
}

// AddRetry records a scheduled retry.
func AddRetry(step string) {
	if retriesTotal == nil {
		return
	}
	retriesTotal.WithLabelValues(step).Inc()
}

// WorkerStarted increments the active worker gauge.
func WorkerStarted(step string) {
	if activeWorkers == nil {
		return
	}
	activeWorkers.WithLabelValues(step).Inc()
}

// WorkerStopped decrements the active worker gauge.
func WorkerStopped(step string) {
	if activeWorkers == nil {
		return
	}
	activeWorkers.WithLabelValues(step).Dec()
}

// ObserveStepDuration records the wall time of a finished step.
func ObserveStepDuration(step, status string, d time.Duration) {
	if stepDurationSeconds == nil {
		return
	}
	stepDurationSeconds.WithLabelValues(step, status).Observe(d.Seconds())
}
