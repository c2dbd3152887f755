package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StageDuration covers every remote generation call, labelled by pipeline stage.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gigi_stage_duration_seconds",
			Help:    "Duration of generation stages in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		},
		[]string{"stage"},
	)

	StageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigi_stage_failures_total",
			Help: "Total number of failed generation stages, partitioned by stage.",
		},
		[]string{"stage"},
	)

	ScenesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gigi_scenes_completed_total",
		Help: "Total number of scenes that reached a final video.",
	})

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gigi_jobs_processed_total",
			Help: "Total number of queued jobs processed by type and status.",
		},
		[]string{"type", "status"},
	)

	EventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gigi_event_subscribers",
		Help: "Number of connected session event feeds.",
	})
)

// ObserveStage records the duration of one stage and counts it as failed when err is non-nil.
func ObserveStage(stage string, start time.Time, err error) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		StageFailures.WithLabelValues(stage).Inc()
	}
}

// ObserveJob counts a processed job.
func ObserveJob(jobType string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	JobsProcessed.WithLabelValues(jobType, status).Inc()
}
