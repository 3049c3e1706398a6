package artifacts

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Uploads     *prometheus.CounterVec
	JobDuration *prometheus.HistogramVec
	InFlight    prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Uploads: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_artifact_uploads_total",
			Help: "Artifact uploads by slot and outcome",
		}, []string{"slot", "outcome"}),
		JobDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "frontdesk_artifact_job_duration_seconds",
			Help:    "Duration of background artifact jobs",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"complete"}),
		InFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "frontdesk_artifact_jobs_in_flight",
			Help: "Background artifact jobs currently running",
		}),
	}
}

func (m *Metrics) IncrementUpload(slot Slot, outcome string) {
	m.Uploads.WithLabelValues(string(slot), outcome).Inc()
}

func (m *Metrics) ObserveJob(start time.Time, complete bool) {
	label := "false"
	if complete {
		label = "true"
	}
	m.JobDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
}
