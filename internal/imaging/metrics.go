package imaging

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks how often photos degrade to "no photo".
type Metrics struct {
	Degraded      *prometheus.CounterVec
	FetchDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		Degraded: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_image_degraded_total",
			Help: "Images that fell back to original bytes or no image, by reason and purpose",
		}, []string{"reason", "purpose"}),
		FetchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "frontdesk_image_fetch_duration_seconds",
			Help:    "Duration of bounded remote image fetch and normalization",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
		}),
	}
}

func (m *Metrics) incrementDegraded(reason string, p Purpose) {
	if m != nil {
		m.Degraded.WithLabelValues(reason, p.String()).Inc()
	}
}

func (m *Metrics) observeFetch(d time.Duration) {
	if m != nil {
		m.FetchDuration.Observe(d.Seconds())
	}
}
