package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the correspondence lifecycle.
type Metrics struct {
	Registered       prometheus.Counter
	PickedUp         prometheus.Counter
	PickupRejected   *prometheus.CounterVec
	SearchDuration   prometheus.Histogram
	PickupDuration   prometheus.Histogram
	RegisterDuration prometheus.Histogram
}

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

func New() *Metrics {
	return &Metrics{
		Registered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "frontdesk_correspondences_registered_total",
			Help: "Total number of correspondences registered",
		}),
		PickedUp: promauto.NewCounter(prometheus.CounterOpts{
			Name: "frontdesk_correspondences_picked_up_total",
			Help: "Total number of confirmed pickups",
		}),
		PickupRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_pickups_rejected_total",
			Help: "Pickup attempts rejected, by reason",
		}, []string{"reason"}),
		SearchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "frontdesk_correspondence_search_duration_seconds",
			Help:    "Duration of correspondence searches",
			Buckets: durationBuckets,
		}),
		PickupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "frontdesk_correspondence_pickup_duration_seconds",
			Help:    "Duration of the atomic pickup transition",
			Buckets: durationBuckets,
		}),
		RegisterDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "frontdesk_correspondence_register_duration_seconds",
			Help:    "Duration of registration up to the returned id",
			Buckets: durationBuckets,
		}),
	}
}

func (m *Metrics) IncrementRegistered() {
	m.Registered.Inc()
}

func (m *Metrics) IncrementPickedUp() {
	m.PickedUp.Inc()
}

// IncrementPickupRejected records a refused pickup. reason is validation,
// conflict or forbidden.
func (m *Metrics) IncrementPickupRejected(reason string) {
	m.PickupRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveSearch(start time.Time) {
	m.SearchDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObservePickup(start time.Time) {
	m.PickupDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveRegister(start time.Time) {
	m.RegisterDuration.Observe(time.Since(start).Seconds())
}
