// Package metrics exposes Prometheus collectors reporting delivery activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the server's collectors. A nil *Metrics is a valid no-op
// recorder, so wiring stays optional.
type Metrics struct {
	sessionsCreated prometheus.Counter
	itemsReserved   *prometheus.CounterVec
	exhaustions     *prometheus.CounterVec
	reserveDuration *prometheus.HistogramVec
	datasetRequests *prometheus.CounterVec
}

// MustNew constructs the collectors and registers them with reg. A nil reg
// falls back to the default registerer. Collectors already registered (for
// example across tests sharing a registry) are reused; any other
// registration error panics, mirroring promauto semantics.
func MustNew(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Metrics{
		sessionsCreated: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fauxto",
			Subsystem: "delivery",
			Name:      "sessions_created_total",
			Help:      "Total number of sessions minted.",
		})),
		itemsReserved: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fauxto",
			Subsystem: "delivery",
			Name:      "items_reserved_total",
			Help:      "Total content items reserved, by category.",
		}, []string{"category"})),
		exhaustions: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fauxto",
			Subsystem: "delivery",
			Name:      "reservation_exhaustions_total",
			Help:      "Reservations that found fewer unseen items than requested.",
		}, []string{"category"})),
		reserveDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "fauxto",
			Subsystem: "delivery",
			Name:      "reserve_duration_seconds",
			Help:      "Time spent reserving a batch, retries included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"category", "status"})),
		datasetRequests: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fauxto",
			Subsystem: "dataset",
			Name:      "requests_total",
			Help:      "Dataset resolutions, by result.",
		}, []string{"result"})),
	}
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) C {
	if err := reg.Register(collector); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return already.ExistingCollector.(C)
		}
		panic(err)
	}
	return collector
}

// IncSessionsCreated records a minted session.
func (m *Metrics) IncSessionsCreated() {
	if m == nil || m.sessionsCreated == nil {
		return
	}
	m.sessionsCreated.Inc()
}

// AddItemsReserved records delivered items for a category.
func (m *Metrics) AddItemsReserved(category string, n int) {
	if m == nil || m.itemsReserved == nil {
		return
	}
	m.itemsReserved.WithLabelValues(category).Add(float64(n))
}

// IncExhaustion records a reservation that came back short.
func (m *Metrics) IncExhaustion(category string) {
	if m == nil || m.exhaustions == nil {
		return
	}
	m.exhaustions.WithLabelValues(category).Inc()
}

// ObserveReserveDuration records how long one reservation took.
func (m *Metrics) ObserveReserveDuration(category, status string, duration time.Duration) {
	if m == nil || m.reserveDuration == nil {
		return
	}
	m.reserveDuration.WithLabelValues(category, status).Observe(duration.Seconds())
}

// IncDatasetRequest records one dataset resolution by result.
func (m *Metrics) IncDatasetRequest(result string) {
	if m == nil || m.datasetRequests == nil {
		return
	}
	m.datasetRequests.WithLabelValues(result).Inc()
}
