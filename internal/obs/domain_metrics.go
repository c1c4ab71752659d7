package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuotesTotal counts priced breakdowns served, by origin (session or stateless).
	QuotesTotal *prometheus.CounterVec
	// CapacityRejections counts quantity or group-size changes refused for lack of seats.
	CapacityRejections *prometheus.CounterVec
	// PromoApply counts promo code attempts by outcome.
	PromoApply *prometheus.CounterVec
	// StaleResponses counts backend responses dropped because the selection moved on.
	StaleResponses *prometheus.CounterVec
	// Bookings counts checkout confirmations by outcome.
	Bookings *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers booking Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_total",
			Help:      "Count of computed price breakdowns.",
		}, []string{"source"})
		CapacityRejections = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capacity_rejections_total",
			Help:      "Count of seat changes rejected for exceeding availability.",
		}, []string{"mode"})
		PromoApply = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_apply_total",
			Help:      "Count of promo code applications by result.",
		}, []string{"result"})
		StaleResponses = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_responses_total",
			Help:      "Count of backend responses discarded after the selection changed.",
		}, []string{"kind"})
		Bookings = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Count of booking confirmations by result.",
		}, []string{"result"})

		for _, c := range []**prometheus.CounterVec{&QuotesTotal, &CapacityRejections, &PromoApply, &StaleResponses, &Bookings} {
			*c = register(reg, *c)
		}
	})
}

// Inc increments vec for labels, tolerating metrics that were never registered.
func Inc(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}
