package resilience

import "github.com/prometheus/client_golang/prometheus"

// Breaker series are labelled by upstream target, e.g. booking_api.
var (
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "storefront",
		Subsystem: "upstream",
		Name:      "breaker_state",
		Help:      "Breaker position per upstream (0 closed, 1 open, 2 half-open).",
	}, []string{"target"})

	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "upstream",
		Name:      "breaker_transitions_total",
		Help:      "Breaker state changes per upstream.",
	}, []string{"target", "from", "to"})

	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "upstream",
		Name:      "breaker_opened_total",
		Help:      "Times the breaker tripped open per upstream.",
	}, []string{"target"})

	BreakerRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "upstream",
		Name:      "breaker_rejected_total",
		Help:      "Calls refused without reaching the upstream.",
	}, []string{"target"})
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, BreakerRejected)
}
