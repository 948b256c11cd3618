// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "svcadvisor_circuit_breaker_state",
		Help: "Circuit breaker state by component (closed=1, half-open=1, open=1; others 0)",
	}, []string{"component", "state"})

	circuitBreakerStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "svcadvisor_circuit_breaker_status",
		Help: "Circuit breaker numeric state (0=closed, 1=open, 2=half-open)",
	}, []string{"component"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "svcadvisor_circuit_breaker_trips_total",
		Help: "Total number of circuit breaker trips (transitions to open state)",
	}, []string{"component", "reason"})
)

var circuitStates = []string{"closed", "half-open", "open"}

// SetCircuitBreakerState records the active circuit breaker state for a component.
func SetCircuitBreakerState(component, state string) {
	for _, s := range circuitStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		circuitBreakerState.WithLabelValues(component, s).Set(value)
	}
}

// SetCircuitBreakerStatus records the numeric circuit breaker state for a component.
func SetCircuitBreakerStatus(component string, status int) {
	circuitBreakerStatus.WithLabelValues(component).Set(float64(status))
}

// RecordCircuitBreakerTrip increments the trip counter when circuit breaker opens.
func RecordCircuitBreakerTrip(component, reason string) {
	circuitBreakerTrips.WithLabelValues(component, reason).Inc()
}

// Per-platform breaker registry metrics. Platform here means a vendor
// portal (MOTOR, ALLDATA, ARI, ProDemand, ...), whose sliding-window
// breaker is tracked separately from the consecutive-failure breaker
// above, which guards operations such as a re-login.
var (
	platformCircuitOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "svcadvisor_platform_circuit_open",
		Help: "Whether the per-platform circuit breaker is currently open (1) or not (0)",
	}, []string{"platform"})

	platformCircuitHalfOpen = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "svcadvisor_platform_circuit_half_open_total",
		Help: "Total number of times a per-platform circuit breaker entered half-open",
	}, []string{"platform"})

	platformCircuitTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "svcadvisor_platform_circuit_trips_total",
		Help: "Total number of per-platform circuit breaker trips by reason",
	}, []string{"platform", "reason"})
)

// IncPlatformCircuitHalfOpen records a platform breaker entering half-open.
func IncPlatformCircuitHalfOpen(platform string) {
	platformCircuitHalfOpen.WithLabelValues(platform).Inc()
}

// IncPlatformCircuitOpen marks a platform breaker as open.
func IncPlatformCircuitOpen(platform string) {
	platformCircuitOpen.WithLabelValues(platform).Set(1)
}

// SetPlatformCircuitClosed marks a platform breaker as closed.
func SetPlatformCircuitClosed(platform string) {
	platformCircuitOpen.WithLabelValues(platform).Set(0)
}

// IncPlatformCircuitTrips records a trip reason for a platform breaker.
func IncPlatformCircuitTrips(platform, reason string) {
	platformCircuitTrips.WithLabelValues(platform, reason).Inc()
}
