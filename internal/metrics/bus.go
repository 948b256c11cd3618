// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var busDropTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "svcadvisor_bus_drop_total",
	Help: "Total progress-bus messages dropped by reason",
}, []string{"topic", "reason"})

// IncBusDropReason records a dropped in-memory bus publish.
func IncBusDropReason(topic, reason string) {
	busDropTotal.WithLabelValues(topic, reason).Inc()
}
