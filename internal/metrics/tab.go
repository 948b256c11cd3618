// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tabLeasesHeld = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "svcadvisor_tab_leases_held",
		Help: "Current number of TabLease records held by the shared Tab Registry",
	})

	tabContentionTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "svcadvisor_tab_contention_total",
		Help: "Total times a browser-driven stage observed its platform's tab held by another run",
	}, []string{"platform"})

	tabStaleReleasedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "svcadvisor_tab_stale_released_total",
		Help: "Total TabLease records force-released for exceeding the staleness threshold",
	})
)

// SetTabLeasesHeld records the current count of held tab leases.
func SetTabLeasesHeld(n int) { tabLeasesHeld.Set(float64(n)) }

// IncTabContention records one observed TAB_CONTENDED wait.
func IncTabContention(platform string) { tabContentionTotal.WithLabelValues(platform).Inc() }

// IncTabStaleReleased records n force-released stale leases.
func IncTabStaleReleased(n int) { tabStaleReleasedTotal.Add(float64(n)) }
