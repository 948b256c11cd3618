// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "svcadvisor_stage_duration_seconds",
		Help:    "Duration of a single pipeline stage execution",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage", "outcome"})

	stageRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "svcadvisor_stage_runs_total",
		Help: "Total stage executions by stage and outcome",
	}, []string{"stage", "outcome"})

	pricingGateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "svcadvisor_pricing_gate_decisions_total",
		Help: "Pricing gate decisions by verdict and reason",
	}, []string{"verdict", "reason"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "svcadvisor_runs_total",
		Help: "Total orchestrator runs by terminal outcome",
	}, []string{"outcome"})
)

// ObserveStage records the duration and outcome of a completed stage.
func ObserveStage(stage, outcome string, seconds float64) {
	stageDuration.WithLabelValues(stage, outcome).Observe(seconds)
	stageRuns.WithLabelValues(stage, outcome).Inc()
}

// RecordPricingGateDecision records a pricing gate PASS/BLOCKED verdict.
func RecordPricingGateDecision(verdict, reason string) {
	pricingGateDecisions.WithLabelValues(verdict, reason).Inc()
}

// RecordRun records the terminal outcome of an orchestrator run.
func RecordRun(outcome string) {
	runsTotal.WithLabelValues(outcome).Inc()
}
