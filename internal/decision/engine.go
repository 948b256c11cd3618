// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package decision implements the pricing gate: the single policy check
// that decides whether a computed estimate may be shown to an external
// customer, and which pricing source produced its totals.
package decision

import "math"

// PricingSource is the closed set of pricing-source tags an EstimateResult
// may carry.
type PricingSource string

const (
	SourceAutoleapNative PricingSource = "autoleap-native"
	SourceMatrixFallback PricingSource = "matrix-fallback"
	SourceFailedPricing  PricingSource = "FAILED_PRICING_SOURCE"
)

// Verdict is the pricing gate's outcome.
type Verdict string

const (
	VerdictPass    Verdict = "PASS"
	VerdictBlocked Verdict = "BLOCKED"
)

// WarningCodePricingGateBlocked is the sole warning code this gate ever
// appends.
const WarningCodePricingGateBlocked = "PRICING_GATE_BLOCKED"

// Warning mirrors the {code, message} pair carried on EstimateResult.
type Warning struct {
	Code    string
	Message string
}

// Input is everything the gate needs to decide. PartsCount is the number of
// PartRequests on the RepairPlan, independent of how many were priced.
type Input struct {
	PartsCount       int
	PartsRetailTotal float64
	PricingSource    PricingSource
	SinkSucceeded    bool
}

// Output is the gate's decision, applied verbatim onto EstimateResult.
type Output struct {
	Verdict       Verdict
	CustomerReady bool
	PricingSource PricingSource
	Warnings      []Warning
}

// Decide applies the pricing-gate rules exactly once, immediately before producing an
// EstimateResult. It never mutates its input and never returns wholesale
// cost as a customer-facing retail figure: rule 4 always replaces the
// source tag with FAILED_PRICING_SOURCE rather than passing through
// whatever the caller supplied.
func Decide(in Input) Output {
	if in.PartsCount == 0 {
		return Output{Verdict: VerdictPass, CustomerReady: true, PricingSource: in.PricingSource}
	}

	if in.PricingSource == SourceAutoleapNative && in.PartsRetailTotal > 0 {
		return Output{Verdict: VerdictPass, CustomerReady: true, PricingSource: in.PricingSource}
	}

	if in.PricingSource == SourceMatrixFallback && in.PartsRetailTotal > 0 {
		return Output{Verdict: VerdictPass, CustomerReady: true, PricingSource: in.PricingSource}
	}

	return Output{
		Verdict:       VerdictBlocked,
		CustomerReady: false,
		PricingSource: SourceFailedPricing,
		Warnings: []Warning{{
			Code:    WarningCodePricingGateBlocked,
			Message: "Parts pricing couldn't be resolved — review before sending",
		}},
	}
}

// ApplyShopMarkup applies a shop's markup rate multiplicatively to a
// wholesale cost and clamps the result to two decimal places. The rate is
// a configuration input, never hard-coded here.
func ApplyShopMarkup(wholesaleCost float64, markupRate float64) float64 {
	retail := wholesaleCost * (1 + markupRate)
	return math.Round(retail*100) / 100
}
