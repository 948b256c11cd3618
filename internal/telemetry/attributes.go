// SPDX-License-Identifier: MIT

// Package telemetry provides OpenTelemetry tracing utilities.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the pipeline.
const (
	// HTTP attributes, for the inbound chat-dispatch surface
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"
	HTTPUserAgentKey  = "http.user_agent"

	// Run attributes
	RunIDKey   = "run.id"
	ChatIDKey  = "chat.id"
	ShopIDKey  = "shop.id"

	// Stage attributes
	StageNameKey   = "stage.name"
	StagePolicyKey = "stage.policy"
	StageOutcomeKey = "stage.outcome"
	PlatformKey    = "platform"

	// Pricing gate attributes
	PricingSourceKey = "pricing.source"
	PricingVerdictKey = "pricing.verdict"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// RunAttributes creates the attributes attached to the root span of a run.
func RunAttributes(runID, chatID, shopID string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if runID != "" {
		attrs = append(attrs, attribute.String(RunIDKey, runID))
	}
	if chatID != "" {
		attrs = append(attrs, attribute.String(ChatIDKey, chatID))
	}
	if shopID != "" {
		attrs = append(attrs, attribute.String(ShopIDKey, shopID))
	}
	return attrs
}

// StageAttributes creates the attributes attached to a per-stage span.
func StageAttributes(name, policy, platform string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(StageNameKey, name),
		attribute.String(StagePolicyKey, policy),
	}
	if platform != "" {
		attrs = append(attrs, attribute.String(PlatformKey, platform))
	}
	return attrs
}

// PricingAttributes creates the attributes recorded on the pricing-gate span.
func PricingAttributes(source, verdict string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PricingSourceKey, source),
		attribute.String(PricingVerdictKey, verdict),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
