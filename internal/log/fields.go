// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRunID           = "run_id"
	FieldChatID          = "chat_id"
	FieldShopID          = "shop_id"
	FieldCorrelationID   = "correlation_id"
	FieldRequestID       = "request_id"
	FieldClientRequestID = "client_request_id"

	// Pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"
	FieldPlatform  = "platform"
	FieldTabID     = "tab_id"

	// Diagnosis / pricing fields
	FieldDiagnosticPath = "diagnostic_path"
	FieldPricingSource  = "pricing_source"
	FieldPricingGate    = "pricing_gate"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
)
