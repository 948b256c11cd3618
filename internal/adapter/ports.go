// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package adapter defines the four source-adapter ports that
// the orchestrator depends on without ever knowing whether a concrete
// implementation is an HTTP/JSON client or a shared-browser driver.
package adapter

import (
	"context"

	"github.com/svcadvisor/estimate-pipeline/internal/domain"
)

// Research fans out a vehicle/DTC/query search against one knowledge
// source (a vendor portal, a knowledge base, ...). Partial success is
// normal: a ResearchFragment's fields may be null/empty without that being
// an error.
type Research interface {
	// Name identifies the adapter for logging, metrics, and precedence
	// comparisons (it is usually also the ResearchFragment's source tag).
	Name() string
	Search(ctx context.Context, vehicle domain.Vehicle, query string, dtcs []string) (domain.ResearchFragment, error)
}

// PartsPriceResult is what a PartsPrice adapter returns for a full parts
// list: a best-value bundle plus the raw per-request results used to
// build it.
type PartsPriceResult struct {
	Bundle      domain.PartsBundle
	Individual  []PartsPriceOutcome
}

// PartsPriceOutcome pairs one PartRequest's index with its outcome: either
// a quote, or a reason code explaining why none was produced.
type PartsPriceOutcome struct {
	PartIndex  int
	Quote      *domain.PartQuote
	ReasonCode string
}

// PartsPrice prices an entire parts list against one vendor/supplier
// source. Never returns a zero or negative unit_price.
type PartsPrice interface {
	Name() string
	Price(ctx context.Context, vehicle domain.Vehicle, parts []domain.PartRequest) (PartsPriceResult, error)
}

// LaborLookup resolves a canned labor time for one procedure.
type LaborLookup interface {
	Name() string
	Hours(ctx context.Context, vehicle domain.Vehicle, procedureName string) (domain.LaborResult, error)
}

// EstimateSinkResult is what EstimateSink.Create returns.
type EstimateSinkResult struct {
	EstimateID   string
	EstimateCode string
	Total        float64
	SourceTag    string
}

// EstimateSink creates a durable estimate record in a vendor platform
// (e.g. the shop-management system). Create is idempotent on
// (chat_id, run_id): calling it twice for the same pair must not create
// two estimates.
type EstimateSink interface {
	Name() string
	Create(ctx context.Context, chatID, runID string, customer domain.CustomerHints, vehicle domain.Vehicle, bundle domain.PartsBundle, labor domain.LaborResult, diagnosis domain.RepairPlan) (EstimateSinkResult, error)
}

// CartHold represents the "pre-stage cart" operation:
// holding non-conditional selected parts in a vendor's cart ahead of
// approval. Idempotent on run_id.
type CartHold interface {
	Name() string
	Hold(ctx context.Context, runID string, bundle domain.PartsBundle) error
}
