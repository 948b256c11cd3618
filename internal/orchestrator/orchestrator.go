// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package orchestrator drives a Request through the thirteen pipeline
// stages — vehicle identification, classification, diagnosis seeding,
// history lookup, research fan-out, mechanic reference synthesis, parts
// extraction and pricing, cart hold, estimate creation, the pricing gate,
// PDF emission, and finalization — producing one EstimateResult per run.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/svcadvisor/estimate-pipeline/internal/adapter"
	"github.com/svcadvisor/estimate-pipeline/internal/cache"
	"github.com/svcadvisor/estimate-pipeline/internal/clock"
	"github.com/svcadvisor/estimate-pipeline/internal/decision"
	"github.com/svcadvisor/estimate-pipeline/internal/domain"
	"github.com/svcadvisor/estimate-pipeline/internal/log"
	"github.com/svcadvisor/estimate-pipeline/internal/metrics"
	"github.com/svcadvisor/estimate-pipeline/internal/ratelimit"
	"github.com/svcadvisor/estimate-pipeline/internal/resilience"
	"github.com/svcadvisor/estimate-pipeline/internal/scheduler"
	"github.com/svcadvisor/estimate-pipeline/internal/sessionmgr"
	"github.com/svcadvisor/estimate-pipeline/internal/tab"
	"github.com/svcadvisor/estimate-pipeline/internal/telemetry"
)

// VINDecoder resolves a VIN into a full Vehicle. A nil decoder (or a VIN
// that fails to decode) falls back to constructing a Vehicle from hints.
type VINDecoder interface {
	Decode(ctx context.Context, vin string) (domain.Vehicle, error)
}

// KnowledgeBase seeds the primary diagnosis for a diagnostic-class request.
type KnowledgeBase struct {
	// ConfidenceThreshold is the minimum confidence at which the
	// knowledge-base answer is used directly (kb_direct); below it the
	// result is supplemented (kb_with_claude), and a KnowledgeBase
	// returning ErrNoMatch always falls through to claude_only.
	ConfidenceThreshold float64
	Lookup              func(ctx context.Context, vehicle domain.Vehicle, query string, dtcs []string) (domain.RepairPlan, float64, error)
	Supplement          func(ctx context.Context, vehicle domain.Vehicle, query string, partial domain.RepairPlan) (domain.RepairPlan, error)
}

// HistorySource queries prior repairs for a vehicle/shop pair and returns a
// signed confidence delta to apply via domain.ApplyHistoryAdjustment.
type HistorySource interface {
	ConfidenceDelta(ctx context.Context, shopID string, vehicle domain.Vehicle, cause string) (float64, error)
}

// PartsExtractor derives PartRequests from a merged RepairPlan and the
// original query, used when the plan itself carries none.
type PartsExtractor interface {
	Extract(plan domain.RepairPlan, query string) []domain.PartRequest
}

// MechanicReferenceBuilder synthesizes the reference sheet from the merged
// plan and the resolved vehicle.
type MechanicReferenceBuilder interface {
	Build(vehicle domain.Vehicle, plan domain.RepairPlan) domain.MechanicReference
}

// Config wires every platform-specific collaborator the orchestrator
// delegates to; any field may be nil/empty to disable that stage (it then
// records a StageStatus of "skipped").
type Config struct {
	VIN               VINDecoder
	KB                *KnowledgeBase
	History           HistorySource
	ResearchSources   []adapter.Research
	PartsExtractor    PartsExtractor
	ReferenceBuilder  MechanicReferenceBuilder
	// LaborSources seed plan.Labor when no research fragment already set
	// one (e.g. a maintenance-class request with the diagnosis stage
	// skipped falls back to a canned-jobs lookup). Tried in order; first
	// success wins, mirroring PartsPricers.
	LaborSources      []adapter.LaborLookup
	PartsPricers      []adapter.PartsPrice // tried in order; first success wins
	CartHold          adapter.CartHold
	EstimateSink      adapter.EstimateSink
	ShopMarkupRate    float64
	Sessions          *sessionmgr.Manager
	Tabs              *tab.Registry
	Scheduler         *scheduler.Scheduler
	Sink              ResultSink
	// VendorBreakers seeds each research source's platform circuit
	// breaker, keyed by adapter.Research.Name().
	VendorBreakers map[string]resilience.PlatformConfig

	// Outbound rate-limits every vendor call made on behalf of a run; nil
	// disables limiting.
	Outbound *ratelimit.Limiter

	// VINCache and LaborCache short-circuit repeat vendor lookups; either
	// may be nil.
	VINCache   *cache.Vehicles
	LaborCache *cache.LaborTimes

	StageTimeout  time.Duration // default per-stage timeout absent an override
	ResearchTimeout time.Duration
}

// ResultSink persists a finished EstimateResult (the session store, C11).
type ResultSink interface {
	Put(ctx context.Context, chatID string, result domain.EstimateResult) error
}

// Orchestrator runs the thirteen-stage estimate pipeline.
type Orchestrator struct {
	cfg Config
}

// New builds an Orchestrator from cfg, filling any zero-value timeout with
// sane defaults.
func New(cfg Config) *Orchestrator {
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 10 * time.Second
	}
	if cfg.ResearchTimeout <= 0 {
		cfg.ResearchTimeout = 20 * time.Second
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = scheduler.New(8)
	}
	return &Orchestrator{cfg: cfg}
}

// Run drives req through every stage and returns the resulting
// EstimateResult. Its error is always nil: a pipeline_failed outcome is
// represented by EstimateResult.Failed instead.
func (o *Orchestrator) Run(ctx context.Context, req domain.Request) (domain.EstimateResult, error) {
	runStart := time.Now()
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	ctx = log.ContextWithRunID(ctx, req.RunID)
	ctx = log.ContextWithChatID(ctx, req.ChatID)

	tracer := telemetry.Tracer("orchestrator")
	ctx, span := tracer.Start(ctx, "run_estimate", trace.WithAttributes(telemetry.RunAttributes(req.RunID, req.ChatID, req.ShopID)...))
	defer span.End()

	result := domain.EstimateResult{
		RunID:     req.RunID,
		ChatID:    req.ChatID,
		CreatedAt: runStart,
	}

	statuses := make([]domain.StageStatus, 0, 13)
	addStatus := func(stage, outcome, reason string) {
		statuses = append(statuses, domain.StageStatus{Stage: stage, Outcome: outcome, Reason: reason})
	}
	publish := func(phase domain.Phase, detail string) {
		if req.ProgressChannel != nil {
			req.ProgressChannel.Publish(phase, detail)
		}
	}
	fail := func(code string, err error) (domain.EstimateResult, error) {
		result.Failed = true
		result.FailureReason = code
		result.StageStatuses = statuses
		result.ElapsedMs = time.Since(runStart).Milliseconds()
		metrics.RecordRun("failed")
		span.SetStatus(codes.Error, code)
		span.RecordError(err)
		log.L().Error().Str("run_id", req.RunID).Str("code", code).Err(err).Msg("pipeline_failed")
		o.releaseTabs(req.RunID)
		return result, nil
	}

	defer o.releaseTabs(req.RunID)

	// Stage 1: Identify Vehicle.
	publish(domain.PhaseLoggingIn, "resolving vehicle")
	vehicle, err := o.identifyVehicle(ctx, req)
	if err != nil {
		addStatus("identify_vehicle", "failed", "VEHICLE_UNRESOLVED")
		return fail("VEHICLE_UNRESOLVED", err)
	}
	result.Vehicle = vehicle
	addStatus("identify_vehicle", "ok", "")

	// Stage 2: Classify Request.
	class, dtcs := classifyRequest(req.Query, req.DTCs)
	addStatus("classify_request", "ok", string(class))

	plan := domain.RepairPlan{}

	// Stage 3: Seed Diagnosis (diagnostic path only).
	if class == domain.ClassDiagnostic && o.cfg.KB != nil {
		seeded, path, err := o.seedDiagnosis(ctx, vehicle, req.Query, dtcs)
		if err != nil {
			addStatus("seed_diagnosis", "failed", "KB_UNAVAILABLE")
		} else {
			plan = seeded
			plan.DiagnosticPath = path
			addStatus("seed_diagnosis", "ok", string(path))
		}
	} else {
		addStatus("seed_diagnosis", "skipped", "not_diagnostic")
	}

	// Stage 4: History Check (OPTIONAL).
	if o.cfg.History != nil && plan.PrimaryCause != "" {
		delta, err := o.cfg.History.ConfidenceDelta(ctx, req.ShopID, vehicle, plan.PrimaryCause)
		if err != nil {
			addStatus("history_check", "warning", "HISTORY_UNAVAILABLE")
		} else {
			plan = domain.ApplyHistoryAdjustment(plan, delta)
			addStatus("history_check", "ok", "")
		}
	} else {
		addStatus("history_check", "skipped", "")
	}

	// Stage 5: Research Fan-out (OPTIONAL per source).
	publish(domain.PhaseAddingLabor, "researching platforms")
	var auth map[string]domain.AuthState
	if o.cfg.Sessions != nil {
		auth = o.cfg.Sessions.Preflight(ctx)
	}
	plan = o.researchFanOut(ctx, req, vehicle, class, dtcs, plan, auth, addStatus)

	// Stage 6: Mechanic Reference (REQUIRED).
	if o.cfg.ReferenceBuilder != nil {
		result.Reference = o.cfg.ReferenceBuilder.Build(vehicle, plan)
	}
	addStatus("mechanic_reference", "ok", "")

	// Stage 7: Extract Parts Needed (REQUIRED).
	if len(plan.Parts) == 0 && o.cfg.PartsExtractor != nil {
		plan = domain.SeedParts(plan, o.cfg.PartsExtractor.Extract(plan, req.Query))
	}
	addStatus("extract_parts", "ok", fmt.Sprintf("%d parts", len(plan.Parts)))

	// Seed Labor (OPTIONAL, before Stage 8): a maintenance/general-class
	// request skips Seed Diagnosis entirely and the research fan-out may
	// never have produced a LaborTimes fragment either, so plan.Labor can
	// still be unset here. Fall back to canned-jobs lookups in that case.
	if plan.Labor.Source == "" && len(o.cfg.LaborSources) > 0 {
		plan = o.seedLabor(ctx, vehicle, plan, req.Query, addStatus)
	} else {
		addStatus("seed_labor", "skipped", "already_set")
	}
	result.Plan = plan

	// Stage 8: Price Parts (OPTIONAL).
	publish(domain.PhaseAddingParts, "pricing parts")
	bundle, pricingSource, _ := o.priceParts(ctx, vehicle, plan, addStatus)
	result.PartsBundle = bundle

	// Stage 9: Pre-stage Cart (OPTIONAL).
	if o.cfg.CartHold != nil && len(bundle.Selections) > 0 {
		if err := o.cfg.CartHold.Hold(ctx, req.RunID, bundle); err != nil {
			addStatus("prestage_cart", "warning", "CART_HOLD_FAILED")
		} else {
			addStatus("prestage_cart", "ok", "")
		}
	} else {
		addStatus("prestage_cart", "skipped", "")
	}

	// Stage 10: Create Estimate (OPTIONAL, only with a customer).
	publish(domain.PhaseCreatingCustomer, "creating estimate")
	sinkSucceeded := false
	if o.cfg.EstimateSink != nil && req.CustomerHints != nil {
		sres, err := o.cfg.EstimateSink.Create(ctx, req.ChatID, req.RunID, *req.CustomerHints, vehicle, bundle, plan.Labor, plan)
		if err != nil {
			addStatus("create_estimate", "warning", "SINK_FAILED")
		} else {
			sinkSucceeded = true
			result.EstimateID = sres.EstimateID
			result.EstimateCode = sres.EstimateCode
			addStatus("create_estimate", "ok", "")
		}
	} else {
		addStatus("create_estimate", "skipped", "no_customer")
	}

	// Stage 11: Apply Pricing Gate (REQUIRED).
	totals := computeTotals(bundle, plan.Labor)
	result.Totals = totals
	gateOut := decision.Decide(decision.Input{
		PartsCount:       len(plan.Parts),
		PartsRetailTotal: totals.PartsRetailTotal,
		PricingSource:    pricingSource,
		SinkSucceeded:    sinkSucceeded,
	})
	result.PricingSource = string(gateOut.PricingSource)
	result.PricingGate = domain.PricingGateVerdict(gateOut.Verdict)
	result.CustomerReady = gateOut.CustomerReady
	for _, w := range gateOut.Warnings {
		result.Warnings = append(result.Warnings, domain.Warning{Code: w.Code, Message: w.Message})
	}
	metrics.RecordPricingGateDecision(string(gateOut.Verdict), string(gateOut.PricingSource))
	addStatus("pricing_gate", "ok", string(gateOut.Verdict))

	// Stage 12: Emit PDF (OPTIONAL, skipped when blocked).
	publish(domain.PhaseGeneratingPDF, "generating pdf")
	if gateOut.Verdict == decision.VerdictBlocked {
		addStatus("emit_pdf", "skipped", "pricing_gate_blocked")
	} else {
		addStatus("emit_pdf", "skipped", "pdf_rendering_not_in_scope")
	}

	// Stage 13: Finalize (REQUIRED).
	result.ElapsedMs = time.Since(runStart).Milliseconds()
	result.StageStatuses = statuses
	if o.cfg.Sink != nil {
		if err := o.cfg.Sink.Put(ctx, req.ChatID, result); err != nil {
			log.L().Warn().Err(err).Str("run_id", req.RunID).Msg("failed to persist estimate result")
		}
	}
	publish(domain.PhaseDone, "complete")
	metrics.RecordRun("completed")
	span.SetStatus(codes.Ok, "")
	addStatus("finalize", "ok", "")
	result.StageStatuses = statuses
	return result, nil
}

// waitOutbound blocks on the outbound rate limiter when one is configured,
// bounded by the stage's own deadline.
func (o *Orchestrator) waitOutbound(ctx context.Context, platform string) error {
	if o.cfg.Outbound == nil {
		return nil
	}
	return o.cfg.Outbound.Wait(ctx, platform)
}

func (o *Orchestrator) releaseTabs(runID string) {
	if o.cfg.Tabs == nil {
		return
	}
	o.cfg.Tabs.ReleaseRun(runID)
}

func (o *Orchestrator) identifyVehicle(ctx context.Context, req domain.Request) (domain.Vehicle, error) {
	if req.VehicleHints.VIN != "" && domain.ValidVIN(req.VehicleHints.VIN) && o.cfg.VIN != nil {
		if o.cfg.VINCache != nil {
			if v, ok := o.cfg.VINCache.Get(ctx, req.VehicleHints.VIN); ok {
				return v, nil
			}
		}
		v, err := o.cfg.VIN.Decode(ctx, req.VehicleHints.VIN)
		if err == nil {
			if o.cfg.VINCache != nil {
				o.cfg.VINCache.Put(ctx, req.VehicleHints.VIN, v)
			}
			return v, nil
		}
		log.L().Warn().Err(err).Str("vin", req.VehicleHints.VIN).Msg("vin decode failed, falling back to hints")
	}
	h := req.VehicleHints
	if h.Make == "" && h.Model == "" && h.VIN == "" {
		return domain.Vehicle{}, fmt.Errorf("no vin or make/model hints supplied")
	}
	return domain.Vehicle{
		VIN:     h.VIN,
		Year:    h.Year,
		Make:    h.Make,
		Model:   h.Model,
		Engine:  h.Engine,
		Mileage: h.Mileage,
	}, nil
}

var diagnosticKeywords = []string{
	"rough idle", "stall", "misfire", "noise", "leak", "won't start", "check engine",
	"warning light", "vibration", "grinding", "clunk", "squeal",
}

func classifyRequest(query string, dtcs []string) (domain.RequestClass, []string) {
	normalized := query
	var found []string
	for _, code := range dtcs {
		if domain.ValidDTC(code) {
			found = append(found, code)
		}
	}
	if len(found) > 0 {
		return domain.ClassDiagnostic, found
	}
	for _, kw := range diagnosticKeywords {
		if containsFold(normalized, kw) {
			return domain.ClassDiagnostic, found
		}
	}
	for _, kw := range []string{"oil change", "maintenance", "inspection", "tune-up", "brake pads", "rotate tires"} {
		if containsFold(normalized, kw) {
			return domain.ClassMaintenance, found
		}
	}
	return domain.ClassGeneral, found
}

func containsFold(s, substr string) bool {
	sl, subl := []rune(s), []rune(substr)
	toLower := func(rs []rune) []rune {
		out := make([]rune, len(rs))
		for i, r := range rs {
			if r >= 'A' && r <= 'Z' {
				r = r + 32
			}
			out[i] = r
		}
		return out
	}
	sl, subl = toLower(sl), toLower(subl)
	if len(subl) == 0 || len(subl) > len(sl) {
		return len(subl) == 0
	}
	for i := 0; i+len(subl) <= len(sl); i++ {
		match := true
		for j := range subl {
			if sl[i+j] != subl[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func (o *Orchestrator) seedDiagnosis(ctx context.Context, vehicle domain.Vehicle, query string, dtcs []string) (domain.RepairPlan, domain.DiagnosticPath, error) {
	kb := o.cfg.KB
	plan, confidence, err := kb.Lookup(ctx, vehicle, query, dtcs)
	if err != nil {
		if kb.Supplement == nil {
			return domain.RepairPlan{}, domain.PathClaudeOnly, err
		}
		supplemented, serr := kb.Supplement(ctx, vehicle, query, domain.RepairPlan{})
		if serr != nil {
			return domain.RepairPlan{}, domain.PathClaudeOnly, serr
		}
		return supplemented, domain.PathClaudeOnly, nil
	}
	if confidence >= kb.ConfidenceThreshold {
		return plan, domain.PathKBDirect, nil
	}
	if kb.Supplement == nil {
		return plan, domain.PathKBDirect, nil
	}
	supplemented, serr := kb.Supplement(ctx, vehicle, query, plan)
	if serr != nil {
		return plan, domain.PathKBDirect, nil
	}
	return supplemented, domain.PathKBWithClaude, nil
}

func (o *Orchestrator) researchFanOut(
	ctx context.Context,
	req domain.Request,
	vehicle domain.Vehicle,
	class domain.RequestClass,
	dtcs []string,
	plan domain.RepairPlan,
	auth map[string]domain.AuthState,
	addStatus func(stage, outcome, reason string),
) domain.RepairPlan {
	if len(o.cfg.ResearchSources) == 0 {
		addStatus("research_fanout", "skipped", "no_sources")
		return plan
	}

	scope := clock.WithDeadline(ctx, o.cfg.ResearchTimeout)
	defer scope.Cancel()

	stages := make([]scheduler.Stage, 0, len(o.cfg.ResearchSources))
	skipped := 0
	for _, src := range o.cfg.ResearchSources {
		src := src
		if state, ok := auth[src.Name()]; ok && (state.Status == domain.AuthDegraded || state.Status == domain.AuthDisabled) {
			skipped++
			continue
		}
		resource := ""
		browser := browserDriven(src.Name())
		if browser {
			resource = scheduler.SharedBrowserResource
		}
		stages = append(stages, scheduler.Stage{
			Name:          "research:" + src.Name(),
			Policy:        scheduler.Optional,
			Resource:      resource,
			Platform:      src.Name(),
			BreakerConfig: o.cfg.VendorBreakers[src.Name()],
			Timeout:       o.cfg.ResearchTimeout,
			Run: func(stageCtx context.Context) (any, resilience.FailureClass, error) {
				if err := o.waitOutbound(stageCtx, src.Name()); err != nil {
					return nil, resilience.FailureTimeout, err
				}
				if browser && o.cfg.Tabs != nil {
					lease, err := o.cfg.Tabs.Acquire(stageCtx, src.Name(), req.RunID)
					if err != nil {
						return nil, resilience.ClassifyError(err, resilience.FailureTabContended), err
					}
					defer o.cfg.Tabs.ReleaseGuard(lease)()
				}
				frag, err := src.Search(stageCtx, vehicle, req.Query, dtcs)
				if err != nil {
					return nil, resilience.ClassifyError(err, resilience.FailureNetwork), err
				}
				return frag, "", nil
			},
		})
	}

	results, _ := o.cfg.Scheduler.Run(scope, stages)
	merged := plan
	ok, warned := 0, 0
	for _, r := range results {
		if r.Err != nil {
			warned++
			continue
		}
		if frag, isFrag := r.Value.(domain.ResearchFragment); isFrag {
			merged = domain.MergeResearchFragment(merged, frag)
			ok++
		}
	}
	addStatus("research_fanout", "ok", fmt.Sprintf("%d ok, %d warned, %d skipped_auth", ok, warned, skipped))
	return merged
}

// browserDriven reports whether a research source name corresponds to a
// shared-browser adapter rather than an HTTP/JSON one. Adapter names that
// match a known vendor-portal platform are treated as browser-driven;
// everything else is assumed API-driven.
func browserDriven(name string) bool {
	switch name {
	case "prodemand", "alldata", "identifix", "mitchell1":
		return true
	default:
		return false
	}
}

// seedLabor fills plan.Labor from the first LaborLookup source that finds
// a canned job for the request, using the primary diagnosis cause as the
// procedure name when one exists and the raw query otherwise (a
// maintenance query like "oil change 45000 miles" has no diagnosis, so
// the query text itself is the procedure). The result is
// applied through the same precedence-aware merge stage 5 uses so a
// canned_jobs lookup never clobbers a higher-precedence labor source.
func (o *Orchestrator) seedLabor(ctx context.Context, vehicle domain.Vehicle, plan domain.RepairPlan, query string, addStatus func(stage, outcome, reason string)) domain.RepairPlan {
	procedure := plan.PrimaryCause
	if procedure == "" {
		procedure = query
	}

	scope := clock.WithDeadline(ctx, o.cfg.StageTimeout)
	defer scope.Cancel()

	if o.cfg.LaborCache != nil {
		if res, ok := o.cfg.LaborCache.Get(scope.Context(), vehicle, procedure); ok {
			addStatus("seed_labor", "ok", string(domain.LaborSourceLaborCache))
			return domain.MergeResearchFragment(plan, domain.ResearchFragment{LaborTimes: &res})
		}
	}

	for _, lookup := range o.cfg.LaborSources {
		if err := o.waitOutbound(scope.Context(), lookup.Name()); err != nil {
			break
		}
		res, err := lookup.Hours(scope.Context(), vehicle, procedure)
		if err != nil {
			log.L().Warn().Err(err).Str("labor_source", lookup.Name()).Msg("labor lookup failed, trying fallback")
			continue
		}
		if o.cfg.LaborCache != nil {
			o.cfg.LaborCache.Put(scope.Context(), vehicle, procedure, res)
		}
		addStatus("seed_labor", "ok", lookup.Name())
		return domain.MergeResearchFragment(plan, domain.ResearchFragment{LaborTimes: &res})
	}

	addStatus("seed_labor", "warning", "all_labor_sources_failed")
	return plan
}

func (o *Orchestrator) priceParts(ctx context.Context, vehicle domain.Vehicle, plan domain.RepairPlan, addStatus func(stage, outcome, reason string)) (domain.PartsBundle, decision.PricingSource, bool) {
	if len(plan.Parts) == 0 || len(o.cfg.PartsPricers) == 0 {
		addStatus("price_parts", "skipped", "no_parts_or_pricers")
		return domain.PartsBundle{}, decision.SourceFailedPricing, false
	}

	scope := clock.WithDeadline(ctx, o.cfg.StageTimeout)
	defer scope.Cancel()

	for _, pricer := range o.cfg.PartsPricers {
		if err := o.waitOutbound(scope.Context(), pricer.Name()); err != nil {
			break
		}
		out, err := pricer.Price(scope.Context(), vehicle, plan.Parts)
		if err != nil {
			log.L().Warn().Err(err).Str("pricer", pricer.Name()).Msg("parts pricing failed, trying fallback")
			continue
		}
		source := decision.SourceMatrixFallback
		if pricer.Name() == autoleapNativePricerName {
			source = decision.SourceAutoleapNative
		} else {
			out.Bundle = o.applyMarkup(out.Bundle)
		}
		addStatus("price_parts", "ok", pricer.Name())
		return out.Bundle, source, true
	}

	addStatus("price_parts", "warning", "all_pricers_failed")
	return domain.PartsBundle{}, decision.SourceFailedPricing, false
}

// applyMarkup applies the shop's configured markup rate to a fallback
// pricer's wholesale-cost bundle; the primary (native) pricer already
// returns shop-facing retail prices and never passes through here.
func (o *Orchestrator) applyMarkup(bundle domain.PartsBundle) domain.PartsBundle {
	if o.cfg.ShopMarkupRate <= 0 {
		return bundle
	}
	out := bundle
	out.PartsCost = decision.ApplyShopMarkup(bundle.PartsCost, o.cfg.ShopMarkupRate)
	if len(bundle.Selections) > 0 {
		marked := make(map[int]*domain.PartQuote, len(bundle.Selections))
		for idx, q := range bundle.Selections {
			if q == nil || q.UnitPrice == nil {
				marked[idx] = q
				continue
			}
			retail := decision.ApplyShopMarkup(*q.UnitPrice, o.cfg.ShopMarkupRate)
			qc := *q
			qc.UnitPrice = &retail
			marked[idx] = &qc
		}
		out.Selections = marked
	}
	return out
}

func computeTotals(bundle domain.PartsBundle, labor domain.Labor) domain.Totals {
	laborTotal := labor.Hours * laborRate
	return domain.Totals{
		LaborTotal:       round2(laborTotal),
		PartsRetailTotal: round2(bundle.PartsCost),
		GrandTotal:       round2(laborTotal + bundle.PartsCost),
	}
}

// autoleapNativePricerName is the only pricer identity that yields
// shop-facing retail prices directly: anything else is a wholesale-cost
// fallback and must be marked up before it is customer ready.
const autoleapNativePricerName = "autoleap"

// laborRate is the shop's hourly labor rate: a fixed constant, unlike the
// markup rate, which comes from Config.ShopMarkupRate.
const laborRate = 120.0

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
