// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package domain holds the canonical data model shared by every pipeline
// stage: the Request, Vehicle, RepairPlan and its fragments, and the final
// EstimateResult. Every adapter reads immutable views of these types and
// returns new fragments; only the orchestrator ever merges them.
package domain

import (
	"regexp"
	"time"
)

// Request is an identified unit of work submitted to the orchestrator.
// Immutable after creation.
type Request struct {
	RunID           string
	ChatID          string
	ShopID          string
	VehicleHints    VehicleHints
	Query           string
	DTCs            []string
	CustomerHints   *CustomerHints
	ProgressChannel ProgressSink
	CreatedAt       time.Time
}

// VehicleHints carries whatever the technician provided about the vehicle;
// at least a VIN or a Year/Make/Model triple is expected.
type VehicleHints struct {
	VIN     string
	Year    int
	Make    string
	Model   string
	Engine  string
	Mileage int
}

// CustomerHints carries optional customer identity for estimate creation.
type CustomerHints struct {
	Name  string
	Phone string
}

// ProgressSink receives phase events as the orchestrator advances through
// stages. Implementations must not block the pipeline.
type ProgressSink interface {
	Publish(phase Phase, detail string)
}

// Phase is a closed set of progress phases emitted after each stage.
type Phase string

const (
	PhaseLoggingIn       Phase = "logging_in"
	PhaseCreatingCustomer Phase = "creating_customer"
	PhaseAddingParts     Phase = "adding_parts"
	PhaseAddingLabor     Phase = "adding_labor"
	PhaseLinkingParts    Phase = "linking_parts"
	PhaseGeneratingPDF   Phase = "generating_pdf"
	PhaseDone            Phase = "done"
)

var vinRe = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)
var dtcRe = regexp.MustCompile(`^[PBCU][0-9]{4}$`)

// ValidVIN reports whether s is a syntactically valid 17-character VIN
// (excludes I, O, Q per the glossary).
func ValidVIN(s string) bool { return vinRe.MatchString(s) }

// ValidDTC reports whether s matches the DTC pattern [PBCU][0-9]{4}.
func ValidDTC(s string) bool { return dtcRe.MatchString(s) }

// Vehicle is the resolved vehicle identity. Produced once by the VIN-decode
// stage (or constructed from hints); no later stage may mutate it.
type Vehicle struct {
	VIN     string
	Year    int
	Make    string
	Model   string
	Trim    string
	Engine  string
	Mileage int
}

// RequestClass partitions a query into diagnostic, maintenance or
// general work.
type RequestClass string

const (
	ClassDiagnostic RequestClass = "diagnostic"
	ClassMaintenance RequestClass = "maintenance"
	ClassGeneral     RequestClass = "general"
)

// DiagnosticPath records how the primary diagnosis was produced.
type DiagnosticPath string

const (
	PathKBDirect     DiagnosticPath = "kb_direct"
	PathKBWithClaude DiagnosticPath = "kb_with_claude"
	PathClaudeOnly   DiagnosticPath = "claude_only"
)

// Diagnosis is one alternative cause in a RepairPlan's ordered diagnoses
// list.
type Diagnosis struct {
	Cause                string
	Confidence           float64
	Primary              bool
	FromKnowledgeBase    bool
	IdentifixCorroborated bool
	HistoryAdjusted      bool
	SuccessRate          float64 // 0..1, as reported by a research fragment, if any
}

// PartRequest is a part the RepairPlan calls for, before pricing.
type PartRequest struct {
	Name        string
	Position    string
	Qty         int
	OEMPreferred bool
	SearchTerms []string // first entry is canonical
	Conditional bool
	Condition   string
}

// LaborSource is the closed set of provenance tags for a LaborResult,
// ordered highest-precedence first.
type LaborSource string

const (
	LaborSourceMOTOR      LaborSource = "MOTOR"
	LaborSourceShopDefault LaborSource = "shop_default"
	LaborSourceARI        LaborSource = "ari"
	LaborSourceLaborCache LaborSource = "labor_cache"
	LaborSourceProDemand  LaborSource = "prodemand"
	LaborSourceAlldata    LaborSource = "alldata"
	LaborSourceAIFallback LaborSource = "AI_fallback"
	LaborSourceDefault    LaborSource = "default"
)

// laborPrecedence ranks each source; lower rank wins. Tie-break within
// equal rank (never occurs here since every tag is distinct) is
// source-tag lexicographic.
var laborPrecedence = map[LaborSource]int{
	LaborSourceMOTOR:       0,
	LaborSourceShopDefault: 1,
	LaborSourceARI:         2,
	LaborSourceLaborCache:  3,
	LaborSourceProDemand:   4,
	LaborSourceAlldata:     5,
	LaborSourceAIFallback:  6,
	LaborSourceDefault:     7,
}

// Rank returns the source's precedence rank; unknown sources rank lowest
// (last), never beating a recognized source.
func (s LaborSource) Rank() int {
	if r, ok := laborPrecedence[s]; ok {
		return r
	}
	return len(laborPrecedence)
}

// HigherOrEqualPrecedence reports whether s is at least as authoritative as
// other (lower or equal rank number).
func (s LaborSource) HigherOrEqualPrecedence(other LaborSource) bool {
	if s.Rank() != other.Rank() {
		return s.Rank() < other.Rank()
	}
	return s <= other
}

// Labor is the RepairPlan's current labor estimate.
type Labor struct {
	Hours        float64
	Source       LaborSource
	Category     string
	LiftRequired bool
	Notes        string
	Operation    string
	Confidence   float64
	ReasonCode   string
}

// TorqueSpec is one torque-spec entry with the platform that sourced it.
type TorqueSpec struct {
	Component string
	Spec      string
	Platform  string
}

// Verification holds before/after repair checklists.
type Verification struct {
	BeforeRepair []string
	AfterRepair  []string
}

// RepairPlan is the canonical, single source of truth refined across
// stages.
type RepairPlan struct {
	PrimaryCause         string
	PrimaryConfidence    float64
	Diagnoses            []Diagnosis
	Parts                []PartRequest
	Labor                Labor
	Tools                []string
	TorqueSpecs          []TorqueSpec
	Verification         Verification
	DiagramsNeeded       []string
	TSBs                 []string
	Recalls              []string
	LowConfidenceWarning bool
	DiagnosticPath       DiagnosticPath
}

// Clone returns a deep-enough copy of p so merge functions never mutate
// their input.
func (p RepairPlan) Clone() RepairPlan {
	clone := p
	clone.Diagnoses = append([]Diagnosis(nil), p.Diagnoses...)
	clone.Parts = append([]PartRequest(nil), p.Parts...)
	clone.Tools = append([]string(nil), p.Tools...)
	clone.TorqueSpecs = append([]TorqueSpec(nil), p.TorqueSpecs...)
	clone.DiagramsNeeded = append([]string(nil), p.DiagramsNeeded...)
	clone.TSBs = append([]string(nil), p.TSBs...)
	clone.Recalls = append([]string(nil), p.Recalls...)
	clone.Verification.BeforeRepair = append([]string(nil), p.Verification.BeforeRepair...)
	clone.Verification.AfterRepair = append([]string(nil), p.Verification.AfterRepair...)
	return clone
}

// ResearchFragment is the partial result of one Research adapter call.
// Any field may be zero/empty; that signals absence, not failure.
type ResearchFragment struct {
	Source       LaborSource // for any labor info carried
	Platform     string
	Fixes        []string
	Procedures   []string
	TorqueSpecs  []TorqueSpec
	LaborTimes   *Labor
	TSBs         []string
	Screenshots  []string
	Diagnoses    []Diagnosis
	Tools        []string
}

// PartQuote is the result of pricing one PartRequest.
type PartQuote struct {
	Brand       string
	PartNumber  string
	Supplier    string
	UnitPrice   *float64 // nil if unavailable
	Availability string
	InStock     bool
	Source      string
}

// PartsBundle is the best-value parts selection.
type PartsBundle struct {
	Selections      map[int]*PartQuote // index into RepairPlan.Parts -> quote, nil if unpriced
	PartsCost       float64
	Suppliers       []string
	AllInStock      bool
	OEMAlternatives []PartQuote
}

// LaborResult is what a LaborLookup adapter returns for one procedure.
type LaborResult = Labor

// MechanicReference is the synthesized reference sheet handed to the
// technician alongside the estimate.
type MechanicReference struct {
	SensorLocations []string
	Fluids          []string
	TorqueSpecs     []TorqueSpec
	Tools           []string
}

// Totals is the EstimateResult's dollar breakdown.
type Totals struct {
	LaborTotal        float64
	PartsRetailTotal  float64
	Supplies          float64
	Tax               float64
	GrandTotal        float64
}

// PricingGateVerdict mirrors decision.Verdict without importing the
// decision package here, keeping domain free of the pricing policy.
type PricingGateVerdict string

const (
	GatePass    PricingGateVerdict = "PASS"
	GateBlocked PricingGateVerdict = "BLOCKED"
)

// Warning is a {code, message} pair attached to an EstimateResult.
type Warning struct {
	Code    string
	Message string
}

// StageStatus records one stage's terminal outcome for EstimateResult's
// source-per-stage status map.
type StageStatus struct {
	Stage   string
	Outcome string // "ok", "skipped", "warning", "failed"
	Reason  string
}

// EstimateResult is the full pipeline output.
type EstimateResult struct {
	RunID         string
	ChatID        string
	Vehicle       Vehicle
	Plan          RepairPlan
	PartsBundle   PartsBundle
	Labor         LaborResult
	Reference     MechanicReference
	Totals        Totals
	PricingSource string
	PricingGate   PricingGateVerdict
	CustomerReady bool
	Warnings      []Warning
	PDFPath       string
	DiagramPaths  []string
	ScreenshotPaths []string
	StageStatuses []StageStatus
	EstimateID    string
	EstimateCode  string
	CreatedAt     time.Time
	ElapsedMs     int64
	Failed        bool
	FailureReason string
}

// TabLease is exclusive ownership of one logical page within the shared
// remote-controlled browser.
type TabLease struct {
	TabID      string
	Platform   string
	RunID      string
	AcquiredAt time.Time
}

// AuthStatus is the closed set of states a platform's AuthState may be
// in.
type AuthStatus string

const (
	AuthUnknown            AuthStatus = "UNKNOWN"
	AuthChecking           AuthStatus = "CHECKING"
	AuthAuthenticated      AuthStatus = "AUTHENTICATED"
	AuthDegraded           AuthStatus = "DEGRADED"
	AuthDisabled           AuthStatus = "DISABLED"
	AuthHealing            AuthStatus = "HEALING"
	AuthNeedsBrowserCheck  AuthStatus = "NEEDS_BROWSER_CHECK"
)

// AuthState is per-platform authentication state, mutated only by the
// Session Manager.
type AuthState struct {
	Platform      string
	Authenticated bool
	Status        AuthStatus
	ReasonCode    string
	TokenSource   string
	ExpiresAt     *time.Time
}
