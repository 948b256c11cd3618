// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcadvisor/estimate-pipeline/internal/adapter"
	"github.com/svcadvisor/estimate-pipeline/internal/cache"
	"github.com/svcadvisor/estimate-pipeline/internal/decision"
	"github.com/svcadvisor/estimate-pipeline/internal/domain"
)

type fakeVIN struct {
	vehicle domain.Vehicle
	err     error
}

func (f fakeVIN) Decode(ctx context.Context, vin string) (domain.Vehicle, error) {
	return f.vehicle, f.err
}

type fakeResearch struct {
	name string
	frag domain.ResearchFragment
	err  error
}

func (f fakeResearch) Name() string { return f.name }
func (f fakeResearch) Search(ctx context.Context, vehicle domain.Vehicle, query string, dtcs []string) (domain.ResearchFragment, error) {
	return f.frag, f.err
}

type fakePricer struct {
	name   string
	bundle domain.PartsBundle
	err    error
}

func (f fakePricer) Name() string { return f.name }
func (f fakePricer) Price(ctx context.Context, vehicle domain.Vehicle, parts []domain.PartRequest) (adapter.PartsPriceResult, error) {
	if f.err != nil {
		return adapter.PartsPriceResult{}, f.err
	}
	return adapter.PartsPriceResult{Bundle: f.bundle}, nil
}

type fakeLaborLookup struct {
	name   string
	result domain.LaborResult
	err    error
	calls  int
}

func (f *fakeLaborLookup) Name() string { return f.name }
func (f *fakeLaborLookup) Hours(ctx context.Context, vehicle domain.Vehicle, procedureName string) (domain.LaborResult, error) {
	f.calls++
	return f.result, f.err
}

type recordingSink struct {
	results []domain.EstimateResult
}

func (s *recordingSink) Put(ctx context.Context, chatID string, result domain.EstimateResult) error {
	s.results = append(s.results, result)
	return nil
}

func price(v float64) *float64 { return &v }

func TestOrchestrator_HappyPathProducesPassingEstimate(t *testing.T) {
	sink := &recordingSink{}
	o := New(Config{
		VIN: fakeVIN{vehicle: domain.Vehicle{VIN: "1HGCM82633A004352", Make: "Honda", Model: "Accord", Year: 2003}},
		ResearchSources: []adapter.Research{
			fakeResearch{name: "labor_cache", frag: domain.ResearchFragment{
				LaborTimes: &domain.Labor{Hours: 1.5, Source: domain.LaborSourceLaborCache},
			}},
		},
		PartsExtractor: staticExtractor{parts: []domain.PartRequest{{Name: "ignition coil", Qty: 1}}},
		PartsPricers: []adapter.PartsPrice{
			fakePricer{name: "autoleap", bundle: domain.PartsBundle{
				PartsCost:  150.0,
				Selections: map[int]*domain.PartQuote{0: {UnitPrice: price(150), Supplier: "NAPA"}},
			}},
		},
		Sink: sink,
	})

	req := domain.Request{
		ChatID:       "chat-1",
		Query:        "rough idle and check engine light",
		DTCs:         []string{"P0301"},
		VehicleHints: domain.VehicleHints{VIN: "1HGCM82633A004352"},
	}

	result, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Failed)
	assert.Equal(t, domain.GatePass, result.PricingGate)
	assert.NotEmpty(t, result.RunID)
	assert.Len(t, sink.results, 1)
}

func TestOrchestrator_UnresolvableVehicleFailsPipeline(t *testing.T) {
	o := New(Config{})
	req := domain.Request{ChatID: "chat-2", Query: "noise"}

	result, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Failed)
	assert.Equal(t, "VEHICLE_UNRESOLVED", result.FailureReason)
}

func TestOrchestrator_NoPartsPassesGateAutomatically(t *testing.T) {
	o := New(Config{
		VIN: fakeVIN{vehicle: domain.Vehicle{Make: "Toyota", Model: "Camry", Year: 2015}},
	})
	req := domain.Request{ChatID: "chat-3", Query: "general question", VehicleHints: domain.VehicleHints{Make: "Toyota", Model: "Camry"}}

	result, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Failed)
	assert.Equal(t, domain.GatePass, result.PricingGate)
	assert.True(t, result.CustomerReady)
}

func TestOrchestrator_AllPricersFailingBlocksGate(t *testing.T) {
	o := New(Config{
		VIN: fakeVIN{vehicle: domain.Vehicle{Make: "Ford", Model: "F-150", Year: 2018}},
		PartsExtractor: staticExtractor{parts: []domain.PartRequest{{Name: "brake pad set", Qty: 1}}},
		PartsPricers:   []adapter.PartsPrice{fakePricer{name: "autoleap", err: errors.New("vendor down")}},
	})
	req := domain.Request{ChatID: "chat-4", Query: "brake pads maintenance", VehicleHints: domain.VehicleHints{Make: "Ford", Model: "F-150"}}

	result, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, domain.GateBlocked, result.PricingGate)
	assert.False(t, result.CustomerReady)
	assert.Equal(t, decision.WarningCodePricingGateBlocked, result.Warnings[0].Code)
}

func TestOrchestrator_SeedsLaborFromCannedJobsWhenNoDiagnosis(t *testing.T) {
	labor := &fakeLaborLookup{name: "canned_jobs", result: domain.LaborResult{Hours: 0.6, Source: domain.LaborSourceDefault}}
	sink := &recordingSink{}
	o := New(Config{
		VIN:            fakeVIN{vehicle: domain.Vehicle{Make: "Honda", Model: "Civic", Year: 2019}},
		PartsExtractor: staticExtractor{parts: []domain.PartRequest{{Name: "oil filter", Qty: 1}}},
		LaborSources:   []adapter.LaborLookup{labor},
		Sink:           sink,
	})
	req := domain.Request{
		ChatID:       "chat-5",
		Query:        "oil change 45000 miles",
		VehicleHints: domain.VehicleHints{Make: "Honda", Model: "Civic"},
	}

	result, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.Failed)
	assert.Equal(t, 1, labor.calls)
	assert.Equal(t, 0.6, result.Plan.Labor.Hours)
	assert.Equal(t, domain.LaborSourceDefault, result.Plan.Labor.Source)
}

func TestOrchestrator_SeedLaborSkippedWhenAlreadySet(t *testing.T) {
	labor := &fakeLaborLookup{name: "canned_jobs", result: domain.LaborResult{Hours: 0.6, Source: domain.LaborSourceDefault}}
	o := New(Config{
		VIN: fakeVIN{vehicle: domain.Vehicle{Make: "Ford", Model: "F-150", Year: 2018}},
		ResearchSources: []adapter.Research{
			fakeResearch{name: "prodemand", frag: domain.ResearchFragment{
				LaborTimes: &domain.Labor{Hours: 1.2, Source: domain.LaborSourceProDemand},
			}},
		},
		LaborSources: []adapter.LaborLookup{labor},
	})
	req := domain.Request{
		ChatID: "chat-6", Query: "rough idle", DTCs: []string{"P0300"},
		VehicleHints: domain.VehicleHints{Make: "Ford", Model: "F-150"},
	}

	result, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, labor.calls)
	assert.Equal(t, domain.LaborSourceProDemand, result.Plan.Labor.Source)
	assert.Equal(t, 1.2, result.Plan.Labor.Hours)
}

type staticExtractor struct{ parts []domain.PartRequest }

func (s staticExtractor) Extract(plan domain.RepairPlan, query string) []domain.PartRequest {
	return s.parts
}

type countingVIN struct {
	vehicle domain.Vehicle
	calls   int
}

func (c *countingVIN) Decode(ctx context.Context, vin string) (domain.Vehicle, error) {
	c.calls++
	return c.vehicle, nil
}

func TestOrchestrator_VINCacheSkipsRepeatDecode(t *testing.T) {
	store := cache.NewMemory(0)
	defer func() { _ = store.Close() }()

	vin := "1HGBH41JXMN109186"
	decoder := &countingVIN{vehicle: domain.Vehicle{VIN: vin, Make: "Honda", Model: "Civic", Year: 2021}}
	o := New(Config{
		VIN:      decoder,
		VINCache: cache.NewVehicles(store, time.Hour),
	})
	req := domain.Request{ChatID: "chat-10", Query: "general question", VehicleHints: domain.VehicleHints{VIN: vin}}

	first, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := o.Run(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, 1, decoder.calls, "second run must be served from the VIN cache")
	assert.Equal(t, first.Vehicle, second.Vehicle)
}

func TestOrchestrator_LaborCacheShortCircuitsLookups(t *testing.T) {
	store := cache.NewMemory(0)
	defer func() { _ = store.Close() }()
	laborCache := cache.NewLaborTimes(store, time.Hour)

	lookup := &fakeLaborLookup{name: "canned_jobs", result: domain.LaborResult{Hours: 0.6, Source: domain.LaborSourceDefault}}
	o := New(Config{
		VIN:            fakeVIN{vehicle: domain.Vehicle{Make: "Honda", Model: "Civic", Year: 2019}},
		PartsExtractor: staticExtractor{parts: []domain.PartRequest{{Name: "oil filter", Qty: 1}}},
		LaborSources:   []adapter.LaborLookup{lookup},
		LaborCache:     laborCache,
	})
	req := domain.Request{
		ChatID:       "chat-11",
		Query:        "oil change 45000 miles",
		VehicleHints: domain.VehicleHints{Make: "Honda", Model: "Civic"},
	}

	first, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, lookup.calls)
	assert.Equal(t, domain.LaborSourceDefault, first.Plan.Labor.Source)

	second, err := o.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, lookup.calls, "second run must hit the labor cache")
	assert.Equal(t, domain.LaborSourceLaborCache, second.Plan.Labor.Source)
	assert.Equal(t, 0.6, second.Plan.Labor.Hours)
}
