// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/svcadvisor/estimate-pipeline/internal/domain"
)

// DefaultVINTTL is how long a decoded VIN stays cached. A VIN's identity
// never changes, but the upstream decoder occasionally backfills fields,
// so entries are refreshed daily rather than kept forever.
const DefaultVINTTL = 24 * time.Hour

// DefaultLaborTTL is how long a canned-job labor time stays cached.
const DefaultLaborTTL = 12 * time.Hour

// Vehicles caches decoded VINs so repeat requests for the same vehicle
// skip the public decode service.
type Vehicles struct {
	store Store
	ttl   time.Duration
}

// NewVehicles wraps store as a VIN-decode cache. ttl <= 0 uses
// DefaultVINTTL.
func NewVehicles(store Store, ttl time.Duration) *Vehicles {
	if ttl <= 0 {
		ttl = DefaultVINTTL
	}
	return &Vehicles{store: store, ttl: ttl}
}

func vinKey(vin string) string {
	return "vin:" + strings.ToUpper(vin)
}

// Get returns the cached decode for vin, if present.
func (v *Vehicles) Get(ctx context.Context, vin string) (domain.Vehicle, bool) {
	raw, ok := v.store.Get(ctx, vinKey(vin))
	if !ok {
		return domain.Vehicle{}, false
	}
	var vehicle domain.Vehicle
	if err := json.Unmarshal(raw, &vehicle); err != nil {
		v.store.Delete(ctx, vinKey(vin))
		return domain.Vehicle{}, false
	}
	return vehicle, true
}

// Put caches a successful decode.
func (v *Vehicles) Put(ctx context.Context, vin string, vehicle domain.Vehicle) {
	raw, err := json.Marshal(vehicle)
	if err != nil {
		return
	}
	v.store.Set(ctx, vinKey(vin), raw, v.ttl)
}

// LaborTimes caches canned-job labor lookups per vehicle and procedure. A
// hit is retagged labor_cache so the merge precedence treats it as a
// cached figure, not as the vendor source it originally came from.
type LaborTimes struct {
	store Store
	ttl   time.Duration
}

// NewLaborTimes wraps store as a labor-time cache. ttl <= 0 uses
// DefaultLaborTTL.
func NewLaborTimes(store Store, ttl time.Duration) *LaborTimes {
	if ttl <= 0 {
		ttl = DefaultLaborTTL
	}
	return &LaborTimes{store: store, ttl: ttl}
}

func laborKey(vehicle domain.Vehicle, procedure string) string {
	id := vehicle.VIN
	if id == "" {
		id = fmt.Sprintf("%d/%s/%s/%s", vehicle.Year, vehicle.Make, vehicle.Model, vehicle.Engine)
	}
	return "labor:" + strings.ToLower(id) + ":" + strings.ToLower(strings.TrimSpace(procedure))
}

// Get returns the cached labor time for the vehicle/procedure pair,
// retagged with the labor_cache source.
func (l *LaborTimes) Get(ctx context.Context, vehicle domain.Vehicle, procedure string) (domain.LaborResult, bool) {
	raw, ok := l.store.Get(ctx, laborKey(vehicle, procedure))
	if !ok {
		return domain.LaborResult{}, false
	}
	var res domain.LaborResult
	if err := json.Unmarshal(raw, &res); err != nil {
		l.store.Delete(ctx, laborKey(vehicle, procedure))
		return domain.LaborResult{}, false
	}
	res.Source = domain.LaborSourceLaborCache
	return res, true
}

// Put caches a fresh vendor labor result. Cached entries keep the vendor's
// hours and notes; only the source tag changes on the way back out.
func (l *LaborTimes) Put(ctx context.Context, vehicle domain.Vehicle, procedure string, res domain.LaborResult) {
	raw, err := json.Marshal(res)
	if err != nil {
		return
	}
	l.store.Set(ctx, laborKey(vehicle, procedure), raw, l.ttl)
}
