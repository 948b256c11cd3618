// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package domain

import (
	"sort"
	"strings"
)

// maxConfidence and minConfidence bound the history-adjustment clamp;
// corroboration clamps to [0, diagnosisCorroborationCap].
const (
	maxConfidence             = 0.95
	minConfidence             = 0.05
	diagnosisCorroborationCap = 0.95
	corroborationBonus        = 0.05
)

// MergeResearchFragment applies one ResearchFragment onto a RepairPlan
// under the source-precedence rules. It is a pure function: base is never
// mutated, and calling it twice with the same fragment is equivalent to
// calling it once because labor only ever upgrades and torque/tools merge
// by union.
func MergeResearchFragment(base RepairPlan, frag ResearchFragment) RepairPlan {
	out := base.Clone()

	if frag.LaborTimes != nil && frag.LaborTimes.Source.HigherOrEqualPrecedence(out.Labor.Source) {
		out.Labor = *frag.LaborTimes
	}

	out.TorqueSpecs = mergeTorqueSpecs(out.TorqueSpecs, frag.TorqueSpecs)
	out.Tools = mergeStringSetPreserveOrder(out.Tools, frag.Tools)
	out.TSBs = mergeStringSetPreserveOrder(out.TSBs, frag.TSBs)

	out.Diagnoses = mergeDiagnoses(out.Diagnoses, frag.Diagnoses)

	return out
}

// mergeTorqueSpecs unions by component key; on conflict the later
// (higher-precedence, since fragments merge in scheduler dependency order)
// source wins, and its platform tag is recorded.
func mergeTorqueSpecs(base []TorqueSpec, incoming []TorqueSpec) []TorqueSpec {
	if len(incoming) == 0 {
		return base
	}
	idx := make(map[string]int, len(base))
	out := append([]TorqueSpec(nil), base...)
	for i, t := range out {
		idx[t.Component] = i
	}
	for _, t := range incoming {
		if i, ok := idx[t.Component]; ok {
			out[i] = t
			continue
		}
		idx[t.Component] = len(out)
		out = append(out, t)
	}
	return out
}

// mergeStringSetPreserveOrder appends entries from incoming not already
// present in base, preserving base's order and incoming's relative order
// for new entries.
func mergeStringSetPreserveOrder(base []string, incoming []string) []string {
	if len(incoming) == 0 {
		return base
	}
	seen := make(map[string]bool, len(base))
	out := append([]string(nil), base...)
	for _, s := range out {
		seen[s] = true
	}
	for _, s := range incoming {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// sharedMultiCharWords counts words of length > 1, shared case-insensitively
// between a and b, used to decide diagnosis corroboration.
func sharedMultiCharWords(a, b string) int {
	wordsA := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(a)) {
		if len(w) > 1 {
			wordsA[w] = true
		}
	}
	count := 0
	for _, w := range strings.Fields(strings.ToLower(b)) {
		if len(w) > 1 && wordsA[w] {
			count++
		}
	}
	return count
}

// mergeDiagnoses preserves the ordered base list; an incoming diagnosis
// that corroborates an existing one (≥2 shared multi-char words and
// success_rate ≥ 50%) bumps that entry's confidence by +0.05 (capped at
// 0.95) and marks it corroborated. Incoming diagnoses that match nothing
// existing are appended in the order they arrived.
//
// Corroboration only ever fires once per diagnosis: an entry already
// carrying IdentifixCorroborated does not bump again, which is what keeps
// applying the same overlay twice equivalent to applying it once (the
// second pass finds the flag already set and no-ops) rather than a second
// +0.05 stacking on top of the first every time the overlay replays. An
// incoming diagnosis identical to an entry already in the list is skipped,
// so a replayed overlay neither appends it twice nor corroborates it
// against its own earlier copy.
func mergeDiagnoses(base []Diagnosis, incoming []Diagnosis) []Diagnosis {
	if len(incoming) == 0 {
		return base
	}
	out := append([]Diagnosis(nil), base...)
	for _, in := range incoming {
		dup := false
		for i := range out {
			if out[i] == in {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		matched := false
		for i := range out {
			if sharedMultiCharWords(out[i].Cause, in.Cause) >= 2 && in.SuccessRate >= 0.5 {
				matched = true
				if !out[i].IdentifixCorroborated {
					out[i].IdentifixCorroborated = true
					out[i].Confidence = clamp(out[i].Confidence+corroborationBonus, 0, diagnosisCorroborationCap)
				}
				break
			}
		}
		if !matched {
			out = append(out, in)
		}
	}
	return out
}

// ApplyHistoryAdjustment adds a signed delta in [-0.2, +0.2] to the top
// diagnosis's confidence, clamps to [0.05, 0.95], and marks it
// history_adjusted. With no diagnoses it adjusts PrimaryConfidence
// instead (same clamp); it is a no-op only when there is no PrimaryCause
// either.
func ApplyHistoryAdjustment(plan RepairPlan, delta float64) RepairPlan {
	if delta < -0.2 {
		delta = -0.2
	}
	if delta > 0.2 {
		delta = 0.2
	}
	out := plan.Clone()
	if len(out.Diagnoses) == 0 {
		if out.PrimaryCause == "" {
			return out
		}
		out.PrimaryConfidence = clamp(out.PrimaryConfidence+delta, minConfidence, maxConfidence)
		return out
	}
	top := &out.Diagnoses[0]
	top.Confidence = clamp(top.Confidence+delta, minConfidence, maxConfidence)
	top.HistoryAdjusted = true
	if top.Primary {
		out.PrimaryConfidence = top.Confidence
	}
	return out
}

// SeedParts sets the RepairPlan's parts list. This may only
// happen during seeding; later stages must use AnnotatePart instead.
func SeedParts(plan RepairPlan, parts []PartRequest) RepairPlan {
	out := plan.Clone()
	out.Parts = append([]PartRequest(nil), parts...)
	return out
}

// AnnotatePart updates the position hint (and OEM-preferred flag) of the
// part at idx without reordering or truncating the parts list.
func AnnotatePart(plan RepairPlan, idx int, position string, oemPreferred bool) RepairPlan {
	out := plan.Clone()
	if idx < 0 || idx >= len(out.Parts) {
		return out
	}
	if position != "" {
		out.Parts[idx].Position = position
	}
	out.Parts[idx].OEMPreferred = out.Parts[idx].OEMPreferred || oemPreferred
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// SortFragmentsByDependencyThenSourceTag returns a copy of the given stage
// names in plain lexicographic order. It does not take dependency order or
// completion waves into account: the input order is discarded and names
// are compared by string value alone.
func SortFragmentsByDependencyThenSourceTag(names []string) []string {
	out := append([]string(nil), names...)
	sort.Strings(out)
	return out
}
