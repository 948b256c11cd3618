// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package domain

import (
	"strconv"
	"strings"
)

// NormalizePrice converts a vendor-site price string into a normalized
// unit price. "$0.00", "-5", "N/A", "Call", "", and non-numeric strings all
// normalize to nil. A strictly positive numeric value is returned as-is.
func NormalizePrice(raw string) *float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	lower := strings.ToLower(s)
	switch lower {
	case "n/a", "na", "call", "call for price", "tbd", "unavailable", "-":
		return nil
	}

	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	if v <= 0 {
		return nil
	}
	return &v
}

// ValidQuote reports whether q satisfies the PartQuote invariant: UnitPrice
// is either nil or strictly positive.
func ValidQuote(q PartQuote) bool {
	return q.UnitPrice == nil || *q.UnitPrice > 0
}
