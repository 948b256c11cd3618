// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"context"
	"errors"

	"github.com/svcadvisor/estimate-pipeline/internal/clock"
)

// FailureClass is the closed taxonomy of errors observed at component
// boundaries. Every adapter and the scheduler that calls it
// classify a raw failure into exactly one of these before it is retried,
// surfaced as a warning, or allowed to abort the pipeline.
type FailureClass string

const (
	FailureDeadlineExceeded FailureClass = "DEADLINE_EXCEEDED"
	FailureTimeout          FailureClass = "TIMEOUT"
	FailureNetwork          FailureClass = "NETWORK"
	FailureTransient5xx     FailureClass = "TRANSIENT_5XX"
	FailureStaleTab         FailureClass = "STALE_TAB"
	FailureTabContended     FailureClass = "TAB_CONTENDED"
	FailureAuthFailed       FailureClass = "AUTH_FAILED"
	FailurePlatformDown     FailureClass = "PLATFORM_DOWN"
	FailureCircuitOpen      FailureClass = "CIRCUIT_OPEN"
	FailureNotFound         FailureClass = "NOT_FOUND"
	FailureParseError       FailureClass = "PARSE_ERROR"
)

// Retryable reports whether the scheduler may retry an operation that
// failed with this class.
func (f FailureClass) Retryable() bool {
	switch f {
	case FailureDeadlineExceeded, FailureTimeout, FailureNetwork, FailureTransient5xx, FailureStaleTab:
		return true
	default:
		return false
	}
}

// ClassifiedError pairs a raw error with its FailureClass. Adapters return
// this (or a type satisfying the Classified interface) instead of a bare
// error so the scheduler never has to guess at retryability.
type ClassifiedError struct {
	Class FailureClass
	Code  string
	Err   error
}

func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return string(e.Class)
	}
	return string(e.Class) + ": " + e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classified is implemented by any error that already knows its
// FailureClass.
type Classified interface {
	error
	FailureClass() FailureClass
}

func (e *ClassifiedError) FailureClass() FailureClass { return e.Class }

// ClassifyError extracts the FailureClass from err: a classified error
// keeps its own class, a clock deadline maps to DEADLINE_EXCEEDED,
// context.DeadlineExceeded to TIMEOUT and ErrCircuitOpen to CIRCUIT_OPEN;
// anything else gets fallback, or FailureNetwork when fallback is empty.
// A nil error yields the empty class. It never panics on a nil or
// unfamiliar error.
func ClassifyError(err error, fallback FailureClass) FailureClass {
	if err == nil {
		return ""
	}
	var c Classified
	if errors.As(err, &c) {
		return c.FailureClass()
	}
	var deadline *clock.ErrDeadlineExceeded
	if errors.As(err, &deadline) {
		return FailureDeadlineExceeded
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	if errors.Is(err, ErrCircuitOpen) {
		return FailureCircuitOpen
	}
	if fallback != "" {
		return fallback
	}
	return FailureNetwork
}
