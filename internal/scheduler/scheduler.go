// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package scheduler implements the Stage Scheduler: it fans
// out independent research/API stages, sequences stages that share a
// declared resource, and enforces per-stage deadlines bounded by the
// overall pipeline deadline.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/svcadvisor/estimate-pipeline/internal/clock"
	"github.com/svcadvisor/estimate-pipeline/internal/log"
	"github.com/svcadvisor/estimate-pipeline/internal/metrics"
	"github.com/svcadvisor/estimate-pipeline/internal/resilience"
)

// Policy is a stage's failure-handling policy.
type Policy string

const (
	Required Policy = "REQUIRED"
	Optional Policy = "OPTIONAL"
)

// SharedBrowserResource is the resource name every browser-driven vendor
// stage must declare so they serialize against each other.
const SharedBrowserResource = "tab:shared-browser"

// Stage describes one unit of pipeline work.
type Stage struct {
	Name       string
	Needs      []string
	MaySuspend bool
	Timeout    time.Duration
	Policy     Policy
	// Resource, when non-empty, is a name (e.g. "tab:prodemand") that
	// stages sharing it must run serially against each other.
	Resource string
	// Platform, when non-empty, is the vendor platform this stage calls
	// out to; the scheduler consults (and updates) that platform's
	// circuit breaker before and after Run.
	Platform string
	// BreakerConfig seeds the platform's breaker the first time it is
	// seen; ignored on subsequent stages sharing the same Platform.
	BreakerConfig resilience.PlatformConfig
	// Retry overrides the scheduler's default retry policy for this
	// stage; nil uses defaultRetryConfig.
	Retry *resilience.RetryConfig
	Run   func(ctx context.Context) (any, resilience.FailureClass, error)
}

// Result is one stage's outcome.
type Result struct {
	Stage    string
	Value    any
	Err      error
	Class    resilience.FailureClass
	Skipped  bool
	Warning  bool
	Duration time.Duration
}

// ErrPipelineFailed wraps a REQUIRED stage's terminal failure, aborting
// the whole run.
type ErrPipelineFailed struct {
	Stage string
	Class resilience.FailureClass
	Err   error
}

func (e *ErrPipelineFailed) Error() string {
	return fmt.Sprintf("stage %s failed terminally (%s): %v", e.Stage, e.Class, e.Err)
}
func (e *ErrPipelineFailed) Unwrap() error { return e.Err }

// defaultRetryConfig bounds a stage's retryable-failure backoff absent a
// per-stage override.
var defaultRetryConfig = resilience.RetryConfig{
	MaxRetries: 2,
	BaseDelay:  200 * time.Millisecond,
	Jitter:     0.2,
}

// Scheduler runs a DAG of Stages honoring resource serialization and a
// maximum parallelism for unresourced (API-driven) stages.
type Scheduler struct {
	maxParallel int
	resourceMu  sync.Map // resource name -> *sync.Mutex
	breakers    *resilience.PlatformRegistry
}

// New creates a Scheduler. maxParallel bounds concurrent API-driven
// stages; zero defaults to 8.
func New(maxParallel int) *Scheduler {
	if maxParallel <= 0 {
		maxParallel = 8
	}
	return &Scheduler{maxParallel: maxParallel, breakers: resilience.NewPlatformRegistry()}
}

// Breakers exposes the scheduler's platform breaker registry so health
// checks can report which platforms are currently failing fast.
func (s *Scheduler) Breakers() *resilience.PlatformRegistry {
	return s.breakers
}

func (s *Scheduler) retryConfig(st Stage) resilience.RetryConfig {
	if st.Retry != nil {
		return *st.Retry
	}
	return defaultRetryConfig
}

func (s *Scheduler) resourceLock(name string) *sync.Mutex {
	v, _ := s.resourceMu.LoadOrStore(name, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Run executes stages against the deadline carried by parentScope,
// respecting Needs (happens-before), Resource serialization, and each
// stage's own Timeout (never exceeding the remaining pipeline deadline).
// It returns one Result per stage plus, if a REQUIRED stage failed
// terminally, a non-nil *ErrPipelineFailed. Cancellation of parentScope
// cancels every in-flight stage.
func (s *Scheduler) Run(parentScope *clock.Scope, stages []Stage) ([]Result, error) {
	ctx := parentScope.Context()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(map[string]chan struct{}, len(stages))
	for _, st := range stages {
		done[st.Name] = make(chan struct{})
	}

	results := make([]Result, len(stages))
	resultByName := make(map[string]*Result, len(stages))
	var mu sync.Mutex
	var firstFailure *ErrPipelineFailed

	sem := make(chan struct{}, s.maxParallel)

	var wg sync.WaitGroup
	for i, st := range stages {
		i, st := i, st
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer close(done[st.Name])

			// Wait for dependencies.
			for _, dep := range st.Needs {
				if ch, ok := done[dep]; ok {
					select {
					case <-ch:
					case <-runCtx.Done():
						s.record(&mu, results, resultByName, i, st, Result{Stage: st.Name, Skipped: true, Err: runCtx.Err()})
						return
					}
				}
			}
			// A dependency's terminal failure (REQUIRED) means runCtx is
			// already canceled by the time we reach here; detect it
			// explicitly so we record a clean "skipped" outcome instead
			// of racing the cancellation check below.
			select {
			case <-runCtx.Done():
				s.record(&mu, results, resultByName, i, st, Result{Stage: st.Name, Skipped: true, Err: runCtx.Err()})
				return
			default:
			}

			// Resource serialization or bounded parallelism.
			if st.Resource != "" {
				lock := s.resourceLock(st.Resource)
				lock.Lock()
				defer lock.Unlock()
			} else {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-runCtx.Done():
					s.record(&mu, results, resultByName, i, st, Result{Stage: st.Name, Skipped: true, Err: runCtx.Err()})
					return
				}
			}

			// Platform circuit breaker: a stage naming a Platform is
			// refused immediately while that platform's breaker is open,
			// before any deadline or retry budget is spent on it.
			var breaker *resilience.PlatformBreaker
			if st.Platform != "" {
				breaker = s.breakers.GetOrRegister(st.Platform, st.BreakerConfig)
				if !breaker.Allow() {
					s.recordBreakerOpen(&mu, results, resultByName, i, st, cancel, &firstFailure)
					return
				}
			}

			budget := st.Timeout
			if remaining := parentScope.Remaining(); budget <= 0 || (remaining > 0 && budget > remaining) {
				budget = remaining
			}
			stageScope := clock.WithDeadline(runCtx, budget)
			defer stageScope.Cancel()

			end := log.Step(stageScope.Context(), st.Name)
			start := time.Now()

			var value any
			var class resilience.FailureClass
			err := resilience.WithRetry(stageScope.Context(), s.retryConfig(st), func(c context.Context) (resilience.FailureClass, error) {
				v, cl, e := st.Run(c)
				value, class = v, cl
				return cl, e
			})
			dur := time.Since(start)

			if breaker != nil {
				breaker.Report(err == nil)
			}

			res := Result{Stage: st.Name, Value: value, Err: err, Class: class, Duration: dur}
			outcome := "ok"
			if err != nil {
				outcome = "error"
				if st.Policy == Optional {
					res.Warning = true
				}
			}
			end(outcome, err)
			metrics.ObserveStage(st.Name, outcome, dur.Seconds())

			if err != nil && st.Policy == Required && !class.Retryable() {
				pf := &ErrPipelineFailed{Stage: st.Name, Class: class, Err: err}
				mu.Lock()
				if firstFailure == nil {
					firstFailure = pf
				}
				mu.Unlock()
				cancel()
			}

			s.record(&mu, results, resultByName, i, st, res)
		}()
	}

	wg.Wait()

	if firstFailure != nil {
		return results, firstFailure
	}
	return results, nil
}

func (s *Scheduler) record(mu *sync.Mutex, results []Result, byName map[string]*Result, idx int, st Stage, res Result) {
	mu.Lock()
	defer mu.Unlock()
	results[idx] = res
	byName[st.Name] = &results[idx]
}

// recordBreakerOpen records a CIRCUIT_OPEN outcome for a stage refused by
// its platform's breaker, aborting the pipeline if the stage is REQUIRED.
func (s *Scheduler) recordBreakerOpen(mu *sync.Mutex, results []Result, byName map[string]*Result, idx int, st Stage, cancel context.CancelFunc, firstFailure **ErrPipelineFailed) {
	res := Result{Stage: st.Name, Err: resilience.ErrCircuitOpen, Class: resilience.FailureCircuitOpen}
	if st.Policy == Optional {
		res.Warning = true
	}
	s.record(mu, results, byName, idx, st, res)

	if st.Policy == Required {
		pf := &ErrPipelineFailed{Stage: st.Name, Class: resilience.FailureCircuitOpen, Err: resilience.ErrCircuitOpen}
		mu.Lock()
		if *firstFailure == nil {
			*firstFailure = pf
		}
		mu.Unlock()
		cancel()
	}
}
