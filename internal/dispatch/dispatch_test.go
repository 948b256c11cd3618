// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svcadvisor/estimate-pipeline/internal/domain"
	"github.com/svcadvisor/estimate-pipeline/internal/pipeline/bus"
	"github.com/svcadvisor/estimate-pipeline/internal/sessionstore"
)

type fakeRunner struct {
	result domain.EstimateResult
	err    error
}

func (f fakeRunner) Run(ctx context.Context, req domain.Request) (domain.EstimateResult, error) {
	return f.result, f.err
}

type fakeCart struct {
	calls int
	err   error
}

func (f *fakeCart) OrderParts(ctx context.Context, runID string, override bool) error {
	f.calls++
	return f.err
}

func newTestStore(t *testing.T) *sessionstore.Store {
	t.Helper()
	s, err := sessionstore.New(sessionstore.Options{TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDispatch_RunEstimateReturnsResult(t *testing.T) {
	runner := fakeRunner{result: domain.EstimateResult{RunID: "run-1", EstimateID: "EST-1", PricingGate: domain.GatePass, CustomerReady: true}}
	srv := NewServer(Config{Orchestrator: runner, Sessions: newTestStore(t)})

	body, _ := json.Marshal(runEstimateRequest{ChatID: "chat-1", Query: "rough idle"})
	req := httptest.NewRequest(http.MethodPost, "/v1/run_estimate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.EstimateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "EST-1", got.EstimateID)
}

func TestDispatch_RunEstimateIdempotentRetrySkipsOrchestrator(t *testing.T) {
	store, err := sessionstore.New(sessionstore.Options{TTL: time.Minute, SQLitePath: t.TempDir() + "/idempotency.db"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	cached := domain.EstimateResult{RunID: "run-8", EstimateID: "EST-8", PricingGate: domain.GatePass, CustomerReady: true}
	require.NoError(t, store.Put(context.Background(), "chat-8", cached))
	require.NoError(t, store.RecordIdempotency(context.Background(), "chat-8", "run-8", "EST-8"))

	runner := fakeRunner{err: assert.AnError}
	srv := NewServer(Config{Orchestrator: runner, Sessions: store})

	body, _ := json.Marshal(runEstimateRequest{ChatID: "chat-8", RunID: "run-8"})
	req := httptest.NewRequest(http.MethodPost, "/v1/run_estimate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.EstimateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "EST-8", got.EstimateID)
}

func TestDispatch_RunEstimateRequiresChatID(t *testing.T) {
	srv := NewServer(Config{Orchestrator: fakeRunner{}, Sessions: newTestStore(t)})

	req := httptest.NewRequest(http.MethodPost, "/v1/run_estimate", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatch_OrderPartsBlockedWithoutOverride(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put(context.Background(), "chat-2", domain.EstimateResult{RunID: "run-2", PricingGate: domain.GateBlocked}))
	cart := &fakeCart{}
	srv := NewServer(Config{Orchestrator: fakeRunner{}, Sessions: store, Cart: cart})

	body, _ := json.Marshal(orderPartsRequest{ChatID: "chat-2"})
	req := httptest.NewRequest(http.MethodPost, "/v1/order_parts", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, 0, cart.calls)
}

func TestDispatch_OrderPartsOverrideSucceeds(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put(context.Background(), "chat-3", domain.EstimateResult{RunID: "run-3", PricingGate: domain.GateBlocked}))
	cart := &fakeCart{}
	srv := NewServer(Config{Orchestrator: fakeRunner{}, Sessions: store, Cart: cart})

	body, _ := json.Marshal(orderPartsRequest{ChatID: "chat-3", Override: true})
	req := httptest.NewRequest(http.MethodPost, "/v1/order_parts", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, cart.calls)
}

func TestDispatch_CustomerApprovedRequiresCustomerReady(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put(context.Background(), "chat-4", domain.EstimateResult{RunID: "run-4", CustomerReady: false}))
	srv := NewServer(Config{Orchestrator: fakeRunner{}, Sessions: store})

	body, _ := json.Marshal(customerApprovedRequest{ChatID: "chat-4"})
	req := httptest.NewRequest(http.MethodPost, "/v1/customer_approved", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDispatch_CustomerApprovedSucceeds(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Put(context.Background(), "chat-5", domain.EstimateResult{RunID: "run-5", CustomerReady: true}))
	srv := NewServer(Config{Orchestrator: fakeRunner{}, Sessions: store})

	body, _ := json.Marshal(customerApprovedRequest{ChatID: "chat-5"})
	req := httptest.NewRequest(http.MethodPost, "/v1/customer_approved", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDispatch_UnauthenticatedRequestRejected(t *testing.T) {
	srv := NewServer(Config{Orchestrator: fakeRunner{}, Sessions: newTestStore(t), DispatchToken: "secret-token"})

	body, _ := json.Marshal(runEstimateRequest{ChatID: "chat-6"})
	req := httptest.NewRequest(http.MethodPost, "/v1/run_estimate", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDispatch_AuthenticatedRequestSucceeds(t *testing.T) {
	runner := fakeRunner{result: domain.EstimateResult{RunID: "run-7", EstimateID: "EST-7"}}
	srv := NewServer(Config{Orchestrator: runner, Sessions: newTestStore(t), DispatchToken: "secret-token"})

	body, _ := json.Marshal(runEstimateRequest{ChatID: "chat-7"})
	req := httptest.NewRequest(http.MethodPost, "/v1/run_estimate", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret-token")
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDispatch_ProgressRequiresChatID(t *testing.T) {
	srv := NewServer(Config{Orchestrator: fakeRunner{}, Progress: bus.NewMemoryBus()})

	req := httptest.NewRequest(http.MethodGet, "/v1/progress", nil)
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatch_ProgressStreamsPhasesUntilDone(t *testing.T) {
	b := bus.NewMemoryBus()
	srv := httptest.NewServer(NewServer(Config{Orchestrator: fakeRunner{}, Progress: b}).Router())
	defer srv.Close()

	// The subscriber registers when the GET arrives, so keep publishing
	// until the stream has been read to completion.
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
				_ = b.Publish(ctx, bus.PhaseTopic("chat-9"), bus.Message{Event: string(domain.PhaseDone), Payload: "complete"})
				cancel()
			}
		}
	}()
	defer close(stop)

	resp, err := http.Get(srv.URL + "/v1/progress?chat_id=chat-9")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Contains(t, string(body), `"phase":"done"`)
}
