// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package dispatch is the Chat Dispatch Adapter (C12): it translates
// inbound tool-calls from the chat gateway into orchestrator runs and
// follow-up actions against the session store, over an authenticated,
// rate-limited HTTP surface.
package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/svcadvisor/estimate-pipeline/internal/audit"
	"github.com/svcadvisor/estimate-pipeline/internal/auth"
	"github.com/svcadvisor/estimate-pipeline/internal/domain"
	"github.com/svcadvisor/estimate-pipeline/internal/log"
	"github.com/svcadvisor/estimate-pipeline/internal/pipeline/bus"
	"github.com/svcadvisor/estimate-pipeline/internal/sessionstore"
)

// Runner is whatever drives a Request to completion; the orchestrator's
// *Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, req domain.Request) (domain.EstimateResult, error)
}

// CartOrderer accepts a customer's follow-up decision to order the parts
// already held in a vendor's cart.
type CartOrderer interface {
	OrderParts(ctx context.Context, runID string, override bool) error
}

// Config wires the adapter's collaborators and HTTP policy.
type Config struct {
	Orchestrator Runner
	Sessions     *sessionstore.Store
	Cart         CartOrderer
	Audit        *audit.Logger
	// Progress carries phase events from running pipelines to the
	// /v1/progress stream; nil disables progress reporting.
	Progress           bus.Bus
	DispatchToken      string // shared secret the chat gateway authenticates with
	RateLimitPerMinute int    // requests per minute per IP; 0 disables the limiter
}

// Server exposes the dispatch operations over chi.
type Server struct {
	cfg Config
}

// NewServer builds a Server from cfg.
func NewServer(cfg Config) *Server {
	if cfg.Audit == nil {
		cfg.Audit = audit.NewLogger()
	}
	return &Server{cfg: cfg}
}

// Router builds the chi.Router exposing run_estimate, order_parts, and
// customer_approved, each behind token auth and a sliding-window rate
// limiter, windowed per minute.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(log.Middleware())
	r.Use(otelhttp.NewMiddleware("dispatch"))
	r.Use(s.authenticate)

	if s.cfg.RateLimitPerMinute > 0 {
		r.Use(rateLimit(s.cfg.RateLimitPerMinute, time.Minute))
	}

	r.Post("/v1/run_estimate", s.handleRunEstimate)
	r.Post("/v1/order_parts", s.handleOrderParts)
	r.Post("/v1/customer_approved", s.handleCustomerApproved)
	r.Get("/v1/progress", s.handleProgress)
	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.DispatchToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		// EventSource clients cannot set headers, so the progress stream
		// alone may carry its token as a query parameter.
		allowQuery := r.URL.Path == "/v1/progress"
		if !auth.AuthorizeRequest(r, s.cfg.DispatchToken, allowQuery) {
			s.cfg.Audit.AuthFailure(r.RemoteAddr, r.URL.Path, "bad or missing dispatch token")
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type runEstimateRequest struct {
	ChatID  string              `json:"chat_id"`
	RunID   string              `json:"run_id,omitempty"`
	ShopID  string              `json:"shop_id"`
	Query   string              `json:"query"`
	DTCs    []string            `json:"dtcs"`
	Vehicle domain.VehicleHints `json:"vehicle"`
	Customer *domain.CustomerHints `json:"customer,omitempty"`
}

func (s *Server) handleRunEstimate(w http.ResponseWriter, r *http.Request) {
	var in runEstimateRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if in.ChatID == "" {
		writeJSONError(w, http.StatusBadRequest, "chat_id_required")
		return
	}

	// A retried run_estimate for a run_id we've already produced an
	// estimate for must not re-invoke the pipeline: answer from the last
	// cached result instead.
	if in.RunID != "" && s.cfg.Sessions != nil {
		if _, hit, err := s.cfg.Sessions.CheckIdempotency(r.Context(), in.ChatID, in.RunID); err == nil && hit {
			if last, ok := s.cfg.Sessions.Last(r.Context(), in.ChatID); ok && last.RunID == in.RunID {
				writeJSON(w, http.StatusOK, last)
				return
			}
		}
	}

	req := domain.Request{
		ChatID:        in.ChatID,
		RunID:         in.RunID,
		ShopID:        in.ShopID,
		Query:         in.Query,
		DTCs:          in.DTCs,
		VehicleHints:  in.Vehicle,
		CustomerHints: in.Customer,
		CreatedAt:     time.Now(),
	}
	if s.cfg.Progress != nil {
		req.ProgressChannel = bus.NewProgressSink(s.cfg.Progress, in.ChatID)
	}

	result, err := s.cfg.Orchestrator.Run(r.Context(), req)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "orchestrator_error")
		return
	}
	if s.cfg.Sessions != nil && result.EstimateID != "" {
		_ = s.cfg.Sessions.RecordIdempotency(r.Context(), in.ChatID, result.RunID, result.EstimateID)
	}
	writeJSON(w, http.StatusOK, result)
}

type orderPartsRequest struct {
	ChatID   string `json:"chat_id"`
	Override bool   `json:"override"`
}

func (s *Server) handleOrderParts(w http.ResponseWriter, r *http.Request) {
	var in orderPartsRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	last, ok := s.lastResult(r.Context(), in.ChatID)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no_prior_estimate")
		return
	}

	if last.PricingGate == domain.GateBlocked && !in.Override {
		s.cfg.Audit.OrderPartsRejected(in.ChatID, last.RunID, "pricing_gate_blocked")
		writeJSONError(w, http.StatusConflict, "pricing_gate_blocked")
		return
	}

	if s.cfg.Cart != nil {
		if err := s.cfg.Cart.OrderParts(r.Context(), last.RunID, in.Override); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "order_failed")
			return
		}
	}

	s.cfg.Audit.OrderPartsAccepted(in.ChatID, last.RunID, last.PricingGate == domain.GateBlocked && in.Override)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ordered", "run_id": last.RunID})
}

type customerApprovedRequest struct {
	ChatID string `json:"chat_id"`
}

func (s *Server) handleCustomerApproved(w http.ResponseWriter, r *http.Request) {
	var in customerApprovedRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	last, ok := s.lastResult(r.Context(), in.ChatID)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no_prior_estimate")
		return
	}

	if !last.CustomerReady {
		s.cfg.Audit.CustomerApproved(in.ChatID, last.RunID, false, "pricing_gate_not_passed")
		writeJSONError(w, http.StatusConflict, "not_customer_ready")
		return
	}

	s.cfg.Audit.CustomerApproved(in.ChatID, last.RunID, true, "")
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved", "run_id": last.RunID})
}

type progressEvent struct {
	Phase  string `json:"phase"`
	Detail string `json:"detail,omitempty"`
}

// handleProgress streams a chat's phase events as server-sent events until
// the pipeline reports done or the client disconnects. The chat gateway
// uses this to relay "adding parts…" style updates to the technician.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chat_id")
	if chatID == "" {
		writeJSONError(w, http.StatusBadRequest, "chat_id_required")
		return
	}
	if s.cfg.Progress == nil {
		writeJSONError(w, http.StatusNotFound, "progress_disabled")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming_unsupported")
		return
	}

	sub, err := s.cfg.Progress.Subscribe(r.Context(), bus.PhaseTopic(chatID))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "subscribe_failed")
		return
	}
	defer func() { _ = sub.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case msg, open := <-sub.C():
			if !open {
				return
			}
			detail, _ := msg.Payload.(string)
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if err := enc.Encode(progressEvent{Phase: msg.Event, Detail: detail}); err != nil {
				return
			}
			if _, err := w.Write([]byte("\n")); err != nil {
				return
			}
			flusher.Flush()
			if msg.Event == string(domain.PhaseDone) {
				return
			}
		}
	}
}

func (s *Server) lastResult(ctx context.Context, chatID string) (domain.EstimateResult, bool) {
	if s.cfg.Sessions == nil || chatID == "" {
		return domain.EstimateResult{}, false
	}
	return s.cfg.Sessions.Last(ctx, chatID)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
