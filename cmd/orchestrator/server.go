// cmd/orchestrator/server.go
package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"commerce-orchestrator/internal/common/logger"
	"commerce-orchestrator/internal/cost"
	"commerce-orchestrator/internal/handoff"
	"commerce-orchestrator/internal/hybrid"
	"commerce-orchestrator/internal/llm"
	"commerce-orchestrator/internal/models"
	"commerce-orchestrator/internal/orchestrator"
)

// apiServer exposes the inbound message endpoint, operator controls and
// introspection surfaces.
type apiServer struct {
	orch       *orchestrator.Orchestrator
	arbiter    *hybrid.Arbiter
	tracker    *cost.Tracker
	alerts     models.AlertRepository
	router     *llm.Router
	lifecycle  *handoff.Lifecycle
	cleanup    *orchestrator.Cleanup
	budgetEval *cost.Scheduler
	logger     logger.Logger
}

func newAPIServer(
	orch *orchestrator.Orchestrator,
	arbiter *hybrid.Arbiter,
	tracker *cost.Tracker,
	alerts models.AlertRepository,
	router *llm.Router,
	lifecycle *handoff.Lifecycle,
	cleanup *orchestrator.Cleanup,
	budgetEval *cost.Scheduler,
	log logger.Logger,
) *apiServer {
	return &apiServer{
		orch:       orch,
		arbiter:    arbiter,
		tracker:    tracker,
		alerts:     alerts,
		router:     router,
		lifecycle:  lifecycle,
		cleanup:    cleanup,
		budgetEval: budgetEval,
		logger:     log.WithFields(map[string]interface{}{"component": "api"}),
	}
}

func (s *apiServer) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/messages", s.handleInbound)
	mux.HandleFunc("POST /v1/conversations/{id}/operator-message", s.handleOperatorMessage)
	mux.HandleFunc("POST /v1/conversations/{id}/resolve", s.handleResolve)
	mux.HandleFunc("POST /v1/conversations/{id}/takeover", s.handleTakeover)
	mux.HandleFunc("DELETE /v1/conversations/{id}/takeover", s.handleRelease)
	mux.HandleFunc("GET /v1/merchants/{id}/spend", s.handleSpend)
	mux.HandleFunc("GET /v1/merchants/{id}/alerts", s.handleAlerts)
	mux.HandleFunc("POST /v1/alerts/{id}/read", s.handleMarkRead)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	// pprof registers itself on the default mux
	mux.Handle("/debug/", http.DefaultServeMux)

	return mux
}

func (s *apiServer) handleInbound(w http.ResponseWriter, r *http.Request) {
	var msg models.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if msg.MerchantID == "" || msg.SenderID == "" || msg.Text == "" {
		writeError(w, http.StatusBadRequest, "merchantId, senderId and text are required")
		return
	}
	if msg.Channel == "" {
		msg.Channel = "web"
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	result, err := s.orch.ProcessMessage(r.Context(), &msg)
	if err != nil {
		s.logger.Error("turn failed", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, "message processing failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleOperatorMessage(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.RecordOperatorMessage(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, "operator message failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

func (s *apiServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.ResolveHandoff(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, "resolve failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

func (s *apiServer) handleTakeover(w http.ResponseWriter, r *http.Request) {
	state, err := s.arbiter.Takeover(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "takeover failed")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *apiServer) handleRelease(w http.ResponseWriter, r *http.Request) {
	if err := s.arbiter.Release(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, "release failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "released"})
}

func (s *apiServer) handleSpend(w http.ResponseWriter, r *http.Request) {
	breakdown, err := s.tracker.ProviderBreakdown(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "spend lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"merchantId": r.PathValue("id"),
		"period":     models.BillingPeriod(time.Now()),
		"providers":  breakdown,
	})
}

func (s *apiServer) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.alerts.Unread(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "alert lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *apiServer) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.alerts.MarkRead(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, "mark read failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "healthy",
		"time":       time.Now().Format(time.RFC3339),
		"pipeline":   s.orch.Status(),
		"lifecycle":  s.lifecycle.Status(),
		"cleanup":    s.cleanup.Status(),
		"budgetEval": s.budgetEval.Status(),
		"providers":  s.router.Health(r.Context()),
	})
}

func (s *apiServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
