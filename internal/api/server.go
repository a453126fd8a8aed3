// Package api provides the HTTP server for StepGate. It exposes the
// balance, sample and grant ingestion, the access gate, token handoff,
// and the administered configuration surface.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stepgate/stepgate/internal/app/boundary"
	"github.com/stepgate/stepgate/internal/app/gate"
	"github.com/stepgate/stepgate/internal/app/ledger"
	"github.com/stepgate/stepgate/internal/app/refresh"
	"github.com/stepgate/stepgate/internal/app/token"
	"github.com/stepgate/stepgate/internal/infra/sqlite"
)

// Server is the StepGate HTTP API server.
type Server struct {
	ledger         *ledger.Ledger
	gate           *gate.Gate
	tokens         *token.Authority
	refresher      *refresh.Refresher
	slot           *refresh.Slot
	sched          *boundary.Scheduler
	db             *sqlite.DB // nil disables the audit endpoint
	hub            *BalanceHub
	metricsEnabled bool
	log            *slog.Logger
}

// NewServer wires the API over the engine components. db may be nil.
func NewServer(l *ledger.Ledger, g *gate.Gate, tokens *token.Authority, refresher *refresh.Refresher, slot *refresh.Slot, sched *boundary.Scheduler, db *sqlite.DB, hub *BalanceHub, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		ledger:    l,
		gate:      g,
		tokens:    tokens,
		refresher: refresher,
		slot:      slot,
		sched:     sched,
		db:        db,
		hub:       hub,
		log:       log,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// Hub returns the live balance hub (for broadcasting events).
func (s *Server) Hub() *BalanceHub { return s.hub }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Minute))
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/balance", s.handleBalance)
		r.Get("/energy", s.handleEnergy)
		r.Post("/samples", s.handleSamples)
		r.Post("/grants", s.handleGrants)

		r.Post("/gate/request", s.handleGateRequest)
		r.Post("/gate/daypass", s.handleDayPass)
		r.Get("/gate/opens", s.handleOpensLeft)

		r.Get("/tokens/{id}", s.handleTokenValidate)
		r.Post("/tokens/{id}/consume", s.handleTokenConsume)

		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)

		if s.db != nil {
			r.Get("/spending", s.handleSpending)
		}
		if s.hub != nil {
			r.Get("/events", s.hub.HandleEventsSSE)
		}
	})

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for local development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
