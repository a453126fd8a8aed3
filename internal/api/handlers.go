package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stepgate/stepgate/internal/app/boundary"
	"github.com/stepgate/stepgate/internal/domain"
	"github.com/stepgate/stepgate/internal/infra/observability"
)

// ─── Status & Balance ───────────────────────────────────────────────────────

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	b := s.ledger.Balance()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "running",
		"day_key":       boundary.DayKey(now, s.sched.Window()),
		"next_boundary": boundary.NextBoundary(now, s.sched.Window()),
		"balance":       b,
		"tariff":        s.ledger.Tariff(),
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Balance())
}

func (s *Server) handleEnergy(w http.ResponseWriter, r *http.Request) {
	snap := s.ledger.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"base_energy_today":       snap.BaseEnergyToday,
		"move_points_today":       snap.MovePointsToday,
		"reboot_points_today":     snap.RebootPointsToday,
		"joy_points_today":        snap.JoyPointsToday,
		"bonus_steps":             snap.BonusSteps,
		"outer_world_bonus_steps": snap.OuterWorldBonusSteps,
		"server_granted_steps":    snap.ServerGrantedSteps,
		"snapshot_taken_at":       snap.SnapshotTakenAt,
	})
}

// ─── Ingestion ──────────────────────────────────────────────────────────────

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	var sample domain.ActivitySample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		writeError(w, http.StatusBadRequest, "invalid sample body: "+err.Error())
		return
	}
	if sample.StepsToday == nil && sample.SleepHours == nil {
		writeError(w, http.StatusBadRequest, "sample carries neither steps nor sleep")
		return
	}
	if sample.AsOf.IsZero() {
		sample.AsOf = time.Now()
	}
	s.slot.Put(sample)

	b, err := s.refresher.Refresh(r.Context())
	if err != nil {
		observability.SampleRefreshes.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "refresh failed: "+err.Error())
		return
	}
	observability.SampleRefreshes.WithLabelValues("ok").Inc()
	s.publishBalance(b)
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleGrants(w http.ResponseWriter, r *http.Request) {
	var grant domain.ExternalGrants
	if err := json.NewDecoder(r.Body).Decode(&grant); err != nil {
		writeError(w, http.StatusBadRequest, "invalid grant body: "+err.Error())
		return
	}

	b, err := s.refresher.ApplyGrant(r.Context(), grant)
	switch {
	case errors.Is(err, domain.ErrInvalidGrant):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, domain.ErrGrantReplayed):
		observability.GrantsApplied.WithLabelValues("replayed").Inc()
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, domain.ErrSampleUnavailable):
		// grant is recorded; points appear once a sample arrives
		observability.GrantsApplied.WithLabelValues("applied").Inc()
		observability.SampleRefreshes.WithLabelValues("unavailable").Inc()
		writeJSON(w, http.StatusAccepted, b)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	observability.GrantsApplied.WithLabelValues("applied").Inc()
	s.publishBalance(b)
	writeJSON(w, http.StatusOK, b)
}

// ─── Gate ───────────────────────────────────────────────────────────────────

type gateRequest struct {
	TargetApp string `json:"target_app"`
}

func (s *Server) handleGateRequest(w http.ResponseWriter, r *http.Request) {
	var req gateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetApp == "" {
		writeError(w, http.StatusBadRequest, "target_app is required")
		return
	}

	spentBefore := s.ledger.Balance().SpentSteps
	d, err := s.gate.RequestAccess(req.TargetApp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	after := s.ledger.Balance()
	if d.Allowed {
		observability.GateDecisions.WithLabelValues("allow").Inc()
		observability.TokensIssued.Inc()
		observability.SpentSteps.Add(float64(after.SpentSteps - spentBefore))
	} else {
		observability.GateDecisions.WithLabelValues("block").Inc()
	}
	s.publishBalance(after)
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDayPass(w http.ResponseWriter, r *http.Request) {
	var req gateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetApp == "" {
		writeError(w, http.StatusBadRequest, "target_app is required")
		return
	}

	err := s.gate.BuyDayPass(req.TargetApp)
	switch {
	case errors.Is(err, domain.ErrInvalidTariff):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, domain.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	observability.DayPassesGranted.Inc()
	b := s.ledger.Balance()
	s.publishBalance(b)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"target_app": req.TargetApp,
		"day_pass":   true,
		"balance":    b,
	})
}

func (s *Server) handleOpensLeft(w http.ResponseWriter, r *http.Request) {
	targetApp := r.URL.Query().Get("target_app")
	if targetApp == "" {
		writeError(w, http.StatusBadRequest, "target_app is required")
		return
	}
	opens, unlimited := s.gate.OpensLeft(targetApp)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"target_app": targetApp,
		"opens_left": opens,
		"unlimited":  unlimited,
		"entry_cost": s.gate.EntryCost(targetApp),
	})
}

// ─── Tokens ─────────────────────────────────────────────────────────────────

func (s *Server) handleTokenValidate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token_id": id,
		"state":    s.tokens.Validate(id),
	})
}

func (s *Server) handleTokenConsume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tok, err := s.tokens.Consume(id)
	switch {
	case errors.Is(err, domain.ErrTokenUnknown):
		observability.TokenConsumes.WithLabelValues("unknown").Inc()
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, domain.ErrTokenExpired):
		observability.TokenConsumes.WithLabelValues("expired").Inc()
		writeError(w, http.StatusGone, err.Error())
		return
	case errors.Is(err, domain.ErrTokenConsumed):
		observability.TokenConsumes.WithLabelValues("already_consumed").Inc()
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	observability.TokenConsumes.WithLabelValues("consumed").Inc()
	writeJSON(w, http.StatusOK, tok)
}

// ─── Configuration ──────────────────────────────────────────────────────────

type configView struct {
	StepsPerMinute   int64 `json:"steps_per_minute"`
	EntryCostSteps   int64 `json:"entry_cost_steps"`
	DayEndHour       int   `json:"day_end_hour"`
	DayEndMinute     int   `json:"day_end_minute"`
	DayPassCostSteps int64 `json:"day_pass_cost_steps"`
	TokenTTLSeconds  int64 `json:"token_ttl_seconds"`
}

func (s *Server) currentConfig() configView {
	tariff := s.ledger.Tariff()
	window := s.sched.Window()
	return configView{
		StepsPerMinute:   tariff.StepsPerMinute,
		EntryCostSteps:   tariff.EntryCostSteps,
		DayEndHour:       window.DayEndHour,
		DayEndMinute:     window.DayEndMinute,
		DayPassCostSteps: s.gate.DayPassCost(),
		TokenTTLSeconds:  int64(s.tokens.TTL().Seconds()),
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.currentConfig())
}

type configUpdate struct {
	StepsPerMinute *int64 `json:"steps_per_minute"`
	EntryCostSteps *int64 `json:"entry_cost_steps"`
	DayEndHour     *int   `json:"day_end_hour"`
	DayEndMinute   *int   `json:"day_end_minute"`
}

// handlePutConfig applies administered changes. Partial updates: absent
// fields keep their current value. Tariff changes never retroactively
// alter past spend records; window changes apply on the next evaluation.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var upd configUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid config body: "+err.Error())
		return
	}

	tariff := s.ledger.Tariff()
	if upd.StepsPerMinute != nil {
		tariff.StepsPerMinute = *upd.StepsPerMinute
	}
	if upd.EntryCostSteps != nil {
		tariff.EntryCostSteps = *upd.EntryCostSteps
	}
	if err := s.ledger.SetTariff(tariff); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	window := s.sched.Window()
	if upd.DayEndHour != nil {
		window.DayEndHour = *upd.DayEndHour
	}
	if upd.DayEndMinute != nil {
		window.DayEndMinute = *upd.DayEndMinute
	}
	if err := s.sched.SetWindow(window); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.log.Info("config updated",
		"steps_per_minute", tariff.StepsPerMinute,
		"entry_cost_steps", tariff.EntryCostSteps,
		"day_end_hour", window.DayEndHour,
		"day_end_minute", window.DayEndMinute)
	writeJSON(w, http.StatusOK, s.currentConfig())
}

// ─── Audit ──────────────────────────────────────────────────────────────────

func (s *Server) handleSpending(w http.ResponseWriter, r *http.Request) {
	dayKey := r.URL.Query().Get("day")
	if dayKey == "" {
		dayKey = boundary.DayKey(time.Now(), s.sched.Window())
	}
	byApp, err := s.db.SpentByApp(dayKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"day_key": dayKey,
		"apps":    byApp,
	})
}

func (s *Server) publishBalance(b domain.BalanceSummary) {
	observability.SetBalance(b.TotalStepsBalance, b.RemainingMinutes)
	if s.hub != nil {
		s.hub.BroadcastBalance(b)
	}
}
