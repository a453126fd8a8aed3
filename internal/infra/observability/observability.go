// Package observability exposes Prometheus metrics for the engine:
// gate decisions, spends, day resets, token lifecycle, and the live
// balance gauges.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Gate Metrics ───────────────────────────────────────────────────────────

// GateDecisions counts access decisions by outcome (allow, block).
var GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stepgate",
	Subsystem: "gate",
	Name:      "decisions_total",
	Help:      "Total gate access decisions by outcome.",
}, []string{"outcome"})

// DayPassesGranted counts purchased day passes.
var DayPassesGranted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stepgate",
	Subsystem: "gate",
	Name:      "day_passes_total",
	Help:      "Total day passes purchased.",
})

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// BalanceSteps tracks the current total steps balance.
var BalanceSteps = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "stepgate",
	Subsystem: "ledger",
	Name:      "balance_steps",
	Help:      "Current spendable steps balance.",
})

// RemainingMinutes tracks the current remaining minutes.
var RemainingMinutes = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "stepgate",
	Subsystem: "ledger",
	Name:      "remaining_minutes",
	Help:      "Current remaining minutes at the active tariff.",
})

// SpentSteps counts steps spent since process start.
var SpentSteps = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stepgate",
	Subsystem: "ledger",
	Name:      "spent_steps_total",
	Help:      "Total steps spent.",
})

// DayResets counts day-boundary ledger resets.
var DayResets = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stepgate",
	Subsystem: "ledger",
	Name:      "day_resets_total",
	Help:      "Total day-boundary resets.",
})

// GrantsApplied counts external grants by result (applied, replayed).
var GrantsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stepgate",
	Subsystem: "ledger",
	Name:      "grants_total",
	Help:      "Total external grant applications by result.",
}, []string{"result"})

// ─── Token Metrics ──────────────────────────────────────────────────────────

// TokensIssued counts minted handoff tokens.
var TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stepgate",
	Subsystem: "token",
	Name:      "issued_total",
	Help:      "Total handoff tokens issued.",
})

// TokenConsumes counts consume attempts by result
// (consumed, expired, unknown, already_consumed).
var TokenConsumes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stepgate",
	Subsystem: "token",
	Name:      "consumes_total",
	Help:      "Total token consume attempts by result.",
}, []string{"result"})

// ─── Refresh Metrics ────────────────────────────────────────────────────────

// SampleRefreshes counts snapshot refreshes by result (ok, unavailable, error).
var SampleRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stepgate",
	Subsystem: "refresh",
	Name:      "samples_total",
	Help:      "Total sample refreshes by result.",
}, []string{"result"})

// SetBalance updates both balance gauges from a summary.
func SetBalance(totalSteps, remainingMinutes int64) {
	BalanceSteps.Set(float64(totalSteps))
	RemainingMinutes.Set(float64(remainingMinutes))
}
