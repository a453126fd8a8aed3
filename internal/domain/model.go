// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import (
	"fmt"
	"time"
)

// ─── Energy Categories ──────────────────────────────────────────────────────

// EnergyCategory is one of the three closed energy channels.
// Categories accrue independently and never borrow from each other.
type EnergyCategory string

const (
	CategoryMove   EnergyCategory = "move"   // body / physical activity
	CategoryReboot EnergyCategory = "reboot" // mind / recovery
	CategoryJoy    EnergyCategory = "joy"    // heart / joy
)

// Categories returns all energy categories in display order.
func Categories() []EnergyCategory {
	return []EnergyCategory{CategoryMove, CategoryReboot, CategoryJoy}
}

// Valid reports whether c is one of the three known categories.
func (c EnergyCategory) Valid() bool {
	switch c {
	case CategoryMove, CategoryReboot, CategoryJoy:
		return true
	}
	return false
}

// ─── Activity Input ─────────────────────────────────────────────────────────

// ActivitySample is the raw health-store reading for "today".
// Steps and sleep are monotonically non-decreasing proxies over a day.
// A missing field means "use last known", never zero.
type ActivitySample struct {
	StepsToday *float64  `json:"steps_today,omitempty"`
	SleepHours *float64  `json:"sleep_hours,omitempty"`
	AsOf       time.Time `json:"as_of"`

	// Confirmed activity selections per category, capped by the tariff
	// table when converted to points.
	MoveSelections   int `json:"move_selections"`
	RebootSelections int `json:"reboot_selections"`
	JoySelections    int `json:"joy_selections"`
}

// ExternalGrants carries bonus steps granted outside normal accrual.
// The three channels are independent and additive; each application is
// idempotent by GrantID.
type ExternalGrants struct {
	GrantID            string `json:"grant_id"`
	BonusSteps         int64  `json:"bonus_steps"`
	OuterWorldBonus    int64  `json:"outer_world_bonus_steps"`
	ServerGrantedSteps int64  `json:"server_granted_steps"`
}

// ─── Daily Energy Snapshot ──────────────────────────────────────────────────

// DailyEnergySnapshot is the ledger-owned balance state for the current
// economic day. All point fields are non-negative; spent counters only
// ever decrease through a day-boundary reset.
type DailyEnergySnapshot struct {
	BaseEnergyToday   int64 `json:"base_energy_today"`
	MovePointsToday   int64 `json:"move_points_today"`
	RebootPointsToday int64 `json:"reboot_points_today"`
	JoyPointsToday    int64 `json:"joy_points_today"`

	// Grant channels. Summed into the total balance but tracked
	// separately for audit and display.
	BonusSteps           int64 `json:"bonus_steps"`
	OuterWorldBonusSteps int64 `json:"outer_world_bonus_steps"`
	ServerGrantedSteps   int64 `json:"server_granted_steps"`

	SpentSteps   int64 `json:"spent_steps"`
	SpentMinutes int64 `json:"spent_minutes"`

	SnapshotTakenAt time.Time `json:"snapshot_taken_at"`
}

// TotalStepsBalance is the spendable balance:
// base + all grant channels − spent.
func (s DailyEnergySnapshot) TotalStepsBalance() int64 {
	return s.BaseEnergyToday + s.BonusSteps + s.OuterWorldBonusSteps +
		s.ServerGrantedSteps - s.SpentSteps
}

// CategoryPoints returns the accrued points for a single category.
func (s DailyEnergySnapshot) CategoryPoints(c EnergyCategory) int64 {
	switch c {
	case CategoryMove:
		return s.MovePointsToday
	case CategoryReboot:
		return s.RebootPointsToday
	case CategoryJoy:
		return s.JoyPointsToday
	}
	return 0
}

// ─── Tariff ─────────────────────────────────────────────────────────────────

// TariffConfig converts accrued steps into spendable minutes and prices a
// single gated app entry. Immutable per session; administrative changes
// never retroactively alter past spend records.
type TariffConfig struct {
	StepsPerMinute int64 `json:"steps_per_minute" toml:"steps_per_minute"`
	EntryCostSteps int64 `json:"entry_cost_steps" toml:"entry_cost_steps"`
}

// Validate rejects tariffs the ledger must never see.
func (t TariffConfig) Validate() error {
	if t.StepsPerMinute <= 0 {
		return fmt.Errorf("%w: steps_per_minute must be > 0, got %d", ErrInvalidTariff, t.StepsPerMinute)
	}
	if t.EntryCostSteps < 0 {
		return fmt.Errorf("%w: entry_cost_steps must be >= 0, got %d", ErrInvalidTariff, t.EntryCostSteps)
	}
	return nil
}

// UnlimitedEntry reports whether gate entries are free under this tariff.
func (t TariffConfig) UnlimitedEntry() bool { return t.EntryCostSteps == 0 }

// TariffPreset is a named tariff the settings UI can offer.
type TariffPreset string

const (
	TariffFree   TariffPreset = "free"
	TariffEasy   TariffPreset = "easy"
	TariffMedium TariffPreset = "medium"
	TariffHard   TariffPreset = "hard"
)

// Config returns the concrete tariff for a preset.
// Unknown presets fall back to medium.
func (p TariffPreset) Config() TariffConfig {
	switch p {
	case TariffFree:
		return TariffConfig{StepsPerMinute: 100, EntryCostSteps: 0}
	case TariffEasy:
		return TariffConfig{StepsPerMinute: 100, EntryCostSteps: 100}
	case TariffHard:
		return TariffConfig{StepsPerMinute: 1000, EntryCostSteps: 1000}
	default:
		return TariffConfig{StepsPerMinute: 500, EntryCostSteps: 500}
	}
}

// AccrualWeights are the per-metric activity-to-point curve parameters.
// Each metric is capped: steps and sleep against their daily targets,
// selections against MaxSelections per category.
type AccrualWeights struct {
	StepsTarget      float64 `json:"steps_target" toml:"steps_target"`
	StepsMaxPoints   int64   `json:"steps_max_points" toml:"steps_max_points"`
	SleepTargetHours float64 `json:"sleep_target_hours" toml:"sleep_target_hours"`
	SleepMaxPoints   int64   `json:"sleep_max_points" toml:"sleep_max_points"`
	SelectionPoints  int64   `json:"selection_points" toml:"selection_points"`
	MaxSelections    int     `json:"max_selections" toml:"max_selections"`
	MaxBaseEnergy    int64   `json:"max_base_energy" toml:"max_base_energy"`
	MaxBonusEnergy   int64   `json:"max_bonus_energy" toml:"max_bonus_energy"`
}

// DefaultAccrualWeights returns the 5×20=100 curve:
// steps and sleep worth up to 20 points each against 10k-step / 8h-sleep
// targets, plus up to 4 selections × 5 points in each category.
func DefaultAccrualWeights() AccrualWeights {
	return AccrualWeights{
		StepsTarget:      10_000,
		StepsMaxPoints:   20,
		SleepTargetHours: 8,
		SleepMaxPoints:   20,
		SelectionPoints:  5,
		MaxSelections:    4,
		MaxBaseEnergy:    100,
		MaxBonusEnergy:   50,
	}
}

// ─── Day Window ─────────────────────────────────────────────────────────────

// DayWindow defines the wall-clock instant that closes the economic day.
// Hour 0, minute 0 means plain midnight.
type DayWindow struct {
	DayEndHour   int `json:"day_end_hour" toml:"day_end_hour"`
	DayEndMinute int `json:"day_end_minute" toml:"day_end_minute"`
}

// Validate bounds the window to a real wall-clock time.
func (w DayWindow) Validate() error {
	if w.DayEndHour < 0 || w.DayEndHour > 23 {
		return fmt.Errorf("%w: day_end_hour must be 0..23, got %d", ErrInvalidDayWindow, w.DayEndHour)
	}
	if w.DayEndMinute < 0 || w.DayEndMinute > 59 {
		return fmt.Errorf("%w: day_end_minute must be 0..59, got %d", ErrInvalidDayWindow, w.DayEndMinute)
	}
	return nil
}

// ─── Handoff Token ──────────────────────────────────────────────────────────

// TokenState is the lifecycle state reported by Validate.
type TokenState string

const (
	TokenValid    TokenState = "valid"
	TokenExpired  TokenState = "expired"
	TokenUnknown  TokenState = "unknown"
	TokenConsumed TokenState = "already_consumed"
)

// HandoffToken proves a confirmed, paid app-open. Short-lived and
// single-use: the interception layer consumes it exactly once before
// permitting navigation into the target app.
type HandoffToken struct {
	TokenID       string    `json:"token_id"`
	TargetAppName string    `json:"target_app_name"`
	CreatedAt     time.Time `json:"created_at"`
}

// ExpiredAfter reports whether the token has outlived ttl at now.
func (t HandoffToken) ExpiredAfter(ttl time.Duration, now time.Time) bool {
	return now.Sub(t.CreatedAt) > ttl
}

// ─── Gate Decision ──────────────────────────────────────────────────────────

// BlockReason explains a denied gate request.
type BlockReason string

const (
	BlockInsufficientBalance BlockReason = "insufficient_balance"
)

// GateDecision is the outcome of a single access request.
// Allowed carries a freshly minted token; blocked carries the remaining
// balance and the shortfall so callers can explain how many more steps
// are needed.
type GateDecision struct {
	Allowed        bool          `json:"allowed"`
	Token          *HandoffToken `json:"token,omitempty"`
	Reason         BlockReason   `json:"reason,omitempty"`
	RemainingSteps int64         `json:"remaining_steps"`
	StepsShort     int64         `json:"steps_short,omitempty"`
}

// ─── Balance View ───────────────────────────────────────────────────────────

// BalanceSummary is the read-only balance view exposed to the UI.
type BalanceSummary struct {
	RemainingMinutes  int64 `json:"remaining_minutes"`
	TotalStepsBalance int64 `json:"total_steps_balance"`
	SpentMinutes      int64 `json:"spent_minutes"`
	SpentSteps        int64 `json:"spent_steps"`
	CarriedSteps      int64 `json:"carried_steps"` // leftover below one minute, never discarded
}
