// Package accrual turns raw activity samples and external grants into
// per-category energy points. The engine is a pure mapping from
// (sample, grants, weights) to a snapshot — no internal state, so repeated
// calls with the same or a larger sample never double-count.
package accrual

import (
	"time"

	"github.com/stepgate/stepgate/internal/domain"
)

// Engine computes daily energy snapshots from activity samples.
type Engine struct {
	weights domain.AccrualWeights
}

// New creates an accrual engine with the given curve weights.
func New(weights domain.AccrualWeights) *Engine {
	return &Engine{weights: weights}
}

// Weights returns the active curve parameters.
func (e *Engine) Weights() domain.AccrualWeights { return e.weights }

// Recalculate derives the point value of today's activity. It is a pure
// function of the current sample: the result replaces, never increments,
// prior accrual. Samples missing both steps and sleep fail with
// ErrSampleUnavailable so callers keep the last known snapshot.
//
// Curve: steps and sleep each ratio-capped against their daily target,
// selections capped per category; the base total saturates at
// MaxBaseEnergy. The outer-world and server grant channels are carried
// through unmodified and remain separately auditable; only the generic
// bonus channel is capped against the remaining base headroom.
func (e *Engine) Recalculate(sample domain.ActivitySample, grants domain.ExternalGrants, now time.Time) (domain.DailyEnergySnapshot, error) {
	if sample.StepsToday == nil && sample.SleepHours == nil {
		return domain.DailyEnergySnapshot{}, domain.ErrSampleUnavailable
	}

	var steps, sleep float64
	if sample.StepsToday != nil {
		steps = *sample.StepsToday
	}
	if sample.SleepHours != nil {
		sleep = *sample.SleepHours
	}

	w := e.weights
	stepsPts := ratioPoints(steps, w.StepsTarget, w.StepsMaxPoints)
	sleepPts := ratioPoints(sleep, w.SleepTargetHours, w.SleepMaxPoints)

	move := stepsPts + e.selectionPoints(sample.MoveSelections)
	reboot := sleepPts + e.selectionPoints(sample.RebootSelections)
	joy := e.selectionPoints(sample.JoySelections)

	base := move + reboot + joy
	if base > w.MaxBaseEnergy {
		base = w.MaxBaseEnergy
	}

	snap := domain.DailyEnergySnapshot{
		BaseEnergyToday:      base,
		MovePointsToday:      move,
		RebootPointsToday:    reboot,
		JoyPointsToday:       joy,
		OuterWorldBonusSteps: grants.OuterWorldBonus,
		ServerGrantedSteps:   grants.ServerGrantedSteps,
		BonusSteps:           e.cappedBonus(base, grants.BonusSteps),
		SnapshotTakenAt:      now,
	}
	return snap, nil
}

// cappedBonus caps the generic bonus channel at MaxBonusEnergy and at the
// headroom left under MaxBaseEnergy. The other grant channels pass through
// uncapped and keep their full audited values.
func (e *Engine) cappedBonus(base, bonus int64) int64 {
	w := e.weights
	if bonus > w.MaxBonusEnergy {
		bonus = w.MaxBonusEnergy
	}
	headroom := w.MaxBaseEnergy - base
	if headroom < 0 {
		headroom = 0
	}
	if bonus > headroom {
		bonus = headroom
	}
	return bonus
}

func (e *Engine) selectionPoints(count int) int64 {
	if count < 0 {
		count = 0
	}
	if count > e.weights.MaxSelections {
		count = e.weights.MaxSelections
	}
	return int64(count) * e.weights.SelectionPoints
}

// ratioPoints maps value onto 0..maxPoints linearly against target,
// clamped at both ends. The curve is monotonic and capped; floor keeps
// point totals integral.
func ratioPoints(value, target float64, maxPoints int64) int64 {
	if target <= 0 || value <= 0 {
		return 0
	}
	if value > target {
		value = target
	}
	return int64(value / target * float64(maxPoints))
}
