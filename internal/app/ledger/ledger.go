// Package ledger owns the daily budget balance. All mutation goes through
// Spend/SpendSteps/Credit/Reset under a single lock; nothing else writes
// snapshot fields, which keeps the non-negative balance invariant local
// to this file.
package ledger

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/stepgate/stepgate/internal/domain"
)

// Ledger is the single source of truth for the current economic day's
// balance. Safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	snap    domain.DailyEnergySnapshot
	tariff  domain.TariffConfig
	store   domain.SnapshotStore
	journal domain.SpendJournal
	log     *slog.Logger
}

// New creates a ledger with an empty snapshot. store and journal may be
// nil; persistence and audit are then skipped. Store and journal failures
// are logged but never fail the balance operation itself.
func New(tariff domain.TariffConfig, store domain.SnapshotStore, journal domain.SpendJournal, log *slog.Logger) (*Ledger, error) {
	if err := tariff.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{tariff: tariff, store: store, journal: journal, log: log}, nil
}

// Tariff returns the active conversion config.
func (l *Ledger) Tariff() domain.TariffConfig {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tariff
}

// SetTariff swaps the conversion config. Past spend records are untouched;
// only future conversions use the new rate.
func (l *Ledger) SetTariff(t domain.TariffConfig) error {
	if err := t.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tariff = t
	return nil
}

// Balance returns the current read-only balance view. Leftover steps
// below one minute are reported as carried, never discarded.
func (l *Ledger) Balance() domain.BalanceSummary {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked()
}

func (l *Ledger) balanceLocked() domain.BalanceSummary {
	total := l.snap.TotalStepsBalance()
	return domain.BalanceSummary{
		RemainingMinutes:  total / l.tariff.StepsPerMinute,
		TotalStepsBalance: total,
		SpentMinutes:      l.snap.SpentMinutes,
		SpentSteps:        l.snap.SpentSteps,
		CarriedSteps:      total % l.tariff.StepsPerMinute,
	}
}

// Spend deducts whole minutes from the balance. All-or-nothing: on
// ErrInsufficientBalance no field changes.
func (l *Ledger) Spend(minutes int64) error {
	if minutes < 0 {
		return fmt.Errorf("%w: %d minutes", domain.ErrNegativeSpend, minutes)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	remaining := l.snap.TotalStepsBalance() / l.tariff.StepsPerMinute
	if minutes > remaining {
		return fmt.Errorf("%w: want %d minutes, have %d", domain.ErrInsufficientBalance, minutes, remaining)
	}
	steps := minutes * l.tariff.StepsPerMinute
	l.snap.SpentSteps += steps
	l.snap.SpentMinutes += minutes
	l.journalSpendLocked("", steps, minutes)
	l.persistLocked()
	return nil
}

// SpendSteps deducts a raw step amount, typically a gate entry cost.
// The minute equivalent is recorded at the current conversion rate.
func (l *Ledger) SpendSteps(targetApp string, steps int64) error {
	if steps < 0 {
		return fmt.Errorf("%w: %d steps", domain.ErrNegativeSpend, steps)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if steps > l.snap.TotalStepsBalance() {
		return fmt.Errorf("%w: want %d steps, have %d", domain.ErrInsufficientBalance, steps, l.snap.TotalStepsBalance())
	}
	minutes := steps / l.tariff.StepsPerMinute
	l.snap.SpentSteps += steps
	l.snap.SpentMinutes += minutes
	l.journalSpendLocked(targetApp, steps, minutes)
	l.persistLocked()
	return nil
}

// Credit merges a fresh accrual snapshot. Accrual and grant fields are
// replaced with the engine's latest pure computation; spent counters are
// preserved untouched, so repeated credits with an unchanged sample are
// idempotent. A credit that would push the balance negative is rejected
// whole.
//
// The boundary stamp is preserved too: once set, only Reset and Restore
// may move SnapshotTakenAt, so a credit landing just after a crossed day
// boundary cannot slide the ledger past it and suppress the reset.
func (l *Ledger) Credit(snap domain.DailyEnergySnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := snap
	next.SpentSteps = l.snap.SpentSteps
	next.SpentMinutes = l.snap.SpentMinutes
	if !l.snap.SnapshotTakenAt.IsZero() {
		next.SnapshotTakenAt = l.snap.SnapshotTakenAt
	}
	if next.TotalStepsBalance() < 0 {
		return fmt.Errorf("%w: credit would leave balance %d", domain.ErrInsufficientBalance, next.TotalStepsBalance())
	}
	l.snap = next
	l.persistLocked()
	return nil
}

// Reset closes the economic day: every accrual and spend field is zeroed
// and the closed balance is journaled under dayKey. This is the only
// operation permitted to decrease the spent counters.
func (l *Ledger) Reset(dayKey string, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	closed := l.snap.TotalStepsBalance()
	l.snap = domain.DailyEnergySnapshot{SnapshotTakenAt: now}
	if l.journal != nil {
		if err := l.journal.RecordReset(dayKey, closed); err != nil {
			l.log.Error("journal reset failed", "day_key", dayKey, "error", err)
		}
	}
	l.persistLocked()
}

// Snapshot returns a copy of the current snapshot, including
// SnapshotTakenAt used by the day-boundary scheduler.
func (l *Ledger) Snapshot() domain.DailyEnergySnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap
}

// Restore loads a previously persisted snapshot verbatim, so a restart
// mid-day does not reset the budget.
func (l *Ledger) Restore(snap domain.DailyEnergySnapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap = snap
}

func (l *Ledger) journalSpendLocked(targetApp string, steps, minutes int64) {
	if l.journal == nil {
		return
	}
	if err := l.journal.RecordSpend(targetApp, steps, minutes, l.snap.TotalStepsBalance()); err != nil {
		l.log.Error("journal spend failed", "target_app", targetApp, "error", err)
	}
}

func (l *Ledger) persistLocked() {
	if l.store == nil {
		return
	}
	if err := l.store.SaveSnapshot(l.snap); err != nil {
		l.log.Error("snapshot persist failed", "error", err)
	}
}
