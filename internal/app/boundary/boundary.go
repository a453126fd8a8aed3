// Package boundary computes economic-day boundaries and drives the
// day-rollover reset. The day ends at a configurable wall-clock instant
// rather than midnight, so "today" for accrual purposes may start
// yesterday on the calendar.
package boundary

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/stepgate/stepgate/internal/domain"
)

const dayKeyLayout = "2006-01-02"

// CurrentDayStart returns the most recent boundary instant at or before
// now, in now's location. Hour 0, minute 0 degenerates to calendar
// midnight.
func CurrentDayStart(now time.Time, w domain.DayWindow) time.Time {
	h, m := clampWindow(w)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	if now.Before(cutoff) {
		return cutoff.AddDate(0, 0, -1)
	}
	return cutoff
}

// NextBoundary returns the first boundary instant strictly after now.
func NextBoundary(now time.Time, w domain.DayWindow) time.Time {
	h, m := clampWindow(w)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
	if now.Before(cutoff) {
		return cutoff
	}
	return cutoff.AddDate(0, 0, 1)
}

// DayKey labels the economic day containing now by the calendar date of
// its start instant, e.g. "2026-02-02".
func DayKey(now time.Time, w domain.DayWindow) string {
	return CurrentDayStart(now, w).Format(dayKeyLayout)
}

func clampWindow(w domain.DayWindow) (int, int) {
	h, m := w.DayEndHour, w.DayEndMinute
	if h < 0 {
		h = 0
	}
	if h > 23 {
		h = 23
	}
	if m < 0 {
		m = 0
	}
	if m > 59 {
		m = 59
	}
	return h, m
}

// Ledger is the slice of the budget ledger the scheduler drives.
type Ledger interface {
	Snapshot() domain.DailyEnergySnapshot
	Reset(dayKey string, now time.Time)
}

// Scheduler triggers exactly one ledger reset per boundary crossing.
// It compares the most recent boundary against the ledger's
// SnapshotTakenAt stamp, so a process suspended across several boundary
// instants still resets once, not once per missed boundary.
type Scheduler struct {
	mu      sync.Mutex
	window  domain.DayWindow
	ledger  Ledger
	log     *slog.Logger
	onReset func(dayKey string)
}

// NewScheduler validates the window and binds the scheduler to a ledger.
// onReset may be nil; when set it fires after each committed reset.
func NewScheduler(window domain.DayWindow, ledger Ledger, log *slog.Logger, onReset func(dayKey string)) (*Scheduler, error) {
	if err := window.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{window: window, ledger: ledger, log: log, onReset: onReset}, nil
}

// Window returns the active day window.
func (s *Scheduler) Window() domain.DayWindow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.window
}

// SetWindow changes the boundary instant. The new window applies on the
// next Evaluate call; a boundary already passed under the old setting is
// never re-triggered retroactively, because the stamp comparison only
// looks at the latest boundary under the current window.
func (s *Scheduler) SetWindow(w domain.DayWindow) error {
	if err := w.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window = w
	return nil
}

// Evaluate checks whether a boundary was crossed since the ledger's
// snapshot stamp and, if so, resets the ledger exactly once. Returns
// true when a reset was performed.
func (s *Scheduler) Evaluate(now time.Time) bool {
	s.mu.Lock()
	window := s.window
	s.mu.Unlock()

	lastBoundary := CurrentDayStart(now, window)
	takenAt := s.ledger.Snapshot().SnapshotTakenAt
	if !takenAt.Before(lastBoundary) {
		return false
	}

	key := DayKey(now, window)
	s.ledger.Reset(key, now)
	s.log.Info("day boundary crossed, ledger reset",
		"day_key", key,
		"boundary", lastBoundary,
		"previous_snapshot_at", takenAt)
	if s.onReset != nil {
		s.onReset(key)
	}
	return true
}

// Run evaluates immediately, then sleeps until just past each upcoming
// boundary. A short re-check interval also covers wall-clock jumps the
// timer cannot see (suspend, manual clock changes).
func (s *Scheduler) Run(ctx context.Context, recheck time.Duration) error {
	if recheck <= 0 {
		recheck = time.Minute
	}
	for {
		now := time.Now()
		s.Evaluate(now)

		wait := time.Until(NextBoundary(now, s.Window())) + time.Second
		if wait > recheck {
			wait = recheck
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
