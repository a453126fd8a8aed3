package boundary

import (
	"testing"
	"time"

	"github.com/stepgate/stepgate/internal/app/ledger"
	"github.com/stepgate/stepgate/internal/domain"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, 2, 3, hour, minute, 0, 0, time.UTC)
}

func TestCurrentDayStart(t *testing.T) {
	w := domain.DayWindow{DayEndHour: 4}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before cutoff belongs to yesterday", at(3, 0), time.Date(2026, 2, 2, 4, 0, 0, 0, time.UTC)},
		{"after cutoff belongs to today", at(5, 0), at(4, 0)},
		{"exactly at cutoff belongs to today", at(4, 0), at(4, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CurrentDayStart(tt.now, w); !got.Equal(tt.want) {
				t.Errorf("CurrentDayStart = %v, want %v", got, tt.want)
			}
		})
	}

	t.Run("midnight window uses start of day", func(t *testing.T) {
		got := CurrentDayStart(at(12, 0), domain.DayWindow{})
		if want := at(0, 0); !got.Equal(want) {
			t.Errorf("CurrentDayStart = %v, want %v", got, want)
		}
	})
}

func TestNextBoundary(t *testing.T) {
	w := domain.DayWindow{DayEndHour: 4}

	if got, want := NextBoundary(at(3, 0), w), at(4, 0); !got.Equal(want) {
		t.Errorf("before cutoff: next = %v, want %v", got, want)
	}
	if got, want := NextBoundary(at(5, 0), w), time.Date(2026, 2, 4, 4, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("after cutoff: next = %v, want %v", got, want)
	}
}

func TestDayKey(t *testing.T) {
	w := domain.DayWindow{DayEndHour: 4}
	if got := DayKey(at(3, 0), w); got != "2026-02-02" {
		t.Errorf("DayKey before cutoff = %q, want 2026-02-02", got)
	}
	if got := DayKey(at(5, 0), w); got != "2026-02-03" {
		t.Errorf("DayKey after cutoff = %q, want 2026-02-03", got)
	}
}

// fakeLedger records resets without real balance state.
type fakeLedger struct {
	takenAt time.Time
	resets  []string
}

func (f *fakeLedger) Snapshot() domain.DailyEnergySnapshot {
	return domain.DailyEnergySnapshot{SnapshotTakenAt: f.takenAt}
}

func (f *fakeLedger) Reset(dayKey string, now time.Time) {
	f.resets = append(f.resets, dayKey)
	f.takenAt = now
}

func TestScheduler_ExactlyOneReset(t *testing.T) {
	fl := &fakeLedger{takenAt: at(20, 59)}
	s, err := NewScheduler(domain.DayWindow{DayEndHour: 21}, fl, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	if !s.Evaluate(at(21, 1)) {
		t.Fatal("first evaluation after boundary did not reset")
	}
	if s.Evaluate(at(21, 5)) {
		t.Fatal("second evaluation reset again")
	}
	if len(fl.resets) != 1 {
		t.Fatalf("resets = %d, want 1", len(fl.resets))
	}
}

func TestScheduler_ResetSurvivesLateCredit(t *testing.T) {
	// a sample refresh landing between the boundary and the next tick
	// must not postpone the reset
	l, err := ledger.New(domain.TariffConfig{StepsPerMinute: 100}, nil, nil, nil)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	l.Restore(domain.DailyEnergySnapshot{
		BaseEnergyToday: 150,
		SpentSteps:      100,
		SpentMinutes:    1,
		SnapshotTakenAt: at(20, 59),
	})
	s, err := NewScheduler(domain.DayWindow{DayEndHour: 21}, l, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	if err := l.Credit(domain.DailyEnergySnapshot{
		BaseEnergyToday: 160,
		SnapshotTakenAt: at(21, 0).Add(30 * time.Second),
	}); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	if !s.Evaluate(at(21, 1)) {
		t.Fatal("reset suppressed by a credit after the boundary")
	}
	snap := l.Snapshot()
	if snap.SpentSteps != 0 || snap.SpentMinutes != 0 {
		t.Errorf("spent after reset = %d/%d, want 0/0", snap.SpentSteps, snap.SpentMinutes)
	}
}

func TestScheduler_NoResetWithinDay(t *testing.T) {
	fl := &fakeLedger{takenAt: at(9, 0)}
	s, err := NewScheduler(domain.DayWindow{DayEndHour: 21}, fl, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if s.Evaluate(at(15, 0)) {
		t.Fatal("reset fired within the same economic day")
	}
}

func TestScheduler_SuspendedAcrossSeveralBoundaries(t *testing.T) {
	// last snapshot three days ago; one evaluation, one reset
	fl := &fakeLedger{takenAt: time.Date(2026, 1, 31, 10, 0, 0, 0, time.UTC)}
	s, err := NewScheduler(domain.DayWindow{DayEndHour: 21}, fl, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	if !s.Evaluate(at(9, 0)) {
		t.Fatal("no reset after multi-day suspension")
	}
	if len(fl.resets) != 1 {
		t.Fatalf("resets = %d, want exactly 1", len(fl.resets))
	}
	if fl.resets[0] != "2026-02-02" {
		t.Errorf("reset day key = %q, want 2026-02-02", fl.resets[0])
	}
}

func TestScheduler_WindowChangeNotRetroactive(t *testing.T) {
	// snapshot taken 22:00, old window 21:00: boundary already handled
	fl := &fakeLedger{takenAt: at(22, 0)}
	s, err := NewScheduler(domain.DayWindow{DayEndHour: 21}, fl, nil, nil)
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	// moving the boundary earlier must not re-trigger for today
	if err := s.SetWindow(domain.DayWindow{DayEndHour: 20}); err != nil {
		t.Fatalf("SetWindow: %v", err)
	}
	if s.Evaluate(at(23, 0)) {
		t.Fatal("window change retroactively triggered a reset")
	}
}

func TestScheduler_OnResetHook(t *testing.T) {
	fl := &fakeLedger{takenAt: at(20, 0)}
	var fired []string
	s, err := NewScheduler(domain.DayWindow{DayEndHour: 21}, fl, nil, func(key string) {
		fired = append(fired, key)
	})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	s.Evaluate(at(21, 30))
	if len(fired) != 1 || fired[0] != "2026-02-03" {
		t.Fatalf("hook fired = %v, want [2026-02-03]", fired)
	}
}

func TestNewScheduler_RejectsInvalidWindow(t *testing.T) {
	_, err := NewScheduler(domain.DayWindow{DayEndHour: 24}, &fakeLedger{}, nil, nil)
	if err == nil {
		t.Fatal("expected error for hour 24")
	}
}
