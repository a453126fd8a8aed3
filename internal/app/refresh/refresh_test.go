package refresh

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stepgate/stepgate/internal/app/accrual"
	"github.com/stepgate/stepgate/internal/app/ledger"
	"github.com/stepgate/stepgate/internal/domain"
)

func fptr(v float64) *float64 { return &v }

// memRegistry records grant ids and amounts like the sqlite registry,
// minus the persistence.
type memRegistry struct {
	seen   map[string]bool
	totals domain.ExternalGrants
}

func (m *memRegistry) MarkApplied(grant domain.ExternalGrants) error {
	if m.seen == nil {
		m.seen = make(map[string]bool)
	}
	if m.seen[grant.GrantID] {
		return fmt.Errorf("%w: %s", domain.ErrGrantReplayed, grant.GrantID)
	}
	m.seen[grant.GrantID] = true
	m.totals.BonusSteps += grant.BonusSteps
	m.totals.OuterWorldBonus += grant.OuterWorldBonus
	m.totals.ServerGrantedSteps += grant.ServerGrantedSteps
	return nil
}

func (m *memRegistry) AppliedTotals() (domain.ExternalGrants, error) {
	return m.totals, nil
}

func newTestRefresher(t *testing.T) (*Refresher, *Slot, *ledger.Ledger) {
	t.Helper()
	l, err := ledger.New(domain.TariffConfig{StepsPerMinute: 100}, nil, nil, nil)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	slot := &Slot{}
	r := New(accrual.New(domain.DefaultAccrualWeights()), l, slot, &memRegistry{}, nil, nil)
	return r, slot, l
}

func TestSlot(t *testing.T) {
	slot := &Slot{}
	_, err := slot.TodaySample(context.Background())
	if !errors.Is(err, domain.ErrSampleUnavailable) {
		t.Fatalf("empty slot err = %v, want ErrSampleUnavailable", err)
	}

	slot.Put(domain.ActivitySample{StepsToday: fptr(5000), AsOf: time.Now()})
	got, err := slot.TodaySample(context.Background())
	if err != nil {
		t.Fatalf("TodaySample: %v", err)
	}
	if *got.StepsToday != 5000 {
		t.Errorf("steps = %v, want 5000", *got.StepsToday)
	}
}

func TestRefresh_CreditsLedger(t *testing.T) {
	r, slot, l := newTestRefresher(t)
	slot.Put(domain.ActivitySample{StepsToday: fptr(5000)})

	b, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if b.TotalStepsBalance != 10 {
		t.Errorf("balance = %d, want 10", b.TotalStepsBalance)
	}
	if got := l.Snapshot().MovePointsToday; got != 10 {
		t.Errorf("move points = %d, want 10", got)
	}
}

func TestRefresh_Idempotent(t *testing.T) {
	r, slot, _ := newTestRefresher(t)
	slot.Put(domain.ActivitySample{StepsToday: fptr(5000)})

	first, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	second, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if first.TotalStepsBalance != second.TotalStepsBalance {
		t.Errorf("repeated refresh changed balance: %d then %d",
			first.TotalStepsBalance, second.TotalStepsBalance)
	}
}

func TestRefresh_UnavailableKeepsSnapshot(t *testing.T) {
	r, slot, _ := newTestRefresher(t)
	slot.Put(domain.ActivitySample{StepsToday: fptr(5000)})
	if _, err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	// swap in a source that always fails
	r.source = &Slot{}
	b, err := r.Refresh(context.Background())
	if !errors.Is(err, domain.ErrSampleUnavailable) {
		t.Fatalf("err = %v, want ErrSampleUnavailable", err)
	}
	if b.TotalStepsBalance != 10 {
		t.Errorf("balance degraded to %d, want last known 10", b.TotalStepsBalance)
	}
}

func TestApplyGrant(t *testing.T) {
	r, slot, _ := newTestRefresher(t)
	slot.Put(domain.ActivitySample{StepsToday: fptr(0)})

	grant := domain.ExternalGrants{GrantID: "g-1", OuterWorldBonus: 300, ServerGrantedSteps: 200}
	b, err := r.ApplyGrant(context.Background(), grant)
	if err != nil {
		t.Fatalf("ApplyGrant: %v", err)
	}
	if b.TotalStepsBalance != 500 {
		t.Errorf("balance = %d, want 500", b.TotalStepsBalance)
	}

	// replay must not double-apply
	_, err = r.ApplyGrant(context.Background(), grant)
	if !errors.Is(err, domain.ErrGrantReplayed) {
		t.Fatalf("replay err = %v, want ErrGrantReplayed", err)
	}
	b, err = r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if b.TotalStepsBalance != 500 {
		t.Errorf("balance after replay = %d, want 500", b.TotalStepsBalance)
	}
}

func TestApplyGrant_EmptyID(t *testing.T) {
	r, _, _ := newTestRefresher(t)
	_, err := r.ApplyGrant(context.Background(), domain.ExternalGrants{OuterWorldBonus: 100})
	if !errors.Is(err, domain.ErrInvalidGrant) {
		t.Fatalf("err = %v, want ErrInvalidGrant", err)
	}
}

func TestApplyGrant_RejectsNegativeAmounts(t *testing.T) {
	r, slot, _ := newTestRefresher(t)
	slot.Put(domain.ActivitySample{StepsToday: fptr(0)})
	if _, err := r.ApplyGrant(context.Background(), domain.ExternalGrants{GrantID: "g-pos", ServerGrantedSteps: 300}); err != nil {
		t.Fatalf("ApplyGrant: %v", err)
	}

	cases := []domain.ExternalGrants{
		{GrantID: "g-neg-1", ServerGrantedSteps: -250},
		{GrantID: "g-neg-2", BonusSteps: -1},
		{GrantID: "g-neg-3", OuterWorldBonus: -500, ServerGrantedSteps: 100},
	}
	for _, grant := range cases {
		if _, err := r.ApplyGrant(context.Background(), grant); !errors.Is(err, domain.ErrInvalidGrant) {
			t.Errorf("ApplyGrant(%s) err = %v, want ErrInvalidGrant", grant.GrantID, err)
		}
	}

	b, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if b.TotalStepsBalance != 300 {
		t.Errorf("balance = %d, want untouched 300", b.TotalStepsBalance)
	}

	// a rejected grant must not burn its id
	if _, err := r.ApplyGrant(context.Background(), domain.ExternalGrants{GrantID: "g-neg-1", ServerGrantedSteps: 250}); err != nil {
		t.Fatalf("retry with corrected amount: %v", err)
	}
}

func TestGrantsSeededFromRestoredSnapshot(t *testing.T) {
	l, err := ledger.New(domain.TariffConfig{StepsPerMinute: 100}, nil, nil, nil)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	l.Restore(domain.DailyEnergySnapshot{
		OuterWorldBonusSteps: 400,
		SnapshotTakenAt:      time.Now(),
	})
	slot := &Slot{}
	slot.Put(domain.ActivitySample{StepsToday: fptr(0)})
	r := New(accrual.New(domain.DefaultAccrualWeights()), l, slot, nil, nil, nil)

	b, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if b.TotalStepsBalance != 400 {
		t.Errorf("balance = %d, want 400 (grants survive restart)", b.TotalStepsBalance)
	}
}

func TestGrantsSeededFromRegistryAfterRestart(t *testing.T) {
	reg := &memRegistry{}
	l1, err := ledger.New(domain.TariffConfig{StepsPerMinute: 100}, nil, nil, nil)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	r1 := New(accrual.New(domain.DefaultAccrualWeights()), l1, &Slot{}, reg, nil, nil)

	// accepted before any sample: only the registry holds the amounts
	_, err = r1.ApplyGrant(context.Background(), domain.ExternalGrants{GrantID: "g-early", ServerGrantedSteps: 500})
	if !errors.Is(err, domain.ErrSampleUnavailable) {
		t.Fatalf("pre-sample grant err = %v, want ErrSampleUnavailable", err)
	}

	// restart: fresh ledger and refresher over the same registry
	l2, err := ledger.New(domain.TariffConfig{StepsPerMinute: 100}, nil, nil, nil)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	slot := &Slot{}
	r2 := New(accrual.New(domain.DefaultAccrualWeights()), l2, slot, reg, nil, nil)

	if _, err := r2.ApplyGrant(context.Background(), domain.ExternalGrants{GrantID: "g-early", ServerGrantedSteps: 500}); !errors.Is(err, domain.ErrGrantReplayed) {
		t.Fatalf("retry err = %v, want ErrGrantReplayed", err)
	}

	slot.Put(domain.ActivitySample{StepsToday: fptr(0)})
	b, err := r2.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if b.TotalStepsBalance != 500 {
		t.Errorf("balance = %d, want 500 (grant amounts survive restart)", b.TotalStepsBalance)
	}
}

func TestResetGrants(t *testing.T) {
	r, slot, _ := newTestRefresher(t)
	slot.Put(domain.ActivitySample{StepsToday: fptr(0)})
	if _, err := r.ApplyGrant(context.Background(), domain.ExternalGrants{GrantID: "g-1", ServerGrantedSteps: 250}); err != nil {
		t.Fatalf("ApplyGrant: %v", err)
	}

	r.ResetGrants()
	b, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if b.TotalStepsBalance != 0 {
		t.Errorf("balance after grant reset = %d, want 0", b.TotalStepsBalance)
	}
}

func TestRefresh_NotifiesBalanceListener(t *testing.T) {
	l, err := ledger.New(domain.TariffConfig{StepsPerMinute: 100}, nil, nil, nil)
	if err != nil {
		t.Fatalf("ledger.New: %v", err)
	}
	slot := &Slot{}
	slot.Put(domain.ActivitySample{StepsToday: fptr(5000)})

	var got []domain.BalanceSummary
	r := New(accrual.New(domain.DefaultAccrualWeights()), l, slot, nil, nil, func(b domain.BalanceSummary) {
		got = append(got, b)
	})
	if _, err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(got) != 1 || got[0].TotalStepsBalance != 10 {
		t.Fatalf("listener got %+v, want one update with balance 10", got)
	}
}
