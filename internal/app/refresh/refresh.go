// Package refresh drives recalculation of the daily snapshot from the
// latest activity sample and the accumulated external grants. Concurrent
// refresh requests coalesce into one engine pass over the newest sample.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stepgate/stepgate/internal/app/accrual"
	"github.com/stepgate/stepgate/internal/domain"
)

// Slot holds the latest pushed activity sample and serves it as a
// SampleSource. Empty until the first push.
type Slot struct {
	mu     sync.Mutex
	sample domain.ActivitySample
	ok     bool
}

// Put replaces the stored sample with a newer one.
func (s *Slot) Put(sample domain.ActivitySample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sample = sample
	s.ok = true
}

// TodaySample returns the latest pushed sample, or ErrSampleUnavailable
// before the first push.
func (s *Slot) TodaySample(ctx context.Context) (domain.ActivitySample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ok {
		return domain.ActivitySample{}, domain.ErrSampleUnavailable
	}
	return s.sample, nil
}

// Ledger is the slice of the budget ledger the refresher feeds.
type Ledger interface {
	Credit(domain.DailyEnergySnapshot) error
	Snapshot() domain.DailyEnergySnapshot
	Balance() domain.BalanceSummary
}

// Refresher recalculates the snapshot on demand. A transient sample
// failure keeps the last known snapshot; the balance is never zeroed by
// an unavailable source.
type Refresher struct {
	engine *accrual.Engine
	ledger Ledger
	source domain.SampleSource
	reg    domain.GrantRegistry
	log    *slog.Logger

	sf singleflight.Group

	mu     sync.Mutex
	grants domain.ExternalGrants // running per-day totals

	onBalance func(domain.BalanceSummary)
}

// New creates a refresher. The running grant totals are seeded from the
// registry's durable per-day sums, so a restart mid-day keeps grants that
// were applied before any sample arrived. With a nil registry (grant
// replay then goes undetected) the totals fall back to the ledger's
// current snapshot. onBalance may be nil.
func New(engine *accrual.Engine, ledger Ledger, source domain.SampleSource, reg domain.GrantRegistry, log *slog.Logger, onBalance func(domain.BalanceSummary)) *Refresher {
	if log == nil {
		log = slog.Default()
	}
	snap := ledger.Snapshot()
	grants := domain.ExternalGrants{
		BonusSteps:         snap.BonusSteps,
		OuterWorldBonus:    snap.OuterWorldBonusSteps,
		ServerGrantedSteps: snap.ServerGrantedSteps,
	}
	if reg != nil {
		totals, err := reg.AppliedTotals()
		if err != nil {
			log.Error("load applied grants failed, seeding from snapshot", "error", err)
		} else {
			grants = domain.ExternalGrants{
				BonusSteps:         totals.BonusSteps,
				OuterWorldBonus:    totals.OuterWorldBonus,
				ServerGrantedSteps: totals.ServerGrantedSteps,
			}
		}
	}
	return &Refresher{
		engine:    engine,
		ledger:    ledger,
		source:    source,
		reg:       reg,
		log:       log,
		grants:    grants,
		onBalance: onBalance,
	}
}

// Refresh pulls the latest sample and re-derives the snapshot. Coalesced:
// overlapping callers share one engine pass. On ErrSampleUnavailable the
// previous snapshot is retained and returned alongside the error.
func (r *Refresher) Refresh(ctx context.Context) (domain.BalanceSummary, error) {
	v, err, _ := r.sf.Do("refresh", func() (any, error) {
		b, err := r.refreshOnce(ctx)
		return b, err
	})
	return v.(domain.BalanceSummary), err
}

func (r *Refresher) refreshOnce(ctx context.Context) (domain.BalanceSummary, error) {
	sample, err := r.source.TodaySample(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrSampleUnavailable) {
			r.log.Warn("sample unavailable, keeping last snapshot")
			return r.ledger.Balance(), err
		}
		return r.ledger.Balance(), fmt.Errorf("read sample: %w", err)
	}

	r.mu.Lock()
	grants := r.grants
	r.mu.Unlock()

	snap, err := r.engine.Recalculate(sample, grants, time.Now())
	if err != nil {
		return r.ledger.Balance(), err
	}
	if err := r.ledger.Credit(snap); err != nil {
		return r.ledger.Balance(), err
	}

	b := r.ledger.Balance()
	if r.onBalance != nil {
		r.onBalance(b)
	}
	return b, nil
}

// ApplyGrant adds an external grant to the running totals and refreshes.
// Idempotent by grant id: a replayed id fails with ErrGrantReplayed and
// changes nothing. The registry records the amounts together with the id,
// so a grant accepted before the first sample survives a restart.
func (r *Refresher) ApplyGrant(ctx context.Context, grant domain.ExternalGrants) (domain.BalanceSummary, error) {
	if grant.GrantID == "" {
		return r.ledger.Balance(), fmt.Errorf("%w: empty grant id", domain.ErrInvalidGrant)
	}
	if grant.BonusSteps < 0 || grant.OuterWorldBonus < 0 || grant.ServerGrantedSteps < 0 {
		return r.ledger.Balance(), fmt.Errorf("%w: negative amount in %s", domain.ErrInvalidGrant, grant.GrantID)
	}
	if r.reg != nil {
		if err := r.reg.MarkApplied(grant); err != nil {
			return r.ledger.Balance(), err
		}
	}

	r.mu.Lock()
	r.grants.BonusSteps += grant.BonusSteps
	r.grants.OuterWorldBonus += grant.OuterWorldBonus
	r.grants.ServerGrantedSteps += grant.ServerGrantedSteps
	r.mu.Unlock()
	r.log.Info("grant applied",
		"grant_id", grant.GrantID,
		"bonus", grant.BonusSteps,
		"outer_world", grant.OuterWorldBonus,
		"server_granted", grant.ServerGrantedSteps)

	return r.Refresh(ctx)
}

// ResetGrants zeroes the running totals. Called on day rollover, after
// the ledger itself has been reset.
func (r *Refresher) ResetGrants() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.grants = domain.ExternalGrants{}
}
