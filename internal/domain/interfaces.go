package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// SampleSource abstracts the external health-store reader.
// Implementations must return ErrSampleUnavailable when today's data
// cannot be supplied, so callers retain the last known snapshot instead
// of zeroing the balance.
type SampleSource interface {
	TodaySample(ctx context.Context) (ActivitySample, error)
}

// SnapshotStore abstracts persistence of the current-day snapshot.
// A restart mid-day restores the snapshot verbatim so the budget survives.
type SnapshotStore interface {
	SaveSnapshot(DailyEnergySnapshot) error
	LoadSnapshot() (DailyEnergySnapshot, bool, error)
}

// SpendJournal records every committed spend and reset for audit.
type SpendJournal interface {
	RecordSpend(targetApp string, steps, minutes int64, balanceAfter int64) error
	RecordReset(dayKey string, closedBalance int64) error
}

// GrantRegistry tracks applied grants so a grant is never double-applied
// and amounts accepted before the first sample survive a restart.
type GrantRegistry interface {
	// MarkApplied durably records the grant id together with its amounts;
	// returns ErrGrantReplayed when the id was applied before.
	MarkApplied(grant ExternalGrants) error
	// AppliedTotals returns the per-channel sums of the current day's
	// applied grants.
	AppliedTotals() (ExternalGrants, error)
}
