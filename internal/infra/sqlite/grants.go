package sqlite

import (
	"fmt"
	"strings"

	"github.com/stepgate/stepgate/internal/domain"
)

// ─── Grant Registry Operations ──────────────────────────────────────────────

// GrantRegistry persists applied grants with their amounts. The grant id
// primary key is the replay guard; the stored amounts let a restart
// reload grants that were accepted before the first sample of the day.
type GrantRegistry struct {
	db     *DB
	dayKey func() string
}

// NewGrantRegistry wires a registry over db. dayKey yields the current
// economic day.
func NewGrantRegistry(db *DB, dayKey func() string) *GrantRegistry {
	return &GrantRegistry{db: db, dayKey: dayKey}
}

// MarkApplied records the grant id and amounts in one insert, failing
// with ErrGrantReplayed when the id was applied before.
func (r *GrantRegistry) MarkApplied(grant domain.ExternalGrants) error {
	_, err := r.db.db.Exec(`
		INSERT INTO applied_grants (grant_id, day_key, bonus_steps, outer_world_bonus_steps, server_granted_steps)
		VALUES (?, ?, ?, ?, ?)
	`, grant.GrantID, r.dayKey(), grant.BonusSteps, grant.OuterWorldBonus, grant.ServerGrantedSteps)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint") {
		return fmt.Errorf("%w: %s", domain.ErrGrantReplayed, grant.GrantID)
	}
	return err
}

// AppliedTotals sums the amounts of every grant applied on the current
// economic day.
func (r *GrantRegistry) AppliedTotals() (domain.ExternalGrants, error) {
	var g domain.ExternalGrants
	err := r.db.db.QueryRow(`
		SELECT COALESCE(SUM(bonus_steps), 0),
		       COALESCE(SUM(outer_world_bonus_steps), 0),
		       COALESCE(SUM(server_granted_steps), 0)
		FROM applied_grants WHERE day_key = ?
	`, r.dayKey()).Scan(&g.BonusSteps, &g.OuterWorldBonus, &g.ServerGrantedSteps)
	return g, err
}

// ─── Day Pass Operations ────────────────────────────────────────────────────

// SaveDayPass records a purchased pass for one app and economic day.
// Re-saving the same pass is harmless.
func (db *DB) SaveDayPass(targetApp, dayKey string) error {
	_, err := db.db.Exec(`
		INSERT INTO day_pass_grants (target_app, day_key)
		VALUES (?, ?)
		ON CONFLICT(target_app, day_key) DO NOTHING
	`, targetApp, dayKey)
	return err
}

// HasDayPass reports whether targetApp holds a pass for dayKey.
func (db *DB) HasDayPass(targetApp, dayKey string) (bool, error) {
	var n int
	err := db.db.QueryRow(`
		SELECT COUNT(1) FROM day_pass_grants
		WHERE target_app = ? AND day_key = ?
	`, targetApp, dayKey).Scan(&n)
	return n > 0, err
}
