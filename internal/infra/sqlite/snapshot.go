package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stepgate/stepgate/internal/domain"
)

// ─── Snapshot Operations ────────────────────────────────────────────────────

// SaveSnapshot upserts the single current-day snapshot row.
func (db *DB) SaveSnapshot(s domain.DailyEnergySnapshot) error {
	_, err := db.db.Exec(`
		INSERT INTO energy_snapshot (
			id, base_energy_today, move_points_today, reboot_points_today,
			joy_points_today, bonus_steps, outer_world_bonus_steps,
			server_granted_steps, spent_steps, spent_minutes, snapshot_taken_at
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			base_energy_today       = excluded.base_energy_today,
			move_points_today       = excluded.move_points_today,
			reboot_points_today     = excluded.reboot_points_today,
			joy_points_today        = excluded.joy_points_today,
			bonus_steps             = excluded.bonus_steps,
			outer_world_bonus_steps = excluded.outer_world_bonus_steps,
			server_granted_steps    = excluded.server_granted_steps,
			spent_steps             = excluded.spent_steps,
			spent_minutes           = excluded.spent_minutes,
			snapshot_taken_at       = excluded.snapshot_taken_at
	`, s.BaseEnergyToday, s.MovePointsToday, s.RebootPointsToday,
		s.JoyPointsToday, s.BonusSteps, s.OuterWorldBonusSteps,
		s.ServerGrantedSteps, s.SpentSteps, s.SpentMinutes,
		s.SnapshotTakenAt.UTC().Format(time.RFC3339Nano))
	return err
}

// LoadSnapshot returns the persisted snapshot, with ok=false when none
// has been saved yet.
func (db *DB) LoadSnapshot() (domain.DailyEnergySnapshot, bool, error) {
	var s domain.DailyEnergySnapshot
	var takenAt string
	err := db.db.QueryRow(`
		SELECT base_energy_today, move_points_today, reboot_points_today,
		       joy_points_today, bonus_steps, outer_world_bonus_steps,
		       server_granted_steps, spent_steps, spent_minutes, snapshot_taken_at
		FROM energy_snapshot WHERE id = 1
	`).Scan(&s.BaseEnergyToday, &s.MovePointsToday, &s.RebootPointsToday,
		&s.JoyPointsToday, &s.BonusSteps, &s.OuterWorldBonusSteps,
		&s.ServerGrantedSteps, &s.SpentSteps, &s.SpentMinutes, &takenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DailyEnergySnapshot{}, false, nil
	}
	if err != nil {
		return domain.DailyEnergySnapshot{}, false, err
	}
	s.SnapshotTakenAt, err = time.Parse(time.RFC3339Nano, takenAt)
	if err != nil {
		return domain.DailyEnergySnapshot{}, false, fmt.Errorf("parse snapshot_taken_at: %w", err)
	}
	return s, true, nil
}
