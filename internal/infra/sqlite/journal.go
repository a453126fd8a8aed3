package sqlite

import "time"

// ─── Spend Journal Operations ───────────────────────────────────────────────

// Journal implements the spend journal over the database, labelling each
// spend with the economic day it fell into.
type Journal struct {
	db     *DB
	dayKey func() string
}

// NewJournal wraps db. dayKey maps "now" to the current economic-day
// label; nil falls back to the UTC calendar date.
func NewJournal(db *DB, dayKey func() string) *Journal {
	if dayKey == nil {
		dayKey = func() string { return time.Now().UTC().Format("2006-01-02") }
	}
	return &Journal{db: db, dayKey: dayKey}
}

// RecordSpend appends one committed spend and folds it into the per-app
// daily totals.
func (j *Journal) RecordSpend(targetApp string, steps, minutes, balanceAfter int64) error {
	if _, err := j.db.db.Exec(`
		INSERT INTO spend_journal (target_app, steps, minutes, balance_after)
		VALUES (?, ?, ?, ?)
	`, targetApp, steps, minutes, balanceAfter); err != nil {
		return err
	}
	if targetApp == "" {
		return nil
	}
	_, err := j.db.db.Exec(`
		INSERT INTO app_spend_daily (target_app, day_key, steps_spent, open_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(target_app, day_key) DO UPDATE SET
			steps_spent = steps_spent + excluded.steps_spent,
			open_count  = open_count + 1
	`, targetApp, j.dayKey(), steps)
	return err
}

// RecordReset appends a day-boundary reset and the balance it closed.
func (j *Journal) RecordReset(dayKey string, closedBalance int64) error {
	_, err := j.db.db.Exec(`
		INSERT INTO reset_journal (day_key, closed_balance)
		VALUES (?, ?)
	`, dayKey, closedBalance)
	return err
}

// AppSpend is one app's audit line for a single economic day.
type AppSpend struct {
	TargetApp  string `json:"target_app"`
	StepsSpent int64  `json:"steps_spent"`
	OpenCount  int64  `json:"open_count"`
}

// SpentByApp lists per-app spend totals for one economic day, biggest
// spender first.
func (db *DB) SpentByApp(dayKey string) ([]AppSpend, error) {
	rows, err := db.db.Query(`
		SELECT target_app, steps_spent, open_count
		FROM app_spend_daily
		WHERE day_key = ?
		ORDER BY steps_spent DESC, target_app
	`, dayKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AppSpend
	for rows.Next() {
		var a AppSpend
		if err := rows.Scan(&a.TargetApp, &a.StepsSpent, &a.OpenCount); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
