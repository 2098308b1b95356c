package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nocalert/core/internal/models"
)

// TargetRepo persists polling targets.
type TargetRepo struct{ db *sql.DB }

// ErrDuplicateTarget is returned when (ip_address, addon_id) already exists.
var ErrDuplicateTarget = fmt.Errorf("targets: duplicate (ip_address, addon_id)")

// Create inserts a new target, rejecting duplicates per the unique
// (ip_address, addon_id) constraint.
func (r *TargetRepo) Create(ctx context.Context, t *models.Target) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO targets (id, name, ip_address, addon_id, poll_interval_seconds, enabled, config, last_poll_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.IPAddress, t.AddonID, t.PollIntervalSeconds, t.Enabled, rawOrEmpty(t.Config), nullTime(t.LastPollAt))
	if isUniqueViolation(err) {
		return ErrDuplicateTarget
	}
	return err
}

// Update replaces the mutable fields of an existing target.
func (r *TargetRepo) Update(ctx context.Context, t *models.Target) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE targets SET name=?, ip_address=?, addon_id=?, poll_interval_seconds=?, enabled=?, config=?
		WHERE id = ?`,
		t.Name, t.IPAddress, t.AddonID, t.PollIntervalSeconds, t.Enabled, rawOrEmpty(t.Config), t.ID)
	if isUniqueViolation(err) {
		return ErrDuplicateTarget
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a target by id.
func (r *TargetRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM targets WHERE id = ?`, id)
	return err
}

// Get returns a single target by id.
func (r *TargetRepo) Get(ctx context.Context, id string) (*models.Target, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, ip_address, addon_id, poll_interval_seconds, enabled, config, last_poll_at
		FROM targets WHERE id = ?`, id)
	return scanTarget(row)
}

// List returns every target, enabled or not.
func (r *TargetRepo) List(ctx context.Context) ([]*models.Target, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, ip_address, addon_id, poll_interval_seconds, enabled, config, last_poll_at
		FROM targets`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Target
	for rows.Next() {
		t, err := scanTargetRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DueForPoll returns every enabled target whose poll interval has
// elapsed, per the scheduler's selection rule in §4.7.
func (r *TargetRepo) DueForPoll(ctx context.Context) ([]*models.Target, error) {
	all, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	var due []*models.Target
	now := nowFunc()
	for _, t := range all {
		if t.IsDue(now) {
			due = append(due, t)
		}
	}
	return due, nil
}

// MarkPolled stamps last_poll_at = now for a target.
func (r *TargetRepo) MarkPolled(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE targets SET last_poll_at = ? WHERE id = ?`,
		nowFunc().UTC().Format(sqliteTimeFormat), id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTarget(row *sql.Row) (*models.Target, error) {
	t, err := scanTargetRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func scanTargetRows(row rowScanner) (*models.Target, error) {
	var t models.Target
	var addonID sql.NullString
	var config string
	var lastPoll sql.NullString
	if err := row.Scan(&t.ID, &t.Name, &t.IPAddress, &addonID, &t.PollIntervalSeconds, &t.Enabled, &config, &lastPoll); err != nil {
		return nil, err
	}
	t.AddonID = addonID.String
	t.Config = []byte(config)
	t.LastPollAt = scanNullTime(lastPoll)
	return &t, nil
}

func rawOrEmpty(raw []byte) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}
