package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nocalert/core/internal/models"
)

// AlertRepo persists alert rows and the read paths the REST surface and
// engine need. The engine (internal/alertengine) owns all lifecycle
// transitions; this repo is intentionally free of business rules.
type AlertRepo struct{ db *sql.DB }

// GetActiveByFingerprint returns the single non-resolved alert for a
// fingerprint, if any — the uniqueness invariant in §8 guarantees at
// most one row matches.
func (r *AlertRepo) GetActiveByFingerprint(ctx context.Context, fingerprint string) (*models.Alert, error) {
	row := r.db.QueryRowContext(ctx, alertSelect+` WHERE fingerprint = ? AND status != 'resolved'`, fingerprint)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// Insert creates a new alert row.
func (r *AlertRepo) Insert(ctx context.Context, a *models.Alert) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alerts (id, addon_id, fingerprint, device_ip, device_name, alert_type, severity, category,
			title, message, status, is_clear, occurred_at, received_at, resolved_at, occurrence_count, raw_data, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.AddonID, a.Fingerprint, a.DeviceIP, a.DeviceName, a.AlertType, string(a.Severity), a.Category,
		a.Title, a.Message, string(a.Status), a.IsClear, fmtTime(a.OccurredAt), fmtTime(a.ReceivedAt),
		nullTime(a.ResolvedAt), a.OccurrenceCount, rawOrEmpty(a.RawData), fmtTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("alerts: insert: %w", err)
	}
	return nil
}

// Update persists the full mutable state of an existing alert row.
func (r *AlertRepo) Update(ctx context.Context, a *models.Alert) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE alerts SET device_name=?, message=?, status=?, occurrence_count=?, raw_data=?, resolved_at=?
		WHERE id = ?`,
		a.DeviceName, a.Message, string(a.Status), a.OccurrenceCount, rawOrEmpty(a.RawData), nullTime(a.ResolvedAt), a.ID)
	if err != nil {
		return fmt.Errorf("alerts: update %s: %w", a.ID, err)
	}
	return nil
}

// Delete hard-deletes an alert row (admin only, per §6.3).
func (r *AlertRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?`, id)
	return err
}

// Get returns a single alert by id.
func (r *AlertRepo) Get(ctx context.Context, id string) (*models.Alert, error) {
	row := r.db.QueryRowContext(ctx, alertSelect+` WHERE id = ?`, id)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

// ListFilter narrows List to the query parameters GET /alerts accepts.
type ListFilter struct {
	Status   []string
	Severity []string
	AddonID  string
	DeviceIP string
	Limit    int
	Offset   int
}

// List returns alerts matching filter, newest occurred_at first.
func (r *AlertRepo) List(ctx context.Context, f ListFilter) ([]*models.Alert, error) {
	var where []string
	var args []interface{}

	if len(f.Status) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Status))+")")
		for _, s := range f.Status {
			args = append(args, s)
		}
	}
	if len(f.Severity) > 0 {
		where = append(where, "severity IN ("+placeholders(len(f.Severity))+")")
		for _, s := range f.Severity {
			args = append(args, s)
		}
	}
	if f.AddonID != "" {
		where = append(where, "addon_id = ?")
		args = append(args, f.AddonID)
	}
	if f.DeviceIP != "" {
		where = append(where, "device_ip = ?")
		args = append(args, f.DeviceIP)
	}

	q := alertSelect
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY occurred_at DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("alerts: list: %w", err)
	}
	defer rows.Close()

	var out []*models.Alert
	for rows.Next() {
		a, err := scanAlertRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Stats aggregates by severity, status, and addon, plus total active.
func (r *AlertRepo) Stats(ctx context.Context) (*models.Stats, error) {
	stats := &models.Stats{
		BySeverity: map[models.Severity]int{},
		ByStatus:   map[models.Status]int{},
		ByAddon:    map[string]int{},
	}

	rows, err := r.db.QueryContext(ctx, `SELECT severity, COUNT(*) FROM alerts GROUP BY severity`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var sev string
		var n int
		if err := rows.Scan(&sev, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.BySeverity[models.Severity(sev)] = n
	}
	rows.Close()

	rows, err = r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM alerts GROUP BY status`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByStatus[models.Status(st)] = n
		if st == string(models.StatusActive) {
			stats.TotalActive = n
		}
	}
	rows.Close()

	rows, err = r.db.QueryContext(ctx, `SELECT addon_id, COUNT(*) FROM alerts GROUP BY addon_id`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var addonID string
		var n int
		if err := rows.Scan(&addonID, &n); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByAddon[addonID] = n
	}
	rows.Close()

	return stats, rows.Err()
}

const alertSelect = `SELECT id, addon_id, fingerprint, device_ip, device_name, alert_type, severity, category,
	title, message, status, is_clear, occurred_at, received_at, resolved_at, occurrence_count, raw_data, created_at
	FROM alerts`

func scanAlert(row *sql.Row) (*models.Alert, error) {
	return scanAlertRows(row)
}

func scanAlertRows(row rowScanner) (*models.Alert, error) {
	var a models.Alert
	var severity, status string
	var resolvedAt sql.NullString
	var occurredAt, receivedAt, createdAt string
	var rawData string

	err := row.Scan(&a.ID, &a.AddonID, &a.Fingerprint, &a.DeviceIP, &a.DeviceName, &a.AlertType, &severity,
		&a.Category, &a.Title, &a.Message, &status, &a.IsClear, &occurredAt, &receivedAt, &resolvedAt,
		&a.OccurrenceCount, &rawData, &createdAt)
	if err != nil {
		return nil, err
	}
	a.Severity = models.Severity(severity)
	a.Status = models.Status(status)
	a.OccurredAt = scanTime(occurredAt)
	a.ReceivedAt = scanTime(receivedAt)
	a.CreatedAt = scanTime(createdAt)
	a.ResolvedAt = scanNullTime(resolvedAt)
	a.RawData = []byte(rawData)
	return &a, nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
