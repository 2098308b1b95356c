package store

import (
	"context"
	"database/sql"
)

// SettingsRepo persists the system_settings key/value table, reloaded on
// SIGHUP by cmd/alertd.
type SettingsRepo struct{ db *sql.DB }

// Get returns the value for key, or "" with ok=false if unset.
func (r *SettingsRepo) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM system_settings WHERE key = ?`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set upserts a key/value pair.
func (r *SettingsRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO system_settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, fmtTime(nowFunc()))
	return err
}

// All returns every stored setting, used to rebuild the in-memory config
// overlay on reload.
func (r *SettingsRepo) All(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT key, value FROM system_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// AuditRepo is an append-only log of authentication and administrative
// actions. Not on the alert hot path.
type AuditRepo struct{ db *sql.DB }

// Log appends one audit row.
func (r *AuditRepo) Log(ctx context.Context, userID, action, details string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (user_id, action, details, created_at) VALUES (?, ?, ?, ?)`,
		userID, action, details, fmtTime(nowFunc()))
	return err
}

// Recent returns the most recent audit rows, newest first.
func (r *AuditRepo) Recent(ctx context.Context, limit int) ([]map[string]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, action, details, created_at FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]string
	for rows.Next() {
		var userID, action, details, createdAt string
		if err := rows.Scan(&userID, &action, &details, &createdAt); err != nil {
			return nil, err
		}
		out = append(out, map[string]string{
			"user_id": userID, "action": action, "details": details, "created_at": createdAt,
		})
	}
	return out, rows.Err()
}

// MIBRepo maps an SNMP OID to a friendly name, supplementing the trap
// ingestor when no varbind_mappings entry exists for an OID.
type MIBRepo struct{ db *sql.DB }

// Lookup returns the friendly name for oid, if any mapping exists.
func (r *MIBRepo) Lookup(ctx context.Context, oid string) (string, bool, error) {
	var name string
	err := r.db.QueryRowContext(ctx, `SELECT name FROM mib_mappings WHERE oid = ?`, oid).Scan(&name)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}

// Set upserts an OID to friendly-name mapping.
func (r *MIBRepo) Set(ctx context.Context, oid, name string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mib_mappings (oid, name) VALUES (?, ?)
		ON CONFLICT(oid) DO UPDATE SET name=excluded.name`, oid, name)
	return err
}
