package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nocalert/core/internal/models"
)

// AddonRepo persists addon rows; the manifest JSON blob is the source of
// truth, the flat columns exist for filterable listing.
type AddonRepo struct{ db *sql.DB }

// AddonRow is a stored addon: the decoded manifest plus its enabled flag.
type AddonRow struct {
	Manifest    *models.Manifest
	Enabled     bool
	InstalledAt time.Time
}

// Upsert inserts or replaces the addon row keyed by manifest.ID.
func (r *AddonRepo) Upsert(ctx context.Context, m *models.Manifest, enabled bool) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("addons: marshal manifest: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO addons (id, name, version, method, category, description, manifest, enabled, installed_at)
		VALUES (?, ?, ?, ?, ?, '', ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, version=excluded.version, method=excluded.method,
			category=excluded.category, manifest=excluded.manifest, enabled=excluded.enabled`,
		m.ID, m.Name, m.Version, string(m.Method), m.Category, string(raw), enabled, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("addons: upsert %s: %w", m.ID, err)
	}
	return nil
}

// Delete removes the addon row.
func (r *AddonRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM addons WHERE id = ?`, id)
	return err
}

// SetEnabled flips the enabled flag without touching the manifest.
func (r *AddonRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE addons SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("addons: %s not found", id)
	}
	return nil
}

// ListEnabled returns every addon currently marked enabled, used by the
// registry on load_all/reload.
func (r *AddonRepo) ListEnabled(ctx context.Context) ([]AddonRow, error) {
	return r.list(ctx, `WHERE enabled = 1`)
}

// ListAll returns every addon row regardless of enabled state.
func (r *AddonRepo) ListAll(ctx context.Context) ([]AddonRow, error) {
	return r.list(ctx, ``)
}

func (r *AddonRepo) list(ctx context.Context, where string) ([]AddonRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT manifest, enabled, installed_at FROM addons `+where)
	if err != nil {
		return nil, fmt.Errorf("addons: list: %w", err)
	}
	defer rows.Close()

	var out []AddonRow
	for rows.Next() {
		var raw string
		var enabled bool
		var installedAt string
		if err := rows.Scan(&raw, &enabled, &installedAt); err != nil {
			return nil, fmt.Errorf("addons: scan: %w", err)
		}
		m, err := models.ParseManifest([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("addons: decode stored manifest: %w", err)
		}
		out = append(out, AddonRow{Manifest: m, Enabled: enabled, InstalledAt: scanTime(installedAt)})
	}
	return out, rows.Err()
}

// Get returns a single addon row by id.
func (r *AddonRepo) Get(ctx context.Context, id string) (*AddonRow, error) {
	var raw string
	var enabled bool
	var installedAt string
	err := r.db.QueryRowContext(ctx, `SELECT manifest, enabled, installed_at FROM addons WHERE id = ?`, id).
		Scan(&raw, &enabled, &installedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("addons: get %s: %w", id, err)
	}
	m, err := models.ParseManifest([]byte(raw))
	if err != nil {
		return nil, err
	}
	return &AddonRow{Manifest: m, Enabled: enabled, InstalledAt: scanTime(installedAt)}, nil
}
