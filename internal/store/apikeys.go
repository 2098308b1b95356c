package store

import (
	"context"
	"database/sql"

	"github.com/nocalert/core/internal/models"
)

// APIKeyRepo persists API key records. Only the hash is ever stored; the
// raw key is returned to the caller exactly once at creation time.
type APIKeyRepo struct{ db *sql.DB }

// Create inserts a new API key row.
func (r *APIKeyRepo) Create(ctx context.Context, k *models.APIKey) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO api_keys (id, user_id, name, key_hash, key_prefix, is_active, created_at, last_used_at, expires_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		k.ID, k.UserID, k.Name, k.KeyHash, k.KeyPrefix, k.IsActive, fmtTime(k.CreatedAt), nullTime(k.LastUsedAt), nullTime(k.ExpiresAt))
	return err
}

// GetByHash looks up an active API key by its hash, for bearer auth.
func (r *APIKeyRepo) GetByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	row := r.db.QueryRowContext(ctx, apiKeySelect+` WHERE key_hash = ? AND is_active = 1`, hash)
	return scanAPIKey(row)
}

// ListForUser returns every key owned by userID.
func (r *APIKeyRepo) ListForUser(ctx context.Context, userID string) ([]*models.APIKey, error) {
	return r.list(ctx, ` WHERE user_id = ?`, userID)
}

// ListAll returns every key (admin view).
func (r *APIKeyRepo) ListAll(ctx context.Context) ([]*models.APIKey, error) {
	return r.list(ctx, ``)
}

func (r *APIKeyRepo) list(ctx context.Context, where string, args ...interface{}) ([]*models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, apiKeySelect+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.APIKey
	for rows.Next() {
		k, err := scanAPIKeyRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// RecordUsage stamps last_used_at = now for a key.
func (r *APIKeyRepo) RecordUsage(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET last_used_at = ? WHERE id = ?`, fmtTime(nowFunc()), id)
	return err
}

// Revoke deactivates an API key.
func (r *APIKeyRepo) Revoke(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_keys SET is_active = 0 WHERE id = ?`, id)
	return err
}

const apiKeySelect = `SELECT id, user_id, name, key_hash, key_prefix, is_active, created_at, last_used_at, expires_at FROM api_keys`

func scanAPIKey(row *sql.Row) (*models.APIKey, error) {
	k, err := scanAPIKeyRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return k, err
}

func scanAPIKeyRows(row rowScanner) (*models.APIKey, error) {
	var k models.APIKey
	var createdAt string
	var lastUsed, expires sql.NullString
	if err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.IsActive, &createdAt, &lastUsed, &expires); err != nil {
		return nil, err
	}
	k.CreatedAt = scanTime(createdAt)
	k.LastUsedAt = scanNullTime(lastUsed)
	k.ExpiresAt = scanNullTime(expires)
	return &k, nil
}
