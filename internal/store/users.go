package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/nocalert/core/internal/models"
)

// UserRepo persists operator accounts.
type UserRepo struct{ db *sql.DB }

// Create inserts a new user.
func (r *UserRepo) Create(ctx context.Context, u *models.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, role, is_active, created_at, last_login)
		VALUES (?,?,?,?,?,?,?,?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.IsActive, fmtTime(u.CreatedAt), nullTime(u.LastLogin))
	if isUniqueViolation(err) {
		return fmt.Errorf("users: username %q already exists", u.Username)
	}
	return err
}

// Update replaces the mutable fields of an existing user.
func (r *UserRepo) Update(ctx context.Context, u *models.User) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET email=?, role=?, is_active=? WHERE id = ?`,
		u.Email, string(u.Role), u.IsActive, u.ID)
	return err
}

// SetPasswordHash updates only the password hash for a user.
func (r *UserRepo) SetPasswordHash(ctx context.Context, id, hash string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, id)
	return err
}

// RecordLogin stamps last_login = now.
func (r *UserRepo) RecordLogin(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = ? WHERE id = ?`, fmtTime(nowFunc()), id)
	return err
}

// Delete removes a user by id. Callers must enforce the "cannot delete
// admin" rule from §6.3 before calling this.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	return err
}

// Get returns a user by id.
func (r *UserRepo) Get(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, userSelect+` WHERE id = ?`, id)
	return scanUser(row)
}

// GetByUsername returns a user by username, used by the login handler.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, userSelect+` WHERE username = ?`, username)
	return scanUser(row)
}

// List returns every user.
func (r *UserRepo) List(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx, userSelect)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.User
	for rows.Next() {
		u, err := scanUserRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

const userSelect = `SELECT id, username, email, password_hash, role, is_active, created_at, last_login FROM users`

func scanUser(row *sql.Row) (*models.User, error) {
	u, err := scanUserRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func scanUserRows(row rowScanner) (*models.User, error) {
	var u models.User
	var role, createdAt string
	var lastLogin sql.NullString
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.IsActive, &createdAt, &lastLogin); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.CreatedAt = scanTime(createdAt)
	u.LastLogin = scanNullTime(lastLogin)
	return &u, nil
}
