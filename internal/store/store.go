// Package store is the durable persistence layer: a pure-Go sqlite
// database behind typed repositories, no ORM. Mirrors the teacher's
// preference for direct SQL over framework magic, seen in its audit
// logger (pkg/audit/sqlite_logger_test.go) and file-backed stores.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Store wraps a bounded connection pool and exposes one repository per
// table family.
type Store struct {
	db *sql.DB

	Addons   *AddonRepo
	Targets  *TargetRepo
	Alerts   *AlertRepo
	Users    *UserRepo
	APIKeys  *APIKeyRepo
	Settings *SettingsRepo
	Audit    *AuditRepo
	MIB      *MIBRepo
}

// Config controls pool sizing; MaxOpenConns defaults to 20 per the
// resource model's bounded-pool requirement.
type Config struct {
	DataDir      string
	MaxOpenConns int
}

// Open creates (if needed) the sqlite database under cfg.DataDir,
// applies the schema, and returns a ready Store.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 20
	}
	path := filepath.Join(cfg.DataDir, "alertd.db")
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}

	log.Info().Str("path", path).Int("max_open_conns", cfg.MaxOpenConns).Msg("store opened")

	s := &Store{db: db}
	s.Addons = &AddonRepo{db: db}
	s.Targets = &TargetRepo{db: db}
	s.Alerts = &AlertRepo{db: db}
	s.Users = &UserRepo{db: db}
	s.APIKeys = &APIKeyRepo{db: db}
	s.Settings = &SettingsRepo{db: db}
	s.Audit = &AuditRepo{db: db}
	s.MIB = &MIBRepo{db: db}
	return s, nil
}

// Healthy reports whether the database is reachable, for GET /health.
func (s *Store) Healthy(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx) == nil
}

// Close drains the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

const sqliteTimeFormat = time.RFC3339Nano

// nowFunc is a seam for tests that need deterministic "now" values.
var nowFunc = func() time.Time { return time.Now().UTC() }

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeFormat)
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func scanTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func scanNullTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t := scanTime(v.String)
	return &t
}
