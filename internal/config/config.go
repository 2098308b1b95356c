// Package config loads the §6.5 environment variables with a .env
// overlay, the way the teacher's config package does (godotenv.Load
// before reading os.Getenv, a mutex-guarded shared Config for hot
// reload). PG_* variables are accepted for compatibility with the
// original deployment scripts but are unused: the storage layer in
// internal/store runs on embedded sqlite, not postgres.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/nocalert/core/internal/utils"
)

// Mu guards concurrent reads of the shared Config while Watcher applies
// a reload.
var Mu sync.RWMutex

// Config holds every runtime-tunable setting named in §6.5.
type Config struct {
	DataDir  string
	HTTPPort int
	TrapPort int

	RedisURL string

	JWTSecret    string
	PasswordSalt string

	TLSCertFile string
	TLSKeyFile  string

	LogLevel string

	// WSAllowedOrigins restricts /ws upgrades; empty means any origin,
	// matching the teacher's permissive local-dev default.
	WSAllowedOrigins []string

	// Optional supplementary SSO login; IssuerURL empty disables it.
	OIDCIssuerURL    string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string

	// Deprecated-but-accepted: original deployment scripts set these
	// for a postgres backend the current storage layer does not use.
	PGHost     string
	PGPort     int
	PGDatabase string
	PGUser     string
	PGPassword string
}

var defaultDataDir = "/etc/nocalert"

// Load reads process environment after loading a .env file from DataDir
// (or, failing that, the current directory). Variables already set in
// the process environment win: the .env file only fills in unset ones,
// same precedence order as the teacher's Load().
func Load() (*Config, error) {
	dataDir := utils.GetenvTrim("ALERTD_DATA_DIR")
	if dataDir == "" {
		dataDir = defaultDataDir
	}

	for _, candidate := range []string{filepath.Join(dataDir, ".env"), ".env"} {
		if _, err := os.Stat(candidate); err == nil {
			if err := godotenv.Load(candidate); err != nil {
				log.Warn().Err(err).Str("path", candidate).Msg("config: failed to load .env file")
			}
			break
		}
	}

	cfg := &Config{
		DataDir:      dataDir,
		HTTPPort:     envInt("HTTP_PORT", 5000),
		TrapPort:     envInt("TRAP_PORT", 162),
		RedisURL:     os.Getenv("REDIS_URL"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		PasswordSalt: os.Getenv("PASSWORD_SALT"),
		TLSCertFile:  os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:   os.Getenv("TLS_KEY_FILE"),
		LogLevel:     cmpOrDefault(os.Getenv("LOG_LEVEL"), "info"),
		PGHost:       os.Getenv("PG_HOST"),
		PGPort:       envInt("PG_PORT", 5432),
		PGDatabase:   os.Getenv("PG_DATABASE"),
		PGUser:       os.Getenv("PG_USER"),
		PGPassword:   os.Getenv("PG_PASSWORD"),

		OIDCIssuerURL:    os.Getenv("OIDC_ISSUER_URL"),
		OIDCClientID:     os.Getenv("OIDC_CLIENT_ID"),
		OIDCClientSecret: os.Getenv("OIDC_CLIENT_SECRET"),
		OIDCRedirectURL:  os.Getenv("OIDC_REDIRECT_URL"),

		WSAllowedOrigins: splitCSV(os.Getenv("WS_ALLOWED_ORIGINS")),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("config: JWT_SECRET is required")
	}

	return cfg, nil
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func cmpOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn().Str("key", key).Str("value", v).Msg("config: invalid integer, using default")
		return def
	}
	return n
}
