// Package auth implements the login/session layer from §6.2: bcrypt
// password hashing, JWT session tokens, API key issuance, and a role
// hierarchy check layered on models.Role. Grounded in the teacher's
// auth package idiom (bcrypt cost constant, signed-claims JWT, hashed
// API key storage) even though that package's own source was not part
// of the retrieved pack.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/nocalert/core/internal/models"
)

// ErrInvalidCredentials is returned by token verification on an
// invalid/expired token.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// HashPassword bcrypt-hashes a plaintext password at the default cost.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether plaintext matches the stored bcrypt hash.
func CheckPassword(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// Claims is the JWT payload minted on login.
type Claims struct {
	UserID   string      `json:"uid"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies session JWTs signed with a single
// shared secret (§6.5 JWT_SECRET).
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer builds an issuer. ttl of 0 defaults to 24h.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Mint issues a signed JWT for the given user.
func (t *TokenIssuer) Mint(user *models.User) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a JWT, returning its claims.
func (t *TokenIssuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}

// GenerateAPIKey returns a random key (shown once to the caller) along
// with its SHA-256 hash (persisted) and an 8-char display prefix.
func GenerateAPIKey() (plaintext, hash, prefix string, err error) {
	raw := make([]byte, 32)
	if _, err = rand.Read(raw); err != nil {
		return "", "", "", fmt.Errorf("auth: generate api key: %w", err)
	}
	plaintext = "nak_" + hex.EncodeToString(raw)
	hash = HashAPIKey(plaintext)
	prefix = plaintext[:8]
	return plaintext, hash, prefix, nil
}

// HashAPIKey deterministically hashes a key for lookup/comparison; API
// keys are high-entropy so a fast hash (unlike bcrypt for passwords) is
// appropriate and keeps key-lookup queries indexable.
func HashAPIKey(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// RequireRole reports whether actual satisfies the minimum required role.
func RequireRole(actual, required models.Role) bool {
	return actual.Satisfies(required)
}
