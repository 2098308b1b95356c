package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/nocalert/core/internal/auth"
	"github.com/nocalert/core/internal/models"
)

type principalKey struct{}

// Principal identifies the authenticated caller of a request, whether
// authenticated via bearer JWT or an API key.
type Principal struct {
	UserID   string
	Username string
	Role     models.Role
}

func principalFromContext(r *http.Request) (*Principal, bool) {
	p, ok := r.Context().Value(principalKey{}).(*Principal)
	return p, ok
}

// authenticated requires either a valid bearer JWT or API key, without
// imposing any particular role.
func (s *Server) authenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := s.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireRole authenticates the caller and additionally checks they
// satisfy the minimum role.
func (s *Server) requireRole(min models.Role, next http.Handler) http.Handler {
	return s.authenticated(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := principalFromContext(r)
		if !p.Role.Satisfies(min) {
			writeError(w, http.StatusForbidden, "insufficient role")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func (s *Server) authenticate(r *http.Request) (*Principal, error) {
	if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
		return s.authenticateAPIKey(r, apiKey)
	}

	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		token := strings.TrimPrefix(authHeader, "Bearer ")
		claims, err := s.issuer.Verify(token)
		if err != nil {
			return nil, auth.ErrInvalidCredentials
		}
		return &Principal{UserID: claims.UserID, Username: claims.Username, Role: claims.Role}, nil
	}

	return nil, auth.ErrInvalidCredentials
}

func (s *Server) authenticateAPIKey(r *http.Request, plaintext string) (*Principal, error) {
	hash := auth.HashAPIKey(plaintext)
	key, err := s.store.APIKeys.GetByHash(r.Context(), hash)
	if err != nil || key == nil {
		return nil, auth.ErrInvalidCredentials
	}
	_ = s.store.APIKeys.RecordUsage(r.Context(), key.ID)

	user, err := s.store.Users.Get(r.Context(), key.UserID)
	if err != nil || user == nil {
		return nil, auth.ErrInvalidCredentials
	}
	return &Principal{UserID: user.ID, Username: user.Username, Role: user.Role}, nil
}
