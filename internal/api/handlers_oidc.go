package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nocalert/core/internal/auth"
	"github.com/nocalert/core/internal/models"
)

const oidcStateCookie = "oidc_state"

// handleOIDCLogin redirects to the configured provider, stashing a CSRF
// state value in a short-lived cookie checked by the callback.
func (s *Server) handleOIDCLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     oidcStateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		MaxAge:   300,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.oidc.AuthCodeURL(state), http.StatusFound)
}

// handleOIDCCallback completes the authorization-code exchange and
// provisions or logs in a local user keyed by the identity's email,
// supplementing rather than replacing username/password login.
func (s *Server) handleOIDCCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(oidcStateCookie)
	if err != nil || r.URL.Query().Get("state") != cookie.Value {
		writeError(w, http.StatusBadRequest, "invalid oidc state")
		return
	}

	claims, err := s.oidc.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "oidc exchange failed")
		return
	}
	if claims.Email == "" {
		writeError(w, http.StatusUnauthorized, "oidc identity missing email")
		return
	}

	user, err := s.store.Users.GetByUsername(r.Context(), claims.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to look up user")
		return
	}
	if user == nil {
		user = &models.User{
			ID:           uuid.NewString(),
			Username:     claims.Email,
			Email:        claims.Email,
			PasswordHash: "", // SSO-only account; local password login stays disabled
			Role:         models.RoleViewer,
			IsActive:     true,
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.store.Users.Create(r.Context(), user); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to provision sso user")
			return
		}
	}
	if !user.IsActive {
		writeError(w, http.StatusForbidden, "user account is disabled")
		return
	}

	token, err := s.issuer.Mint(user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to mint token")
		return
	}
	_ = s.store.Users.RecordLogin(r.Context(), user.ID)

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   accessTokenTTLSeconds,
	})
}
