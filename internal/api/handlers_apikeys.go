package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nocalert/core/internal/auth"
	"github.com/nocalert/core/internal/models"
)

func (s *Server) handleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r)

	var keys []*models.APIKey
	var err error
	if p.Role.Satisfies(models.RoleAdmin) {
		keys, err = s.store.APIKeys.ListAll(r.Context())
	} else {
		keys, err = s.store.APIKeys.ListForUser(r.Context(), p.UserID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list api keys")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"api_keys": keys})
}

type createAPIKeyRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (s *Server) handleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r)

	var req createAPIKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	plaintext, hash, prefix, err := auth.GenerateAPIKey()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate api key")
		return
	}

	k := &models.APIKey{
		ID:        uuid.NewString(),
		UserID:    p.UserID,
		Name:      req.Name,
		KeyHash:   hash,
		KeyPrefix: prefix,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: req.ExpiresAt,
	}
	if err := s.store.APIKeys.Create(r.Context(), k); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create api key")
		return
	}
	s.auditAction(r, "apikey.create", k.Name)

	// The plaintext key is returned exactly once; only its hash is persisted.
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"api_key": k,
		"key":     plaintext,
	})
}
