package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/nocalert/core/internal/models"
	"github.com/nocalert/core/internal/store"
)

func (s *Server) handleListTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := s.store.Targets.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list targets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"targets": targets})
}

type targetRequest struct {
	Name                string          `json:"name"`
	IPAddress           string          `json:"ip_address"`
	AddonID             string          `json:"addon_id"`
	PollIntervalSeconds int             `json:"poll_interval_seconds"`
	Enabled             bool            `json:"enabled"`
	Config              json.RawMessage `json:"config"`
}

func (s *Server) handleCreateTarget(w http.ResponseWriter, r *http.Request) {
	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IPAddress == "" || req.AddonID == "" {
		writeError(w, http.StatusBadRequest, "ip_address and addon_id are required")
		return
	}
	if s.registry.Get(req.AddonID) == nil {
		writeError(w, http.StatusBadRequest, "unknown addon_id")
		return
	}
	if req.PollIntervalSeconds <= 0 {
		req.PollIntervalSeconds = 60
	}

	t := &models.Target{
		ID:                  uuid.NewString(),
		Name:                req.Name,
		IPAddress:           req.IPAddress,
		AddonID:             req.AddonID,
		PollIntervalSeconds: req.PollIntervalSeconds,
		Enabled:             req.Enabled,
		Config:              req.Config,
	}
	if err := s.store.Targets.Create(r.Context(), t); err != nil {
		if errors.Is(err, store.ErrDuplicateTarget) {
			writeError(w, http.StatusConflict, "target already exists for this ip_address and addon_id")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create target")
		return
	}
	s.auditAction(r, "target.create", t.IPAddress)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleUpdateTarget(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := s.store.Targets.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load target")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "target not found")
		return
	}

	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	existing.Name = req.Name
	existing.IPAddress = req.IPAddress
	existing.AddonID = req.AddonID
	if req.PollIntervalSeconds > 0 {
		existing.PollIntervalSeconds = req.PollIntervalSeconds
	}
	existing.Enabled = req.Enabled
	if len(req.Config) > 0 {
		existing.Config = req.Config
	}

	if err := s.store.Targets.Update(r.Context(), existing); err != nil {
		if errors.Is(err, store.ErrDuplicateTarget) {
			writeError(w, http.StatusConflict, "target already exists for this ip_address and addon_id")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update target")
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) handleDeleteTarget(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Targets.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete target")
		return
	}
	s.auditAction(r, "target.delete", id)
	w.WriteHeader(http.StatusNoContent)
}

type setCredentialsRequest struct {
	CredentialType string            `json:"credential_type"`
	Credentials    map[string]string `json:"credentials"`
}

// handleSetTargetCredentials registers a per-target credential override,
// taking precedence over the ALERTD_CRED_* environment defaults the
// poller otherwise falls back to.
func (s *Server) handleSetTargetCredentials(w http.ResponseWriter, r *http.Request) {
	if s.creds == nil {
		writeError(w, http.StatusServiceUnavailable, "credential overrides are not available")
		return
	}
	id := r.PathValue("id")
	target, err := s.store.Targets.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load target")
		return
	}
	if target == nil {
		writeError(w, http.StatusNotFound, "target not found")
		return
	}

	var req setCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CredentialType == "" {
		writeError(w, http.StatusBadRequest, "credential_type is required")
		return
	}

	s.creds.SetOverride(target.IPAddress, req.CredentialType, store.Credentials(req.Credentials))
	s.auditAction(r, "target.set_credentials", target.IPAddress)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePollTarget(w http.ResponseWriter, r *http.Request) {
	if s.poller == nil {
		writeError(w, http.StatusServiceUnavailable, "polling is not available")
		return
	}
	id := r.PathValue("id")
	target, err := s.store.Targets.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load target")
		return
	}
	if target == nil {
		writeError(w, http.StatusNotFound, "target not found")
		return
	}
	if err := s.poller.PollNow(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "poll failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "polled"})
}
