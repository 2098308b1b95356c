package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func (s *Server) handleListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.store.Settings.All(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list settings")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"settings": settings})
}

type setSettingRequest struct {
	Value string `json:"value"`
}

// handleSetSetting takes effect once the daemon reloads system_settings
// (on SIGHUP, or the next time a process-wide reload is triggered); it
// is not applied live by this request.
func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	var req setSettingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.store.Settings.Set(r.Context(), key, req.Value); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to set setting")
		return
	}
	s.auditAction(r, "setting.set", key)
	w.WriteHeader(http.StatusNoContent)
}

const defaultAuditLimit = 100

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := s.store.Audit.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list audit log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}
