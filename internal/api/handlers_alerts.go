package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/nocalert/core/internal/alertengine"
	"github.com/nocalert/core/internal/store"
)

const defaultAlertsLimit = 50

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.ListFilter{
		AddonID:  q.Get("addon_id"),
		DeviceIP: q.Get("device_ip"),
		Limit:    defaultAlertsLimit,
	}
	if v := q.Get("status"); v != "" {
		filter.Status = strings.Split(v, ",")
	}
	if v := q.Get("severity"); v != "" {
		filter.Severity = strings.Split(v, ",")
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	alerts, err := s.engine.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load alert")
		return
	}
	if a == nil {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.Acknowledge(r.Context(), r.PathValue("id"))
	if err != nil {
		writeNotFoundOrError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	p, _ := principalFromContext(r)
	a, err := s.engine.Resolve(r.Context(), r.PathValue("id"), "api:"+p.Username)
	if err != nil {
		writeNotFoundOrError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete alert")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeNotFoundOrError(w http.ResponseWriter, err error) {
	if errors.Is(err, alertengine.ErrNotFound) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	if errors.Is(err, alertengine.ErrInvalidTransition) {
		writeError(w, http.StatusBadRequest, "alert is not in a state that allows this operation")
		return
	}
	writeError(w, http.StatusInternalServerError, "operation failed")
}
