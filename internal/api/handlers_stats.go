package api

import "net/http"

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	addons := s.registry.ListEnabled()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts":        stats,
		"addons_loaded": len(addons),
	})
}
