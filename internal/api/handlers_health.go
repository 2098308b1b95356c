package api

import (
	"net/http"
	"time"
)

// Version is stamped at build time via -ldflags; "dev" otherwise.
var Version = "dev"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	components := map[string]string{"store": "healthy"}
	if !s.store.Healthy(r.Context()) {
		status = "degraded"
		components["store"] = "unreachable"
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"version":   Version,
		"timestamp": time.Now().UTC(),
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"components": components,
	})
}
