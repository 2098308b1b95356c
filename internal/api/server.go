// Package api implements the REST control plane from §6.3: a stdlib
// net/http.ServeMux router (the teacher composes its own routing on top
// of the standard mux rather than pulling in a framework) with a small
// middleware chain (request ID, zerolog access log, recover-and-500).
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nocalert/core/internal/addons"
	"github.com/nocalert/core/internal/alertengine"
	"github.com/nocalert/core/internal/auth"
	"github.com/nocalert/core/internal/models"
	"github.com/nocalert/core/internal/store"
)

// Server wires every REST endpoint to its collaborators.
type Server struct {
	store    *store.Store
	registry *addons.Registry
	engine   *alertengine.Engine
	issuer   *auth.TokenIssuer
	poller   TargetPoker
	oidc     *auth.OIDCProvider
	creds    *store.EnvCredentialResolver

	startedAt time.Time
}

// TargetPoker lets POST /targets/{id}/poll trigger an immediate poll
// without internal/api importing internal/ingest/poll directly.
type TargetPoker interface {
	PollNow(ctx context.Context, targetID string) error
}

// New builds a Server. poller may be nil (POST /targets/{id}/poll then
// returns 503).
func New(s *store.Store, registry *addons.Registry, engine *alertengine.Engine, issuer *auth.TokenIssuer, poller TargetPoker) *Server {
	return &Server{store: s, registry: registry, engine: engine, issuer: issuer, poller: poller, startedAt: time.Now().UTC()}
}

// WithOIDC enables the supplementary GET /auth/oidc/login and
// /auth/oidc/callback routes. Call before Router(); a nil provider
// leaves those routes unregistered.
func (s *Server) WithOIDC(p *auth.OIDCProvider) *Server {
	s.oidc = p
	return s
}

// WithCredentialResolver enables PUT /targets/{id}/credentials for
// registering per-target poll credential overrides at runtime. A nil
// resolver leaves the route returning 503.
func (s *Server) WithCredentialResolver(r *store.EnvCredentialResolver) *Server {
	s.creds = r
	return s
}

// Router builds the full /api/v1 mux wrapped in the middleware chain.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/auth/refresh", s.handleRefresh)
	mux.Handle("GET /api/v1/auth/me", s.authenticated(http.HandlerFunc(s.handleMe)))
	if s.oidc != nil {
		mux.HandleFunc("GET /api/v1/auth/oidc/login", s.handleOIDCLogin)
		mux.HandleFunc("GET /api/v1/auth/oidc/callback", s.handleOIDCCallback)
	}

	mux.HandleFunc("GET /api/v1/health", s.handleHealth)
	mux.Handle("GET /api/v1/stats", s.authenticated(http.HandlerFunc(s.handleStats)))

	mux.Handle("GET /api/v1/alerts", s.authenticated(http.HandlerFunc(s.handleListAlerts)))
	mux.Handle("GET /api/v1/alerts/stats", s.authenticated(http.HandlerFunc(s.handleStats)))
	mux.Handle("GET /api/v1/alerts/{id}", s.authenticated(http.HandlerFunc(s.handleGetAlert)))
	mux.Handle("POST /api/v1/alerts/{id}/acknowledge", s.requireRole(models.RoleOperator, http.HandlerFunc(s.handleAcknowledge)))
	mux.Handle("POST /api/v1/alerts/{id}/resolve", s.requireRole(models.RoleOperator, http.HandlerFunc(s.handleResolve)))
	mux.Handle("DELETE /api/v1/alerts/{id}", s.requireRole(models.RoleAdmin, http.HandlerFunc(s.handleDeleteAlert)))

	mux.Handle("GET /api/v1/targets", s.authenticated(http.HandlerFunc(s.handleListTargets)))
	mux.Handle("POST /api/v1/targets", s.requireRole(models.RoleOperator, http.HandlerFunc(s.handleCreateTarget)))
	mux.Handle("PUT /api/v1/targets/{id}", s.requireRole(models.RoleOperator, http.HandlerFunc(s.handleUpdateTarget)))
	mux.Handle("DELETE /api/v1/targets/{id}", s.requireRole(models.RoleAdmin, http.HandlerFunc(s.handleDeleteTarget)))
	mux.Handle("POST /api/v1/targets/{id}/poll", s.requireRole(models.RoleOperator, http.HandlerFunc(s.handlePollTarget)))
	mux.Handle("PUT /api/v1/targets/{id}/credentials", s.requireRole(models.RoleAdmin, http.HandlerFunc(s.handleSetTargetCredentials)))

	mux.Handle("GET /api/v1/users", s.requireRole(models.RoleAdmin, http.HandlerFunc(s.handleListUsers)))
	mux.Handle("POST /api/v1/users", s.requireRole(models.RoleAdmin, http.HandlerFunc(s.handleCreateUser)))
	mux.Handle("PUT /api/v1/users/{id}", s.requireRole(models.RoleAdmin, http.HandlerFunc(s.handleUpdateUser)))
	mux.Handle("DELETE /api/v1/users/{id}", s.requireRole(models.RoleAdmin, http.HandlerFunc(s.handleDeleteUser)))

	mux.Handle("GET /api/v1/api-keys", s.authenticated(http.HandlerFunc(s.handleListAPIKeys)))
	mux.Handle("POST /api/v1/api-keys", s.authenticated(http.HandlerFunc(s.handleCreateAPIKey)))

	mux.Handle("GET /api/v1/settings", s.requireRole(models.RoleAdmin, http.HandlerFunc(s.handleListSettings)))
	mux.Handle("PUT /api/v1/settings/{key}", s.requireRole(models.RoleAdmin, http.HandlerFunc(s.handleSetSetting)))

	mux.Handle("GET /api/v1/audit", s.requireRole(models.RoleAdmin, http.HandlerFunc(s.handleListAudit)))

	return withMiddleware(mux)
}

func withMiddleware(h http.Handler) http.Handler {
	return requestID(accessLog(recoverAndLog(h)))
}

type ctxKey string

const ctxKeyRequestID ctxKey = "request_id"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)
		log.Info().
			Str("request_id", r.Context().Value(ctxKeyRequestID).(string)).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sr.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func recoverAndLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("api: handler panic recovered")
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// auditAction records an administrative action against the audit log.
// Best-effort: a logging failure never blocks the response already sent.
func (s *Server) auditAction(r *http.Request, action, details string) {
	p, ok := principalFromContext(r)
	if !ok {
		return
	}
	if err := s.store.Audit.Log(r.Context(), p.UserID, action, details); err != nil {
		log.Warn().Err(err).Str("action", action).Msg("api: failed to write audit log")
	}
}
