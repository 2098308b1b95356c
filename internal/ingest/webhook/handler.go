// Package webhook implements the HTTP webhook ingestor from §4.6: a
// single endpoint under /webhooks/{path} that looks the path up against
// enabled addons (exact match per the spec, plus a glob-wildcard layer
// so one addon can claim a whole subtree, e.g. /webhooks/prtg/*).
package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/rs/zerolog/log"

	"github.com/nocalert/core/internal/addons"
	"github.com/nocalert/core/internal/alertengine"
	"github.com/nocalert/core/internal/models"
	"github.com/nocalert/core/internal/parseengine"
)

// DefaultTimeout is how long a request waits for processing before the
// handler falls back to an async 202 response.
const DefaultTimeout = 30 * time.Second

// Handler serves /webhooks/{path}, bounded by a semaphore sized to the
// database connection pool so a burst of webhook traffic cannot exceed
// the store's capacity.
type Handler struct {
	registry *addons.Registry
	engine   *alertengine.Engine
	sem      chan struct{}
	timeout  time.Duration
}

// NewHandler builds a Handler; maxConcurrent should match
// store.Config.MaxOpenConns.
func NewHandler(registry *addons.Registry, engine *alertengine.Engine, maxConcurrent int) *Handler {
	if maxConcurrent <= 0 {
		maxConcurrent = 20
	}
	return &Handler{
		registry: registry,
		engine:   engine,
		sem:      make(chan struct{}, maxConcurrent),
		timeout:  DefaultTimeout,
	}
}

// ServeHTTP implements POST /webhooks/{path}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/webhooks/")
	addon := h.findAddon(path)
	if addon == nil {
		http.NotFound(w, r)
		return
	}

	payload, err := h.parseBody(r)
	if err != nil {
		http.Error(w, `{"detail":"unparseable payload"}`, http.StatusUnprocessableEntity)
		return
	}
	payload["source_ip"] = remoteIP(r)

	raw, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, `{"detail":"unparseable payload"}`, http.StatusUnprocessableEntity)
		return
	}

	select {
	case h.sem <- struct{}{}:
	default:
		http.Error(w, `{"detail":"over capacity"}`, http.StatusServiceUnavailable)
		return
	}

	done := make(chan error, 1)
	go func() {
		defer func() { <-h.sem }()
		done <- h.process(r.Context(), raw, addon)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Warn().Err(err).Str("addon_id", addon.ID).Msg("webhook: processing failed")
		}
		writeJSON(w, http.StatusOK, map[string]bool{"accepted": true})
	case <-time.After(h.timeout):
		writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
	}
}

func (h *Handler) findAddon(path string) *models.Manifest {
	if addon := h.registry.FindByWebhook(path); addon != nil {
		return addon
	}
	for _, addon := range h.registry.ListByMethod(models.MethodWebhook) {
		if addon.Webhook == nil {
			continue
		}
		if wildcard.Match(addon.Webhook.EndpointPath, path) {
			return addon
		}
	}
	return nil
}

func (h *Handler) process(ctx context.Context, raw []byte, addon *models.Manifest) error {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("addon_id", addon.ID).Msg("webhook: handler panic recovered")
		}
	}()

	parsed, err := parseengine.Parse(raw, addon, addon.ID)
	if err != nil {
		return err
	}
	if parsed == nil {
		return nil
	}
	_, err = h.engine.Process(ctx, parsed, addon)
	return err
}

func (h *Handler) parseBody(r *http.Request) (map[string]interface{}, error) {
	defer r.Body.Close()

	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			return nil, err
		}
		if payload == nil {
			payload = map[string]interface{}{}
		}
		return payload, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	payload := make(map[string]interface{}, len(r.PostForm))
	for k, v := range r.PostForm {
		if len(v) > 0 {
			payload[k] = v[0]
		}
	}
	return payload, nil
}

func remoteIP(r *http.Request) string {
	host := r.RemoteAddr
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
