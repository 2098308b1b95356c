// Package addons implements the single-writer, many-reader addon
// registry: it loads enabled manifests from the store and serves map
// lookups by id and webhook path, and a longest-matching enterprise OID
// prefix lookup over a slice sorted longest-first. Readers never lock; writers build a fresh snapshot and swap it
// atomically, mirroring the copy-on-write pattern the teacher uses for
// its websocket hub's observer list.
package addons

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/nocalert/core/internal/models"
	"github.com/nocalert/core/internal/store"
)

// snapshot is the immutable index rebuilt on every load_all/reload.
type snapshot struct {
	byID         map[string]*models.Manifest
	byOIDPrefix  []oidEntry // sorted longest-prefix-first
	byWebhook    map[string]*models.Manifest
	byMethod     map[models.Method][]*models.Manifest
	enabledCount int
}

type oidEntry struct {
	prefix   string
	manifest *models.Manifest
}

// Registry is the addon lookup service. Safe for concurrent use.
type Registry struct {
	store *store.AddonRepo
	snap  atomic.Pointer[snapshot]
}

// New constructs a Registry backed by repo. Call Reload before use.
func New(repo *store.AddonRepo) *Registry {
	r := &Registry{store: repo}
	r.snap.Store(&snapshot{
		byID:      map[string]*models.Manifest{},
		byWebhook: map[string]*models.Manifest{},
		byMethod:  map[models.Method][]*models.Manifest{},
	})
	return r
}

// Reload reads every enabled addon row, rebuilds the lookup indexes, and
// swaps them in atomically. On any error the previous snapshot remains
// active, per §4.1.
func (r *Registry) Reload(ctx context.Context) error {
	rows, err := r.store.ListEnabled(ctx)
	if err != nil {
		return fmt.Errorf("registry: reload: %w", err)
	}

	next := &snapshot{
		byID:      make(map[string]*models.Manifest, len(rows)),
		byWebhook: make(map[string]*models.Manifest, len(rows)),
		byMethod:  map[models.Method][]*models.Manifest{},
	}

	seenPaths := map[string]string{}
	for _, row := range rows {
		m := row.Manifest
		if err := m.Validate(); err != nil {
			return &models.ErrInvalidManifest{Reason: err.Error()}
		}
		next.byID[m.ID] = m
		next.byMethod[m.Method] = append(next.byMethod[m.Method], m)

		switch m.Method {
		case models.MethodSNMPTrap:
			if m.SNMPTrap != nil && m.SNMPTrap.EnterpriseOID != "" {
				next.byOIDPrefix = append(next.byOIDPrefix, oidEntry{prefix: m.SNMPTrap.EnterpriseOID, manifest: m})
			}
		case models.MethodWebhook:
			path := m.Webhook.EndpointPath
			if prev, ok := seenPaths[path]; ok {
				return &models.ErrInvalidManifest{Reason: fmt.Sprintf("webhook path %q already used by addon %s", path, prev)}
			}
			seenPaths[path] = m.ID
			next.byWebhook[path] = m
		}
	}

	sort.Slice(next.byOIDPrefix, func(i, j int) bool {
		a, b := next.byOIDPrefix[i], next.byOIDPrefix[j]
		if len(a.prefix) != len(b.prefix) {
			return len(a.prefix) > len(b.prefix)
		}
		return a.manifest.ID < b.manifest.ID
	})

	next.enabledCount = len(next.byID)
	r.snap.Store(next)

	all, err := r.store.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("registry: count installed: %w", err)
	}
	setInstalledGauge(len(all))
	setEnabledGauge(next.enabledCount)

	log.Info().Int("enabled", next.enabledCount).Msg("addon registry reloaded")
	return nil
}

// Get returns the manifest for id, or nil.
func (r *Registry) Get(id string) *models.Manifest {
	return r.snap.Load().byID[id]
}

// FindByOID returns the addon whose enterprise_oid is the longest
// matching prefix of oid, tie-breaking on lexicographic addon id.
func (r *Registry) FindByOID(oid string) *models.Manifest {
	for _, e := range r.snap.Load().byOIDPrefix {
		if oid == e.prefix || strings.HasPrefix(oid, e.prefix+".") {
			return e.manifest
		}
	}
	return nil
}

// FindByWebhook returns the addon registered for an exact webhook path.
func (r *Registry) FindByWebhook(path string) *models.Manifest {
	return r.snap.Load().byWebhook[path]
}

// ListEnabled returns every enabled addon manifest.
func (r *Registry) ListEnabled() []*models.Manifest {
	snap := r.snap.Load()
	out := make([]*models.Manifest, 0, len(snap.byID))
	for _, m := range snap.byID {
		out = append(out, m)
	}
	return out
}

// ListByMethod returns every enabled addon using the given transport.
func (r *Registry) ListByMethod(method models.Method) []*models.Manifest {
	return r.snap.Load().byMethod[method]
}

// Install upserts a manifest (validating it first) and reloads. The
// webhook-path uniqueness that Reload would otherwise enforce is checked
// up front, against the registry's own enabled snapshot, so a rejected
// manifest is never persisted: Upsert has no uniqueness check of its
// own, and a row committed here would keep failing every later Reload
// until manually removed.
func (r *Registry) Install(ctx context.Context, m *models.Manifest, enabled bool) error {
	if err := m.Validate(); err != nil {
		return &models.ErrInvalidManifest{Reason: err.Error()}
	}
	if enabled && m.Method == models.MethodWebhook {
		if err := r.checkWebhookPathFree(m); err != nil {
			return err
		}
	}
	if err := r.store.Upsert(ctx, m, enabled); err != nil {
		return err
	}
	return r.Reload(ctx)
}

// checkWebhookPathFree reports an ErrInvalidManifest if m's webhook path
// is already used by a different, currently enabled addon.
func (r *Registry) checkWebhookPathFree(m *models.Manifest) error {
	path := m.Webhook.EndpointPath
	for _, existing := range r.snap.Load().byWebhook {
		if existing.ID == m.ID {
			continue
		}
		if existing.Webhook != nil && existing.Webhook.EndpointPath == path {
			return &models.ErrInvalidManifest{Reason: fmt.Sprintf("webhook path %q already used by addon %s", path, existing.ID)}
		}
	}
	return nil
}

// Uninstall removes an addon and reloads.
func (r *Registry) Uninstall(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	return r.Reload(ctx)
}

// Enable flips enabled=true for an addon and reloads.
func (r *Registry) Enable(ctx context.Context, id string) error {
	if err := r.store.SetEnabled(ctx, id, true); err != nil {
		return err
	}
	return r.Reload(ctx)
}

// Disable flips enabled=false for an addon and reloads.
func (r *Registry) Disable(ctx context.Context, id string) error {
	if err := r.store.SetEnabled(ctx, id, false); err != nil {
		return err
	}
	return r.Reload(ctx)
}

var (
	registryMetricsOnce sync.Once
	installedAddonsGauge prometheus.Gauge
	enabledAddonsGauge   prometheus.Gauge
)

func initRegistryMetrics() {
	installedAddonsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nocalert", Subsystem: "registry", Name: "addons_installed",
		Help: "Number of addon manifests currently installed (enabled or not).",
	})
	enabledAddonsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "nocalert", Subsystem: "registry", Name: "addons_enabled",
		Help: "Number of addon manifests currently enabled.",
	})
	prometheus.MustRegister(installedAddonsGauge, enabledAddonsGauge)
}

func ensureRegistryMetrics() {
	registryMetricsOnce.Do(initRegistryMetrics)
}

func setInstalledGauge(n int) {
	ensureRegistryMetrics()
	installedAddonsGauge.Set(float64(n))
}

func setEnabledGauge(n int) {
	ensureRegistryMetrics()
	enabledAddonsGauge.Set(float64(n))
}
