// Package alertengine is the only component that mutates alert state: it
// resolves severity/category/title from an addon's mappings, computes
// the dedup fingerprint, applies the lifecycle rules in spec §4.3/§4.8,
// and publishes events only after the write commits.
package alertengine

import (
	"cmp"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/nocalert/core/internal/models"
	"github.com/nocalert/core/internal/store"
)

// Publisher is the event-bus collaborator; alertengine never depends on
// internal/eventbus directly so the two packages can evolve separately.
type Publisher interface {
	Publish(eventType string, alert *models.Alert)
}

// Engine is the alert lifecycle state machine.
type Engine struct {
	repo   *store.AlertRepo
	bus    Publisher
	locks  *shardedLocks
	nowFn  func() time.Time
}

// New constructs an Engine backed by repo, publishing through bus.
func New(repo *store.AlertRepo, bus Publisher) *Engine {
	return &Engine{repo: repo, bus: bus, locks: newShardedLocks(), nowFn: time.Now}
}

func (e *Engine) now() time.Time { return e.nowFn().UTC() }

// Process implements §4.3 steps 1-8: resolve mappings, dedupe by
// fingerprint, upsert, and publish alert_created or alert_updated after
// the write, followed by alert_resolved when a clear event resolves the
// alert. A clear event does not add to the occurrence count.
func (e *Engine) Process(ctx context.Context, parsed *models.ParsedAlert, addon *models.Manifest) (*models.Alert, error) {
	if !addon.IsAlertEnabled(parsed.AlertType) {
		return nil, nil
	}

	severity, ok := addon.SeverityFor(parsed.AlertType)
	if !ok {
		severity = string(models.SeverityWarning)
	}
	category, ok := addon.CategoryFor(parsed.AlertType)
	if !ok {
		category = addon.Category
	}
	title, ok := addon.TitleFor(parsed.AlertType)
	if !ok {
		title = defaultTitle(parsed, addon)
	}

	fingerprint := models.Fingerprint(parsed.AddonID, parsed.AlertType, parsed.DeviceIP)

	var result *models.Alert
	err := e.locks.withLock(fingerprint, func() error {
		existing, err := e.repo.GetActiveByFingerprint(ctx, fingerprint)
		if err != nil {
			return fmt.Errorf("alertengine: lookup fingerprint: %w", err)
		}

		if existing != nil {
			if !parsed.IsClear {
				existing.OccurrenceCount++
			}
			if parsed.Message != "" {
				existing.Message = parsed.Message
			}
			if len(parsed.RawData) > 0 {
				existing.RawData = parsed.RawData
			}
			if err := e.repo.Update(ctx, existing); err != nil {
				return fmt.Errorf("alertengine: update: %w", err)
			}
			e.bus.Publish("alert_updated", existing.Clone())
			result = existing

			if parsed.IsClear && existing.Status != models.StatusResolved {
				if err := e.resolveLocked(ctx, existing); err != nil {
					return err
				}
				result = existing
			}
			return nil
		}

		occurredAt := e.now()
		if parsed.Timestamp != nil {
			occurredAt = parsed.Timestamp.UTC()
		}
		now := e.now()
		a := &models.Alert{
			ID:              uuid.NewString(),
			AddonID:         parsed.AddonID,
			Fingerprint:     fingerprint,
			DeviceIP:        parsed.DeviceIP,
			DeviceName:      parsed.DeviceName,
			AlertType:       parsed.AlertType,
			Severity:        models.Severity(severity),
			Category:        category,
			Title:           title,
			Message:         parsed.Message,
			Status:          models.StatusActive,
			IsClear:         parsed.IsClear,
			OccurredAt:      occurredAt,
			ReceivedAt:      now,
			OccurrenceCount: 1,
			RawData:         parsed.RawData,
			CreatedAt:       now,
		}
		if err := e.repo.Insert(ctx, a); err != nil {
			return fmt.Errorf("alertengine: insert: %w", err)
		}
		e.bus.Publish("alert_created", a.Clone())
		result = a

		if parsed.IsClear {
			// A "cold clear" with no prior active alert: resolve it
			// immediately, producing an already-resolved row.
			if err := e.resolveLocked(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Acknowledge transitions active -> acknowledged. An alert in any other
// status is rejected with ErrInvalidTransition.
func (e *Engine) Acknowledge(ctx context.Context, alertID string) (*models.Alert, error) {
	a, err := e.repo.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	if a.Status != models.StatusActive {
		return nil, ErrInvalidTransition
	}

	var result *models.Alert
	err = e.locks.withLock(a.Fingerprint, func() error {
		a.Status = models.StatusAcknowledged
		if err := e.repo.Update(ctx, a); err != nil {
			return fmt.Errorf("alertengine: acknowledge: %w", err)
		}
		e.bus.Publish("alert_updated", a.Clone())
		result = a
		return nil
	})
	return result, err
}

// Resolve transitions any non-resolved status to resolved. Resolving an
// already-resolved alert is rejected with ErrInvalidTransition; callers
// that want silent idempotency (e.g. AutoResolve) go through resolveLocked
// directly instead.
func (e *Engine) Resolve(ctx context.Context, alertID string, source string) (*models.Alert, error) {
	a, err := e.repo.Get(ctx, alertID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrNotFound
	}
	if a.Status == models.StatusResolved {
		return nil, ErrInvalidTransition
	}

	var result *models.Alert
	err = e.locks.withLock(a.Fingerprint, func() error {
		if err := e.resolveLocked(ctx, a); err != nil {
			return err
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Debug().Str("alert_id", alertID).Str("source", source).Msg("alert resolved")
	return result, nil
}

// resolveLocked must be called with the fingerprint's shard lock held.
func (e *Engine) resolveLocked(ctx context.Context, a *models.Alert) error {
	if a.Status == models.StatusResolved {
		return nil
	}
	now := e.now()
	a.Status = models.StatusResolved
	a.ResolvedAt = &now
	if err := e.repo.Update(ctx, a); err != nil {
		return fmt.Errorf("alertengine: resolve: %w", err)
	}
	e.bus.Publish("alert_resolved", a.Clone())
	return nil
}

// AutoResolve resolves the matching active alert for (addonID, alertType,
// deviceIP), if any, and reports whether one was resolved. Called by
// poll ingestors after a successful poll following a previous failure.
func (e *Engine) AutoResolve(ctx context.Context, addonID, alertType, deviceIP string) (bool, error) {
	fingerprint := models.Fingerprint(addonID, alertType, deviceIP)
	resolved := false
	err := e.locks.withLock(fingerprint, func() error {
		a, err := e.repo.GetActiveByFingerprint(ctx, fingerprint)
		if err != nil {
			return err
		}
		if a == nil {
			return nil
		}
		if err := e.resolveLocked(ctx, a); err != nil {
			return err
		}
		resolved = true
		return nil
	})
	return resolved, err
}

// Get returns a single alert by id.
func (e *Engine) Get(ctx context.Context, id string) (*models.Alert, error) {
	return e.repo.Get(ctx, id)
}

// List returns alerts matching filter, ordered by occurred_at DESC.
func (e *Engine) List(ctx context.Context, filter store.ListFilter) ([]*models.Alert, error) {
	return e.repo.List(ctx, filter)
}

// Stats returns the aggregate view for GET /stats and GET /alerts/stats.
func (e *Engine) Stats(ctx context.Context) (*models.Stats, error) {
	return e.repo.Stats(ctx)
}

// Delete hard-deletes an alert (admin only).
func (e *Engine) Delete(ctx context.Context, id string) error {
	return e.repo.Delete(ctx, id)
}

func defaultTitle(parsed *models.ParsedAlert, addon *models.Manifest) string {
	device := cmp.Or(parsed.DeviceIP, parsed.DeviceName, "Unknown")
	return fmt.Sprintf("%s: %s on %s", addon.Name, titleCase(parsed.AlertType), device)
}

func titleCase(s string) string {
	s = strings.ReplaceAll(s, "_", " ")
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// ErrNotFound is returned by Acknowledge/Resolve when the alert id does
// not exist.
var ErrNotFound = fmt.Errorf("alertengine: alert not found")

// ErrInvalidTransition is returned by Acknowledge when the alert is not
// active, and by Resolve when the alert is already resolved.
var ErrInvalidTransition = fmt.Errorf("alertengine: invalid state transition")
