// Package poll implements the periodic active-polling ingestor from
// §4.7: a ticking driver selects due targets and dispatches one poll
// job per target to a bounded worker pool.
package poll

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/nocalert/core/internal/addons"
	"github.com/nocalert/core/internal/alertengine"
	"github.com/nocalert/core/internal/models"
	"github.com/nocalert/core/internal/store"
)

// DefaultTickInterval matches the spec's default schedule.
const DefaultTickInterval = 60 * time.Second

// DefaultMaxConcurrent bounds parallel polls per tick. NewDriver always
// uses it; the cap is the same for every poll method.
const DefaultMaxConcurrent = 200

// Driver ticks on an interval, selects due targets, and fans polls out
// to a bounded worker pool via errgroup.
type Driver struct {
	targets  *store.TargetRepo
	registry *addons.Registry
	engine   *alertengine.Engine
	creds    store.CredentialResolver
	resolver *dnscache.Resolver

	tick          time.Duration
	maxConcurrent int
}

// NewDriver builds a Driver with the spec's default tick interval and
// concurrency cap.
func NewDriver(targets *store.TargetRepo, registry *addons.Registry, engine *alertengine.Engine, creds store.CredentialResolver) *Driver {
	resolver := &dnscache.Resolver{}
	return &Driver{
		targets:       targets,
		registry:      registry,
		engine:        engine,
		creds:         creds,
		resolver:      resolver,
		tick:          DefaultTickInterval,
		maxConcurrent: DefaultMaxConcurrent,
	}
}

// Run ticks until ctx is cancelled, cancellable at tick boundaries per §5.
func (d *Driver) Run(ctx context.Context) {
	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	refresh := time.NewTicker(5 * time.Minute)
	defer refresh.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-refresh.C:
			d.resolver.Refresh(true)
		case <-ticker.C:
			if err := d.RunOnce(ctx); err != nil {
				log.Error().Err(err).Msg("poll: tick failed")
			}
		}
	}
}

// RunOnce selects due targets and polls them concurrently, bounded by
// maxConcurrent. Errors from individual targets are logged, not
// propagated — one bad device must never stall the rest of the fleet.
func (d *Driver) RunOnce(ctx context.Context) error {
	due, err := d.targets.DueForPoll(ctx)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.maxConcurrent)

	for _, target := range due {
		target := target
		g.Go(func() error {
			d.pollTarget(gctx, target)
			return nil
		})
	}
	return g.Wait()
}

// ErrTargetNotFound is returned by PollNow when targetID does not exist.
var ErrTargetNotFound = fmt.Errorf("poll: target not found")

// PollNow polls a single target immediately, outside the normal tick
// schedule. It satisfies api.TargetPoker for POST /targets/{id}/poll.
func (d *Driver) PollNow(ctx context.Context, targetID string) error {
	target, err := d.targets.Get(ctx, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrTargetNotFound
	}
	d.pollTarget(ctx, target)
	return nil
}

func (d *Driver) pollTarget(ctx context.Context, target *models.Target) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("target_id", target.ID).Msg("poll: handler panic recovered")
		}
	}()
	defer func() {
		if err := d.targets.MarkPolled(ctx, target.ID); err != nil {
			log.Warn().Err(err).Str("target_id", target.ID).Msg("poll: failed to mark last_poll_at")
		}
	}()

	addon := d.registry.Get(target.AddonID)
	if addon == nil {
		log.Warn().Str("target_id", target.ID).Str("addon_id", target.AddonID).Msg("poll: unknown addon for target")
		return
	}

	deadline := 10 * time.Second
	pollCtx, cancel := context.WithTimeout(ctx, deadline*6)
	defer cancel()

	switch addon.Method {
	case models.MethodAPIPoll:
		d.pollAPI(pollCtx, target, addon)
	case models.MethodSNMPPoll:
		d.pollSNMP(pollCtx, target, addon)
	case models.MethodSSH:
		d.pollSSH(pollCtx, target, addon)
	default:
		log.Warn().Str("method", string(addon.Method)).Msg("poll: unsupported method for polling driver")
	}
}
