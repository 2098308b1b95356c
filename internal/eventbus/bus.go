// Package eventbus implements the two-layer event fan-out from §4.4: a
// synchronous, copy-on-write process-local observer list, and a
// fire-and-forget cross-process publish leg. The copy-on-write pattern
// mirrors the teacher's websocket hub, which iterates a stable observer
// snapshot even if registrations change mid-fan-out.
package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/nocalert/core/internal/models"
)

// Observer receives every event published on the local bus. A panic or
// error inside an observer is caught and logged; it must never block or
// break delivery to other observers.
type Observer func(eventType string, alert *models.Alert)

// CrossProcessPublisher is the outbound half of the cross-process leg;
// internal/eventbus/redis.go provides the Redis-backed implementation.
type CrossProcessPublisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Envelope is the JSON shape written to the cross-process topic and
// consumed by other processes (the WebSocket gateway).
type Envelope struct {
	EventType string        `json:"event_type"`
	Alert     *models.Alert `json:"alert"`
}

const topic = "alert_events"

// Bus is the process-local observer list plus an optional cross-process
// publisher. A Bus built by New with a nil cross-process publisher is
// valid and used in tests and single-process deployments.
type Bus struct {
	observers atomic.Pointer[[]Observer]
	mu        sync.Mutex // serializes Subscribe snapshot swaps
	cross     CrossProcessPublisher
	ctx       context.Context
}

// New constructs a Bus. cross may be nil to run process-local only.
func New(ctx context.Context, cross CrossProcessPublisher) *Bus {
	b := &Bus{cross: cross, ctx: ctx}
	empty := []Observer{}
	b.observers.Store(&empty)
	return b
}

// Subscribe registers an observer, copying the current list so in-flight
// Publish calls keep iterating their own snapshot.
func (b *Bus) Subscribe(obs Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := *b.observers.Load()
	next := make([]Observer, len(cur)+1)
	copy(next, cur)
	next[len(cur)] = obs
	b.observers.Store(&next)
}

// Publish invokes every observer synchronously in registration order,
// then fire-and-forgets the event to the cross-process channel. One
// failing observer is logged and does not block the rest.
func (b *Bus) Publish(eventType string, alert *models.Alert) {
	for _, obs := range *b.observers.Load() {
		safeInvoke(obs, eventType, alert)
	}
	b.publishCrossProcess(eventType, alert)
}

func safeInvoke(obs Observer, eventType string, alert *models.Alert) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("event_type", eventType).Msg("event bus observer panicked")
		}
	}()
	obs(eventType, alert)
}

func (b *Bus) publishCrossProcess(eventType string, alert *models.Alert) {
	if b.cross == nil {
		return
	}
	payload, err := json.Marshal(Envelope{EventType: eventType, Alert: alert})
	if err != nil {
		log.Error().Err(err).Msg("event bus: marshal envelope")
		return
	}
	if err := b.cross.Publish(b.ctx, topic, payload); err != nil {
		log.Warn().Err(err).Str("event_type", eventType).Msg("event bus: cross-process publish failed, in-process delivery unaffected")
	}
}
