package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisPublisher is the cross-process leg named in §4.4, backed by a
// Redis pub/sub topic. Publish returns the Redis error; Bus logs and
// swallows it, so it never reaches the caller's commit path.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher parses url (e.g. "redis://localhost:6379/0") and
// returns a ready publisher, which also provides Subscribe.
func NewRedisPublisher(url string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("eventbus: parse REDIS_URL: %w", err)
	}
	return &RedisPublisher{client: redis.NewClient(opts)}, nil
}

// Publish writes payload to the named Redis channel.
func (p *RedisPublisher) Publish(ctx context.Context, topicName string, payload []byte) error {
	return p.client.Publish(ctx, topicName, payload).Err()
}

// Close releases the underlying connection pool.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Subscribe runs until ctx is cancelled, re-emitting every envelope
// received on the alert_events topic onto the local bus. This is how a
// second process (the WebSocket gateway, if split out) observes alerts
// produced by the daemon that owns the database.
func (p *RedisPublisher) Subscribe(ctx context.Context, bus *Bus) {
	sub := p.client.Subscribe(ctx, topic)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Error().Err(err).Msg("eventbus: decode cross-process envelope")
				continue
			}
			for _, obs := range *bus.observers.Load() {
				safeInvoke(obs, env.EventType, env.Alert)
			}
		}
	}
}
