package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RelayMessage is a broadcast forwarded between broker instances.
type RelayMessage struct {
	Node    string          `json:"node"`
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Relay fans broadcasts out to other instances. Presence stays per instance.
type Relay interface {
	Publish(ctx context.Context, msg RelayMessage) error
	Run(ctx context.Context, deliver func(RelayMessage)) error
	Close() error
}

// RedisRelay implements Relay over Redis Pub/Sub.
type RedisRelay struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisRelay builds a relay publishing on prefix+"broadcast".
func NewRedisRelay(client *redis.Client, prefix string, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{client: client, channel: prefix + "broadcast", logger: logger}
}

// Publish implements Relay.
func (r *RedisRelay) Publish(ctx context.Context, msg RelayMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal relay message: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, raw).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", r.channel, err)
	}
	return nil
}

// Run implements Relay.
func (r *RedisRelay) Run(ctx context.Context, deliver func(RelayMessage)) error {
	ps := r.client.Subscribe(ctx, r.channel)
	defer ps.Close() //nolint:errcheck

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", r.channel, err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg RelayMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				r.logger.Warn("discarding malformed relay message", zap.Error(err))
				continue
			}
			deliver(msg)
		}
	}
}

// Close implements Relay. The Redis client is owned by the caller.
func (r *RedisRelay) Close() error {
	return nil
}
