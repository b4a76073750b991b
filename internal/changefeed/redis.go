package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"jokernotes/internal/domain/models"
	"jokernotes/internal/domain/services"
)

// DefaultChannel is the Redis pub/sub channel change events travel on
const DefaultChannel = "jokernotes:changes"

// RedisBus relays change events between instances. Publish goes to Redis
// only; every instance, the publisher included, receives the event back
// through its relay and hands it to the local broker.
type RedisBus struct {
	rdb     *redis.Client
	local   *Broker
	channel string
	log     *slog.Logger
}

// NewRedisClient connects to redis and verifies connectivity
func NewRedisClient(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return rdb, nil
}

// NewRedisBus wraps a connected client. Subscriptions are served by local.
func NewRedisBus(rdb *redis.Client, local *Broker, log *slog.Logger) *RedisBus {
	return &RedisBus{rdb: rdb, local: local, channel: DefaultChannel, log: log}
}

var (
	_ services.ChangePublisher  = (*RedisBus)(nil)
	_ services.ChangeSubscriber = (*RedisBus)(nil)
)

// Publish sends evt to every instance
func (b *RedisBus) Publish(ctx context.Context, evt models.ChangeEvent) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Subscribe registers with the local broker
func (b *RedisBus) Subscribe(topic string) (<-chan models.ChangeEvent, func()) {
	return b.local.Subscribe(topic)
}

// Start subscribes to the channel and returns once the subscription is
// confirmed. Relaying continues in the background until ctx is done.
func (b *RedisBus) Start(ctx context.Context) error {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	go b.relay(ctx, pubsub)
	return nil
}

func (b *RedisBus) relay(ctx context.Context, pubsub *redis.PubSub) {
	defer pubsub.Close()
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var evt models.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				b.log.Warn("discarding malformed change event", "error", err)
				continue
			}
			_ = b.local.Publish(ctx, evt)
		}
	}
}

// Close shuts down the redis connection
func (b *RedisBus) Close() error {
	return b.rdb.Close()
}
