package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"easymanager/internal/config"
)

// NewRedisClient connects and pings Redis.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return rdb, nil
}

type wireEvent struct {
	Name    string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// RedisBridge publishes through a Redis channel so every instance sharing it
// relays the event to its own hub. While no relay loop is subscribed, events
// are delivered to the local hub only.
type RedisBridge struct {
	client   *redis.Client
	channel  string
	hub      *Hub
	logger   *zap.Logger
	relaying atomic.Bool
}

var _ Publisher = (*RedisBridge)(nil)

func NewRedisBridge(client *redis.Client, channel string, hub *Hub, logger *zap.Logger) *RedisBridge {
	return &RedisBridge{client: client, channel: channel, hub: hub, logger: logger}
}

// Publish falls back to local delivery when Redis rejects the message.
func (b *RedisBridge) Publish(ctx context.Context, e Event) {
	if !b.relaying.Load() {
		b.hub.Publish(ctx, e)
		return
	}

	data, err := json.Marshal(e)
	if err != nil {
		b.logger.Error("encoding event failed", zap.String("event", e.Name), zap.Error(err))
		return
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Warn("redis publish failed, delivering locally",
			zap.String("event", e.Name),
			zap.Error(err),
		)
		b.hub.Publish(ctx, e)
	}
}

// Run relays messages from the channel into the local hub until ctx ends.
// A lost subscription is logged and leaves the bridge delivering locally.
func (b *RedisBridge) Run(ctx context.Context) {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		b.logger.Warn("redis subscribe failed, events stay local",
			zap.String("channel", b.channel),
			zap.Error(err),
		)
		return
	}
	b.relaying.Store(true)
	defer b.relaying.Store(false)
	b.logger.Info("relaying events from redis", zap.String("channel", b.channel))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				b.logger.Warn("redis subscription closed, events stay local", zap.String("channel", b.channel))
				return
			}
			event, err := decodeWireEvent(msg.Payload)
			if err != nil {
				b.logger.Warn("dropping malformed event", zap.Error(err))
				continue
			}
			b.hub.Publish(ctx, event)
		}
	}
}

func decodeWireEvent(payload string) (Event, error) {
	var wire wireEvent
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return Event{}, err
	}
	if wire.Name == "" {
		return Event{}, fmt.Errorf("event name missing")
	}
	return Event{Name: wire.Name, Payload: wire.Payload}, nil
}
