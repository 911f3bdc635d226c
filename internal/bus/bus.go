// Package bus broadcasts risk updates over Redis pub/sub so multiple
// guardian instances can feed one dashboard. The bus is strictly
// fire-and-forget: a publish failure is logged, never surfaced to the
// scoring path.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Update is the wire form of one risk event.
type Update struct {
	SessionID string    `json:"session_id"`
	Module    string    `json:"module"`
	Score     int       `json:"score"`
	Level     string    `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// Config holds the bus connection settings.
type Config struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// Bus publishes and subscribes to risk updates.
type Bus struct {
	client  *redis.Client
	channel string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Bus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = "guardian:risk:"
	}

	slog.Info("risk bus connected", "addr", cfg.Addr)
	return &Bus{client: client, channel: prefix + "updates"}, nil
}

// Publish broadcasts one risk update. Errors are logged and swallowed.
func (b *Bus) Publish(ctx context.Context, update Update) {
	data, err := json.Marshal(update)
	if err != nil {
		slog.Error("failed to marshal risk update", "error", err)
		return
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		slog.Warn("failed to publish risk update",
			"session_id", update.SessionID,
			"error", err,
		)
	}
}

// Subscribe delivers risk updates to handler until the context is
// cancelled. Malformed messages are skipped.
func (b *Bus) Subscribe(ctx context.Context, handler func(Update)) {
	pubsub := b.client.Subscribe(ctx, b.channel)
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
			var update Update
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				slog.Warn("skipping malformed risk update", "error", err)
				continue
			}
			handler(update)
		}
	}
}

// Close releases the Redis connection.
func (b *Bus) Close() error {
	return b.client.Close()
}
