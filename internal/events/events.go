// Package events carries live bot activity from the trader to dashboard clients.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/paralela17-sudo/volatile-trader-app-sub001/internal/config"
)

// Event types.
const (
	TypeSignal = "signal"
	TypeTrade  = "trade"
	TypeLog    = "log"
)

// Event is one message on the bus. Payload is the JSON form of a signal, trade or log entry.
type Event struct {
	Type    string          `json:"type"`
	UserID  string          `json:"user_id"`
	Time    time.Time       `json:"time"`
	Payload json.RawMessage `json:"payload"`
}

// New builds an event, marshalling payload.
func New(eventType, userID string, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Event{Type: eventType, UserID: userID, Time: time.Now().UTC(), Payload: data}, nil
}

// Publisher sends events to whoever is listening.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event. It is used when Redis is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

// RedisBus publishes and subscribes to a single Redis pub/sub channel.
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisBus connects to Redis and pings it once.
func NewRedisBus(ctx context.Context, opts *redis.Options, channel string, logger *zap.Logger) (*RedisBus, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return &RedisBus{client: client, channel: channel, logger: logger}, nil
}

// Connect dials the bus described by cfg.
func Connect(ctx context.Context, cfg config.Redis, logger *zap.Logger) (*RedisBus, error) {
	opts := &redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB}
	return NewRedisBus(ctx, opts, cfg.Channel, logger)
}

// NewPublisher returns a Redis publisher when the bus is enabled and a NopPublisher otherwise.
func NewPublisher(ctx context.Context, cfg config.Redis, logger *zap.Logger) (Publisher, error) {
	if !cfg.Enabled {
		logger.Info("Event bus disabled")
		return NopPublisher{}, nil
	}
	return Connect(ctx, cfg, logger)
}

// Publish sends event as JSON on the bus channel.
func (b *RedisBus) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

// Subscribe returns a channel of decoded events. The channel is closed when ctx ends.
// The subscription is confirmed before Subscribe returns, so events published afterwards are delivered.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	out := make(chan Event, 64)
	go func() {
		defer close(out)
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
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					b.logger.Warn("Dropping malformed event", zap.Error(err))
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the Redis client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}
