package events

import (
	"context"
	"encoding/json"
	"fmt"

	"todo-app/backend/internal/config"

	"github.com/redis/go-redis/v9"
)

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher discards events. It is used when Redis is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func NewRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
}

// RedisPublisher appends events to a Redis list.
type RedisPublisher struct {
	client  *redis.Client
	queue   string
	breaker *CircuitBreaker
}

func NewRedisPublisher(client *redis.Client, queue string, breaker *CircuitBreaker) *RedisPublisher {
	if breaker == nil {
		breaker = NewCircuitBreaker(nil)
	}
	return &RedisPublisher{client: client, queue: queue, breaker: breaker}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.breaker.Execute(func() error {
		return p.client.RPush(ctx, p.queue, data).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}
	return nil
}

func (p *RedisPublisher) Health(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func (p *RedisPublisher) Breaker() *CircuitBreaker {
	return p.breaker
}
