package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// pushTimeout bounds re-queue and dead-letter writes.
const pushTimeout = 5 * time.Second

type Handler func(ctx context.Context, event Event) error

type ConsumerConfig struct {
	Queue          string
	DeadQueue      string
	MaxAttempts    int
	PollTimeout    time.Duration
	HandlerTimeout time.Duration
}

// Consumer pops events from a Redis list and dispatches them by type.
// Failed events are re-queued until MaxAttempts, then moved to DeadQueue.
type Consumer struct {
	client   *redis.Client
	config   ConsumerConfig
	logger   *slog.Logger
	handlers map[Type]Handler
	mu       sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsumer(client *redis.Client, config ConsumerConfig, logger *slog.Logger) *Consumer {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = 5 * time.Second
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Consumer{
		client:   client,
		config:   config,
		logger:   logger,
		handlers: make(map[Type]Handler),
	}
}

func (c *Consumer) Handle(eventType Type, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[eventType] = handler
}

func (c *Consumer) Start(ctx context.Context, concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("starting event consumer", "queue", c.config.Queue, "concurrency", concurrency)

	for i := 0; i < concurrency; i++ {
		c.wg.Add(1)
		go c.loop(ctx)
	}
}

func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info("event consumer stopped")
}

func (c *Consumer) loop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.processNext(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("error processing event", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

func (c *Consumer) processNext(ctx context.Context) error {
	result, err := c.client.BLPop(ctx, c.config.PollTimeout, c.config.Queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to pop event: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid event result")
	}

	var event Event
	if err := json.Unmarshal([]byte(result[1]), &event); err != nil {
		c.logger.Warn("discarding malformed event", "error", err)
		return c.deadLetter(ctx, result[1], err)
	}

	return c.dispatch(ctx, event)
}

func (c *Consumer) dispatch(ctx context.Context, event Event) error {
	c.mu.RLock()
	handler, exists := c.handlers[event.Type]
	c.mu.RUnlock()

	if !exists {
		return c.deadLetter(ctx, event, fmt.Errorf("no handler registered for event type: %s", event.Type))
	}

	handlerCtx, cancel := context.WithTimeout(ctx, c.config.HandlerTimeout)
	defer cancel()

	if err := handler(handlerCtx, event); err != nil {
		// Interrupted by shutdown: hand the event back untouched.
		if ctx.Err() != nil {
			c.logger.Info("returning in-flight event to queue", "event_id", event.ID)
			return c.pushFront(ctx, c.config.Queue, event)
		}

		event.Attempts++
		if event.Attempts < c.config.MaxAttempts {
			c.logger.Warn("event handler failed, retrying",
				"event_id", event.ID, "attempt", event.Attempts, "max_attempts", c.config.MaxAttempts, "error", err)
			return c.push(ctx, c.config.Queue, event)
		}

		c.logger.Error("event failed permanently",
			"event_id", event.ID, "attempts", event.Attempts, "error", err)
		return c.deadLetter(ctx, event, err)
	}

	c.logger.Debug("event processed", "event_id", event.ID, "type", event.Type)
	return nil
}

// push appends to a queue. Writes are detached from ctx cancellation so an
// event popped before shutdown is never dropped.
func (c *Consumer) push(ctx context.Context, queue string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()
	return c.client.RPush(ctx, queue, data).Err()
}

// pushFront returns an event to the head of a queue so it is the next one
// popped.
func (c *Consumer) pushFront(ctx context.Context, queue string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
	defer cancel()
	return c.client.LPush(ctx, queue, data).Err()
}

func (c *Consumer) deadLetter(ctx context.Context, original interface{}, cause error) error {
	return c.push(ctx, c.config.DeadQueue, map[string]interface{}{
		"event":     original,
		"error":     cause.Error(),
		"failed_at": time.Now().UTC(),
	})
}

// LogHandler records task activity in the application log.
func LogHandler(logger *slog.Logger) Handler {
	return func(ctx context.Context, event Event) error {
		logger.InfoContext(ctx, "task activity",
			"event_id", event.ID,
			"type", event.Type,
			"task_id", event.TaskID,
			"occurred_at", event.OccurredAt)
		return nil
	}
}
