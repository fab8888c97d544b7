package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// SinkRedis is the name of the Redis stream sink.
const SinkRedis = "redis"

// RedisConfig configures the Redis stream sink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Stream is the stream key events are appended to.
	Stream string

	// MaxLen caps the stream with approximate trimming. Zero disables trimming.
	MaxLen int64
}

// RedisPublisher appends events to a Redis stream with XADD. Each entry has
// the fields id, type, key and data, data holding the JSON envelope.
type RedisPublisher struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

// NewRedisPublisher connects to Redis and verifies the connection.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Stream == "" {
		return nil, fmt.Errorf("redis stream is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisPublisherWithClient(client, cfg.Stream, cfg.MaxLen), nil
}

// NewRedisPublisherWithClient uses an existing client. Closing the publisher closes it.
func NewRedisPublisherWithClient(client redis.UniversalClient, stream string, maxLen int64) *RedisPublisher {
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen}
}

// Name implements app.EventSink.
func (p *RedisPublisher) Name() string {
	return SinkRedis
}

// Stream returns the stream key.
func (p *RedisPublisher) Stream() string {
	return p.stream
}

// Publish implements ports.EventPublisher.
func (p *RedisPublisher) Publish(ctx context.Context, event ports.Event) error {
	env, err := NewEnvelope(event)
	if err != nil {
		return err
	}

	data, err := env.Marshal()
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"id":   env.ID,
			"type": env.Type,
			"key":  env.Key,
			"data": string(data),
		},
	}

	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.client.XAdd(ctx, args).Err(); err != nil {
		return unavailable(SinkRedis, err)
	}

	return nil
}

// Check implements ports.HealthChecker.
func (p *RedisPublisher) Check(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close closes the client.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
