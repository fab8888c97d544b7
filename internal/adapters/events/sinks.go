package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/clients"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/adapters/clients/acl"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/platform/config"
	"github.com/jsamuelsen/go-cleanarch-kit/internal/ports"
)

// Sink is an event destination that can report its health.
type Sink interface {
	ports.EventPublisher
	ports.HealthChecker
}

// Sinks is the set of configured sinks in configuration order.
type Sinks struct {
	List   []Sink
	Memory *MemoryPublisher

	closers []func() error
}

// Close releases broker connections.
func (s *Sinks) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c())
	}

	return errors.Join(errs...)
}

// FromConfig builds every sink named in cfg.Sinks. Broker sinks connect
// eagerly, so a wrong address fails at startup rather than on first publish.
func FromConfig(ctx context.Context, cfg config.EventsConfig, client config.ClientConfig, logger *slog.Logger) (*Sinks, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sinks{}

	for _, name := range cfg.Sinks {
		sink, closer, err := build(ctx, name, cfg, client, logger)
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("event sink %s: %w", name, err)
		}

		if m, ok := sink.(*MemoryPublisher); ok {
			s.Memory = m
		}

		s.List = append(s.List, sink)
		if closer != nil {
			s.closers = append(s.closers, closer)
		}

		logger.Info("event sink enabled", slog.String("sink", name))
	}

	return s, nil
}

func build(ctx context.Context, name string, cfg config.EventsConfig, client config.ClientConfig, logger *slog.Logger) (Sink, func() error, error) {
	switch name {
	case SinkMemory:
		return NewMemoryPublisher(cfg.Memory.Retention), nil, nil
	case SinkRedis:
		p, err := NewRedisPublisher(ctx, RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Stream:   cfg.Redis.Stream,
			MaxLen:   cfg.Redis.MaxLen,
		})
		if err != nil {
			return nil, nil, err
		}

		return p, p.Close, nil
	case SinkKafka:
		p, err := NewKafkaPublisher(KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			return nil, nil, err
		}

		return p, p.Close, nil
	case SinkWebhook:
		u, err := url.Parse(cfg.Webhook.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return nil, nil, fmt.Errorf("invalid webhook url %q", cfg.Webhook.URL)
		}

		c, err := clients.New(&clients.Config{
			BaseURL:     u.Scheme + "://" + u.Host,
			ServiceName: cfg.Webhook.Name,
			Timeout:     client.Timeout,
			Retry:       client.Retry,
			Transport:   client.Transport,
			Circuit:     client.CircuitBreaker,
			Logger:      logger,
		})
		if err != nil {
			return nil, nil, err
		}

		return NewWebhookPublisher(acl.NewWebhookAdapter(c, cfg.Webhook.Name, u.RequestURI())), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown sink %q", name)
	}
}
