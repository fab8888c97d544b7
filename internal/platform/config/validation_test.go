package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validConfig is the default configuration, which must always validate.
func validConfig(t *testing.T) *Config {
	t.Helper()

	cfg, err := Load("")
	require.NoError(t, err)

	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, validConfig(t).Validate())
}

func TestValidate_FieldRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "app name", mutate: func(c *Config) { c.App.Name = "" }, want: "app.name is required"},
		{name: "environment", mutate: func(c *Config) { c.App.Environment = "staging" }, want: "app.environment must be one of: local dev qa prod test"},
		{name: "port range", mutate: func(c *Config) { c.Server.Port = 70000 }, want: "server.port must be at most 65535"},
		{name: "shutdown timeout", mutate: func(c *Config) { c.Server.ShutdownTimeout = 0 }, want: "server.shutdown_timeout is required"},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "loud" }, want: "log.level must be one of"},
		{name: "log file path", mutate: func(c *Config) { c.Log.File.Enabled, c.Log.File.Path = true, "" }, want: "log.file.path is required when enabled true"},
		{
			name:   "telemetry endpoint",
			mutate: func(c *Config) { c.Telemetry.Enabled, c.Telemetry.Endpoint = true, "" },
			want:   "telemetry.endpoint is required when enabled true",
		},
		{name: "sampling rate", mutate: func(c *Config) { c.Telemetry.SamplingRate = 1.5 }, want: "telemetry.sampling_rate must be at most 1"},
		{
			name:   "short auth secret",
			mutate: func(c *Config) { c.Auth = AuthConfig{Enabled: true, Secret: "short", Issuer: "kit", Audience: "kit"} },
			want:   "auth.secret must be at least 32",
		},
		{name: "auth issuer", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.issuer is required when enabled true"},
		{name: "client timeout", mutate: func(c *Config) { c.Client.Timeout = 50 * time.Millisecond }, want: "client.timeout must be at least 100ms"},
		{name: "retry attempts", mutate: func(c *Config) { c.Client.Retry.MaxAttempts = 11 }, want: "client.retry.max_attempts must be at most 10"},
		{name: "retry multiplier", mutate: func(c *Config) { c.Client.Retry.Multiplier = 1 }, want: "client.retry.multiplier must be at least 1.1"},
		{
			name:   "half open limit",
			mutate: func(c *Config) { c.Client.CircuitBreaker.HalfOpenLimit = 0 },
			want:   "client.circuit_breaker.half_open_limit is required",
		},
		{name: "driver", mutate: func(c *Config) { c.Database.Driver = "oracle" }, want: "database.driver must be one of: sqlite postgres pgx mysql"},
		{name: "dsn", mutate: func(c *Config) { c.Database.DSN = "" }, want: "database.dsn is required"},
		{name: "pool size", mutate: func(c *Config) { c.Database.MaxOpenConns = -1 }, want: "database.max_open_conns must be at least 0"},
		{name: "unknown sink", mutate: func(c *Config) { c.Events.Sinks = []string{"memory", "pigeon"} }, want: "events.sinks[1] must be one of"},
		{name: "webhook url", mutate: func(c *Config) { c.Events.Webhook.URL = "not a url" }, want: "events.webhook.url must be a valid URL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_EnabledSinksNeedSettings(t *testing.T) {
	tests := []struct {
		name   string
		sinks  []string
		mutate func(*EventsConfig)
		want   []string
	}{
		{
			name:  "defaults cover redis and kafka",
			sinks: []string{"memory", "redis", "kafka"},
		},
		{
			name:   "redis",
			sinks:  []string{"redis"},
			mutate: func(e *EventsConfig) { e.Redis.Addr, e.Redis.Stream = "", "" },
			want:   []string{"events.redis.addr is required", "events.redis.stream is required"},
		},
		{
			name:   "kafka",
			sinks:  []string{"kafka"},
			mutate: func(e *EventsConfig) { e.Kafka.Brokers, e.Kafka.Topic = nil, "" },
			want:   []string{"events.kafka.brokers is required", "events.kafka.topic is required"},
		},
		{
			name:  "webhook",
			sinks: []string{"webhook"},
			want:  []string{"events.webhook.url is required when the webhook sink is enabled"},
		},
		{
			name:   "disabled sinks are not checked",
			sinks:  []string{"memory"},
			mutate: func(e *EventsConfig) { e.Redis.Addr, e.Kafka.Brokers = "", nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			cfg.Events.Sinks = tt.sinks

			if tt.mutate != nil {
				tt.mutate(&cfg.Events)
			}

			err := cfg.Validate()
			if len(tt.want) == 0 {
				assert.NoError(t, err)
				return
			}

			require.ErrorIs(t, err, ErrInvalid)

			for _, w := range tt.want {
				assert.Contains(t, err.Error(), w)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := validConfig(t)
	cfg.App.Name = ""
	cfg.Server.Port = 0
	cfg.Events.Sinks = []string{"webhook"}

	err := cfg.Validate()
	require.Error(t, err)

	lines := strings.Split(err.Error(), "\n")
	assert.Equal(t, "config validation failed:", lines[0])
	assert.Len(t, lines, 4)
}
