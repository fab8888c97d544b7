package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalid wraps every configuration validation failure.
var ErrInvalid = errors.New("config validation failed")

// validate reports fields by their koanf key, so messages name the same
// path an operator sets in YAML.
var validate = func() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("koanf"), ",")
		return name
	})

	return v
}()

// Validate checks the struct tags and the settings each enabled event sink
// needs. All failures are reported together, one per line.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %w", ErrInvalid, err)
		}

		for _, fe := range fieldErrs {
			problems = append(problems, describe(fe))
		}
	}

	problems = append(problems, c.Events.missingSettings()...)

	if len(problems) == 0 {
		return nil
	}

	return fmt.Errorf("%w:\n  %s", ErrInvalid, strings.Join(problems, "\n  "))
}

// missingSettings lists the keys an enabled sink cannot run without.
func (e EventsConfig) missingSettings() []string {
	var out []string

	if e.Sink("redis") {
		if e.Redis.Addr == "" {
			out = append(out, "events.redis.addr is required when the redis sink is enabled")
		}

		if e.Redis.Stream == "" {
			out = append(out, "events.redis.stream is required when the redis sink is enabled")
		}
	}

	if e.Sink("kafka") {
		if len(e.Kafka.Brokers) == 0 {
			out = append(out, "events.kafka.brokers is required when the kafka sink is enabled")
		}

		if e.Kafka.Topic == "" {
			out = append(out, "events.kafka.topic is required when the kafka sink is enabled")
		}
	}

	if e.Sink("webhook") && e.Webhook.URL == "" {
		out = append(out, "events.webhook.url is required when the webhook sink is enabled")
	}

	return out
}

func describe(fe validator.FieldError) string {
	key := fe.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		key = rest
	}

	switch fe.Tag() {
	case "required":
		return key + " is required"
	case "required_if":
		return key + " is required when " + strings.ToLower(fe.Param())
	case "min":
		return key + " must be at least " + fe.Param()
	case "max":
		return key + " must be at most " + fe.Param()
	case "oneof":
		return key + " must be one of: " + fe.Param()
	case "url":
		return key + " must be a valid URL"
	default:
		return fmt.Sprintf("%s failed the %q rule", key, fe.Tag())
	}
}
