package ratelimit

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// maxAttemptsLimit keeps MaxAttempts inside the counter's 32-bit field on every platform.
const maxAttemptsLimit = 1<<31 - 1

// Config describes one limited action. Build it once with NewConfig and bind
// identities per call with WithIdentifiers.
type Config struct {
	ActionType  int
	MaxAttempts int
	TTL         time.Duration // window length

	Primary   string // required at call time
	Secondary string // optional, e.g. a device or IP alongside a user id
}

// NewConfig validates the window eagerly so a bad limit fails at wiring time,
// not on the first request.
func NewConfig(actionType, maxAttempts int, ttl time.Duration) (Config, error) {
	cfg := Config{ActionType: actionType, MaxAttempts: maxAttempts, TTL: ttl}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// MustConfig is NewConfig for package-level declarations. It panics on error.
func MustConfig(actionType, maxAttempts int, ttl time.Duration) Config {
	cfg, err := NewConfig(actionType, maxAttempts, ttl)
	if err != nil {
		panic(err)
	}
	return cfg
}

// WithIdentifiers returns a copy of c bound to the given identities.
func (c Config) WithIdentifiers(primary, secondary string) Config {
	c.Primary = primary
	c.Secondary = secondary
	return c
}

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.MaxAttempts, validation.Required, validation.Min(1), validation.Max(maxAttemptsLimit)),
		validation.Field(&c.TTL, validation.Required, validation.Min(time.Millisecond)),
	)
	if err != nil {
		return fmt.Errorf("ratelimit: invalid config for action %d: %w", c.ActionType, err)
	}
	return nil
}
