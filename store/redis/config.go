package redis

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goredis "github.com/redis/go-redis/v9"
)

// ConnConfig holds connection parameters for NewClient.
// A single address yields a plain client, several addresses a cluster client,
// and a non-empty MasterName a sentinel-backed failover client.
type ConnConfig struct {
	Addrs      []string
	MasterName string
	Username   string
	Password   string
	DB         int
	ClientName string

	PoolSize   int // 0 => go-redis default
	MaxRetries int // 0 => go-redis default, -1 disables retries

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Validate checks the connection parameters.
func (c ConnConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addrs, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.DB, validation.Min(0)),
		validation.Field(&c.PoolSize, validation.Min(0)),
		validation.Field(&c.MaxRetries, validation.Min(-1)),
		validation.Field(&c.DialTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.ReadTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.WriteTimeout, validation.Min(time.Duration(0))),
	)
}

// NewClient validates cfg and builds a go-redis UniversalClient.
func NewClient(cfg ConnConfig) (goredis.UniversalClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return goredis.NewUniversalClient(&goredis.UniversalOptions{
		Addrs:        cfg.Addrs,
		MasterName:   cfg.MasterName,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		ClientName:   cfg.ClientName,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}), nil
}
