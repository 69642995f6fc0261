// Package ratelimit counts attempts of an action per identity inside a fixed
// window. The read-increment-write on the counter is serialized with the same
// distributed lock the cache uses, so limits hold across processes.
package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/unkn0wn-root/distcache"
	"github.com/unkn0wn-root/distcache/internal/keys"
	"github.com/unkn0wn-root/distcache/internal/wire"
	"github.com/unkn0wn-root/distcache/lock"
	"github.com/unkn0wn-root/distcache/store"
)

// ErrMissingIdentifier is returned when a Config has no primary identity.
var ErrMissingIdentifier = errors.New("ratelimit: primary identifier is required")

type Status int

const (
	NotExceeded Status = iota
	Exceeded
)

func (s Status) String() string {
	switch s {
	case NotExceeded:
		return "not_exceeded"
	case Exceeded:
		return "exceeded"
	default:
		return "unknown"
	}
}

// State is the outcome of one attempt.
type State struct {
	Status            Status
	TimeToReset       time.Duration // until the window closes; never negative
	RemainingAttempts int
}

type Options struct {
	// Required
	Store store.Store

	Namespace        string
	Locker           *lock.Locker // nil => built from Store and the Lock* fields
	LockTTL          time.Duration
	LockPollInterval time.Duration

	Logger distcache.Logger
	Hooks  distcache.Hooks
	Now    func() time.Time
}

type Limiter struct {
	st     store.Store
	keys   keys.Formatter
	locker *lock.Locker
	log    distcache.Logger
	hooks  distcache.Hooks
	now    func() time.Time
}

func New(opts Options) (*Limiter, error) {
	if opts.Store == nil {
		return nil, errors.New("ratelimit: store is required")
	}
	l := &Limiter{
		st:     opts.Store,
		keys:   keys.New(opts.Namespace),
		locker: opts.Locker,
		log:    opts.Logger,
		hooks:  opts.Hooks,
		now:    opts.Now,
	}
	if l.locker == nil {
		lk, err := lock.New(opts.Store, lock.Options{TTL: opts.LockTTL, PollInterval: opts.LockPollInterval})
		if err != nil {
			return nil, err
		}
		l.locker = lk
	}
	if l.log == nil {
		l.log = distcache.NopLogger{}
	}
	if l.hooks == nil {
		l.hooks = distcache.NopHooks{}
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l, nil
}

// RateLimit records one attempt for cfg's identity and reports whether the
// window's budget was already spent. An exhausted counter is left untouched.
func (l *Limiter) RateLimit(ctx context.Context, cfg Config) (State, error) {
	if err := cfg.Validate(); err != nil {
		return State{}, err
	}
	if strings.TrimSpace(cfg.Primary) == "" {
		return State{}, ErrMissingIdentifier
	}

	k := l.keys.RateLimit(cfg.ActionType, cfg.Primary, cfg.Secondary)
	token := lock.NewToken()
	if err := l.acquire(ctx, k, token); err != nil {
		return State{}, err
	}
	defer l.release(ctx, k, token)

	return l.attempt(ctx, k, cfg)
}

func (l *Limiter) attempt(ctx context.Context, k string, cfg Config) (State, error) {
	now := l.now()
	raw, ok, err := l.st.Get(ctx, k)
	if err != nil {
		return State{}, l.storeErr(ctx, "get", k, err)
	}
	if ok {
		c, err := wire.DecodeCounter(raw)
		if err != nil {
			l.log.Debug("corrupt rate-limit counter; starting a new window", distcache.Fields{"key": k})
		} else if remaining := time.Duration(c.ExpiresAt - now.UnixNano()); remaining > 0 {
			if c.Attempts >= c.MaxAttempts {
				l.hooks.RateLimitExceeded(k)
				return State{Status: Exceeded, TimeToReset: remaining}, nil
			}
			c.Attempts++
			// same absolute expiry; the window does not slide
			if err := l.st.Set(ctx, k, wire.EncodeCounter(c), remaining); err != nil {
				return State{}, l.storeErr(ctx, "set", k, err)
			}
			return State{
				Status:            NotExceeded,
				TimeToReset:       remaining,
				RemainingAttempts: int(c.MaxAttempts - c.Attempts),
			}, nil
		}
	}

	c := wire.Counter{
		Attempts:    1,
		MaxAttempts: uint32(cfg.MaxAttempts),
		ExpiresAt:   now.Add(cfg.TTL).UnixNano(),
	}
	if err := l.st.Set(ctx, k, wire.EncodeCounter(c), cfg.TTL); err != nil {
		return State{}, l.storeErr(ctx, "set", k, err)
	}
	return State{Status: NotExceeded, TimeToReset: cfg.TTL, RemainingAttempts: cfg.MaxAttempts - 1}, nil
}

func (l *Limiter) acquire(ctx context.Context, k, token string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := l.locker.Acquire(ctx, k, token)
		if err != nil {
			return l.storeErr(ctx, "acquire", k, err)
		}
		if ok {
			return nil
		}
		l.hooks.LockContended(k)

		err = l.locker.WaitUntilReleased(ctx, k)
		if err == nil {
			continue
		}
		var wte *lock.WaitTimeoutError
		switch {
		case errors.As(err, &wte):
			l.hooks.LockWaitTimeout(k, wte.Timeout)
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return l.storeErr(ctx, "wait_lock", k, err)
		}
	}
}

func (l *Limiter) release(ctx context.Context, k, token string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.locker.TTL())
	defer cancel()
	if _, err := l.locker.Release(rctx, k, token); err != nil {
		l.hooks.StoreError("release", k, err)
		l.log.Warn("rate-limit lock release failed", distcache.Fields{"key": k, "err": err})
	}
}

func (l *Limiter) storeErr(ctx context.Context, op, k string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	l.hooks.StoreError(op, k, err)
	l.log.Warn("rate-limit store call failed", distcache.Fields{"op": op, "key": k, "err": err})
	return distcache.WrapOpError(op, k, err)
}
