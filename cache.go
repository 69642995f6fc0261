package distcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	c "github.com/unkn0wn-root/distcache/codec"
	"github.com/unkn0wn-root/distcache/internal/keys"
	"github.com/unkn0wn-root/distcache/internal/wire"
	"github.com/unkn0wn-root/distcache/lock"
	"github.com/unkn0wn-root/distcache/store"
)

type readResult int

const (
	miss readResult = iota
	hit
	stale // tag-invalidated and deleted; restart the lookup
)

type cache[V any] struct {
	keys   keys.Formatter
	store  store.Store
	codec  c.Codec[V]
	locker *lock.Locker
	log    Logger
	hooks  Hooks
	now    func() time.Time

	enabled    bool
	defaultTTL time.Duration
	tagTTL     time.Duration
	fanOut     int
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Store == nil {
		return nil, errors.New("distcache: store is required")
	}
	if opts.DefaultTTL < 0 || opts.LockTTL < 0 || opts.LockPollInterval < 0 || opts.TagTTL < 0 {
		return nil, errors.New("distcache: durations must not be negative")
	}
	if opts.FanOut < 0 {
		return nil, errors.New("distcache: fan-out must not be negative")
	}

	cc := &cache[V]{
		keys:    keys.New(opts.Namespace),
		store:   opts.Store,
		codec:   opts.Codec,
		locker:  opts.Locker,
		enabled: !opts.Disabled,
		tagTTL:  opts.TagTTL,
		now:     opts.Now,
	}

	// defaults
	if cc.codec == nil {
		cc.codec = c.Msgpack[V]{}
	}
	if cc.now == nil {
		cc.now = time.Now
	}
	cc.log = coalesce[Logger](opts.Logger, NopLogger{})
	cc.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	cc.defaultTTL = coalesce(opts.DefaultTTL, DefaultTTL)
	cc.fanOut = coalesce(opts.FanOut, defaultFanOut)

	if cc.locker == nil {
		l, err := lock.New(opts.Store, lock.Options{TTL: opts.LockTTL, PollInterval: opts.LockPollInterval})
		if err != nil {
			return nil, err
		}
		cc.locker = l
	}
	return cc, nil
}

func (c *cache[V]) Enabled() bool { return c.enabled }

func (c *cache[V]) Close(ctx context.Context) error {
	return c.store.Close(ctx)
}

func (c *cache[V]) GetOrCreate(ctx context.Context, key string, factory Factory[V], ttl time.Duration, tags ...string) (V, error) {
	var zero V
	if factory == nil {
		return zero, errors.New("distcache: nil factory")
	}
	if !c.enabled {
		return factory(ctx)
	}
	if ttl < 0 {
		return zero, fmt.Errorf("distcache: negative ttl %s", ttl)
	}

	k := c.keys.Entry(key)
	token := lock.NewToken()

	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		held, err := c.locker.HasLock(ctx, k)
		if err != nil {
			return zero, c.storeErr(ctx, "has_lock", k, err)
		}
		if held {
			// another writer may be populating this key
			if err := c.wait(ctx, k); err != nil {
				return zero, err
			}
			continue
		}

		v, res, err := c.read(ctx, k)
		if err != nil {
			return zero, err
		}
		if res == hit {
			return v, nil
		}
		if res == stale {
			continue
		}

		acquired, err := c.locker.Acquire(ctx, k, token)
		if err != nil {
			return zero, c.storeErr(ctx, "acquire", k, err)
		}
		if acquired {
			break
		}
		c.hooks.LockContended(k)
		c.log.Debug("lock contended; waiting", Fields{"key": k})
		if err := c.wait(ctx, k); err != nil {
			return zero, err
		}
	}
	defer c.release(ctx, k, token)

	// A holder may have filled the key between our miss and our acquire.
	v, res, err := c.read(ctx, k)
	if err != nil {
		return zero, err
	}
	if res == hit {
		return v, nil
	}

	// Invalidations that land while the factory runs must reject its result,
	// so the entry is stamped with the time the factory started.
	startedAt := c.now()
	v, err = factory(ctx)
	if err != nil {
		c.hooks.FactoryError(k, err)
		return zero, err
	}
	if err := c.write(ctx, k, v, ttl, tags, startedAt); err != nil {
		return zero, err
	}
	return v, nil
}

func (c *cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if !c.enabled {
		return zero, false, nil
	}
	v, res, err := c.read(ctx, c.keys.Entry(key))
	if err != nil || res != hit {
		return zero, false, err
	}
	return v, true, nil
}

func (c *cache[V]) GetOrDefault(ctx context.Context, key string, def V) (V, error) {
	v, ok, err := c.Get(ctx, key)
	if err != nil || !ok {
		return def, err
	}
	return v, nil
}

func (c *cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration, tags ...string) error {
	if !c.enabled {
		return nil
	}
	if ttl < 0 {
		return fmt.Errorf("distcache: negative ttl %s", ttl)
	}
	return c.write(ctx, c.keys.Entry(key), value, ttl, tags, c.now())
}

func (c *cache[V]) RemoveByKey(ctx context.Context, key string) error {
	if !c.enabled {
		return nil
	}
	k := c.keys.Entry(key)
	if err := c.store.Del(ctx, k); err != nil {
		return c.storeErr(ctx, "remove", k, err)
	}
	return nil
}

func (c *cache[V]) RemoveByKeys(ctx context.Context, ks []string) error {
	if !c.enabled || len(ks) == 0 {
		return nil
	}
	sk := c.keys.Entries(ks)
	if err := c.store.Del(ctx, sk...); err != nil {
		return c.storeErr(ctx, "remove_many", sk[0], err)
	}
	return nil
}

func (c *cache[V]) RemoveByTag(ctx context.Context, tag string) error {
	if !c.enabled || tag == "" {
		return nil
	}
	tk := c.keys.Tag(tag)
	marker := wire.EncodeMarker(c.now().UnixNano())
	res, err := c.store.Eval(ctx, advanceMarkerScript, []string{tk}, string(marker), ttlMillis(c.tagTTL))
	if err != nil {
		return c.storeErr(ctx, "remove_by_tag", tk, err)
	}
	if n, _ := res.(int64); n == 0 {
		// a newer invalidation already covers everything this one would
		c.log.Debug("tag marker already newer", Fields{"tag": tag})
		return nil
	}
	c.log.Debug("tag invalidated", Fields{"tag": tag})
	return nil
}

// RemoveByTags invalidates each tag independently; one failure does not stop the others.
// All failures are returned combined.
func (c *cache[V]) RemoveByTags(ctx context.Context, tags []string) error {
	if !c.enabled {
		return nil
	}
	tags = uniqTags(tags)

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	g.SetLimit(c.fanOut)
	for _, tag := range tags {
		tag := tag
		g.Go(func() error {
			if err := c.RemoveByTag(ctx, tag); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// read loads and validates the entry at storage key k.
// Corrupt, stale and undecodable entries are deleted (self-heal).
func (c *cache[V]) read(ctx context.Context, k string) (V, readResult, error) {
	var zero V
	raw, ok, err := c.store.Get(ctx, k)
	if err != nil {
		return zero, miss, c.storeErr(ctx, "get", k, err)
	}
	if !ok {
		return zero, miss, nil
	}
	e, err := wire.DecodeEntry(raw)
	if err != nil {
		c.selfHeal(ctx, k, "corrupt")
		return zero, miss, nil
	}
	if len(e.Tags) > 0 {
		fresh, err := c.tagsFresh(ctx, k, e)
		if err != nil {
			return zero, miss, err
		}
		if !fresh {
			c.selfHeal(ctx, k, "tag_stale")
			return zero, stale, nil
		}
	}
	v, err := c.codec.Decode(e.Payload)
	if err != nil {
		c.selfHeal(ctx, k, "value_decode")
		return zero, miss, nil
	}
	return v, hit, nil
}

// tagsFresh reads every marker of e in one round trip. A marker strictly newer
// than the entry, or one that cannot be decoded, makes the entry stale.
func (c *cache[V]) tagsFresh(ctx context.Context, k string, e wire.Entry) (bool, error) {
	raws, err := c.store.GetMany(ctx, c.keys.Tags(e.Tags))
	if err != nil {
		return false, c.storeErr(ctx, "get_tags", k, err)
	}
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		at, err := wire.DecodeMarker(raw)
		if err != nil {
			c.log.Debug("corrupt tag marker; treating entry as stale", Fields{"key": k, "tag": e.Tags[i]})
			return false, nil
		}
		if at > e.CreatedAt {
			return false, nil
		}
	}
	return true, nil
}

func (c *cache[V]) write(ctx context.Context, k string, v V, ttl time.Duration, tags []string, createdAt time.Time) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	tags = uniqTags(tags)
	if c.tagTTL > 0 && len(tags) > 0 && ttl > c.tagTTL {
		ttl = c.tagTTL
	}
	payload, err := c.codec.Encode(v)
	if err != nil {
		return err
	}
	b, err := wire.EncodeEntry(wire.Entry{CreatedAt: createdAt.UnixNano(), Tags: tags, Payload: payload})
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, k, b, ttl); err != nil {
		return c.storeErr(ctx, "set", k, err)
	}
	return nil
}

func (c *cache[V]) wait(ctx context.Context, k string) error {
	err := c.locker.WaitUntilReleased(ctx, k)
	if err == nil {
		return nil
	}
	var wte *lock.WaitTimeoutError
	switch {
	case errors.As(err, &wte):
		c.hooks.LockWaitTimeout(k, wte.Timeout)
		c.log.Warn("lock wait timed out", Fields{"key": k, "timeout": wte.Timeout})
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return c.storeErr(ctx, "wait_lock", k, err)
	}
}

// release runs on the cleanup path, so it must not inherit the caller's cancellation.
func (c *cache[V]) release(ctx context.Context, k, token string) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.locker.TTL())
	defer cancel()
	ok, err := c.locker.Release(rctx, k, token)
	if err != nil {
		c.hooks.StoreError("release", k, err)
		c.log.Warn("lock release failed; it will expire with its ttl", Fields{"key": k, "err": err})
		return
	}
	if !ok {
		c.log.Debug("lock expired before release", Fields{"key": k})
	}
}

func (c *cache[V]) selfHeal(ctx context.Context, k, reason string) {
	_ = c.store.Del(ctx, k)
	c.hooks.SelfHealEntry(k, reason)
	c.log.Debug("entry dropped on read", Fields{"key": k, "reason": reason})
}

func (c *cache[V]) storeErr(ctx context.Context, op, k string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return ctxErr
	}
	c.hooks.StoreError(op, k, err)
	c.log.Warn("store call failed", Fields{"op": op, "key": k, "err": err})
	return opErr(op, k, err)
}
