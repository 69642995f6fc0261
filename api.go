package distcache

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/distcache/codec"
	"github.com/unkn0wn-root/distcache/lock"
	"github.com/unkn0wn-root/distcache/store"
)

// Factory computes a value on a cache miss. It receives the caller's context
// and is expected to observe its cancellation.
type Factory[V any] func(ctx context.Context) (V, error)

// Cache is the stampede-safe, tag-invalidated cache API.
// V is the caller's value type. Serialization is handled by a pluggable Codec[V].
// A ttl of 0 selects Options.DefaultTTL.
type Cache[V any] interface {
	Enabled() bool
	Close(context.Context) error

	// GetOrCreate returns the cached value for key or runs factory, with at most one
	// concurrent factory execution per key across every process sharing the store.
	GetOrCreate(ctx context.Context, key string, factory Factory[V], ttl time.Duration, tags ...string) (V, error)

	// Get reads without locking. Stale (tag-invalidated) entries are reported as misses.
	Get(ctx context.Context, key string) (v V, ok bool, err error)

	// GetOrDefault is Get that returns def on a miss. It never writes.
	GetOrDefault(ctx context.Context, key string, def V) (V, error)

	// Set writes unconditionally; last write wins against a concurrent GetOrCreate.
	Set(ctx context.Context, key string, value V, ttl time.Duration, tags ...string) error

	RemoveByKey(ctx context.Context, key string) error
	RemoveByKeys(ctx context.Context, keys []string) error

	// RemoveByTag invalidates every entry carrying tag in O(1): it bumps the tag's
	// marker and never touches the entries themselves.
	RemoveByTag(ctx context.Context, tag string) error
	RemoveByTags(ctx context.Context, tags []string) error
}

// Options tune the behavior of the cache.
// Only Store is required; others have sensible defaults.
type Options[V any] struct {
	// Required
	Store store.Store

	Codec     c.Codec[V] // nil => codec.Msgpack[V]
	Namespace string     // isolation prefix for data, tag and lock keys. "" => no prefix

	Logger Logger // if nil, NopLogger is used
	Hooks  Hooks  // if nil, NopHooks is used

	DefaultTTL       time.Duration // 0 => 15m
	LockTTL          time.Duration // 0 => 5s; ignored when Locker is set
	LockPollInterval time.Duration // 0 => 10ms; ignored when Locker is set
	// TagTTL bounds the lifetime of tag markers. 0 => markers never expire.
	// When set, tagged entries are written with ttl <= TagTTL so that no entry
	// can outlive a marker written after it.
	TagTTL time.Duration
	// FanOut bounds concurrent store calls in RemoveByTags. 0 => 8.
	FanOut int

	Locker   *lock.Locker     // shared lock; nil => built from Store and the Lock* fields
	Disabled bool             // default false (enabled)
	Now      func() time.Time // nil => time.Now
}

func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}
