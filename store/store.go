// Package store defines the key-value contract used by distcache.
//
// Implementations MUST be byte-for-byte transparent: Get must return exactly the
// same []byte that was previously passed to Set for a key. The only operations that
// must be atomic at the store are SetNX and Eval; everything else is coordinated by
// the caller through the lock package.
//
// Important: keys under the configured namespace ("entry:", "tag:", "limit:" and the
// ":lock" suffix) are owned by distcache. Foreign writes under these prefixes may be
// treated as corruption and deleted.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrScriptUnsupported is returned by Eval when a backend cannot run the given script.
var ErrScriptUnsupported = errors.New("store: script not supported by backend")

// Store is a minimal byte store with TTLs, atomic set-if-absent and atomic scripts.
// Must be safe for concurrent use.
type Store interface {
	// Get returns (value, true, nil) on hit; (nil, false, nil) on miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// GetMany returns one element per key, nil for a miss.
	GetMany(ctx context.Context, keys []string) ([][]byte, error)

	// Set stores value with the given TTL. ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores value only if key is absent. Reports whether the write happened.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Del removes keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error

	Exists(ctx context.Context, key string) (bool, error)

	// Eval runs script atomically. Integer replies are int64.
	Eval(ctx context.Context, script *Script, keys []string, args ...any) (any, error)

	Pinger

	// Close releases resources.
	Close(ctx context.Context) error
}

// Pinger reports store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}
