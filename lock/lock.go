// Package lock implements a distributed mutual-exclusion primitive on top of a
// store.Store: a set-if-absent write of a caller token with a TTL to acquire, and
// an atomic compare-and-delete script to release.
//
// Acquisition failure is not an error; it is the normal "someone else holds it"
// signal and callers are expected to WaitUntilReleased and retry. A lock can never
// be held longer than its TTL, so a crashed holder does not wedge a resource.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/distcache/internal/keys"
	"github.com/unkn0wn-root/distcache/store"
)

const (
	DefaultTTL          = 5 * time.Second
	DefaultPollInterval = 10 * time.Millisecond
)

// ErrWaitTimeout matches every *WaitTimeoutError via errors.Is.
var ErrWaitTimeout = errors.New("lock: wait timeout")

// WaitTimeoutError reports a lock that outlived its own TTL-based upper bound.
// This points at a stuck holder or a store that does not honour TTLs.
type WaitTimeoutError struct {
	Key     string
	Timeout time.Duration
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("lock: %q still held after %s", e.Key, e.Timeout)
}

func (e *WaitTimeoutError) Is(target error) bool { return target == ErrWaitTimeout }

// releaseScript deletes the lock only when it still carries the caller's token.
var releaseScript = store.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`, func(tx store.Tx, ks []string, args ...any) (any, error) {
	if len(ks) != 1 || len(args) != 1 {
		return nil, errors.New("lock: release expects one key and one token")
	}
	cur, ok := tx.Get(ks[0])
	if ok && string(cur) == fmt.Sprint(args[0]) {
		tx.Del(ks[0])
		return int64(1), nil
	}
	return int64(0), nil
})

// Options tune a Locker. Zero values select the defaults.
type Options struct {
	TTL          time.Duration // 0 => DefaultTTL
	PollInterval time.Duration // 0 => DefaultPollInterval
	WaitTimeout  time.Duration // 0 => 2 * TTL
}

// Locker is safe for concurrent use and holds no per-lock state; every call
// goes to the store.
type Locker struct {
	st          store.Store
	ttl         time.Duration
	poll        time.Duration
	waitTimeout time.Duration
}

func New(st store.Store, opts Options) (*Locker, error) {
	if st == nil {
		return nil, errors.New("lock: store is required")
	}
	if opts.TTL < 0 || opts.PollInterval < 0 || opts.WaitTimeout < 0 {
		return nil, errors.New("lock: durations must not be negative")
	}
	l := &Locker{st: st, ttl: opts.TTL, poll: opts.PollInterval, waitTimeout: opts.WaitTimeout}
	if l.ttl == 0 {
		l.ttl = DefaultTTL
	}
	if l.poll == 0 {
		l.poll = DefaultPollInterval
	}
	if l.waitTimeout == 0 {
		l.waitTimeout = 2 * l.ttl
	}
	if l.waitTimeout < l.ttl {
		return nil, fmt.Errorf("lock: wait timeout %s shorter than lock ttl %s", l.waitTimeout, l.ttl)
	}
	return l, nil
}

// NewToken returns a caller-unique lock token.
func NewToken() string { return uuid.NewString() }

func (l *Locker) TTL() time.Duration { return l.ttl }

// Acquire reports whether this caller's token now holds the lock on key.
// key is an already namespaced resource key.
func (l *Locker) Acquire(ctx context.Context, key, token string) (bool, error) {
	return l.st.SetNX(ctx, keys.Lock(key), []byte(token), l.ttl)
}

// HasLock reports whether anyone currently holds the lock on key.
func (l *Locker) HasLock(ctx context.Context, key string) (bool, error) {
	return l.st.Exists(ctx, keys.Lock(key))
}

// WaitUntilReleased polls until the lock on key disappears. It returns ctx.Err()
// on cancellation and a *WaitTimeoutError once the wait exceeds the configured bound.
func (l *Locker) WaitUntilReleased(ctx context.Context, key string) error {
	lk := keys.Lock(key)
	deadline := time.NewTimer(l.waitTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(l.poll)
	defer tick.Stop()

	for {
		held, err := l.st.Exists(ctx, lk)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		if !held {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return &WaitTimeoutError{Key: key, Timeout: l.waitTimeout}
		case <-tick.C:
		}
	}
}

// Release deletes the lock on key iff it still carries token. It reports whether
// the delete happened; false means the lock had expired or belongs to someone else.
func (l *Locker) Release(ctx context.Context, key, token string) (bool, error) {
	res, err := l.st.Eval(ctx, releaseScript, []string{keys.Lock(key)}, token)
	if err != nil {
		return false, err
	}
	n, _ := res.(int64)
	return n == 1, nil
}
