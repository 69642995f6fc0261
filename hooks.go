package distcache

import "time"

// Hooks are lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking; wrap slow ones with hooks/async.
type Hooks interface {
	// An entry was deleted by the cache on read.
	// reason ∈ {"corrupt", "tag_stale", "value_decode"}
	SelfHealEntry(storageKey, reason string)

	// A lock on storageKey was held by someone else and the caller had to wait.
	LockContended(storageKey string)

	// Waiting on storageKey's lock exceeded the wait bound.
	LockWaitTimeout(storageKey string, waited time.Duration)

	// The factory for storageKey failed; nothing was written.
	FactoryError(storageKey string, err error)

	// A store call failed. op is the cache operation, e.g. "get", "set", "remove_by_tag".
	StoreError(op, storageKey string, err error)

	// A rate-limit counter was already exhausted.
	RateLimitExceeded(storageKey string)

	// The store answered again after a failed health check.
	StoreRecovered(downFor time.Duration)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHealEntry(string, string)          {}
func (NopHooks) LockContended(string)                  {}
func (NopHooks) LockWaitTimeout(string, time.Duration) {}
func (NopHooks) FactoryError(string, error)            {}
func (NopHooks) StoreError(string, string, error)      {}
func (NopHooks) RateLimitExceeded(string)              {}
func (NopHooks) StoreRecovered(time.Duration)          {}
