// Package distcache implements a distributed cache on top of a shared key-value
// store (Redis in production) with stampede protection and tag-based invalidation.
//
// Components:
//   - store.Store: byte store with TTL, SETNX and atomic scripts (store/redis, store/memory).
//   - lock.Locker: token-owned distributed lock with TTL and compare-and-delete release.
//   - Codec[V]: (de)serializes V <-> []byte (msgpack by default).
//   - ratelimit: fixed-window attempt counters guarded by the same lock.
//   - health: store liveness monitor that invalidates a tag after recovery.
//
// Keys (with an optional "<ns>:" prefix):
//
//	entry:<key>                         - cache entries
//	tag:<tag>                           - invalidation markers
//	limit:<action>:<primary>[:<second>] - rate-limit counters
//	<resource key>:lock                 - locks
//
// GetOrCreate:
//
//	v, err := cache.GetOrCreate(ctx, "user:42", loadUser, time.Hour, "users")
//
// At most one caller per key runs the factory at a time; everyone else waits for
// the lock to clear and reads the freshly written entry.
//
// Tag invalidation is lazy. RemoveByTag writes the current time under the tag's
// marker key and touches nothing else. On read, an entry whose creation time is
// older than any of its tags' markers is deleted and treated as a miss.
package distcache
