package store

import "time"

// Tx is the view of an in-process store handed to a local script.
// The store's lock is held for the whole call.
type Tx interface {
	Get(key string) ([]byte, bool)
	// Set keeps the key's current expiry, like SET KEEPTTL.
	Set(key string, value []byte)
	// SetTTL replaces value and expiry. ttl <= 0 means no expiry.
	SetTTL(key string, value []byte, ttl time.Duration)
	Del(key string) bool
}

// LocalFunc is the in-process equivalent of a script's Lua source.
type LocalFunc func(tx Tx, keys []string, args ...any) (any, error)

// Script pairs Lua source (for Redis-compatible backends) with a Go function
// (for in-process backends). Both must implement the same semantics.
// A Script is immutable once built.
type Script struct {
	src   string
	local LocalFunc
}

func NewScript(src string, local LocalFunc) *Script {
	return &Script{src: src, local: local}
}

func (s *Script) Source() string   { return s.src }
func (s *Script) Local() LocalFunc { return s.local }
