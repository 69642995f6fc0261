// Package memory is an in-process store.Store with the same atomic SETNX and
// script semantics as the Redis backend. Useful for tests and single-process setups;
// it does not coordinate across processes.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/unkn0wn-root/distcache/store"
)

type item struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type Memory struct {
	mu  sync.Mutex
	m   map[string]item
	now func() time.Time
}

var _ store.Store = (*Memory)(nil)

type Option func(*Memory)

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

func New(opts ...Option) *Memory {
	m := &Memory{m: make(map[string]item), now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// get must be called with mu held. Expired items are purged.
func (s *Memory) get(key string) ([]byte, bool) {
	it, ok := s.m[key]
	if !ok {
		return nil, false
	}
	if !it.exp.IsZero() && !s.now().Before(it.exp) {
		delete(s.m, key)
		return nil, false
	}
	return it.v, true
}

func (s *Memory) set(key string, value []byte, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	s.m[key] = item{v: clone(value), exp: exp}
}

func (s *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.get(key)
	if !ok {
		return nil, false, nil
	}
	return clone(v), true, nil
}

func (s *Memory) GetMany(_ context.Context, keys []string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	out := make([][]byte, len(keys))
	s.mu.Lock()
	for i, k := range keys {
		if v, ok := s.get(k); ok {
			out[i] = clone(v)
		}
	}
	s.mu.Unlock()
	return out, nil
}

func (s *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	s.set(key, value, ttl)
	s.mu.Unlock()
	return nil
}

func (s *Memory) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.get(key); ok {
		return false, nil
	}
	s.set(key, value, ttl)
	return true, nil
}

func (s *Memory) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	for _, k := range keys {
		delete(s.m, k)
	}
	s.mu.Unlock()
	return nil
}

func (s *Memory) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	_, ok := s.get(key)
	s.mu.Unlock()
	return ok, nil
}

// Eval runs the script's local function while holding the store lock.
func (s *Memory) Eval(_ context.Context, script *store.Script, keys []string, args ...any) (any, error) {
	if script == nil || script.Local() == nil {
		return nil, store.ErrScriptUnsupported
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return script.Local()(tx{s}, keys, args...)
}

func (s *Memory) Ping(context.Context) error { return nil }

func (s *Memory) Close(context.Context) error { return nil }

// Len reports the number of live keys.
func (s *Memory) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.m {
		if _, ok := s.get(k); ok {
			n++
		}
	}
	return n
}

// tx is handed to local scripts; mu is already held.
type tx struct{ s *Memory }

func (t tx) Get(key string) ([]byte, bool) {
	v, ok := t.s.get(key)
	return clone(v), ok
}

// Set keeps the current expiry of an existing key, like SET KEEPTTL.
func (t tx) Set(key string, value []byte) {
	var exp time.Time
	if _, ok := t.s.get(key); ok {
		exp = t.s.m[key].exp
	}
	t.s.m[key] = item{v: clone(value), exp: exp}
}

func (t tx) SetTTL(key string, value []byte, ttl time.Duration) {
	t.s.set(key, value, ttl)
}

func (t tx) Del(key string) bool {
	_, ok := t.s.get(key)
	delete(t.s.m, key)
	return ok
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
