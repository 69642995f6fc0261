// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SelfHealEvery:  10, // sample logs: ~every 10th self-heal
//	    ContendedEvery: 100,
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	cache, _ := distcache.New[User](distcache.Options[User]{
//	    Namespace: "app:prod",
//	    Store:     st,
//	    Hooks:     hooks, // or `raw` if you don't want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/distcache"
)

// Hooks forwards events to inner on background workers. Events that do not fit
// in the queue are dropped and counted.
type Hooks struct {
	inner   distcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

var _ distcache.Hooks = (*Hooks)(nil)

func New(inner distcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains queued events and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) SelfHealEntry(k, r string) { h.try(func() { h.inner.SelfHealEntry(k, r) }) }
func (h *Hooks) LockContended(k string)    { h.try(func() { h.inner.LockContended(k) }) }
func (h *Hooks) LockWaitTimeout(k string, d time.Duration) {
	h.try(func() { h.inner.LockWaitTimeout(k, d) })
}
func (h *Hooks) FactoryError(k string, err error) { h.try(func() { h.inner.FactoryError(k, err) }) }
func (h *Hooks) StoreError(op, k string, err error) {
	h.try(func() { h.inner.StoreError(op, k, err) })
}
func (h *Hooks) RateLimitExceeded(k string)     { h.try(func() { h.inner.RateLimitExceeded(k) }) }
func (h *Hooks) StoreRecovered(d time.Duration) { h.try(func() { h.inner.StoreRecovered(d) }) }
