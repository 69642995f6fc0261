// Package health watches store liveness. Writes that failed while the store was
// unreachable can leave entries that no longer match their source, so after an
// outage the monitor invalidates one configured tag (by default "frequent").
//
// The monitor is an optional collaborator: it only calls RemoveByTag and plays no
// part in the cache's locking or staleness rules.
package health

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/unkn0wn-root/distcache"
	"github.com/unkn0wn-root/distcache/store"
)

const (
	DefaultTag      = "frequent"
	DefaultInterval = time.Second
)

// Invalidator is the part of distcache.Cache the monitor needs.
type Invalidator interface {
	RemoveByTag(ctx context.Context, tag string) error
}

type Options struct {
	// Required
	Pinger      store.Pinger
	Invalidator Invalidator

	Tag        string        // "" => DefaultTag
	Interval   time.Duration // 0 => DefaultInterval
	StartDelay time.Duration // wait before the first check

	Logger distcache.Logger
	Hooks  distcache.Hooks
	Now    func() time.Time
}

type Monitor struct {
	pinger store.Pinger
	inv    Invalidator
	tag    string
	every  time.Duration
	delay  time.Duration
	log    distcache.Logger
	hooks  distcache.Hooks
	now    func() time.Time

	mu        sync.Mutex
	needReset bool
	downSince time.Time
}

func New(opts Options) (*Monitor, error) {
	if opts.Pinger == nil || opts.Invalidator == nil {
		return nil, errors.New("health: pinger and invalidator are required")
	}
	if opts.Interval < 0 || opts.StartDelay < 0 {
		return nil, errors.New("health: durations must not be negative")
	}
	m := &Monitor{
		pinger: opts.Pinger,
		inv:    opts.Invalidator,
		tag:    opts.Tag,
		every:  opts.Interval,
		delay:  opts.StartDelay,
		log:    opts.Logger,
		hooks:  opts.Hooks,
		now:    opts.Now,
	}
	if m.tag == "" {
		m.tag = DefaultTag
	}
	if m.every == 0 {
		m.every = DefaultInterval
	}
	if m.log == nil {
		m.log = distcache.NopLogger{}
	}
	if m.hooks == nil {
		m.hooks = distcache.NopHooks{}
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// Run checks the store every Interval until ctx is done and returns ctx.Err().
func (m *Monitor) Run(ctx context.Context) error {
	if m.delay > 0 {
		t := time.NewTimer(m.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	m.log.Info("store health monitor started", distcache.Fields{"tag": m.tag, "interval": m.every})

	tick := time.NewTicker(m.every)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			_ = m.Check(ctx)
		}
	}
}

// Check runs one iteration: ping, and after a previously failed ping, reset the tag.
// It returns the ping or reset error, if any.
func (m *Monitor) Check(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.pinger.Ping(ctx); err != nil {
		if !m.needReset {
			m.downSince = m.now()
		}
		m.needReset = true
		m.log.Error("store ping failed", distcache.Fields{"err": err})
		return err
	}
	if !m.needReset {
		return nil
	}

	// the flag stays set until the reset itself succeeds
	if err := m.inv.RemoveByTag(ctx, m.tag); err != nil {
		m.log.Error("post-outage tag reset failed", distcache.Fields{"tag": m.tag, "err": err})
		return err
	}
	down := m.now().Sub(m.downSince)
	m.needReset = false
	m.hooks.StoreRecovered(down)
	m.log.Info("store recovered; tag reset", distcache.Fields{"tag": m.tag, "down_for": down})
	return nil
}

// Pending reports whether a reset is owed from a past failure.
func (m *Monitor) Pending() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.needReset
}
