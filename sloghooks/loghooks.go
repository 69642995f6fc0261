// Package sloghooks reports distcache events through log/slog.
package sloghooks

import (
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/unkn0wn-root/distcache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery  uint64
	ContendedEvery uint64
	ExceededEvery  uint64
	// Optional key redactor. Defaults to an xxhash64 hex digest.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr  atomic.Uint64
	contendedCtr atomic.Uint64
	exceededCtr  atomic.Uint64
}

var _ distcache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	return strconv.FormatUint(xxhash.Sum64String(k), 16)
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHealEntry(storageKey, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Debug("distcache.self_heal_entry",
		"key", h.redact(storageKey),
		"reason", reason)
}

func (h *Hooks) LockContended(storageKey string) {
	if h.l == nil || !sample(h.opts.ContendedEvery, &h.contendedCtr) {
		return
	}
	h.l.Debug("distcache.lock_contended",
		"key", h.redact(storageKey))
}

func (h *Hooks) LockWaitTimeout(storageKey string, waited time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Error("distcache.lock_wait_timeout",
		"key", h.redact(storageKey),
		"waited", waited)
}

func (h *Hooks) FactoryError(storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("distcache.factory_error",
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) StoreError(op, storageKey string, err error) {
	if h.l == nil {
		return
	}
	h.l.Warn("distcache.store_error",
		"op", op,
		"key", h.redact(storageKey),
		"err", err)
}

func (h *Hooks) RateLimitExceeded(storageKey string) {
	if h.l == nil || !sample(h.opts.ExceededEvery, &h.exceededCtr) {
		return
	}
	h.l.Info("distcache.rate_limit_exceeded",
		"key", h.redact(storageKey))
}

func (h *Hooks) StoreRecovered(downFor time.Duration) {
	if h.l == nil {
		return
	}
	h.l.Info("distcache.store_recovered",
		"down_for", downFor)
}
