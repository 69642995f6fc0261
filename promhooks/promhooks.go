// Package promhooks counts distcache events as Prometheus metrics.
package promhooks

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/distcache"
)

type Hooks struct {
	selfHeal    *prometheus.CounterVec
	contended   prometheus.Counter
	waitTimeout prometheus.Counter
	factoryErr  prometheus.Counter
	storeErr    *prometheus.CounterVec
	exceeded    prometheus.Counter
	recovered   prometheus.Counter
	downtime    prometheus.Histogram
}

var _ distcache.Hooks = (*Hooks)(nil)

// New registers the collectors on reg under namespace (e.g. "myapp").
// Keys are never used as labels.
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	const sub = "distcache"
	h := &Hooks{
		selfHeal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "self_heal_total", Help: "Entries deleted on read, by reason.",
		}, []string{"reason"}),
		contended: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "lock_contended_total", Help: "Lock acquisitions lost to another holder.",
		}),
		waitTimeout: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "lock_wait_timeout_total", Help: "Waits that outlived the lock wait bound.",
		}),
		factoryErr: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "factory_errors_total", Help: "Failed factory calls.",
		}),
		storeErr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "store_errors_total", Help: "Failed store calls, by operation.",
		}, []string{"op"}),
		exceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "rate_limit_exceeded_total", Help: "Attempts rejected by an exhausted rate limit.",
		}),
		recovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "store_recovered_total", Help: "Store recoveries observed by the health monitor.",
		}),
		downtime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: sub,
			Name: "store_downtime_seconds", Help: "Observed store outage length.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
	for _, c := range []prometheus.Collector{
		h.selfHeal, h.contended, h.waitTimeout, h.factoryErr,
		h.storeErr, h.exceeded, h.recovered, h.downtime,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) SelfHealEntry(_ string, reason string) { h.selfHeal.WithLabelValues(reason).Inc() }
func (h *Hooks) LockContended(string)                  { h.contended.Inc() }
func (h *Hooks) LockWaitTimeout(string, time.Duration) { h.waitTimeout.Inc() }
func (h *Hooks) FactoryError(string, error)            { h.factoryErr.Inc() }
func (h *Hooks) StoreError(op, _ string, _ error)      { h.storeErr.WithLabelValues(op).Inc() }
func (h *Hooks) RateLimitExceeded(string)              { h.exceeded.Inc() }

func (h *Hooks) StoreRecovered(downFor time.Duration) {
	h.recovered.Inc()
	h.downtime.Observe(downFor.Seconds())
}
