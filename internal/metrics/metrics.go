// Package metrics exposes reconciliation telemetry as Prometheus
// collectors.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nfops"

// Collectors holds the nfops metrics. It implements reconcile.Observer.
type Collectors struct {
	reconciles *prometheus.CounterVec
	unitState  *prometheus.GaugeVec
	deferred   prometheus.Gauge
	publishes  *prometheus.CounterVec

	states []string
	mu     sync.Mutex
}

// New creates the collectors and registers them with reg. states lists
// every state name so the state gauge can be reset to a one-hot vector.
func New(reg prometheus.Registerer, states []string) (*Collectors, error) {
	c := &Collectors{
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_total",
			Help:      "Reconciliation passes by unit and outcome.",
		}, []string{"unit", "result"}),
		unitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unit_state",
			Help:      "Current service state of each unit (1 for the active state).",
		}, []string{"unit", "state"}),
		deferred: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "deferred_events",
			Help:      "Events waiting for the workload runtime to become reachable.",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Readiness data writes by unit and channel.",
		}, []string{"unit", "channel"}),
		states: append([]string(nil), states...),
	}

	for _, col := range []prometheus.Collector{c.reconciles, c.unitState, c.deferred, c.publishes} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveReconcile counts one pass.
func (c *Collectors) ObserveReconcile(unit, outcome string) {
	c.reconciles.WithLabelValues(unit, outcome).Inc()
}

// ObserveState sets the state gauge of unit.
func (c *Collectors) ObserveState(unit, state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.states {
		v := 0.0
		if s == state {
			v = 1
		}
		c.unitState.WithLabelValues(unit, s).Set(v)
	}
}

// ObservePublish counts one channel write.
func (c *Collectors) ObservePublish(unit, channel string) {
	c.publishes.WithLabelValues(unit, channel).Inc()
}

// SetDeferred sets the deferred event gauge.
func (c *Collectors) SetDeferred(n int) {
	c.deferred.Set(float64(n))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
