// Package metrics exposes engine activity as Prometheus collectors.
package metrics

import (
	"context"

	"github.com/aretw0/flujos/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "flujos"

// Metrics holds the engine collectors. Feed it through Hooks and ObserveInbound.
type Metrics struct {
	nodeVisits      *prometheus.CounterVec
	nodeDuration    *prometheus.HistogramVec
	adapterCalls    *prometheus.CounterVec
	adapterDuration *prometheus.HistogramVec
	inbound         *prometheus.CounterVec
	expired         prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		nodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_visits_total",
			Help:      "Node executions by node type and outcome.",
		}, []string{"node_type", "estado"}),
		nodeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Node execution time.",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		}, []string{"node_type"}),
		adapterCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adapter_calls_total",
			Help:      "Side-effect adapter calls by adapter and status.",
		}, []string{"adapter", "status"}),
		adapterDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "adapter_duration_seconds",
			Help:      "Side-effect adapter latency.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"adapter"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_messages_total",
			Help:      "Inbound messages by matcher decision.",
		}, []string{"decision"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instances_expired_total",
			Help:      "Idle instances closed by the expiry sweep.",
		}),
	}
	for _, c := range []prometheus.Collector{m.nodeVisits, m.nodeDuration, m.adapterCalls, m.adapterDuration, m.inbound, m.expired} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that record node and adapter activity.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeLeave: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeVisits.WithLabelValues(string(e.NodeType), string(e.Estado)).Inc()
			m.nodeDuration.WithLabelValues(string(e.NodeType)).Observe(e.Duration.Seconds())
		},
		OnAdapterCall: func(_ context.Context, e *domain.AdapterEvent) {
			status := "ok"
			if e.IsError {
				status = "error"
			}
			m.adapterCalls.WithLabelValues(e.Adapter, status).Inc()
			m.adapterDuration.WithLabelValues(e.Adapter).Observe(e.Duration.Seconds())
		},
	}
}

// ObserveInbound counts one handled inbound message.
func (m *Metrics) ObserveInbound(decision string) {
	m.inbound.WithLabelValues(decision).Inc()
}

// ObserveExpired counts instances closed by an expiry sweep.
func (m *Metrics) ObserveExpired(n int) {
	m.expired.Add(float64(n))
}
