// Package qprom exposes the fabric's hook signals as prometheus metrics.
// Pass a Metrics via qgo.WithHooks to the components worth measuring.
package qprom

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fabriq-io/fabriq/pkg/qgo"
)

var ( // interface checks
	_ qgo.HookPartitionsAssigned = (*Metrics)(nil)
	_ qgo.HookTopologyChange     = (*Metrics)(nil)
	_ qgo.HookProduce            = (*Metrics)(nil)
	_ qgo.HookPoll               = (*Metrics)(nil)
	_ qgo.HookRequestDone        = (*Metrics)(nil)
)

// Metrics implements the fabric's hook interfaces on a private prometheus
// registry.
type Metrics struct {
	reg *prometheus.Registry

	ownedPartitions *prometheus.GaugeVec
	topologyChanges prometheus.Counter
	produced        *prometheus.CounterVec
	polled          *prometheus.CounterVec
	requests        *prometheus.CounterVec
	pendingRequests prometheus.Gauge
}

// NewMetrics returns hook metrics registered under the given namespace.
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		reg: reg,

		ownedPartitions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "partitions",
			Name:      "owned",
			Help:      "Partitions currently owned by this instance, per service key.",
		}, []string{"service_key"}),

		topologyChanges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cluster",
			Name:      "topology_changes_total",
			Help:      "Recomputations that observed a changed instance list.",
		}),

		produced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "produced_total",
			Help:      "Messages enqueued, per topic.",
		}, []string{"topic"}),

		polled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "polled_total",
			Help:      "Messages returned by consumer polls, per topic.",
		}, []string{"topic"}),

		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "finished_total",
			Help:      "Requests reaching a terminal state or rejected at the pending limit, per outcome.",
		}, []string{"outcome"}),

		pendingRequests: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "requests",
			Name:      "pending",
			Help:      "Requests awaiting a response, as of the last finished or rejected request.",
		}),
	}
}

// Registry returns the underlying registry, for registering extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler returns an http handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) OnPartitionsAssigned(key qgo.ServiceKey, partitions []int32) {
	m.ownedPartitions.WithLabelValues(key.String()).Set(float64(len(partitions)))
}

func (m *Metrics) OnTopologyChange([]qgo.ServiceKey) {
	m.topologyChanges.Inc()
}

func (m *Metrics) OnProduce(topic string) {
	m.produced.WithLabelValues(topic).Inc()
}

func (m *Metrics) OnPoll(topic string, polled int) {
	if polled > 0 {
		m.polled.WithLabelValues(topic).Add(float64(polled))
	}
}

func (m *Metrics) OnRequestDone(outcome qgo.RequestOutcome, pending int) {
	m.requests.WithLabelValues(outcome.String()).Inc()
	m.pendingRequests.Set(float64(pending))
}
