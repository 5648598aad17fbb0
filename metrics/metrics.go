package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/securerx/go-securerx/ledger"
	"net/http"
)

// Metrics holds the collectors of one node, on a registry of its own so that several nodes can live in one process.
// It implements ledger.Recorder.
type Metrics struct {
	Registry *prometheus.Registry

	BlocksProcessed       prometheus.Counter
	TransactionsProcessed prometheus.Counter
	ChainHeight           prometheus.Gauge
	ChainReplacements     prometheus.Counter
	SyncFailures          *prometheus.CounterVec
}

func New(nodeId string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(prometheus.WrapRegistererWith(prometheus.Labels{"node_id": nodeId}, registry))

	return &Metrics{
		Registry: registry,
		BlocksProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "blocks_processed_total",
			Help: "Total number of blocks appended by this node",
		}),
		TransactionsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "transactions_processed_total",
			Help: "Total number of transactions appended by this node",
		}),
		ChainHeight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chain_height",
			Help: "Number of blocks in the local chain, genesis included",
		}),
		ChainReplacements: factory.NewCounter(prometheus.CounterOpts{
			Name: "chain_replacements_total",
			Help: "Total number of times the local chain was replaced by a peer's",
		}),
		SyncFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "peer_sync_failures_total",
			Help: "Total number of failed chain fetches, by peer",
		}, []string{"peer"}),
	}
}

var _ ledger.Recorder = (*Metrics)(nil)

func (m *Metrics) BlockAppended(block ledger.Block, height int) {
	m.BlocksProcessed.Inc()
	m.TransactionsProcessed.Add(float64(len(block.Transactions)))
	m.ChainHeight.Set(float64(height))
}

func (m *Metrics) ChainReplaced(height int) {
	m.ChainReplacements.Inc()
	m.ChainHeight.Set(float64(height))
}

func (m *Metrics) SyncFailed(peer string) {
	m.SyncFailures.WithLabelValues(peer).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
