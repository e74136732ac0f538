// Package metrics exposes the node's counters and gauges to Prometheus.
// Every subsystem the spec calls out for resource caps or backpressure
// (tasks, chocking, mempool, bbs) gets a gauge here so an operator can see
// admission pressure without reading logs.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric the node publishes.
type Registry struct {
	PeersConnected   prometheus.Gauge
	TasksUnassigned  prometheus.Gauge
	TasksInFlight    *prometheus.GaugeVec
	PeersChocking    prometheus.Gauge
	MempoolCount     prometheus.Gauge
	MempoolBytes     prometheus.Gauge
	StemPoolCount    prometheus.Gauge
	BbsCount         prometheus.Gauge
	BbsBytes         prometheus.Gauge
	SyncHeight       prometheus.Gauge
	SyncProgressPct  prometheus.Gauge
	RollbacksTotal   prometheus.Counter
	TxAdmitted       *prometheus.CounterVec
	TasksTimedOut    prometheus.Counter
	PeerDisconnects  *prometheus.CounterVec

	// Gatherer is set when reg also implements prometheus.Gatherer (true for
	// *prometheus.Registry), letting internal/adminhttp expose /metrics
	// without importing this package's construction details.
	Gatherer prometheus.Gatherer
}

// NewRegistry constructs and registers every metric against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		PeersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duskd", Name: "peers_connected", Help: "Currently connected peer sessions.",
		}),
		TasksUnassigned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duskd", Name: "tasks_unassigned", Help: "Fetch tasks awaiting a peer.",
		}),
		TasksInFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "duskd", Name: "tasks_in_flight", Help: "Fetch tasks bound to a peer, by kind.",
		}, []string{"kind"}),
		PeersChocking: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duskd", Name: "peers_chocking", Help: "Peers currently over the chocking threshold.",
		}),
		MempoolCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duskd", Name: "mempool_count", Help: "Transactions in the fluff pool.",
		}),
		MempoolBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duskd", Name: "mempool_bytes", Help: "Bytes held in the fluff pool.",
		}),
		StemPoolCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duskd", Name: "stem_pool_count", Help: "Transactions awaiting stem-to-fluff transition.",
		}),
		BbsCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duskd", Name: "bbs_count", Help: "Stored bulletin-board messages.",
		}),
		BbsBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duskd", Name: "bbs_bytes", Help: "Bytes held by the bulletin board.",
		}),
		SyncHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duskd", Name: "sync_height", Help: "Current validated chain height.",
		}),
		SyncProgressPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "duskd", Name: "sync_progress_ratio", Help: "Weighted sync completion, 0..1.",
		}),
		RollbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duskd", Name: "rollbacks_total", Help: "Chain rollbacks performed.",
		}),
		TxAdmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "duskd", Name: "tx_admitted_total", Help: "Transaction admission outcomes.",
		}, []string{"status"}),
		TasksTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "duskd", Name: "tasks_timed_out_total", Help: "Fetch tasks that hit their deadline.",
		}),
		PeerDisconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "duskd", Name: "peer_disconnects_total", Help: "Peer sessions torn down, by reason.",
		}, []string{"reason"}),
	}
	reg.MustRegister(
		r.PeersConnected, r.TasksUnassigned, r.TasksInFlight, r.PeersChocking,
		r.MempoolCount, r.MempoolBytes, r.StemPoolCount, r.BbsCount, r.BbsBytes,
		r.SyncHeight, r.SyncProgressPct, r.RollbacksTotal, r.TxAdmitted,
		r.TasksTimedOut, r.PeerDisconnects,
	)
	if g, ok := reg.(prometheus.Gatherer); ok {
		r.Gatherer = g
	}
	return r
}
