package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster metrics
	DataNodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "blockstore_datanodes_total",
			Help: "Total number of datanodes by status",
		},
		[]string{"status"},
	)

	FilesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockstore_files_total",
			Help: "Total number of file entries in the namespace",
		},
	)

	DirectoriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockstore_directories_total",
			Help: "Total number of directory entries in the namespace",
		},
	)

	BlocksTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockstore_blocks_total",
			Help: "Total number of blocks in the catalog",
		},
	)

	UnderReplicatedBlocks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockstore_under_replicated_blocks",
			Help: "Number of blocks below their target replication factor",
		},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockstore_raft_is_leader",
			Help: "Whether this coordinator is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockstore_raft_peers_total",
			Help: "Total number of Raft peers in the coordinator cluster",
		},
	)

	RaftTerm = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "blockstore_raft_term",
			Help: "Current Raft term observed by this coordinator",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blockstore_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockstore_api_requests_total",
			Help: "Total number of control-plane API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "blockstore_api_request_duration_seconds",
			Help:    "Control-plane API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Placement metrics
	PlacementLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blockstore_placement_latency_seconds",
			Help:    "Time taken to select placement targets for a block",
			Buckets: prometheus.DefBuckets,
		},
	)

	PlacementFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockstore_placement_failures_total",
			Help: "Total number of placement attempts that failed with insufficient capacity",
		},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blockstore_reconciliation_duration_seconds",
			Help:    "Time taken for a reconciler or load-balancer cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockstore_reconciliation_cycles_total",
			Help: "Total number of failure-detector cycles completed",
		},
	)

	ReReplicationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blockstore_rereplications_total",
			Help: "Total number of block re-replication attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Balancer metrics
	BalancerCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockstore_balancer_cycles_total",
			Help: "Total number of load-balancer cycles completed",
		},
	)

	BalancerMovesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockstore_balancer_moves_total",
			Help: "Total number of blocks moved by the load balancer",
		},
	)

	// Datanode-side block service metrics
	BlocksStoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockstore_blocks_stored_total",
			Help: "Total number of blocks successfully stored on this node",
		},
	)

	BlockStoreDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blockstore_block_store_duration_seconds",
			Help:    "Time taken to receive and persist a block",
			Buckets: prometheus.DefBuckets,
		},
	)

	BlockRetrieveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blockstore_block_retrieve_duration_seconds",
			Help:    "Time taken to stream a block back to a caller",
			Buckets: prometheus.DefBuckets,
		},
	)

	ChecksumMismatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "blockstore_checksum_mismatches_total",
			Help: "Total number of checksum mismatches detected on store or replicate",
		},
	)
)

func init() {
	prometheus.MustRegister(DataNodesTotal)
	prometheus.MustRegister(FilesTotal)
	prometheus.MustRegister(DirectoriesTotal)
	prometheus.MustRegister(BlocksTotal)
	prometheus.MustRegister(UnderReplicatedBlocks)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftPeers)
	prometheus.MustRegister(RaftTerm)
	prometheus.MustRegister(RaftApplyDuration)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(PlacementLatency)
	prometheus.MustRegister(PlacementFailuresTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ReReplicationsTotal)
	prometheus.MustRegister(BalancerCyclesTotal)
	prometheus.MustRegister(BalancerMovesTotal)
	prometheus.MustRegister(BlocksStoredTotal)
	prometheus.MustRegister(BlockStoreDuration)
	prometheus.MustRegister(BlockRetrieveDuration)
	prometheus.MustRegister(ChecksumMismatchesTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
