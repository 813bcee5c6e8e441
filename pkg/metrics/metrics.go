package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Node/role metrics
	NodeRole = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftcore_node_role",
			Help: "Current role as an int: 0=follower 1=candidate 2=leader 3=await_condition 4=stop",
		},
	)

	CurrentTerm = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftcore_current_term",
			Help: "Current Raft term",
		},
	)

	ClusterPeersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftcore_cluster_peers_total",
			Help: "Number of members in the current cluster configuration",
		},
	)

	LeaderElectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raftcore_leader_elections_total",
			Help: "Total number of times this node became leader",
		},
	)

	electionsStartedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raftcore_elections_started_total",
			Help: "Total number of times this node started a candidacy",
		},
	)

	followerWrittenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raftcore_follower_written_total",
			Help: "Total number of AppendEntries batches this node fsynced as a follower",
		},
	)

	// Log / apply metrics
	LogLastIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftcore_log_last_index",
			Help: "Index of the last log entry known to this node",
		},
	)

	LogCommitIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftcore_log_commit_index",
			Help: "Highest log index known to be committed",
		},
	)

	LogAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftcore_log_applied_index",
			Help: "Highest log index applied to the state machine",
		},
	)

	EntriesAppliedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raftcore_entries_applied_total",
			Help: "Total number of log entries applied to the state machine",
		},
	)

	ApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raftcore_apply_duration_seconds",
			Help:    "Time taken to run the apply function over a committed batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	// WAL metrics
	WalBatchSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "raftcore_wal_batch_size",
			Help: "Current adaptive fsync batch size",
		},
	)

	WalFsyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raftcore_wal_fsync_duration_seconds",
			Help:    "Time taken to fsync a WAL batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	WalRolloversTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raftcore_wal_rollovers_total",
			Help: "Total number of WAL segment rollovers",
		},
	)

	WalResendsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raftcore_wal_resends_total",
			Help: "Total number of out-of-sequence writes rejected and requested for resend",
		},
	)

	WalDownTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "raftcore_wal_down_total",
			Help: "Total number of appends dropped because the WAL sink was unavailable",
		},
	)

	// RPC metrics
	RpcRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raftcore_rpc_requests_total",
			Help: "Total number of peer RPCs sent, by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	RpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "raftcore_rpc_duration_seconds",
			Help:    "Peer RPC round-trip duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Client-facing metrics
	ProposeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "raftcore_propose_total",
			Help: "Total number of client command proposals, by outcome",
		},
		[]string{"outcome"},
	)

	ProposeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "raftcore_propose_duration_seconds",
			Help:    "Time from proposal submission to reply delivery",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(NodeRole)
	prometheus.MustRegister(CurrentTerm)
	prometheus.MustRegister(ClusterPeersTotal)
	prometheus.MustRegister(LeaderElectionsTotal)
	prometheus.MustRegister(electionsStartedTotal)
	prometheus.MustRegister(followerWrittenTotal)

	prometheus.MustRegister(LogLastIndex)
	prometheus.MustRegister(LogCommitIndex)
	prometheus.MustRegister(LogAppliedIndex)
	prometheus.MustRegister(EntriesAppliedTotal)
	prometheus.MustRegister(ApplyDuration)

	prometheus.MustRegister(WalBatchSize)
	prometheus.MustRegister(WalFsyncDuration)
	prometheus.MustRegister(WalRolloversTotal)
	prometheus.MustRegister(WalResendsTotal)
	prometheus.MustRegister(WalDownTotal)

	prometheus.MustRegister(RpcRequestsTotal)
	prometheus.MustRegister(RpcDuration)

	prometheus.MustRegister(ProposeTotal)
	prometheus.MustRegister(ProposeDuration)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
