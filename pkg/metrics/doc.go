/*
Package metrics provides Prometheus metrics collection and exposition for
a raftcore node.

The metrics package defines and registers every raftcore metric using the
Prometheus client library, giving observability into role/term state, log
replication progress, WAL batching behaviour, and peer RPC health. Metrics
are exposed via an HTTP endpoint for scraping by Prometheus servers.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Metric Types                   │          │
	│  │                                              │          │
	│  │  Gauge: Instant values (role, term)         │          │
	│  │  Counter: Monotonic increases (elections)   │          │
	│  │  Histogram: Distributions (fsync latency)   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Node: role, term, cluster size, elections  │          │
	│  │  Log/Apply: indices, applied count, latency │          │
	│  │  WAL: batch size, fsync latency, rollovers  │          │
	│  │  RPC: per-method count and duration         │          │
	│  │  Client: propose outcome and latency        │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint               │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘          │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry
  - All metrics registered at package init
  - Thread-safe for concurrent updates

Gauge Metrics:
  - Instant value that can go up or down
  - Examples: current role, current term, commit index
  - Sampled on a tick by Collector

Counter Metrics:
  - Monotonically increasing value
  - Examples: leader elections, entries applied, WAL rollovers
  - Updated directly as events happen: Raft counters via pkg/driver's
    MetricsSink, WAL counters by pkg/wal itself

Histogram Metrics:
  - Distribution of observed values
  - Examples: apply duration, fsync duration, RPC round-trip, propose latency

Timer Helper:
  - Convenience wrapper for timing operations
  - Start timer, observe duration to histogram
  - Supports label values for histogram vectors

# Metrics Catalog

Node Metrics:

raftcore_node_role:
  - Type: Gauge
  - Description: current role (0=follower 1=candidate 2=leader 3=await_condition 4=stop)

raftcore_current_term:
  - Type: Gauge
  - Description: current Raft term

raftcore_cluster_peers_total:
  - Type: Gauge
  - Description: members in the current cluster configuration

raftcore_leader_elections_total:
  - Type: Counter
  - Description: total times this node became leader

Log / Apply Metrics:

raftcore_log_last_index, raftcore_log_commit_index, raftcore_log_applied_index:
  - Type: Gauge
  - Description: last known / committed / applied log index

raftcore_entries_applied_total:
  - Type: Counter
  - Description: total log entries applied to the state machine

raftcore_apply_duration_seconds:
  - Type: Histogram
  - Description: time to run the apply function over a committed batch

WAL Metrics:

raftcore_wal_batch_size:
  - Type: Gauge
  - Description: current adaptive fsync batch size

raftcore_wal_fsync_duration_seconds:
  - Type: Histogram
  - Description: time to fsync a WAL batch

raftcore_wal_rollovers_total, raftcore_wal_resends_total, raftcore_wal_down_total:
  - Type: Counter
  - Description: segment rollovers, out-of-sequence resend requests, dropped appends

RPC Metrics:

raftcore_rpc_requests_total{method, outcome}:
  - Type: Counter
  - Description: peer RPCs sent, labeled by method and outcome

raftcore_rpc_duration_seconds{method}:
  - Type: Histogram
  - Description: peer RPC round-trip duration

Client Metrics:

raftcore_propose_total{outcome}, raftcore_propose_duration_seconds:
  - Type: Counter / Histogram
  - Description: client command proposals by outcome, and their latency

# Usage

Updating Gauge Metrics:

	import "github.com/cuemby/raftcore/pkg/metrics"

	metrics.CurrentTerm.Set(float64(term))
	metrics.ClusterPeersTotal.Set(float64(len(cluster)))

Updating Counter Metrics:

	metrics.LeaderElectionsTotal.Inc()
	metrics.RpcRequestsTotal.WithLabelValues("AppendEntries", "success").Inc()

Recording Histogram Observations:

	timer := metrics.NewTimer()
	// ... apply a batch ...
	timer.ObserveDuration(metrics.ApplyDuration)

Complete Example:

	package main

	import (
		"net/http"
		"github.com/cuemby/raftcore/pkg/metrics"
	)

	func main() {
		http.Handle("/metrics", metrics.Handler())
		http.Handle("/health", metrics.HealthHandler())
		http.Handle("/ready", metrics.ReadyHandler())
		http.ListenAndServe(":9090", nil)
	}

# Integration Points

This package integrates with:

  - pkg/raft: Collector samples Node.Role/CurrentTerm/CommitIndex/LastApplied
  - pkg/driver: translates IncrMetrics effects into counter/histogram updates
  - pkg/wal: batch size and fsync duration
  - pkg/rpcpeer: per-method RPC counters and durations
  - Prometheus: scrapes /metrics endpoint

# Design Patterns

Package Init Registration:
  - All metrics registered in init(); MustRegister panics on duplicate
    registration, which surfaces a programming error immediately rather
    than silently dropping a metric.

Label Discipline:
  - Labels are role/method/outcome strings, never node ids or indices —
    those are unbounded and belong in logs, not metric label values.

# See Also

  - Prometheus documentation: https://prometheus.io/docs/
  - Prometheus client library: https://github.com/prometheus/client_golang
*/
package metrics
