package driver

import "github.com/cuemby/raftcore/pkg/raft"

// MetricsSink receives IncrMetrics effects; pkg/metrics' Sink implements
// this against Prometheus counters.
type MetricsSink interface {
	Incr(table string, deltas []raft.MetricDelta)
}

// NopMetricsSink discards every increment.
type NopMetricsSink struct{}

func (NopMetricsSink) Incr(string, []raft.MetricDelta) {}
