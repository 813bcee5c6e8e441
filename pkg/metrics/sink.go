package metrics

import "github.com/cuemby/raftcore/pkg/raft"

// Sink implements pkg/driver.MetricsSink, translating the (table,
// position) pairs raft's role handlers emit via IncrMetrics effects into
// the Prometheus counters registered in metrics.go.
type Sink struct{}

// Incr implements pkg/driver.MetricsSink.
func (Sink) Incr(table string, deltas []raft.MetricDelta) {
	for _, d := range deltas {
		counter(table, d.Position).Add(float64(d.Delta))
	}
}

func counter(table, position string) interface{ Add(float64) } {
	switch table + "/" + position {
	case "raft/leader_elections":
		return LeaderElectionsTotal
	case "raft/entries_applied":
		return EntriesAppliedTotal
	case "wal/wal_down":
		return WalDownTotal
	case "raft/elections_started":
		return electionsStartedTotal
	case "wal/follower_written":
		return followerWrittenTotal
	default:
		return discardCounter{}
	}
}

type discardCounter struct{}

func (discardCounter) Add(float64) {}
