package metrics

import (
	"fmt"
	"time"

	"github.com/cuemby/raftcore/pkg/raft"
)

// Collector periodically samples a Node's state into the gauges defined
// in metrics.go. The counters/histograms are updated as events happen
// (Raft counters through Sink, pkg/driver's MetricsSink implementation;
// WAL, RPC and timing metrics directly by pkg/wal, pkg/rpcpeer and
// pkg/driver); Collector only covers the gauges that need polling (role,
// term, log positions).
type Collector struct {
	node   *raft.Node
	stopCh chan struct{}
}

// NewCollector builds a collector sampling node every tick.
func NewCollector(node *raft.Node) *Collector {
	return &Collector{
		node:   node,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting on a 15s tick, after an immediate sample.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends the collection loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	role := c.node.Role()
	term := c.node.CurrentTerm()

	NodeRole.Set(float64(role))
	CurrentTerm.Set(float64(term))
	ClusterPeersTotal.Set(float64(len(c.node.Cluster())))
	LogCommitIndex.Set(float64(c.node.CommitIndex()))
	LogAppliedIndex.Set(float64(c.node.LastApplied()))

	// RoleStop means the node applied a cluster change that removed
	// itself; everything else is a normal operating role.
	UpdateComponent("raft", role != raft.RoleStop, fmt.Sprintf("role=%s term=%d", role, term))
}
