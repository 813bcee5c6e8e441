// Package config loads a node's static cluster descriptor from a YAML
// manifest, in the struct-tag style of cmd/warren/apply.go, shaped to
// what a raftnode process needs at startup: its own id, its peer
// addresses, and the WAL/store tuning knobs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/raftcore/pkg/raft"
)

// Peer names one cluster member and the address its rpcpeer server
// listens on.
type Peer struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
}

// Cluster is the full static member list a node is initialized with.
// Membership may change later via a ClusterChange command; this is only
// the bootstrap view (spec.md §3 Lifecycle).
type Cluster struct {
	Self  string `yaml:"self"`
	Peers []Peer `yaml:"peers"`
}

// WAL tunes the shared write-ahead log sink (pkg/wal.Options).
// ChecksumEnabled is a pointer so an absent manifest key can be told
// apart from an explicit false; use Node.WALChecksumEnabled to resolve
// its default.
type WAL struct {
	MaxSizeBytes    int64 `yaml:"max_size_bytes"`
	ChecksumEnabled *bool `yaml:"checksum_enabled"`
}

// Timers tunes the driver's election/heartbeat cadence (spec.md §6).
type Timers struct {
	BroadcastTimeMillis int `yaml:"broadcast_time_millis"`
}

// Node is the top-level descriptor for one raftnode process.
type Node struct {
	DataDir string  `yaml:"data_dir"`
	Listen  string  `yaml:"listen"`
	Cluster Cluster `yaml:"cluster"`
	WAL     WAL     `yaml:"wal"`
	Timers  Timers  `yaml:"timers"`
}

const defaultBroadcastTime = 50 * time.Millisecond

// BroadcastTime returns the configured broadcast time, or the default if
// unset.
func (n Node) BroadcastTime() time.Duration {
	if n.Timers.BroadcastTimeMillis <= 0 {
		return defaultBroadcastTime
	}
	return time.Duration(n.Timers.BroadcastTimeMillis) * time.Millisecond
}

// WALMaxSizeBytes returns the WAL size limit for pkg/wal.Options,
// defaulting to 64 MiB when the manifest leaves it unset.
func (n Node) WALMaxSizeBytes() int64 {
	if n.WAL.MaxSizeBytes <= 0 {
		return 64 * 1024 * 1024
	}
	return n.WAL.MaxSizeBytes
}

// WALChecksumEnabled reports whether per-record checksums (spec.md §6)
// should be computed and verified. Unset in the manifest defaults to on.
func (n Node) WALChecksumEnabled() bool {
	if n.WAL.ChecksumEnabled == nil {
		return true
	}
	return *n.WAL.ChecksumEnabled
}

// Load reads and parses a node manifest from path.
func Load(path string) (Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Node{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var n Node
	if err := yaml.Unmarshal(data, &n); err != nil {
		return Node{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if n.Cluster.Self == "" {
		return Node{}, fmt.Errorf("config: cluster.self is required")
	}
	if n.DataDir == "" {
		n.DataDir = "./raftnode-data"
	}
	return n, nil
}

// RaftCluster builds the raft.Cluster this node should initialize with:
// every named peer (plus self) at index/match zero, matching a brand-new
// node's bootstrap view (spec.md §3 Lifecycle).
func (n Node) RaftCluster() raft.Cluster {
	cluster := raft.Cluster{}
	cluster[raft.NodeId(n.Cluster.Self)] = raft.PeerState{}
	for _, p := range n.Cluster.Peers {
		cluster[raft.NodeId(p.ID)] = raft.PeerState{}
	}
	return cluster
}

// PeerAddress looks up the rpcpeer listen address for a cluster member
// other than self.
func (n Node) PeerAddress(id raft.NodeId) (string, bool) {
	for _, p := range n.Cluster.Peers {
		if p.ID == string(id) {
			return p.Address, true
		}
	}
	return "", false
}
