package raft

import "fmt"

// NodeId uniquely names a node across the cluster.
type NodeId string

// Term is a monotonically increasing election epoch.
type Term uint64

// Index is a monotonically increasing log position. Index 0 / Term 0 denotes
// "before the log".
type Index uint64

// ReplyMode controls when a caller waiting on a Command receives its reply.
type ReplyMode int

const (
	// ReplyAfterLogAppend replies with (index, term) as soon as the entry is
	// appended to the leader's log, without waiting for consensus.
	ReplyAfterLogAppend ReplyMode = iota
	// ReplyAwaitConsensus replies only once the entry has been applied.
	ReplyAwaitConsensus
	// ReplyNotifyOnConsensus fires a Notify effect once the entry is applied,
	// instead of a direct Reply.
	ReplyNotifyOnConsensus
)

func (m ReplyMode) String() string {
	switch m {
	case ReplyAfterLogAppend:
		return "after_log_append"
	case ReplyAwaitConsensus:
		return "await_consensus"
	case ReplyNotifyOnConsensus:
		return "notify_on_consensus"
	default:
		return fmt.Sprintf("reply_mode(%d)", int(m))
	}
}

// CommandKind tags the variant held by a LogEntry's Command.
type CommandKind int

const (
	CommandUser CommandKind = iota
	CommandQuery
	CommandClusterChange
	CommandNoop
)

// Command is the payload carried by a LogEntry. Exactly one of the
// kind-specific fields is meaningful, selected by Kind.
type Command struct {
	Kind CommandKind

	// From identifies the caller effects should be replied to. Empty for
	// entries with no waiting caller (e.g. a leader's own Noop).
	From NodeId

	// User / Query payloads.
	Payload any
	QueryFn func(machineState any) any

	// ClusterChange payload: the cluster the entry proposes to adopt.
	NewCluster Cluster

	ReplyMode ReplyMode
}

func NoopCommand() Command {
	return Command{Kind: CommandNoop}
}

// LogEntry is a single position in the replicated log.
type LogEntry struct {
	Index   Index
	Term    Term
	Command Command
}

// PeerState is maintained by a leader for every other cluster member.
type PeerState struct {
	MatchIndex Index
	NextIndex  Index
}

// Cluster maps NodeId to PeerState, including self. A Cluster must always
// contain at least one member; the self id may be momentarily absent only
// while a leader is committing its own removal.
type Cluster map[NodeId]PeerState

// Clone returns a shallow copy safe to mutate independently.
func (c Cluster) Clone() Cluster {
	out := make(Cluster, len(c))
	for id, ps := range c {
		out[id] = ps
	}
	return out
}

// Members returns the cluster's node ids, in no particular order.
func (c Cluster) Members() []NodeId {
	out := make([]NodeId, 0, len(c))
	for id := range c {
		out = append(out, id)
	}
	return out
}

// Quorum returns floor(|cluster|/2) + 1.
func (c Cluster) Quorum() int {
	return len(c)/2 + 1
}

// ClusterSnapshot is the (index, term, cluster) tuple stashed in
// NodeState.PreviousCluster for rollback when a follower's cluster-change
// entry is overwritten by a different term.
type ClusterSnapshot struct {
	Index   Index
	Term    Term
	Cluster Cluster
}

// IndexTerm names a (index, term) log coordinate, used for
// prev_idx/prev_term checks and for ClusterIndexTerm bookkeeping.
type IndexTerm struct {
	Index Index
	Term  Term
}
