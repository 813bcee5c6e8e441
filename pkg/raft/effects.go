package raft

// Effect is anything a role handler asks the driver adapter to do on its
// behalf. Handlers never perform I/O themselves; they return a slice of
// these and let the driver (pkg/driver) translate them into timer arming,
// peer RPC dispatch, process monitors, and replies to callers.
type Effect interface {
	isEffect()
}

type effectBase struct{}

func (effectBase) isEffect() {}

// Reply sends a value back to a waiting caller, identified by To.
type Reply struct {
	effectBase
	To    NodeId
	Term  Term
	Value any
}

// Notify fires for a ReplyNotifyOnConsensus command once it is applied.
type Notify struct {
	effectBase
	To    NodeId
	Value any
}

// SendRpcs asks the driver to dispatch AppendEntries RPCs to peers. Urgent
// requests (retries after a failed reply, or a fresh leader's initial
// round) should bypass any batching the transport applies.
type SendRpcs struct {
	effectBase
	Urgent bool
	To     []PeerRpc
}

// PeerRpc pairs a destination with an AppendEntries request.
type PeerRpc struct {
	Peer NodeId
	Rpc  AppendEntriesRpc
}

// SendVoteRequests asks the driver to broadcast RequestVote RPCs.
type SendVoteRequests struct {
	effectBase
	To []VoteRpc
}

// VoteRpc pairs a destination with a RequestVote request.
type VoteRpc struct {
	Peer NodeId
	Rpc  RequestVoteRpc
}

// SendInstallSnapshot asks the driver to dispatch an InstallSnapshot RPC.
type SendInstallSnapshot struct {
	effectBase
	Peer NodeId
	Rpc  InstallSnapshotRpc
}

// SendMsg asks the driver to deliver an arbitrary payload to a target,
// re-entering that target's own mailbox (used for synthetic re-dispatch
// across node boundaries in tests; within a single node NextEvent is used
// instead).
type SendMsg struct {
	effectBase
	Target  NodeId
	Payload any
}

// Monitor asks the driver to watch a process (e.g. a newly contacted peer)
// and report if it goes down.
type Monitor struct {
	effectBase
	Process string
	Pid     string
}

// Demonitor cancels a prior Monitor.
type Demonitor struct {
	effectBase
	Pid string
}

// NextEvent asks the driver to re-dispatch msg to this same node's mailbox,
// used for synthetic re-entry (e.g. a leader's own Noop command, or a
// pending cluster change pulled off the queue on apply).
type NextEvent struct {
	effectBase
	Msg any
}

// IncrMetrics asks the driver to bump named positions in a metrics table by
// the given deltas.
type IncrMetrics struct {
	effectBase
	Table string
	Deltas []MetricDelta
}

// MetricDelta names one (position, delta) pair within an IncrMetrics table.
type MetricDelta struct {
	Position string
	Delta    int64
}

// ReleaseCursor reports a point at or below which the log may safely be
// compacted, along with the machine state as of that index.
type ReleaseCursor struct {
	effectBase
	Index        Index
	MachineState any
}
