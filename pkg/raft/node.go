package raft

import "fmt"

// Role names the four roles a Node can occupy (spec.md §4.2, §4.3).
type Role int

const (
	RoleFollower Role = iota
	RoleCandidate
	RoleLeader
	RoleAwaitCondition
	// RoleStop is terminal: returned once a leader commits a cluster
	// change that excludes itself (spec.md §3 Lifecycle, §4.2).
	RoleStop
)

func (r Role) String() string {
	switch r {
	case RoleFollower:
		return "follower"
	case RoleCandidate:
		return "candidate"
	case RoleLeader:
		return "leader"
	case RoleAwaitCondition:
		return "await_condition"
	case RoleStop:
		return "stop"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ApplyResult is what a user ApplyFunc returns: the machine's new state,
// plus any additional effects (e.g. derived replies) it wants emitted.
type ApplyResult struct {
	NewState    any
	SideEffects []Effect
}

// ApplyFunc applies a committed User command to the machine state. Normalized
// by pkg/machine from either a 2-arg (cmd, state) or 3-arg (idx, cmd, state)
// user-supplied function (spec.md §9).
type ApplyFunc func(idx Index, cmd Command, state any) ApplyResult

// ConditionFunc evaluates an incoming message while in RoleAwaitCondition;
// returning true causes the message to be re-dispatched as a follower.
type ConditionFunc func(msg any) bool

// Config constructs a new Node (spec.md §3 Lifecycle, "init(config)").
type Config struct {
	ID                   NodeId
	Cluster              Cluster
	Log                  Log
	ApplyFn              ApplyFunc
	InitialMachineState  any
	AwaitConditionLabel  string // diagnostic label for the armed condition, if any
}

// Node is a single Raft participant: a single-threaded actor with a
// mailbox, implementing spec.md §4.2/§4.3's role handlers. It is not safe
// for concurrent calls to Step; the driver adapter (pkg/driver) is
// responsible for serialising delivery, matching the "independent
// cooperative actor" model of spec.md §5.
type Node struct {
	id      NodeId
	cluster Cluster
	leaderID *NodeId

	currentTerm Term
	votedFor    *NodeId

	commitIndex Index
	lastApplied Index

	log Log

	clusterIndexTerm      IndexTerm
	clusterChangePermitted bool
	pendingClusterChanges []Command
	previousCluster       *ClusterSnapshot

	votes map[NodeId]bool

	role Role

	machineState        any
	initialMachineState any
	applyFn             ApplyFunc

	conditionFn ConditionFunc

	// pendingAppendReplies holds AppendEntries requests awaiting a Written
	// notification before their reply can be sent (follower role only).
	pendingAppendReplies []pendingAppendReply

	// pendingCommandReplies holds, by log index, the caller to notify once
	// an await_consensus / notify_on_consensus command is applied.
	pendingCommandReplies map[Index]pendingCommandReply

	// awaitReason distinguishes the two await_condition causes
	// (catch-up vs wal-down) purely for diagnostics/metrics; behaviour is
	// identical (spec.md §4.3).
	awaitReason string
}

// Init constructs a Node from persisted state, per spec.md §3 Lifecycle:
// read persisted metadata, install the latest snapshot if any, then derive
// the live cluster by scanning forward from commit_index for the most
// recent ClusterChange entry.
func Init(cfg Config) (*Node, error) {
	if cfg.Log == nil {
		return nil, fmt.Errorf("raft: Init requires a Log")
	}
	if len(cfg.Cluster) == 0 {
		return nil, fmt.Errorf("raft: Init requires a non-empty cluster")
	}

	meta, err := cfg.Log.ReadMeta()
	if err != nil {
		return nil, fmt.Errorf("raft: read persisted metadata: %w", err)
	}

	n := &Node{
		id:                   cfg.ID,
		cluster:              cfg.Cluster.Clone(),
		log:                  cfg.Log,
		currentTerm:          meta.CurrentTerm,
		votedFor:             meta.VotedFor,
		machineState:         cfg.InitialMachineState,
		initialMachineState:  cfg.InitialMachineState,
		applyFn:              cfg.ApplyFn,
		role:                 RoleFollower,
		votes:                map[NodeId]bool{},
		pendingCommandReplies: map[Index]pendingCommandReply{},
	}

	if snap, ok := cfg.Log.ReadSnapshot(); ok {
		n.commitIndex = snap.Index
		n.lastApplied = snap.Index
		n.machineState = snap.MachineState
		n.cluster = snap.Cluster.Clone()
		n.clusterIndexTerm = IndexTerm{Index: snap.Index, Term: snap.Term}
	}

	last := n.log.LastIndexTerm()
	if last.Index > n.commitIndex {
		entries, err := n.log.Take(n.commitIndex+1, last.Index)
		if err != nil {
			return nil, fmt.Errorf("raft: scan for cluster change: %w", err)
		}
		for _, e := range entries {
			if e.Command.Kind == CommandClusterChange {
				n.adoptClusterChange(e)
			}
		}
	}

	return n, nil
}

func (n *Node) adoptClusterChange(e LogEntry) {
	n.previousCluster = &ClusterSnapshot{
		Index:   n.clusterIndexTerm.Index,
		Term:    n.clusterIndexTerm.Term,
		Cluster: n.cluster.Clone(),
	}
	n.cluster = e.Command.NewCluster.Clone()
	n.clusterIndexTerm = IndexTerm{Index: e.Index, Term: e.Term}
	n.clusterChangePermitted = false
}

// ID returns the node's identifier.
func (n *Node) ID() NodeId { return n.id }

// Role returns the node's current role.
func (n *Node) Role() Role { return n.role }

// CurrentTerm returns the node's current term.
func (n *Node) CurrentTerm() Term { return n.currentTerm }

// CommitIndex returns the highest index known committed.
func (n *Node) CommitIndex() Index { return n.commitIndex }

// LastApplied returns the highest index applied to the machine.
func (n *Node) LastApplied() Index { return n.lastApplied }

// LeaderId returns the currently known leader, if any.
func (n *Node) LeaderId() (NodeId, bool) {
	if n.leaderID == nil {
		return "", false
	}
	return *n.leaderID, true
}

// Cluster returns a copy of the current cluster membership.
func (n *Node) Cluster() Cluster { return n.cluster.Clone() }

// Step dispatches one message through the handler for the node's current
// role and returns the effects produced. This is the sole entry point the
// driver adapter calls.
func (n *Node) Step(msg any) []Effect {
	if n.role == RoleStop {
		return nil
	}

	// Universal term rule (spec.md §4.2): any message carrying a higher
	// term bumps us to follower first, then re-dispatches.
	if higherTerm, ok := messageTerm(msg); ok && higherTerm > n.currentTerm {
		effects := n.stepUpTerm(higherTerm)
		if n.role != RoleFollower {
			n.role = RoleFollower
		}
		return append(effects, n.dispatch(msg)...)
	}

	return n.dispatch(msg)
}

func (n *Node) dispatch(msg any) []Effect {
	switch n.role {
	case RoleFollower:
		return n.stepFollower(msg)
	case RoleCandidate:
		return n.stepCandidate(msg)
	case RoleLeader:
		return n.stepLeader(msg)
	case RoleAwaitCondition:
		return n.stepAwaitCondition(msg)
	default:
		return nil
	}
}

// messageTerm extracts the term carried by msg, if any.
func messageTerm(msg any) (Term, bool) {
	switch m := msg.(type) {
	case AppendEntriesRpc:
		return m.Term, true
	case RequestVoteRpc:
		return m.Term, true
	case RequestVoteReply:
		return m.Term, true
	case AppendEntriesReply:
		return m.Term, true
	case InstallSnapshotRpc:
		return m.Term, true
	case InstallSnapshotReply:
		return m.Term, true
	default:
		return 0, false
	}
}

// stepUpTerm implements the universal term rule: set current_term, clear
// voted_for, persist both atomically with a metadata fsync.
func (n *Node) stepUpTerm(term Term) []Effect {
	n.currentTerm = term
	n.votedFor = nil
	n.leaderID = nil
	if err := n.log.WriteMeta(Meta{CurrentTerm: n.currentTerm, VotedFor: nil}); err != nil {
		panic(fmt.Sprintf("raft: fatal: persist metadata on term advance: %v", err))
	}
	if err := n.log.SyncMeta(); err != nil {
		panic(fmt.Sprintf("raft: fatal: sync metadata on term advance: %v", err))
	}
	return nil
}

func incr(table string, position string, delta int64) Effect {
	return IncrMetrics{Table: table, Deltas: []MetricDelta{{Position: position, Delta: delta}}}
}
