package raft

// AppendEntriesRpc is the leader -> follower log-replication request.
type AppendEntriesRpc struct {
	Term         Term
	LeaderId     NodeId
	PrevLogIndex Index
	PrevLogTerm  Term
	Entries      []LogEntry
	LeaderCommit Index
}

// AppendEntriesReply is the follower -> leader response. NextIndex is
// only meaningful when Success is true and LastTerm only when it is false;
// LastIndex is set in both cases, matching spec.md §4.2's leader
// reconciliation rules.
type AppendEntriesReply struct {
	From      NodeId
	Term      Term
	Success   bool
	NextIndex Index // next_idx to try, when Success
	LastIndex Index // last index in replier's log, both on success and failure
	LastTerm  Term  // term of LastIndex's entry, when !Success
}

// RequestVoteRpc is the candidate -> peer vote solicitation.
type RequestVoteRpc struct {
	Term         Term
	Candidate    NodeId
	LastLogIndex Index
	LastLogTerm  Term
}

// RequestVoteReply is the peer -> candidate response.
type RequestVoteReply struct {
	From    NodeId
	Term    Term
	Granted bool
}

// InstallSnapshotRpc transfers a snapshot to a follower that has fallen too
// far behind for log replication to catch it up.
type InstallSnapshotRpc struct {
	Term             Term
	LeaderId         NodeId
	LastIncludeIndex Index
	LastIncludeTerm  Term
	Cluster          Cluster
	MachineState     any
}

// InstallSnapshotReply is the follower -> leader response.
type InstallSnapshotReply struct {
	From      NodeId
	Term      Term
	Success   bool
	LastIndex Index
}

// Written is posted by the log facade (ultimately backed by the WAL sink)
// once a batch of appended entries for this node has been durably fsynced.
type Written struct {
	FromIndex Index
	ToIndex   Index
	Term      Term
}

// WalDownMsg is delivered to a follower when an append could not be
// enqueued because the WAL sink is unavailable (spec.md §7).
type WalDownMsg struct{}

// ElectionTimeout is delivered by the driver's timer when no heartbeat was
// seen within the randomised election window.
type ElectionTimeout struct{}

// AwaitConditionTimeout is delivered when an await_condition role has
// waited longer than the configured timeout without its predicate firing.
type AwaitConditionTimeout struct{}
