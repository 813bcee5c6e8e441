package rpcpeer

import (
	"encoding/json"

	"github.com/cuemby/raftcore/pkg/raft"
)

// Wire-level request/response pairs for the three peer RPCs plus the
// client-facing propose call. Mirrors the raft package's own RPC
// types field-for-field; kept separate so the network codec never
// depends on raft's internal Command/LogEntry representation directly.

type logEntryWire struct {
	Index   raft.Index
	Term    raft.Term
	Command commandWire
}

type commandWire struct {
	Kind       raft.CommandKind
	From       raft.NodeId
	Payload    json.RawMessage
	NewCluster raft.Cluster
	ReplyMode  raft.ReplyMode
}

type appendEntriesRequest struct {
	Term         raft.Term
	LeaderId     raft.NodeId
	PrevLogIndex raft.Index
	PrevLogTerm  raft.Term
	Entries      []logEntryWire
	LeaderCommit raft.Index
}

type appendEntriesResponse struct {
	From      raft.NodeId
	Term      raft.Term
	Success   bool
	NextIndex raft.Index
	LastIndex raft.Index
	LastTerm  raft.Term
}

type requestVoteRequest struct {
	Term         raft.Term
	Candidate    raft.NodeId
	LastLogIndex raft.Index
	LastLogTerm  raft.Term
}

type requestVoteResponse struct {
	From    raft.NodeId
	Term    raft.Term
	Granted bool
}

type installSnapshotRequest struct {
	Term             raft.Term
	LeaderId         raft.NodeId
	LastIncludeIndex raft.Index
	LastIncludeTerm  raft.Term
	Cluster          raft.Cluster
	MachineState     json.RawMessage
}

type installSnapshotResponse struct {
	From      raft.NodeId
	Term      raft.Term
	Success   bool
	LastIndex raft.Index
}

// proposeRequest carries a client command submission from a CLI/API
// caller on one node to whichever node it believes is leader.
type proposeRequest struct {
	Payload   json.RawMessage
	ReplyMode raft.ReplyMode
}

type proposeResponse struct {
	Index raft.Index
	Term  raft.Term
	State json.RawMessage
	Error string
}
