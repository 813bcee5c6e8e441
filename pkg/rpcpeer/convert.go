package rpcpeer

import (
	"encoding/json"

	"github.com/cuemby/raftcore/pkg/raft"
)

func toCommandWire(cmd raft.Command) (commandWire, error) {
	var payload json.RawMessage
	if cmd.Payload != nil {
		raw, err := json.Marshal(cmd.Payload)
		if err != nil {
			return commandWire{}, err
		}
		payload = raw
	}
	return commandWire{
		Kind: cmd.Kind, From: cmd.From, Payload: payload,
		NewCluster: cmd.NewCluster, ReplyMode: cmd.ReplyMode,
	}, nil
}

func fromCommandWire(w commandWire) raft.Command {
	var payload any
	if len(w.Payload) > 0 {
		payload = w.Payload
	}
	return raft.Command{
		Kind: w.Kind, From: w.From, Payload: payload,
		NewCluster: w.NewCluster, ReplyMode: w.ReplyMode,
	}
}

func toEntryWires(entries []raft.LogEntry) ([]logEntryWire, error) {
	out := make([]logEntryWire, len(entries))
	for i, e := range entries {
		cw, err := toCommandWire(e.Command)
		if err != nil {
			return nil, err
		}
		out[i] = logEntryWire{Index: e.Index, Term: e.Term, Command: cw}
	}
	return out, nil
}

func fromEntryWires(wires []logEntryWire) []raft.LogEntry {
	out := make([]raft.LogEntry, len(wires))
	for i, w := range wires {
		out[i] = raft.LogEntry{Index: w.Index, Term: w.Term, Command: fromCommandWire(w.Command)}
	}
	return out
}

func toAppendEntriesRequest(rpc raft.AppendEntriesRpc) (appendEntriesRequest, error) {
	entries, err := toEntryWires(rpc.Entries)
	if err != nil {
		return appendEntriesRequest{}, err
	}
	return appendEntriesRequest{
		Term: rpc.Term, LeaderId: rpc.LeaderId,
		PrevLogIndex: rpc.PrevLogIndex, PrevLogTerm: rpc.PrevLogTerm,
		Entries: entries, LeaderCommit: rpc.LeaderCommit,
	}, nil
}

func fromAppendEntriesRequest(req appendEntriesRequest) raft.AppendEntriesRpc {
	return raft.AppendEntriesRpc{
		Term: req.Term, LeaderId: req.LeaderId,
		PrevLogIndex: req.PrevLogIndex, PrevLogTerm: req.PrevLogTerm,
		Entries: fromEntryWires(req.Entries), LeaderCommit: req.LeaderCommit,
	}
}

func toAppendEntriesResponse(r raft.AppendEntriesReply) appendEntriesResponse {
	return appendEntriesResponse{
		From: r.From, Term: r.Term, Success: r.Success,
		NextIndex: r.NextIndex, LastIndex: r.LastIndex, LastTerm: r.LastTerm,
	}
}

func fromAppendEntriesResponse(r appendEntriesResponse) raft.AppendEntriesReply {
	return raft.AppendEntriesReply{
		From: r.From, Term: r.Term, Success: r.Success,
		NextIndex: r.NextIndex, LastIndex: r.LastIndex, LastTerm: r.LastTerm,
	}
}

func toInstallSnapshotRequest(rpc raft.InstallSnapshotRpc) (installSnapshotRequest, error) {
	var state json.RawMessage
	if rpc.MachineState != nil {
		raw, err := json.Marshal(rpc.MachineState)
		if err != nil {
			return installSnapshotRequest{}, err
		}
		state = raw
	}
	return installSnapshotRequest{
		Term: rpc.Term, LeaderId: rpc.LeaderId,
		LastIncludeIndex: rpc.LastIncludeIndex, LastIncludeTerm: rpc.LastIncludeTerm,
		Cluster: rpc.Cluster, MachineState: state,
	}, nil
}

func fromInstallSnapshotRequest(req installSnapshotRequest) raft.InstallSnapshotRpc {
	var state any
	if len(req.MachineState) > 0 {
		state = req.MachineState
	}
	return raft.InstallSnapshotRpc{
		Term: req.Term, LeaderId: req.LeaderId,
		LastIncludeIndex: req.LastIncludeIndex, LastIncludeTerm: req.LastIncludeTerm,
		Cluster: req.Cluster, MachineState: state,
	}
}
