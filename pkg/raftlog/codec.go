package raftlog

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/raftcore/pkg/raft"
)

// wireCommand is the JSON form of raft.Command stored as a WAL record's
// entry_bytes. QueryFn is not encoded, so a Query entry decoded from the
// WAL carries a nil QueryFn (pkg/raft's apply.go then replies with nil).
type wireCommand struct {
	Kind       raft.CommandKind `json:"kind"`
	From       raft.NodeId      `json:"from"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
	NewCluster raft.Cluster     `json:"new_cluster,omitempty"`
	ReplyMode  raft.ReplyMode   `json:"reply_mode"`
}

func encodeCommand(cmd raft.Command) ([]byte, error) {
	payload, err := json.Marshal(cmd.Payload)
	if err != nil {
		return nil, fmt.Errorf("raftlog: marshal command payload: %w", err)
	}
	w := wireCommand{
		Kind:       cmd.Kind,
		From:       cmd.From,
		Payload:    payload,
		NewCluster: cmd.NewCluster,
		ReplyMode:  cmd.ReplyMode,
	}
	return json.Marshal(w)
}

func decodeCommand(data []byte) (raft.Command, error) {
	var w wireCommand
	if err := json.Unmarshal(data, &w); err != nil {
		return raft.Command{}, fmt.Errorf("raftlog: unmarshal command: %w", err)
	}
	var payload any
	if len(w.Payload) > 0 {
		if err := json.Unmarshal(w.Payload, &payload); err != nil {
			return raft.Command{}, fmt.Errorf("raftlog: unmarshal command payload: %w", err)
		}
	}
	return raft.Command{
		Kind:       w.Kind,
		From:       w.From,
		Payload:    payload,
		NewCluster: w.NewCluster,
		ReplyMode:  w.ReplyMode,
	}, nil
}
