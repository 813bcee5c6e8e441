package main

import (
	"encoding/json"

	"github.com/cuemby/raftcore/pkg/raft"
)

// kvCommand is the demo application: a replicated string key-value map.
// Real deployments supply their own ApplyFunc (pkg/machine); this one
// exists so `run`/`propose`/`demo` have something to exercise end to end.
type kvCommand struct {
	Op    string `json:"op"` // "set" or "delete"
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

type kvState map[string]string

func applyKV(cmd raft.Command, state any) any {
	current, _ := state.(kvState)
	next := make(kvState, len(current)+1)
	for k, v := range current {
		next[k] = v
	}

	var c kvCommand
	if raw, ok := cmd.Payload.(json.RawMessage); ok {
		_ = json.Unmarshal(raw, &c)
	} else if b, ok := cmd.Payload.([]byte); ok {
		_ = json.Unmarshal(b, &c)
	}

	switch c.Op {
	case "set":
		next[c.Key] = c.Value
	case "delete":
		delete(next, c.Key)
	}
	return next
}
