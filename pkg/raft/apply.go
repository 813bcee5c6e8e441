package raft

// applyTo implements spec.md §4.2's "Apply loop": entries in
// (last_applied+1 .. target] are fetched and dispatched by command kind,
// last_applied is advanced to the highest index actually applied, and a
// metrics increment is emitted for the batch.
func (n *Node) applyTo(target Index) []Effect {
	if target <= n.lastApplied {
		return nil
	}

	entries, err := n.log.Take(n.lastApplied+1, target)
	if err != nil {
		return nil
	}
	if len(entries) == 0 {
		return nil
	}

	var effects []Effect
	applied := n.lastApplied
	for _, e := range entries {
		effects = append(effects, n.applyEntry(e)...)
		applied = e.Index
	}
	n.lastApplied = applied

	effects = append(effects, incr("raft", "entries_applied", int64(len(entries))))
	effects = append(effects, ReleaseCursor{Index: n.lastApplied, MachineState: n.machineState})

	return effects
}

func (n *Node) applyEntry(e LogEntry) []Effect {
	var effects []Effect

	switch e.Command.Kind {
	case CommandUser:
		result := n.applyFn(e.Index, e.Command, n.machineState)
		n.machineState = result.NewState
		effects = append(effects, result.SideEffects...)
		effects = append(effects, n.replyForApplied(e.Index, e.Command)...)

	case CommandQuery:
		var value any
		if e.Command.QueryFn != nil {
			value = e.Command.QueryFn(n.machineState)
		}
		if e.Command.From != "" {
			effects = append(effects, Reply{To: e.Command.From, Term: e.Term, Value: value})
		}

	case CommandClusterChange:
		n.clusterChangePermitted = true
		effects = append(effects, n.replyForApplied(e.Index, e.Command)...)
		if len(n.pendingClusterChanges) > 0 {
			next := n.pendingClusterChanges[0]
			n.pendingClusterChanges = n.pendingClusterChanges[1:]
			effects = append(effects, NextEvent{Msg: next})
		}

	case CommandNoop:
		if e.Term == n.currentTerm {
			n.clusterChangePermitted = true
		}
	}

	return effects
}

func (n *Node) replyForApplied(idx Index, cmd Command) []Effect {
	pending, ok := n.pendingCommandReplies[idx]
	if !ok {
		return nil
	}
	delete(n.pendingCommandReplies, idx)

	ack := AppliedAck{Index: idx, State: n.machineState}
	switch pending.mode {
	case ReplyAwaitConsensus:
		return []Effect{Reply{To: pending.from, Value: ack}}
	case ReplyNotifyOnConsensus:
		return []Effect{Notify{To: pending.from, Value: ack}}
	default:
		return nil
	}
}
