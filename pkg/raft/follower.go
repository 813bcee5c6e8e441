package raft

// pendingAppendReply tracks an AppendEntries request whose reply must wait
// for the corresponding Written notification (spec.md §4.2 Follower,
// "reply success=true asynchronously").
type pendingAppendReply struct {
	leader            NodeId
	term              Term
	lastIndexReceived Index
}

func (n *Node) stepFollower(msg any) []Effect {
	switch m := msg.(type) {
	case AppendEntriesRpc:
		return n.followerAppendEntries(m)
	case Written:
		return n.followerWritten(m)
	case RequestVoteRpc:
		return n.handleRequestVote(m)
	case InstallSnapshotRpc:
		return n.followerInstallSnapshot(m)
	case ElectionTimeout:
		return n.becomeCandidate()
	case WalDownMsg:
		n.role = RoleAwaitCondition
		n.awaitReason = "wal_down"
		n.conditionFn = func(msg any) bool {
			// Any append-capable message indicates the sink may be back,
			// so simply accept the next AppendEntries.
			_, ok := msg.(AppendEntriesRpc)
			return ok
		}
		return nil
	default:
		return nil
	}
}

func (n *Node) followerAppendEntries(m AppendEntriesRpc) []Effect {
	if m.Term < n.currentTerm {
		return []Effect{Reply{To: m.LeaderId, Term: n.currentTerm, Value: AppendEntriesReply{
			From: n.id, Term: n.currentTerm, Success: false,
			LastIndex: n.log.LastIndexTerm().Index,
		}}}
	}

	n.leaderID = &m.LeaderId

	switch n.checkPrev(m.PrevLogIndex, m.PrevLogTerm) {
	case LookupTermMismatch:
		last := n.log.LastIndexTerm()
		return []Effect{Reply{To: m.LeaderId, Term: n.currentTerm, Value: AppendEntriesReply{
			From: n.id, Term: n.currentTerm, Success: false,
			LastIndex: last.Index, LastTerm: last.Term,
		}}}
	case LookupMissing:
		n.role = RoleAwaitCondition
		n.awaitReason = "log_gap"
		gapIndex, gapTerm := m.PrevLogIndex, m.PrevLogTerm
		n.conditionFn = func(msg any) bool {
			switch am := msg.(type) {
			case AppendEntriesRpc:
				return n.checkPrev(am.PrevLogIndex, am.PrevLogTerm) == LookupMatch
			case InstallSnapshotRpc:
				return am.LastIncludeIndex >= gapIndex
			default:
				return false
			}
		}
		last := n.log.LastIndexTerm()
		_ = gapTerm
		return []Effect{Reply{To: m.LeaderId, Term: n.currentTerm, Value: AppendEntriesReply{
			From: n.id, Term: n.currentTerm, Success: false,
			LastIndex: last.Index, LastTerm: last.Term,
		}}}
	}

	// prev matches: drop entries already present with matching (index,
	// term), write the rest.
	fresh := make([]LogEntry, 0, len(m.Entries))
	for _, e := range m.Entries {
		if n.log.Exists(e.Index, e.Term) == LookupMatch {
			continue
		}
		fresh = append(fresh, e)
	}

	var lastIndexReceived Index
	if len(m.Entries) > 0 {
		lastIndexReceived = m.Entries[len(m.Entries)-1].Index
	} else {
		lastIndexReceived = m.PrevLogIndex
	}

	var effects []Effect
	if len(fresh) > 0 {
		for _, e := range fresh {
			if e.Command.Kind == CommandClusterChange {
				n.revertOverwrittenClusterChange(e)
				n.adoptClusterChange(e)
			}
		}
		if err := n.log.TruncateAppend(fresh); err != nil {
			if err == ErrWalDown {
				n.role = RoleAwaitCondition
				n.awaitReason = "wal_down"
				n.conditionFn = func(msg any) bool {
					_, ok := msg.(AppendEntriesRpc)
					return ok
				}
				return nil
			}
			panic("raft: fatal: wal write error: " + err.Error())
		}
	}

	if m.LeaderCommit > n.commitIndex {
		target := m.LeaderCommit
		if lastIndexReceived < target {
			target = lastIndexReceived
		}
		n.commitIndex = target
	}

	n.pendingAppendReplies = append(n.pendingAppendReplies, pendingAppendReply{
		leader: m.LeaderId, term: n.currentTerm, lastIndexReceived: lastIndexReceived,
	})

	return effects
}

// revertOverwrittenClusterChange implements spec.md §4.2's "if a log entry
// at the cluster-change index is overwritten with a different term, revert
// to previous_cluster before processing the new entry."
func (n *Node) revertOverwrittenClusterChange(e LogEntry) {
	if n.clusterIndexTerm.Index == e.Index && n.clusterIndexTerm.Term != e.Term && n.previousCluster != nil {
		n.cluster = n.previousCluster.Cluster.Clone()
		n.clusterIndexTerm = IndexTerm{Index: n.previousCluster.Index, Term: n.previousCluster.Term}
		n.previousCluster = nil
	}
}

func (n *Node) checkPrev(idx Index, term Term) LookupResult {
	if idx == 0 {
		return LookupMatch
	}
	snapIT := n.log.SnapshotIndexTerm()
	if idx == snapIT.Index {
		if term == snapIT.Term {
			return LookupMatch
		}
		return LookupTermMismatch
	}
	return n.log.Exists(idx, term)
}

// followerWritten advances apply up to min(commit_index, last_written_index)
// and resolves any pending AppendEntries replies unblocked by this batch
// (spec.md §4.2 Follower, "Written event").
func (n *Node) followerWritten(evt Written) []Effect {
	n.log.HandleWritten(evt)

	var effects []Effect
	effects = append(effects, n.applyTo(minIndex(n.commitIndex, n.log.LastWritten().Index))...)

	remaining := n.pendingAppendReplies[:0]
	for _, p := range n.pendingAppendReplies {
		if p.lastIndexReceived <= evt.ToIndex {
			effects = append(effects, Reply{To: p.leader, Term: n.currentTerm, Value: AppendEntriesReply{
				From: n.id, Term: n.currentTerm, Success: true,
				NextIndex: evt.ToIndex + 1, LastIndex: evt.ToIndex,
			}})
			effects = append(effects, incr("wal", "follower_written", 1))
		} else {
			remaining = append(remaining, p)
		}
	}
	n.pendingAppendReplies = remaining

	return effects
}

func (n *Node) handleRequestVote(m RequestVoteRpc) []Effect {
	if m.Term < n.currentTerm {
		return []Effect{Reply{To: m.Candidate, Term: n.currentTerm, Value: RequestVoteReply{
			From: n.id, Term: n.currentTerm, Granted: false,
		}}}
	}

	if m.Term == n.currentTerm && n.votedFor != nil && *n.votedFor != m.Candidate {
		return []Effect{Reply{To: m.Candidate, Term: n.currentTerm, Value: RequestVoteReply{
			From: n.id, Term: n.currentTerm, Granted: false,
		}}}
	}

	last := n.log.LastIndexTerm()
	upToDate := m.LastLogTerm > last.Term || (m.LastLogTerm == last.Term && m.LastLogIndex >= last.Index)
	if !upToDate {
		return []Effect{Reply{To: m.Candidate, Term: n.currentTerm, Value: RequestVoteReply{
			From: n.id, Term: n.currentTerm, Granted: false,
		}}}
	}

	n.votedFor = &m.Candidate
	if err := n.log.WriteMeta(Meta{CurrentTerm: n.currentTerm, VotedFor: n.votedFor}); err != nil {
		panic("raft: fatal: persist vote: " + err.Error())
	}
	if err := n.log.SyncMeta(); err != nil {
		panic("raft: fatal: sync vote: " + err.Error())
	}

	return []Effect{Reply{To: m.Candidate, Term: n.currentTerm, Value: RequestVoteReply{
		From: n.id, Term: n.currentTerm, Granted: true,
	}}}
}

func (n *Node) followerInstallSnapshot(m InstallSnapshotRpc) []Effect {
	if m.Term < n.currentTerm {
		return []Effect{Reply{To: m.LeaderId, Term: n.currentTerm, Value: InstallSnapshotReply{
			From: n.id, Term: n.currentTerm, Success: false,
		}}}
	}

	n.leaderID = &m.LeaderId

	snap := Snapshot{Index: m.LastIncludeIndex, Term: m.LastIncludeTerm, Cluster: m.Cluster, MachineState: m.MachineState}
	if err := n.log.WriteSnapshot(snap); err != nil {
		panic("raft: fatal: write snapshot: " + err.Error())
	}

	n.commitIndex = m.LastIncludeIndex
	n.lastApplied = m.LastIncludeIndex
	n.machineState = m.MachineState
	n.cluster = m.Cluster.Clone()
	n.clusterIndexTerm = IndexTerm{Index: m.LastIncludeIndex, Term: m.LastIncludeTerm}

	return []Effect{Reply{To: m.LeaderId, Term: n.currentTerm, Value: InstallSnapshotReply{
		From: n.id, Term: n.currentTerm, Success: true, LastIndex: m.LastIncludeIndex,
	}}}
}

func minIndex(a, b Index) Index {
	if a < b {
		return a
	}
	return b
}
