package raft

import "sort"

// pendingCommandReply records where to send the eventual effect for a
// command whose ReplyMode is await_consensus or notify_on_consensus, keyed
// by the log index it was appended at.
type pendingCommandReply struct {
	from NodeId
	mode ReplyMode
}

// AppliedAck is the value delivered to a waiting caller once a User or
// ClusterChange command at Index has been applied under await_consensus /
// notify_on_consensus reply modes.
type AppliedAck struct {
	Index Index
	State any
}

func (n *Node) becomeLeader() []Effect {
	n.role = RoleLeader
	n.votes = map[NodeId]bool{}
	n.leaderID = nil
	self := n.id
	n.leaderID = &self

	next := n.log.NextIndex()
	for id := range n.cluster {
		n.cluster[id] = PeerState{MatchIndex: 0, NextIndex: next}
	}

	effects := []Effect{incr("raft", "leader_elections", 1)}
	effects = append(effects, n.leaderAppendCommand(Command{Kind: CommandNoop})...)
	return effects
}

func (n *Node) stepLeader(msg any) []Effect {
	switch m := msg.(type) {
	case AppendEntriesReply:
		if m.Term != n.currentTerm {
			return nil
		}
		if _, ok := n.cluster[m.From]; !ok {
			return nil
		}
		if m.Success {
			return n.leaderAppendSuccess(m)
		}
		return n.leaderAppendFailure(m)
	case Command:
		return n.leaderAppendCommand(m)
	case Written:
		n.log.HandleWritten(m)
		return n.recomputeCommit()
	case InstallSnapshotReply:
		if m.Term != n.currentTerm {
			return nil
		}
		if _, ok := n.cluster[m.From]; !ok {
			return nil
		}
		if m.Success {
			n.cluster[m.From] = PeerState{MatchIndex: m.LastIndex, NextIndex: m.LastIndex + 1}
		}
		return nil
	case RequestVoteRpc:
		return n.handleRequestVote(m)
	case AppendEntriesRpc:
		if m.Term < n.currentTerm {
			return []Effect{Reply{To: m.LeaderId, Term: n.currentTerm, Value: AppendEntriesReply{
				From: n.id, Term: n.currentTerm, Success: false,
				LastIndex: n.log.LastIndexTerm().Index,
			}}}
		}
		panic("raft: fatal: two leaders observed in term " + termString(n.currentTerm))
	case ElectionTimeout:
		return nil
	default:
		return nil
	}
}

func termString(t Term) string {
	const digits = "0123456789"
	if t == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for t > 0 {
		i--
		buf[i] = digits[t%10]
		t /= 10
	}
	return string(buf[i:])
}

func (n *Node) leaderAppendCommand(cmd Command) []Effect {
	if cmd.Kind == CommandClusterChange && !n.clusterChangePermitted {
		n.pendingClusterChanges = append(n.pendingClusterChanges, cmd)
		return nil
	}

	idx := n.log.NextIndex()
	entry := LogEntry{Index: idx, Term: n.currentTerm, Command: cmd}

	if err := n.log.Append([]LogEntry{entry}); err != nil {
		if err == ErrWalDown {
			// Leaders do not demote themselves on a WAL outage per
			// spec.md §7 (only follower append failure is named); the
			// caller simply never receives a reply.
			return []Effect{incr("wal", "wal_down", 1)}
		}
		panic("raft: fatal: wal write error: " + err.Error())
	}

	if cmd.Kind == CommandClusterChange {
		n.previousCluster = &ClusterSnapshot{Index: n.clusterIndexTerm.Index, Term: n.clusterIndexTerm.Term, Cluster: n.cluster.Clone()}
		n.adoptClusterChange(entry)
		for id := range n.cluster {
			if _, ok := n.cluster[id]; ok {
				if _, existed := n.previousCluster.Cluster[id]; !existed {
					n.cluster[id] = PeerState{MatchIndex: 0, NextIndex: n.log.NextIndex()}
				}
			}
		}
	}

	var effects []Effect
	switch cmd.ReplyMode {
	case ReplyAfterLogAppend:
		if cmd.From != "" {
			effects = append(effects, Reply{To: cmd.From, Term: n.currentTerm, Value: IndexTerm{Index: idx, Term: n.currentTerm}})
		}
	case ReplyAwaitConsensus, ReplyNotifyOnConsensus:
		if cmd.From != "" {
			n.pendingCommandReplies[idx] = pendingCommandReply{from: cmd.From, mode: cmd.ReplyMode}
		}
	}

	var rpcs []PeerRpc
	prevTerm, _ := n.log.FetchTerm(idx - 1)
	if idx == 1 {
		prevTerm = 0
	}
	for _, peer := range n.cluster.Members() {
		if peer == n.id {
			continue
		}
		rpcs = append(rpcs, PeerRpc{Peer: peer, Rpc: AppendEntriesRpc{
			Term: n.currentTerm, LeaderId: n.id,
			PrevLogIndex: idx - 1, PrevLogTerm: prevTerm,
			Entries: []LogEntry{entry}, LeaderCommit: n.commitIndex,
		}})
	}
	if len(rpcs) > 0 {
		effects = append(effects, SendRpcs{Urgent: false, To: rpcs})
	}

	return effects
}

func (n *Node) leaderAppendSuccess(m AppendEntriesReply) []Effect {
	ps := n.cluster[m.From]
	if m.LastIndex > ps.MatchIndex {
		ps.MatchIndex = m.LastIndex
	}
	if m.NextIndex > ps.NextIndex {
		ps.NextIndex = m.NextIndex
	}
	n.cluster[m.From] = ps

	return n.recomputeCommit()
}

func (n *Node) leaderAppendFailure(m AppendEntriesReply) []Effect {
	ps := n.cluster[m.From]

	switch {
	case n.log.Exists(m.LastIndex, m.LastTerm) == LookupMatch && m.LastIndex >= ps.MatchIndex:
		ps.MatchIndex = m.LastIndex
		ps.NextIndex = m.LastIndex + 1
	case m.LastIndex < ps.MatchIndex:
		ps.MatchIndex = m.LastIndex
		ps.NextIndex = m.LastIndex + 1
	default:
		next := ps.NextIndex - 1
		if next > m.LastIndex {
			next = m.LastIndex
		}
		if next < ps.MatchIndex {
			next = ps.MatchIndex
		}
		ps.NextIndex = next
	}
	n.cluster[m.From] = ps

	from := ps.NextIndex
	last := n.log.LastIndexTerm()
	var entries []LogEntry
	if from <= last.Index {
		es, err := n.log.Take(from, last.Index)
		if err == nil {
			entries = es
		}
	}
	prevTerm, _ := n.log.FetchTerm(from - 1)
	if from == 1 {
		prevTerm = 0
	}

	return []Effect{SendRpcs{Urgent: true, To: []PeerRpc{{Peer: m.From, Rpc: AppendEntriesRpc{
		Term: n.currentTerm, LeaderId: n.id,
		PrevLogIndex: from - 1, PrevLogTerm: prevTerm,
		Entries: entries, LeaderCommit: n.commitIndex,
	}}}}}
}

// recomputeCommit implements spec.md §4.2's quorum commit rule: the
// (floor(N/2)+1)-th largest element of {match_index[P]} ∪
// {last_written_index}, committed only if that entry's term matches the
// leader's current term (Raft §5.4.2).
func (n *Node) recomputeCommit() []Effect {
	values := make([]Index, 0, len(n.cluster))
	for id, ps := range n.cluster {
		if id == n.id {
			continue
		}
		values = append(values, ps.MatchIndex)
	}
	values = append(values, n.log.LastWritten().Index)
	sort.Slice(values, func(i, j int) bool { return values[i] > values[j] })

	quorum := n.cluster.Quorum()
	if quorum > len(values) {
		return nil
	}
	candidate := values[quorum-1]
	if candidate <= n.commitIndex {
		return nil
	}
	if term, ok := n.log.FetchTerm(candidate); !ok || term != n.currentTerm {
		return nil
	}

	n.commitIndex = candidate
	effects := n.applyTo(n.commitIndex)

	if _, stillMember := n.cluster[n.id]; !stillMember && n.clusterIndexTerm.Index <= n.commitIndex {
		n.role = RoleStop
	}

	return effects
}
