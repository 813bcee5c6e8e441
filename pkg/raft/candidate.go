package raft

// becomeCandidate starts a new election (spec.md §4.2 Candidate, "on
// becoming"): bump current_term, vote for self, persist, broadcast
// RequestVote to every peer, and count the self-vote immediately.
func (n *Node) becomeCandidate() []Effect {
	n.role = RoleCandidate
	n.currentTerm++
	self := n.id
	n.votedFor = &self
	n.leaderID = nil
	n.votes = map[NodeId]bool{n.id: true}

	if err := n.log.WriteMeta(Meta{CurrentTerm: n.currentTerm, VotedFor: n.votedFor}); err != nil {
		panic("raft: fatal: persist candidacy: " + err.Error())
	}
	if err := n.log.SyncMeta(); err != nil {
		panic("raft: fatal: sync candidacy: " + err.Error())
	}

	last := n.log.LastIndexTerm()
	var reqs []VoteRpc
	for _, peer := range n.cluster.Members() {
		if peer == n.id {
			continue
		}
		reqs = append(reqs, VoteRpc{Peer: peer, Rpc: RequestVoteRpc{
			Term: n.currentTerm, Candidate: n.id,
			LastLogIndex: last.Index, LastLogTerm: last.Term,
		}})
	}

	effects := []Effect{incr("raft", "elections_started", 1)}
	if len(reqs) > 0 {
		effects = append(effects, SendVoteRequests{To: reqs})
	}
	if n.cluster.Quorum() <= 1 {
		// Single-node cluster: the self-vote already constitutes quorum.
		effects = append(effects, n.becomeLeader()...)
	}
	return effects
}

func (n *Node) stepCandidate(msg any) []Effect {
	switch m := msg.(type) {
	case RequestVoteReply:
		if m.Term != n.currentTerm || !m.Granted {
			return nil
		}
		n.votes[m.From] = true
		if len(n.votes) >= n.cluster.Quorum() {
			return n.becomeLeader()
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
		// A current-term leader exists; revert to follower and re-handle.
		n.role = RoleFollower
		return n.stepFollower(m)
	case ElectionTimeout:
		return n.becomeCandidate()
	default:
		return nil
	}
}
