package raft

// stepAwaitCondition implements spec.md §4.3: only the armed predicate
// evaluates incoming messages; RequestVote always falls back to follower
// (to avoid starving elections) and election_timeout still converts to
// candidate. await_condition_timeout reverts to follower unconditionally.
func (n *Node) stepAwaitCondition(msg any) []Effect {
	switch m := msg.(type) {
	case RequestVoteRpc:
		n.exitAwaitCondition()
		return n.handleRequestVote(m)
	case ElectionTimeout:
		return n.becomeCandidate()
	case AwaitConditionTimeout:
		n.exitAwaitCondition()
		return nil
	default:
		if n.conditionFn != nil && n.conditionFn(msg) {
			n.exitAwaitCondition()
			return n.stepFollower(msg)
		}
		return nil
	}
}

// exitAwaitCondition implements Open Question decision 3 (DESIGN.md): on
// any exit from await_condition, default to arming a follower election
// timer, per spec.md §9's own stated default for the under-specified
// monitor_and_node_hint interaction.
func (n *Node) exitAwaitCondition() {
	n.role = RoleFollower
	n.conditionFn = nil
	n.awaitReason = ""
}
