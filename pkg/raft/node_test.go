package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeNodeCluster() Cluster {
	return Cluster{"a": PeerState{}, "b": PeerState{}, "c": PeerState{}}
}

func initNode(t *testing.T, id NodeId, cluster Cluster, log Log) *Node {
	t.Helper()
	n, err := Init(Config{
		ID:                  id,
		Cluster:             cluster,
		Log:                 log,
		ApplyFn:             func(idx Index, cmd Command, state any) ApplyResult { return ApplyResult{NewState: cmd.Payload} },
		InitialMachineState: nil,
	})
	require.NoError(t, err)
	return n
}

func TestInitRequiresLogAndNonEmptyCluster(t *testing.T) {
	_, err := Init(Config{ID: "a", Cluster: threeNodeCluster()})
	assert.Error(t, err)

	_, err = Init(Config{ID: "a", Log: newFakeLog()})
	assert.Error(t, err)
}

func TestInitStartsAsFollower(t *testing.T) {
	n := initNode(t, "a", threeNodeCluster(), newFakeLog())
	assert.Equal(t, RoleFollower, n.Role())
	assert.Equal(t, Term(0), n.CurrentTerm())
}

func TestElectionTimeoutBecomesCandidateAndBroadcastsVoteRequests(t *testing.T) {
	n := initNode(t, "a", threeNodeCluster(), newFakeLog())

	effects := n.Step(ElectionTimeout{})

	assert.Equal(t, RoleCandidate, n.Role())
	assert.Equal(t, Term(1), n.CurrentTerm())

	var sawVoteRequests bool
	for _, e := range effects {
		if vr, ok := e.(SendVoteRequests); ok {
			assert.Len(t, vr.To, 2)
			sawVoteRequests = true
		}
	}
	assert.True(t, sawVoteRequests)
}

func TestCandidateBecomesLeaderOnQuorum(t *testing.T) {
	n := initNode(t, "a", threeNodeCluster(), newFakeLog())
	n.Step(ElectionTimeout{})
	require.Equal(t, RoleCandidate, n.Role())

	effects := n.Step(RequestVoteReply{From: "b", Term: n.CurrentTerm(), Granted: true})

	assert.Equal(t, RoleLeader, n.Role())
	leader, ok := n.LeaderId()
	assert.True(t, ok)
	assert.Equal(t, NodeId("a"), leader)

	var sawLeaderElection bool
	for _, e := range effects {
		if im, ok := e.(IncrMetrics); ok {
			for _, d := range im.Deltas {
				if d.Position == "leader_elections" {
					sawLeaderElection = true
				}
			}
		}
	}
	assert.True(t, sawLeaderElection)
}

func TestCandidateIgnoresStaleOrUngrantedVotes(t *testing.T) {
	n := initNode(t, "a", threeNodeCluster(), newFakeLog())
	n.Step(ElectionTimeout{})

	n.Step(RequestVoteReply{From: "b", Term: n.CurrentTerm(), Granted: false})
	assert.Equal(t, RoleCandidate, n.Role())

	n.Step(RequestVoteReply{From: "c", Term: n.CurrentTerm() - 1, Granted: true})
	assert.Equal(t, RoleCandidate, n.Role())
}

func TestSingleNodeClusterElectsSelfImmediately(t *testing.T) {
	n := initNode(t, "solo", Cluster{"solo": PeerState{}}, newFakeLog())
	n.Step(ElectionTimeout{})
	assert.Equal(t, RoleLeader, n.Role())
}

func TestHigherTermMessageStepsDownToFollower(t *testing.T) {
	n := initNode(t, "a", threeNodeCluster(), newFakeLog())
	n.Step(ElectionTimeout{})
	require.Equal(t, RoleCandidate, n.Role())

	higher := n.CurrentTerm() + 5
	n.Step(RequestVoteRpc{Term: higher, Candidate: "b", LastLogIndex: 0, LastLogTerm: 0})

	assert.Equal(t, RoleFollower, n.Role())
	assert.Equal(t, higher, n.CurrentTerm())
}

func TestFollowerGrantsVoteWhenLogUpToDate(t *testing.T) {
	n := initNode(t, "a", threeNodeCluster(), newFakeLog())

	effects := n.Step(RequestVoteRpc{Term: 1, Candidate: "b", LastLogIndex: 0, LastLogTerm: 0})

	require.Len(t, effects, 1)
	reply := effects[0].(Reply)
	granted := reply.Value.(RequestVoteReply)
	assert.True(t, granted.Granted)
}

func TestFollowerDeniesSecondVoteInSameTerm(t *testing.T) {
	n := initNode(t, "a", threeNodeCluster(), newFakeLog())

	n.Step(RequestVoteRpc{Term: 1, Candidate: "b", LastLogIndex: 0, LastLogTerm: 0})
	effects := n.Step(RequestVoteRpc{Term: 1, Candidate: "c", LastLogIndex: 0, LastLogTerm: 0})

	reply := effects[0].(Reply).Value.(RequestVoteReply)
	assert.False(t, reply.Granted)
}

func TestFollowerDeniesVoteForStaleCandidateLog(t *testing.T) {
	log := newFakeLog()
	n := initNode(t, "a", threeNodeCluster(), log)
	require.NoError(t, log.Append([]LogEntry{{Index: 1, Term: 5, Command: NoopCommand()}}))
	n.Step(Written{FromIndex: 1, ToIndex: 1, Term: 5})

	effects := n.Step(RequestVoteRpc{Term: 1, Candidate: "b", LastLogIndex: 0, LastLogTerm: 0})
	reply := effects[0].(Reply).Value.(RequestVoteReply)
	assert.False(t, reply.Granted)
}

func TestFollowerAppendEntriesRejectsStaleTerm(t *testing.T) {
	log := newFakeLog()
	n := initNode(t, "a", threeNodeCluster(), log)
	n.Step(RequestVoteRpc{Term: 5, Candidate: "b", LastLogIndex: 0, LastLogTerm: 0})

	effects := n.Step(AppendEntriesRpc{Term: 1, LeaderId: "c"})
	reply := effects[0].(Reply).Value.(AppendEntriesReply)
	assert.False(t, reply.Success)
	assert.Equal(t, Term(5), reply.Term)
}

func TestFollowerAppendEntriesAcceptsAndRepliesAfterWritten(t *testing.T) {
	n := initNode(t, "a", threeNodeCluster(), newFakeLog())

	entry := LogEntry{Index: 1, Term: 1, Command: Command{Kind: CommandUser, Payload: "x"}}
	effects := n.Step(AppendEntriesRpc{Term: 1, LeaderId: "b", PrevLogIndex: 0, PrevLogTerm: 0, Entries: []LogEntry{entry}})
	assert.Empty(t, effects, "reply deferred until Written arrives")

	effects = n.Step(Written{FromIndex: 1, ToIndex: 1, Term: 1})
	require.NotEmpty(t, effects)

	var sawSuccess bool
	for _, e := range effects {
		if r, ok := e.(Reply); ok {
			if ack, ok := r.Value.(AppendEntriesReply); ok && ack.Success {
				sawSuccess = true
				assert.Equal(t, Index(2), ack.NextIndex)
			}
		}
	}
	assert.True(t, sawSuccess)
}

func TestFollowerEntersAwaitConditionOnLogGap(t *testing.T) {
	n := initNode(t, "a", threeNodeCluster(), newFakeLog())

	effects := n.Step(AppendEntriesRpc{Term: 1, LeaderId: "b", PrevLogIndex: 5, PrevLogTerm: 1})
	assert.Equal(t, RoleAwaitCondition, n.Role())

	require.Len(t, effects, 1)
	reply := effects[0].(Reply).Value.(AppendEntriesReply)
	assert.False(t, reply.Success)
}

func TestAwaitConditionExitsOnMatchingAppendEntries(t *testing.T) {
	n := initNode(t, "a", threeNodeCluster(), newFakeLog())
	n.Step(AppendEntriesRpc{Term: 1, LeaderId: "b", PrevLogIndex: 5, PrevLogTerm: 1})
	require.Equal(t, RoleAwaitCondition, n.Role())

	n.Step(AppendEntriesRpc{Term: 1, LeaderId: "b", PrevLogIndex: 0, PrevLogTerm: 0})
	assert.Equal(t, RoleFollower, n.Role())
}

func TestAwaitConditionTimeoutRevertsToFollower(t *testing.T) {
	n := initNode(t, "a", threeNodeCluster(), newFakeLog())
	n.Step(AppendEntriesRpc{Term: 1, LeaderId: "b", PrevLogIndex: 5, PrevLogTerm: 1})
	require.Equal(t, RoleAwaitCondition, n.Role())

	n.Step(AwaitConditionTimeout{})
	assert.Equal(t, RoleFollower, n.Role())
}

func TestAwaitConditionElectionTimeoutStartsCandidacy(t *testing.T) {
	n := initNode(t, "a", threeNodeCluster(), newFakeLog())
	n.Step(AppendEntriesRpc{Term: 1, LeaderId: "b", PrevLogIndex: 5, PrevLogTerm: 1})
	require.Equal(t, RoleAwaitCondition, n.Role())

	n.Step(ElectionTimeout{})
	assert.Equal(t, RoleCandidate, n.Role())
}

func TestFollowerWalDownEntersAwaitCondition(t *testing.T) {
	n := initNode(t, "a", threeNodeCluster(), newFakeLog())
	n.Step(WalDownMsg{})
	assert.Equal(t, RoleAwaitCondition, n.Role())
}

func TestStopRoleIgnoresAllMessages(t *testing.T) {
	n := initNode(t, "a", threeNodeCluster(), newFakeLog())
	n.role = RoleStop
	effects := n.Step(ElectionTimeout{})
	assert.Nil(t, effects)
}
