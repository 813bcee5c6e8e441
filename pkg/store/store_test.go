package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/raftcore/pkg/raft"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestReadMetaZeroValueBeforeAnyWrite(t *testing.T) {
	s := openTestStore(t)

	meta, err := s.ReadMeta()
	require.NoError(t, err)
	assert.Equal(t, raft.Term(0), meta.CurrentTerm)
	assert.Nil(t, meta.VotedFor)
}

func TestWriteReadMetaRoundTrip(t *testing.T) {
	s := openTestStore(t)

	voter := raft.NodeId("node-b")
	require.NoError(t, s.WriteMeta(raft.Meta{CurrentTerm: 5, VotedFor: &voter}))

	meta, err := s.ReadMeta()
	require.NoError(t, err)
	assert.Equal(t, raft.Term(5), meta.CurrentTerm)
	require.NotNil(t, meta.VotedFor)
	assert.Equal(t, voter, *meta.VotedFor)
}

func TestWriteMetaOverwritesPriorVote(t *testing.T) {
	s := openTestStore(t)

	first := raft.NodeId("node-a")
	require.NoError(t, s.WriteMeta(raft.Meta{CurrentTerm: 1, VotedFor: &first}))
	require.NoError(t, s.WriteMeta(raft.Meta{CurrentTerm: 2, VotedFor: nil}))

	meta, err := s.ReadMeta()
	require.NoError(t, err)
	assert.Equal(t, raft.Term(2), meta.CurrentTerm)
	assert.Nil(t, meta.VotedFor)
}

func TestReadSnapshotAbsentByDefault(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.ReadSnapshot()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteReadSnapshotRoundTrip(t *testing.T) {
	s := openTestStore(t)

	cluster := raft.Cluster{"node-a": raft.PeerState{}, "node-b": raft.PeerState{}}
	snap := raft.Snapshot{
		Index:        10,
		Term:         3,
		Cluster:      cluster,
		MachineState: map[string]any{"region": "us-east"},
	}
	require.NoError(t, s.WriteSnapshot(snap))

	got, ok, err := s.ReadSnapshot()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, raft.Index(10), got.Index)
	assert.Equal(t, raft.Term(3), got.Term)
	assert.Len(t, got.Cluster, 2)
	assert.Equal(t, "us-east", got.MachineState.(map[string]any)["region"])
}

func TestWriteSnapshotReplacesPrior(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.WriteSnapshot(raft.Snapshot{Index: 1, Term: 1, MachineState: "first"}))
	require.NoError(t, s.WriteSnapshot(raft.Snapshot{Index: 2, Term: 1, MachineState: "second"}))

	got, ok, err := s.ReadSnapshot()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, raft.Index(2), got.Index)
	assert.Equal(t, "second", got.MachineState)
}

func TestSyncMetaIsANoop(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.SyncMeta())
}
