package rpcpeer

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/raftcore/pkg/driver"
	"github.com/cuemby/raftcore/pkg/raft"
)

// fakeLog is a minimal synchronous raft.Log, local to this package's
// tests so they don't reach into pkg/raft's unexported test fixtures.
type fakeLog struct {
	entries map[raft.Index]raft.LogEntry
	last    raft.IndexTerm
	meta    raft.Meta
}

func newFakeLog() *fakeLog { return &fakeLog{entries: map[raft.Index]raft.LogEntry{}} }

func (l *fakeLog) Append(entries []raft.LogEntry) error {
	for _, e := range entries {
		l.entries[e.Index] = e
		if e.Index >= l.last.Index {
			l.last = raft.IndexTerm{Index: e.Index, Term: e.Term}
		}
	}
	return nil
}
func (l *fakeLog) TruncateAppend(entries []raft.LogEntry) error { return l.Append(entries) }
func (l *fakeLog) Take(from, to raft.Index) ([]raft.LogEntry, error) {
	var out []raft.LogEntry
	for idx, e := range l.entries {
		if idx >= from && idx <= to {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}
func (l *fakeLog) FetchTerm(idx raft.Index) (raft.Term, bool) {
	if idx == 0 {
		return 0, true
	}
	if e, ok := l.entries[idx]; ok {
		return e.Term, true
	}
	return 0, false
}
func (l *fakeLog) LastIndexTerm() raft.IndexTerm { return l.last }
func (l *fakeLog) LastWritten() raft.IndexTerm   { return l.last }
func (l *fakeLog) NextIndex() raft.Index         { return l.last.Index + 1 }
func (l *fakeLog) Exists(idx raft.Index, term raft.Term) raft.LookupResult {
	e, ok := l.entries[idx]
	if !ok {
		return raft.LookupMissing
	}
	if e.Term == term {
		return raft.LookupMatch
	}
	return raft.LookupTermMismatch
}
func (l *fakeLog) WriteSnapshot(raft.Snapshot) error   { return nil }
func (l *fakeLog) ReadSnapshot() (raft.Snapshot, bool) { return raft.Snapshot{}, false }
func (l *fakeLog) SnapshotIndexTerm() raft.IndexTerm   { return raft.IndexTerm{} }
func (l *fakeLog) UpdateReleaseCursor(raft.Index, any) {}
func (l *fakeLog) HandleWritten(raft.Written)          {}
func (l *fakeLog) WriteMeta(meta raft.Meta) error      { l.meta = meta; return nil }
func (l *fakeLog) ReadMeta() (raft.Meta, error)        { return l.meta, nil }
func (l *fakeLog) SyncMeta() error                     { return nil }
func (l *fakeLog) Close() error                        { return nil }

type fakeTimer struct{ ch chan time.Time }

func newFakeTimer() *fakeTimer           { return &fakeTimer{ch: make(chan time.Time, 1)} }
func (f *fakeTimer) Reset(time.Duration) {}
func (f *fakeTimer) Stop()               {}
func (f *fakeTimer) C() <-chan time.Time { return f.ch }
func (f *fakeTimer) fire()               { f.ch <- time.Now() }

// noopTransport discards every outbound peer RPC; the solo-leader fixture
// below has no peers to reach.
type noopTransport struct{}

func (noopTransport) SendAppendEntries(raft.NodeId, raft.NodeId, raft.AppendEntriesRpc)         {}
func (noopTransport) SendRequestVote(raft.NodeId, raft.NodeId, raft.RequestVoteRpc)             {}
func (noopTransport) SendInstallSnapshot(raft.NodeId, raft.NodeId, raft.InstallSnapshotRpc)     {}
func (noopTransport) Deliver(raft.NodeId, any)                                                 {}

// soloLeader boots a one-node Driver over a real rpcpeer.Server, returning
// the server's bound address once the node has elected itself leader.
func soloLeader(t *testing.T) string {
	t.Helper()
	log := newFakeLog()
	node, err := raft.Init(raft.Config{
		ID:      "solo",
		Cluster: raft.Cluster{"solo": raft.PeerState{}},
		Log:     log,
		ApplyFn: func(idx raft.Index, cmd raft.Command, state any) raft.ApplyResult {
			return raft.ApplyResult{NewState: cmd.Payload}
		},
	})
	require.NoError(t, err)

	electionTimer := newFakeTimer()
	drv := driver.New(driver.Config{
		Node:          node,
		Transport:     noopTransport{},
		Logger:        zerolog.Nop(),
		ElectionTimer: electionTimer,
		AwaitTimer:    newFakeTimer(),
		BroadcastTime: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go drv.Run(ctx)

	srv, err := NewServer(drv, "127.0.0.1:0", zerolog.Nop())
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	t.Cleanup(srv.Stop)

	electionTimer.fire()
	require.Eventually(t, func() bool { return node.Role() == raft.RoleLeader }, time.Second, time.Millisecond)

	return srv.Addr().String()
}

func TestClientProposeAfterLogAppendOverRealGRPC(t *testing.T) {
	addr := soloLeader(t)

	client, err := Dial(addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	result, err := client.Propose(ctx, "hello", raft.ReplyAfterLogAppend)
	require.NoError(t, err)
	assert.Greater(t, result.Index, raft.Index(0))
}
