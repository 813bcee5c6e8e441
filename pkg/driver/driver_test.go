package driver

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/raftcore/pkg/raft"
	"github.com/cuemby/raftcore/pkg/wal"
)

// fakeLog is a minimal synchronous raft.Log: Append/TruncateAppend commit
// immediately, so LastWritten always matches LastIndexTerm. Durability
// notification is still driven explicitly through the Driver's WalNotify
// channel, exercising the same fold-back path a real wal.Sink would.
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

func (l *fakeLog) WriteSnapshot(raft.Snapshot) error           { return nil }
func (l *fakeLog) ReadSnapshot() (raft.Snapshot, bool)         { return raft.Snapshot{}, false }
func (l *fakeLog) SnapshotIndexTerm() raft.IndexTerm           { return raft.IndexTerm{} }
func (l *fakeLog) UpdateReleaseCursor(raft.Index, any)         {}
func (l *fakeLog) HandleWritten(evt raft.Written)              {}
func (l *fakeLog) WriteMeta(meta raft.Meta) error              { l.meta = meta; return nil }
func (l *fakeLog) ReadMeta() (raft.Meta, error)                { return l.meta, nil }
func (l *fakeLog) SyncMeta() error                             { return nil }
func (l *fakeLog) Close() error                                { return nil }

// fakeTimer is a Timer a test can fire on demand instead of waiting on a
// real time.Timer.
type fakeTimer struct {
	ch chan time.Time
}

func newFakeTimer() *fakeTimer            { return &fakeTimer{ch: make(chan time.Time, 1)} }
func (f *fakeTimer) Reset(time.Duration)  {}
func (f *fakeTimer) Stop()                {}
func (f *fakeTimer) C() <-chan time.Time  { return f.ch }
func (f *fakeTimer) fire()                { f.ch <- time.Now() }

type fakeTransport struct {
	mu        chan struct{}
	delivered []any
}

func newFakeTransport() *fakeTransport { return &fakeTransport{mu: make(chan struct{}, 1)} }

func (f *fakeTransport) SendAppendEntries(raft.NodeId, raft.NodeId, raft.AppendEntriesRpc) {}
func (f *fakeTransport) SendRequestVote(raft.NodeId, raft.NodeId, raft.RequestVoteRpc)     {}
func (f *fakeTransport) SendInstallSnapshot(raft.NodeId, raft.NodeId, raft.InstallSnapshotRpc) {
}
func (f *fakeTransport) Deliver(to raft.NodeId, payload any) {
	f.delivered = append(f.delivered, payload)
}

func newSoloDriver(t *testing.T) (*Driver, *fakeTimer, <-chan struct{}) {
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
	walNotify := make(chan wal.Notification, 16)

	d := New(Config{
		Node:          node,
		Transport:     newFakeTransport(),
		WalNotify:     walNotify,
		Logger:        zerolog.Nop(),
		ElectionTimer: electionTimer,
		AwaitTimer:    newFakeTimer(),
		BroadcastTime: time.Millisecond,
	})

	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		d.Run(ctx)
		close(done)
	}()
	t.Cleanup(cancel)

	return d, electionTimer, done
}

func TestDriverElectsSingleNodeLeaderOnTimeout(t *testing.T) {
	d, electionTimer, _ := newSoloDriver(t)
	electionTimer.fire()

	require.Eventually(t, func() bool {
		return d.node.Role() == raft.RoleLeader
	}, time.Second, time.Millisecond)
}

func TestDriverProposeAfterLogAppendReturnsPosition(t *testing.T) {
	d, electionTimer, _ := newSoloDriver(t)
	electionTimer.fire()
	require.Eventually(t, func() bool { return d.node.Role() == raft.RoleLeader }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := d.Propose(ctx, "hello", raft.ReplyAfterLogAppend)
	require.NoError(t, err)
	pos, ok := result.(raft.IndexTerm)
	require.True(t, ok)
	assert.Greater(t, pos.Index, raft.Index(0))
}

func TestDriverProposeAwaitConsensusUnblocksOnWalWritten(t *testing.T) {
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
	walNotify := make(chan wal.Notification, 16)
	d := New(Config{
		Node:          node,
		Transport:     newFakeTransport(),
		WalNotify:     walNotify,
		Logger:        zerolog.Nop(),
		ElectionTimer: electionTimer,
		AwaitTimer:    newFakeTimer(),
		BroadcastTime: time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	electionTimer.fire()
	require.Eventually(t, func() bool { return node.Role() == raft.RoleLeader }, time.Second, time.Millisecond)

	proposeCtx, proposeCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer proposeCancel()

	resultCh := make(chan any, 1)
	errCh := make(chan error, 1)
	go func() {
		v, err := d.Propose(proposeCtx, "x", raft.ReplyAwaitConsensus)
		resultCh <- v
		errCh <- err
	}()

	// The leader's own noop is still uncommitted at index 1, so wait for
	// the proposal itself to become the newest entry.
	var idx raft.Index
	require.Eventually(t, func() bool {
		idx = log.last.Index
		e, ok := log.entries[idx]
		return ok && e.Command.Kind == raft.CommandUser
	}, time.Second, time.Millisecond)

	term, _ := log.FetchTerm(idx)
	walNotify <- wal.Written{Writer: "solo", FromIdx: uint64(idx), ToIdx: uint64(idx), Term: uint64(term)}

	select {
	case v := <-resultCh:
		ack, ok := v.(raft.AppliedAck)
		require.True(t, ok)
		assert.Equal(t, idx, ack.Index)
		require.NoError(t, <-errCh)
	case <-time.After(2 * time.Second):
		t.Fatal("propose did not unblock after wal written notification")
	}
}

func TestDriverIgnoresWalNotificationForOtherWriter(t *testing.T) {
	d, electionTimer, _ := newSoloDriver(t)
	electionTimer.fire()
	require.Eventually(t, func() bool { return d.node.Role() == raft.RoleLeader }, time.Second, time.Millisecond)

	// A notification addressed to a different writer must not be folded
	// into this node's stream; Role should remain leader and unaffected.
	d.handleWalNotification(wal.Written{Writer: "someone-else", FromIdx: 1, ToIdx: 1, Term: 1})
	assert.Equal(t, raft.RoleLeader, d.node.Role())
}
