package raftlog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/raftcore/pkg/raft"
	"github.com/cuemby/raftcore/pkg/store"
	"github.com/cuemby/raftcore/pkg/wal"
)

type harness struct {
	sink *wal.Sink
	st   *store.Store
	log  *Log
}

func newHarness(t *testing.T, writerID string) *harness {
	t.Helper()
	dir := t.TempDir()

	sink, err := wal.Open(wal.Options{Dir: dir})
	require.NoError(t, err)
	go sink.Run()
	t.Cleanup(func() { _ = sink.Close() })

	st, err := store.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	l, err := Open(writerID, sink, st)
	require.NoError(t, err)

	return &harness{sink: sink, st: st, log: l}
}

// waitWritten drains and discards the sink's notification channel until
// the log has observed the given index durably appended. Polling the log
// itself rather than counting notifications avoids assuming any
// particular batching of concurrent Append calls.
func waitWritten(t *testing.T, h *harness, writerID string, idx raft.Index) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-h.sink.Notifications():
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatal("timed out waiting for wal notification")
		}
		if entries, err := h.log.Take(idx, idx); err == nil && len(entries) == 1 {
			return
		}
	}
}

func userEntry(idx raft.Index, term raft.Term, value string) raft.LogEntry {
	return raft.LogEntry{
		Index: idx,
		Term:  term,
		Command: raft.Command{
			Kind:    raft.CommandUser,
			Payload: value,
		},
	}
}

func TestAppendAndTake(t *testing.T) {
	h := newHarness(t, "node-a")

	require.NoError(t, h.log.Append([]raft.LogEntry{userEntry(1, 1, "a"), userEntry(2, 1, "b")}))
	waitWritten(t, h, "node-a", 2)

	entries, err := h.log.Take(1, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a", entries[0].Command.Payload)
	assert.Equal(t, "b", entries[1].Command.Payload)
}

func TestLastIndexTermUpdatesBeforeFsyncConfirmed(t *testing.T) {
	h := newHarness(t, "node-a")

	require.NoError(t, h.log.Append([]raft.LogEntry{userEntry(1, 3, "a")}))

	assert.Equal(t, raft.Index(1), h.log.LastIndexTerm().Index)
	assert.Equal(t, raft.Term(3), h.log.LastIndexTerm().Term)
}

func TestFetchTerm(t *testing.T) {
	h := newHarness(t, "node-a")

	term, ok := h.log.FetchTerm(0)
	assert.True(t, ok)
	assert.Equal(t, raft.Term(0), term)

	require.NoError(t, h.log.Append([]raft.LogEntry{userEntry(1, 5, "a")}))
	waitWritten(t, h, "node-a", 1)

	term, ok = h.log.FetchTerm(1)
	assert.True(t, ok)
	assert.Equal(t, raft.Term(5), term)

	_, ok = h.log.FetchTerm(99)
	assert.False(t, ok)
}

func TestExistsMatchesMismatchAndMissing(t *testing.T) {
	h := newHarness(t, "node-a")

	require.NoError(t, h.log.Append([]raft.LogEntry{userEntry(1, 1, "a")}))
	waitWritten(t, h, "node-a", 1)

	assert.Equal(t, raft.LookupMatch, h.log.Exists(1, 1))
	assert.Equal(t, raft.LookupTermMismatch, h.log.Exists(1, 2))
	assert.Equal(t, raft.LookupMissing, h.log.Exists(5, 1))
}

func TestTruncateAppendDiscardsTail(t *testing.T) {
	h := newHarness(t, "node-a")

	require.NoError(t, h.log.Append([]raft.LogEntry{userEntry(1, 1, "a"), userEntry(2, 1, "b")}))
	waitWritten(t, h, "node-a", 2)

	require.NoError(t, h.log.TruncateAppend([]raft.LogEntry{userEntry(2, 2, "b-replaced")}))
	require.Eventually(t, func() bool {
		term, ok := h.log.FetchTerm(2)
		return ok && term == 2
	}, 2*time.Second, 10*time.Millisecond)

	entries, err := h.log.Take(1, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "b-replaced", entries[1].Command.Payload)
}

func TestWriteSnapshotCompactsBelowIndex(t *testing.T) {
	h := newHarness(t, "node-a")

	require.NoError(t, h.log.Append([]raft.LogEntry{userEntry(1, 1, "a"), userEntry(2, 1, "b")}))
	waitWritten(t, h, "node-a", 2)

	require.NoError(t, h.log.WriteSnapshot(raft.Snapshot{Index: 2, Term: 1, MachineState: "state-at-2"}))

	assert.Equal(t, raft.LookupMatch, h.log.Exists(1, 1))
	assert.Equal(t, raft.Index(2), h.log.SnapshotIndexTerm().Index)

	snap, ok := h.log.ReadSnapshot()
	require.True(t, ok)
	assert.Equal(t, "state-at-2", snap.MachineState)
}

func TestUpdateReleaseCursorRecordsWithoutCompacting(t *testing.T) {
	h := newHarness(t, "node-a")

	require.NoError(t, h.log.Append([]raft.LogEntry{userEntry(1, 1, "a")}))
	waitWritten(t, h, "node-a", 1)

	h.log.UpdateReleaseCursor(1, "some-state")
	assert.Equal(t, raft.Index(1), h.log.ReleaseCursor().Index)
	assert.Equal(t, "some-state", h.log.ReleaseCursorState())

	entries, err := h.log.Take(1, 1)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestUpdateReleaseCursorOverwritesPriorState(t *testing.T) {
	h := newHarness(t, "node-a")

	require.NoError(t, h.log.Append([]raft.LogEntry{userEntry(1, 1, "a"), userEntry(2, 1, "b")}))
	waitWritten(t, h, "node-a", 2)

	h.log.UpdateReleaseCursor(1, "state-at-1")
	h.log.UpdateReleaseCursor(2, "state-at-2")

	assert.Equal(t, raft.Index(2), h.log.ReleaseCursor().Index)
	assert.Equal(t, "state-at-2", h.log.ReleaseCursorState())
}

func TestWriteReadMeta(t *testing.T) {
	h := newHarness(t, "node-a")

	require.NoError(t, h.log.WriteMeta(raft.Meta{CurrentTerm: 9}))
	meta, err := h.log.ReadMeta()
	require.NoError(t, err)
	assert.Equal(t, raft.Term(9), meta.CurrentTerm)
}

func TestOpenRecoversFromExistingWalAndStore(t *testing.T) {
	dir := t.TempDir()

	sink1, err := wal.Open(wal.Options{Dir: dir})
	require.NoError(t, err)
	go sink1.Run()

	st1, err := store.Open(dir)
	require.NoError(t, err)

	log1, err := Open("node-a", sink1, st1)
	require.NoError(t, err)
	require.NoError(t, log1.Append([]raft.LogEntry{userEntry(1, 1, "persisted")}))

	select {
	case <-sink1.Notifications():
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for wal notification")
	}

	require.NoError(t, sink1.Close())
	require.NoError(t, st1.Close())

	sink2, err := wal.Open(wal.Options{Dir: dir})
	require.NoError(t, err)
	go sink2.Run()
	t.Cleanup(func() { _ = sink2.Close() })

	st2, err := store.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st2.Close() })

	log2, err := Open("node-a", sink2, st2)
	require.NoError(t, err)

	assert.Equal(t, raft.Index(1), log2.LastIndexTerm().Index)
	entries, err := log2.Take(1, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "persisted", entries[0].Command.Payload)
}
