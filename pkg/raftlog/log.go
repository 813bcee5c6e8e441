// Package raftlog implements raft.Log by combining the process-wide WAL
// sink (pkg/wal), the per-writer mem-table registry it maintains
// (pkg/memtable), and a per-node metadata/snapshot store (pkg/store).
package raftlog

import (
	"fmt"
	"sync"

	"github.com/cuemby/raftcore/pkg/memtable"
	"github.com/cuemby/raftcore/pkg/raft"
	"github.com/cuemby/raftcore/pkg/store"
	"github.com/cuemby/raftcore/pkg/wal"
)

// Log is the raft.Log implementation for one node. Multiple Logs — one
// per local node — share a single *wal.Sink, matching spec.md §4.1's
// "single process-wide sink ... serving many local nodes".
type Log struct {
	writerID string
	sink     *wal.Sink
	registry *memtable.Registry
	store    *store.Store

	mu                sync.Mutex
	lastIndexTerm     raft.IndexTerm
	lastWritten       raft.IndexTerm
	snapshotIndexTerm raft.IndexTerm
	releaseCursor      raft.IndexTerm
	releaseCursorState any
}

// Open constructs the Log for writerID, deriving its initial bookkeeping
// from whatever the shared sink already recovered plus the node's own
// persisted snapshot.
func Open(writerID string, sink *wal.Sink, st *store.Store) (*Log, error) {
	l := &Log{
		writerID: writerID,
		sink:     sink,
		registry: sink.Registry(),
		store:    st,
	}

	snap, ok, err := st.ReadSnapshot()
	if err != nil {
		return nil, fmt.Errorf("raftlog: read snapshot: %w", err)
	}
	if ok {
		l.snapshotIndexTerm = raft.IndexTerm{Index: snap.Index, Term: snap.Term}
		l.lastIndexTerm = l.snapshotIndexTerm
		l.lastWritten = l.snapshotIndexTerm
	}

	if last, ok := l.registry.Last(writerID); ok && raft.Index(last.Idx) > l.lastIndexTerm.Index {
		l.lastIndexTerm = raft.IndexTerm{Index: raft.Index(last.Idx), Term: raft.Term(last.Term)}
		l.lastWritten = l.lastIndexTerm
	}

	return l, nil
}

// Append implements raft.Log.
func (l *Log) Append(entries []raft.LogEntry) error {
	for _, e := range entries {
		data, err := encodeCommand(e.Command)
		if err != nil {
			return err
		}
		if err := l.sink.Append(l.writerID, uint64(e.Index), uint64(e.Term), data); err != nil {
			return translateErr(err)
		}
		l.bumpLastIndexTerm(e)
	}
	return nil
}

// TruncateAppend implements raft.Log: the first entry is written as a
// truncating record (discarding anything at or after its index for this
// writer), the rest append normally.
func (l *Log) TruncateAppend(entries []raft.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	first := entries[0]
	data, err := encodeCommand(first.Command)
	if err != nil {
		return err
	}
	if err := l.sink.TruncateWrite(l.writerID, uint64(first.Index), uint64(first.Term), data); err != nil {
		return translateErr(err)
	}
	l.bumpLastIndexTerm(first)
	return l.Append(entries[1:])
}

func (l *Log) bumpLastIndexTerm(e raft.LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.Index >= l.lastIndexTerm.Index {
		l.lastIndexTerm = raft.IndexTerm{Index: e.Index, Term: e.Term}
	}
}

func translateErr(err error) error {
	if err == wal.ErrDown {
		return raft.ErrWalDown
	}
	return err
}

// Take implements raft.Log.
func (l *Log) Take(from, to raft.Index) ([]raft.LogEntry, error) {
	if from > to {
		return nil, nil
	}
	records := l.registry.Range(l.writerID, uint64(from), uint64(to))
	entries := make([]raft.LogEntry, 0, len(records))
	for _, rec := range records {
		cmd, err := decodeCommand(rec.Entry)
		if err != nil {
			return nil, err
		}
		entries = append(entries, raft.LogEntry{Index: raft.Index(rec.Idx), Term: raft.Term(rec.Term), Command: cmd})
	}
	return entries, nil
}

// FetchTerm implements raft.Log.
func (l *Log) FetchTerm(idx raft.Index) (raft.Term, bool) {
	if idx == 0 {
		return 0, true
	}
	l.mu.Lock()
	snap := l.snapshotIndexTerm
	l.mu.Unlock()
	if idx == snap.Index {
		return snap.Term, true
	}
	if rec, ok := l.registry.Lookup(l.writerID, uint64(idx)); ok {
		return raft.Term(rec.Term), true
	}
	return 0, false
}

// LastIndexTerm implements raft.Log: the highest index/term handed to
// Append/TruncateAppend, whether or not it has been fsynced yet.
func (l *Log) LastIndexTerm() raft.IndexTerm {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastIndexTerm
}

// LastWritten implements raft.Log: the highest index/term confirmed
// fsynced via a Written notification.
func (l *Log) LastWritten() raft.IndexTerm {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastWritten
}

// NextIndex implements raft.Log.
func (l *Log) NextIndex() raft.Index {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastIndexTerm.Index + 1
}

// Exists implements raft.Log.
func (l *Log) Exists(idx raft.Index, term raft.Term) raft.LookupResult {
	l.mu.Lock()
	last := l.lastIndexTerm
	snap := l.snapshotIndexTerm
	l.mu.Unlock()

	if idx > last.Index {
		return raft.LookupMissing
	}
	if rec, ok := l.registry.Lookup(l.writerID, uint64(idx)); ok {
		if raft.Term(rec.Term) == term {
			return raft.LookupMatch
		}
		return raft.LookupTermMismatch
	}
	if idx <= snap.Index {
		// Compacted below the snapshot: assume it matches, since the
		// original record is gone and the snapshot already subsumes it.
		return raft.LookupMatch
	}
	return raft.LookupMissing
}

// WriteSnapshot implements raft.Log: persists durably, then compacts the
// mem-table registry of everything the snapshot now subsumes.
func (l *Log) WriteSnapshot(snap raft.Snapshot) error {
	if err := l.store.WriteSnapshot(snap); err != nil {
		return err
	}
	l.mu.Lock()
	l.snapshotIndexTerm = raft.IndexTerm{Index: snap.Index, Term: snap.Term}
	if snap.Index > l.lastIndexTerm.Index {
		l.lastIndexTerm = l.snapshotIndexTerm
	}
	if snap.Index > l.lastWritten.Index {
		l.lastWritten = l.snapshotIndexTerm
	}
	l.mu.Unlock()

	l.registry.CompactBelow(uint64(snap.Index))
	return nil
}

// ReadSnapshot implements raft.Log.
func (l *Log) ReadSnapshot() (raft.Snapshot, bool) {
	snap, ok, err := l.store.ReadSnapshot()
	if err != nil {
		panic("raftlog: fatal: read snapshot: " + err.Error())
	}
	return snap, ok
}

// SnapshotIndexTerm implements raft.Log.
func (l *Log) SnapshotIndexTerm() raft.IndexTerm {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotIndexTerm
}

// UpdateReleaseCursor implements raft.Log: records the latest point at
// which it would be safe to snapshot, along with the machine state as of
// that index, without itself discarding any data. A higher-level policy
// (pkg/driver) decides when to actually call WriteSnapshot from this
// cursor, at which point it needs exactly this state to build the
// snapshot payload.
func (l *Log) UpdateReleaseCursor(idx raft.Index, machineState any) {
	term, ok := l.FetchTerm(idx)
	if !ok {
		return
	}
	l.mu.Lock()
	l.releaseCursor = raft.IndexTerm{Index: idx, Term: term}
	l.releaseCursorState = machineState
	l.mu.Unlock()
}

// ReleaseCursor returns the most recent safe-snapshot point recorded by
// UpdateReleaseCursor.
func (l *Log) ReleaseCursor() raft.IndexTerm {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releaseCursor
}

// ReleaseCursorState returns the machine state captured alongside the
// current ReleaseCursor, for a snapshot policy to act on.
func (l *Log) ReleaseCursorState() any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releaseCursorState
}

// HandleWritten implements raft.Log.
func (l *Log) HandleWritten(evt raft.Written) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if evt.ToIndex > l.lastWritten.Index {
		l.lastWritten = raft.IndexTerm{Index: evt.ToIndex, Term: evt.Term}
	}
}

// WriteMeta implements raft.Log.
func (l *Log) WriteMeta(meta raft.Meta) error { return l.store.WriteMeta(meta) }

// ReadMeta implements raft.Log.
func (l *Log) ReadMeta() (raft.Meta, error) { return l.store.ReadMeta() }

// SyncMeta implements raft.Log.
func (l *Log) SyncMeta() error { return l.store.SyncMeta() }

// Close implements raft.Log. The shared *wal.Sink outlives any one Log
// and is closed separately by whoever opened it.
func (l *Log) Close() error { return l.store.Close() }
