package raft

import "sort"

// fakeLog is a pure in-memory Log used by node_test.go and leader_test.go's
// unit tests, so role-handler behaviour can be exercised without
// pkg/wal/pkg/raftlog. Append/TruncateAppend apply synchronously, so
// LastWritten tracks LastIndexTerm until a test feeds a separate Written
// message through Node.Step to model a pending fsync being confirmed later.
type fakeLog struct {
	entries     map[Index]LogEntry
	lastIndexTerm IndexTerm
	lastWritten IndexTerm
	snapshot    Snapshot
	hasSnapshot bool
	meta        Meta
	down        bool
}

func newFakeLog() *fakeLog {
	return &fakeLog{entries: map[Index]LogEntry{}}
}

func (l *fakeLog) Append(entries []LogEntry) error {
	if l.down {
		return ErrWalDown
	}
	for _, e := range entries {
		l.entries[e.Index] = e
		if e.Index >= l.lastIndexTerm.Index {
			l.lastIndexTerm = IndexTerm{Index: e.Index, Term: e.Term}
		}
	}
	l.lastWritten = l.lastIndexTerm
	return nil
}

func (l *fakeLog) TruncateAppend(entries []LogEntry) error {
	if l.down {
		return ErrWalDown
	}
	if len(entries) == 0 {
		return nil
	}
	from := entries[0].Index
	for idx := range l.entries {
		if idx >= from {
			delete(l.entries, idx)
		}
	}
	return l.Append(entries)
}

func (l *fakeLog) Take(from, to Index) ([]LogEntry, error) {
	var out []LogEntry
	for idx, e := range l.entries {
		if idx >= from && idx <= to {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (l *fakeLog) FetchTerm(idx Index) (Term, bool) {
	if idx == 0 {
		return 0, true
	}
	if idx == l.snapshot.Index && l.hasSnapshot {
		return l.snapshot.Term, true
	}
	if e, ok := l.entries[idx]; ok {
		return e.Term, true
	}
	return 0, false
}

func (l *fakeLog) LastIndexTerm() IndexTerm { return l.lastIndexTerm }
func (l *fakeLog) LastWritten() IndexTerm   { return l.lastWritten }
func (l *fakeLog) NextIndex() Index         { return l.lastIndexTerm.Index + 1 }

func (l *fakeLog) Exists(idx Index, term Term) LookupResult {
	if idx == l.snapshot.Index && l.hasSnapshot {
		if term == l.snapshot.Term {
			return LookupMatch
		}
		return LookupTermMismatch
	}
	e, ok := l.entries[idx]
	if !ok {
		return LookupMissing
	}
	if e.Term == term {
		return LookupMatch
	}
	return LookupTermMismatch
}

func (l *fakeLog) WriteSnapshot(snap Snapshot) error {
	l.snapshot = snap
	l.hasSnapshot = true
	for idx := range l.entries {
		if idx <= snap.Index {
			delete(l.entries, idx)
		}
	}
	return nil
}

func (l *fakeLog) ReadSnapshot() (Snapshot, bool) { return l.snapshot, l.hasSnapshot }

func (l *fakeLog) SnapshotIndexTerm() IndexTerm {
	if !l.hasSnapshot {
		return IndexTerm{}
	}
	return IndexTerm{Index: l.snapshot.Index, Term: l.snapshot.Term}
}

func (l *fakeLog) UpdateReleaseCursor(idx Index, machineState any) {}

func (l *fakeLog) HandleWritten(evt Written) {
	if evt.ToIndex > l.lastWritten.Index {
		l.lastWritten = IndexTerm{Index: evt.ToIndex, Term: evt.Term}
	}
}

func (l *fakeLog) WriteMeta(meta Meta) error { l.meta = meta; return nil }
func (l *fakeLog) ReadMeta() (Meta, error)   { return l.meta, nil }
func (l *fakeLog) SyncMeta() error           { return nil }
func (l *fakeLog) Close() error              { return nil }
