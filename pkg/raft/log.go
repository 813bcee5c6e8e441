package raft

// LookupResult classifies how a (index, term) coordinate compares against
// what a Log actually holds, used for AppendEntries' prev_idx/prev_term
// check (spec.md §4.2).
type LookupResult int

const (
	// LookupMatch: the log holds an entry at Index with exactly Term.
	LookupMatch LookupResult = iota
	// LookupTermMismatch: an entry exists at Index but with a different term.
	LookupTermMismatch
	// LookupMissing: no entry exists at Index yet.
	LookupMissing
)

// Meta is the small amount of state spec.md §3 requires fsynced
// independently of the bulk log: current_term and voted_for.
type Meta struct {
	CurrentTerm Term
	VotedFor    *NodeId
}

// Snapshot bundles what InstallSnapshot/write_snapshot persists: the log
// coordinate the snapshot covers, the cluster as of that point, and the
// opaque user state machine state.
type Snapshot struct {
	Index        Index
	Term         Term
	Cluster      Cluster
	MachineState any
}

// Log is the per-node capability a NodeState is built on (spec.md §9,
// "Polymorphic log backend"). It is satisfied by pkg/raftlog, which backs
// it with pkg/wal + pkg/memtable + pkg/store, and may equally be satisfied
// by a pure in-memory implementation for tests.
type Log interface {
	// Append enqueues entries for durable, batched write. It does not
	// block for the fsync; completion is observed later via a Written
	// event reaching the node's mailbox. Returns ErrWalDown if the
	// underlying sink is unavailable.
	Append(entries []LogEntry) error

	// TruncateAppend behaves like Append but marks the write as
	// superseding any existing entries at or after the first entry's
	// index for this node (used to heal a diverged follower log).
	TruncateAppend(entries []LogEntry) error

	// Take returns entries in the inclusive range [from, to].
	Take(from, to Index) ([]LogEntry, error)

	// FetchTerm returns the term stored at idx, or ok=false if no entry
	// exists there. idx 0, the position before the log, reports term 0
	// with ok=true.
	FetchTerm(idx Index) (term Term, ok bool)

	// LastIndexTerm returns the coordinate of the newest entry accepted
	// into the log, whether or not it has been durably written yet.
	LastIndexTerm() IndexTerm

	// LastWritten returns the coordinate of the newest entry known to be
	// durably fsynced.
	LastWritten() IndexTerm

	// NextIndex returns the index that would be assigned to the next
	// appended entry.
	NextIndex() Index

	// Exists reports how (idx, term) compares to what is actually stored.
	Exists(idx Index, term Term) LookupResult

	// WriteSnapshot durably installs a snapshot, superseding all log
	// entries at or below its index.
	WriteSnapshot(snap Snapshot) error

	// ReadSnapshot returns the most recently installed snapshot, if any.
	ReadSnapshot() (Snapshot, bool)

	// SnapshotIndexTerm returns the coordinate of the installed snapshot,
	// or the zero value if none has been installed.
	SnapshotIndexTerm() IndexTerm

	// UpdateReleaseCursor records a hint that entries at or below idx may
	// be compacted once machineState has been durably captured.
	UpdateReleaseCursor(idx Index, machineState any)

	// HandleWritten folds a Written notification from the WAL into the
	// log's last-written bookkeeping.
	HandleWritten(evt Written)

	// WriteMeta durably persists current_term/voted_for (fsynced
	// independently of log entries).
	WriteMeta(meta Meta) error

	// ReadMeta loads the persisted current_term/voted_for.
	ReadMeta() (Meta, error)

	// SyncMeta forces a synchronous fsync of the metadata store.
	SyncMeta() error

	// Close releases the log's resources.
	Close() error
}
