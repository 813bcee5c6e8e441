// Package store persists the two pieces of state the WAL record stream
// does not itself carry: per-node metadata (current_term, voted_for) and
// the latest snapshot, each fsynced independently of the batched append
// stream (spec.md §3, §4.1). Bucket-per-concern style adapted from the
// teacher's bbolt storage layer.
package store

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/raftcore/pkg/raft"
)

var (
	bucketMeta     = []byte("meta")
	bucketSnapshot = []byte("snapshot")
)

const (
	keyMeta     = "current"
	keySnapshot = "current"
)

// Store is a bbolt-backed implementation of the persisted-state half of
// raft.Log (Meta and Snapshot); pkg/raftlog composes it with pkg/wal and
// pkg/memtable to build the full raft.Log.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the node's metadata/snapshot database
// under dataDir.
func Open(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "raft-meta.db")
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketMeta, bucketSnapshot} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("store: create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// metaRecord is the JSON wire form of raft.Meta: votedFor is a pointer in
// raft.Meta but JSON-encoded as a plain optional string here.
type metaRecord struct {
	CurrentTerm uint64  `json:"current_term"`
	VotedFor    *string `json:"voted_for,omitempty"`
}

// WriteMeta persists current_term/voted_for. The caller (pkg/raft via
// pkg/raftlog) is responsible for calling Sync afterwards where the
// universal term rule requires a synchronous fsync before proceeding.
func (s *Store) WriteMeta(meta raft.Meta) error {
	rec := metaRecord{CurrentTerm: uint64(meta.CurrentTerm)}
	if meta.VotedFor != nil {
		v := string(*meta.VotedFor)
		rec.VotedFor = &v
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal meta: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMeta).Put([]byte(keyMeta), data)
	})
}

// ReadMeta returns the zero value (term 0, no vote) if nothing has been
// persisted yet, matching a brand-new node's initial state.
func (s *Store) ReadMeta() (raft.Meta, error) {
	var rec metaRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketMeta).Get([]byte(keyMeta))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return raft.Meta{}, fmt.Errorf("store: read meta: %w", err)
	}

	meta := raft.Meta{CurrentTerm: raft.Term(rec.CurrentTerm)}
	if rec.VotedFor != nil {
		id := raft.NodeId(*rec.VotedFor)
		meta.VotedFor = &id
	}
	return meta, nil
}

// SyncMeta forces the underlying database file to disk; bbolt already
// fsyncs on every Update transaction, so this is a documented no-op kept
// to satisfy raft.Log's explicit "synchronous fsync" step.
func (s *Store) SyncMeta() error { return nil }

// snapshotRecord is the JSON wire form of raft.Snapshot. Cluster and
// MachineState are opaque to the store; callers are responsible for
// using JSON-serializable types for MachineState.
type snapshotRecord struct {
	Index        uint64       `json:"index"`
	Term         uint64       `json:"term"`
	Cluster      raft.Cluster `json:"cluster"`
	MachineState json.RawMessage `json:"machine_state"`
}

// WriteSnapshot persists snap, replacing any prior snapshot.
func (s *Store) WriteSnapshot(snap raft.Snapshot) error {
	stateBytes, err := json.Marshal(snap.MachineState)
	if err != nil {
		return fmt.Errorf("store: marshal machine state: %w", err)
	}
	rec := snapshotRecord{
		Index:        uint64(snap.Index),
		Term:         uint64(snap.Term),
		Cluster:      snap.Cluster,
		MachineState: stateBytes,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshot).Put([]byte(keySnapshot), data)
	})
}

// ReadSnapshot returns the persisted snapshot, if any.
func (s *Store) ReadSnapshot() (raft.Snapshot, bool, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSnapshot).Get([]byte(keySnapshot))
		if v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return raft.Snapshot{}, false, fmt.Errorf("store: read snapshot: %w", err)
	}
	if data == nil {
		return raft.Snapshot{}, false, nil
	}

	var rec snapshotRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return raft.Snapshot{}, false, fmt.Errorf("store: unmarshal snapshot: %w", err)
	}

	var state any
	if len(rec.MachineState) > 0 {
		if err := json.Unmarshal(rec.MachineState, &state); err != nil {
			return raft.Snapshot{}, false, fmt.Errorf("store: unmarshal machine state: %w", err)
		}
	}

	return raft.Snapshot{
		Index:        raft.Index(rec.Index),
		Term:         raft.Term(rec.Term),
		Cluster:      rec.Cluster,
		MachineState: state,
	}, true, nil
}
