package memtable

import (
	"sort"
	"sync/atomic"
)

// Closed is a promoted (rolled-over) table, tagged with the monotonically
// increasing sequence assigned at promotion time so closed tables for the
// same writer can be ordered.
type Closed struct {
	WriterID string
	Seq      uint64
	Table    *Table
}

// Registry holds the open and closed mem-table sets described in spec.md
// §5: process-wide, read by many lookups, written only by the WAL sink.
// Both sides support atomic bulk swap so a reader never observes a mix of
// stale and fresh rows for one writer across a rollover.
type Registry struct {
	open   atomic.Pointer[map[string]*Table]
	closed atomic.Pointer[[]Closed]
	seq    uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	r := &Registry{}
	empty := map[string]*Table{}
	r.open.Store(&empty)
	emptyClosed := []Closed{}
	r.closed.Store(&emptyClosed)
	return r
}

// OpenTable returns the live table for writerID, creating one if absent.
// Creation races are resolved by a copy-on-write swap; the loser's table
// is discarded (harmless, since it is empty at creation).
func (r *Registry) OpenTable(writerID string) *Table {
	for {
		ptr := r.open.Load()
		cur := *ptr
		if t, ok := cur[writerID]; ok {
			return t
		}
		next := make(map[string]*Table, len(cur)+1)
		for k, v := range cur {
			next[k] = v
		}
		t := New()
		next[writerID] = t
		if r.open.CompareAndSwap(ptr, &next) {
			return t
		}
	}
}

// PromoteAll moves every currently open table into the closed set,
// tagging each with a fresh sequence number, then resets the open set to
// empty. Called by the WAL sink at rollover (spec.md §4.1).
func (r *Registry) PromoteAll() {
	openSnapshot := *r.open.Load()
	closedSnapshot := *r.closed.Load()

	next := make([]Closed, 0, len(closedSnapshot)+len(openSnapshot))
	next = append(next, closedSnapshot...)
	for writerID, t := range openSnapshot {
		r.seq++
		next = append(next, Closed{WriterID: writerID, Seq: r.seq, Table: t})
	}

	empty := map[string]*Table{}
	r.open.Store(&empty)
	r.closed.Store(&next)
}

// Closed returns a snapshot of the currently closed tables.
func (r *Registry) Closed() []Closed {
	return *r.closed.Load()
}

// CompactBelow drops every record with Idx <= threshold from every open
// and closed table, and drops any closed table left empty by that trim.
// Called by raftlog.Log.WriteSnapshot once a snapshot covers those entries.
func (r *Registry) CompactBelow(threshold uint64) {
	for _, t := range *r.open.Load() {
		t.TrimBelow(threshold)
	}

	closed := *r.closed.Load()
	next := make([]Closed, 0, len(closed))
	for _, c := range closed {
		c.Table.TrimBelow(threshold)
		if c.Table.Len() > 0 {
			next = append(next, c)
		}
	}
	r.closed.Store(&next)
}

// Last returns the highest-indexed record for writerID across open and
// closed tables, if any.
func (r *Registry) Last(writerID string) (Record, bool) {
	var best Record
	found := false

	if t, ok := (*r.open.Load())[writerID]; ok {
		if rec, ok := t.Last(); ok {
			best, found = rec, true
		}
	}
	for _, c := range *r.closed.Load() {
		if c.WriterID != writerID {
			continue
		}
		if rec, ok := c.Table.Last(); ok && (!found || rec.Idx > best.Idx) {
			best, found = rec, true
		}
	}
	return best, found
}

// Range returns every record for writerID with Idx in [from, to], merging
// closed tables (oldest sequence first) and the open table (most recent),
// so a later overwrite of the same Idx wins.
func (r *Registry) Range(writerID string, from, to uint64) []Record {
	merged := map[uint64]Record{}

	closed := *r.closed.Load()
	for _, c := range closed {
		if c.WriterID != writerID {
			continue
		}
		for _, rec := range c.Table.Range(from, to) {
			merged[rec.Idx] = rec
		}
	}
	if t, ok := (*r.open.Load())[writerID]; ok {
		for _, rec := range t.Range(from, to) {
			merged[rec.Idx] = rec
		}
	}

	out := make([]Record, 0, len(merged))
	for _, rec := range merged {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Idx < out[j].Idx })
	return out
}

// Lookup finds a record for writerID at idx, checking the open table
// first and falling back to closed tables (most recent sequence first).
func (r *Registry) Lookup(writerID string, idx uint64) (Record, bool) {
	if t, ok := (*r.open.Load())[writerID]; ok {
		if rec, ok := t.Get(idx); ok {
			return rec, true
		}
	}
	closed := *r.closed.Load()
	for i := len(closed) - 1; i >= 0; i-- {
		if closed[i].WriterID != writerID {
			continue
		}
		if rec, ok := closed[i].Table.Get(idx); ok {
			return rec, true
		}
	}
	return Record{}, false
}
