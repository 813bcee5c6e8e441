// Package memtable holds the in-memory mirror of accepted WAL records:
// one table per writer, readable before the backing segment is fsynced.
package memtable

import "sort"

// Record is one accepted WAL entry, keyed by its writer-assigned index.
type Record struct {
	Idx   uint64
	Term  uint64
	Entry []byte
}

// Table is the per-writer memtable. It is single-writer/many-reader
// (spec.md §5): only the WAL sink calls Append/Truncate; everything else
// only calls the read methods. The caller (pkg/wal) is responsible for
// serialising writes; Table itself does no locking, matching the open
// registry's atomic-swap discipline one level up.
type Table struct {
	records []Record // sorted by Idx, no duplicates
}

// New returns an empty Table.
func New() *Table { return &Table{} }

// Append inserts a record. If a record already exists at Idx it is
// replaced in place (the WAL sink accepts a non-truncating write at or
// below a writer's last index, so a rewrite of an Idx lands here).
func (t *Table) Append(r Record) {
	i := sort.Search(len(t.records), func(i int) bool { return t.records[i].Idx >= r.Idx })
	if i < len(t.records) && t.records[i].Idx == r.Idx {
		t.records[i] = r
		return
	}
	t.records = append(t.records, Record{})
	copy(t.records[i+1:], t.records[i:])
	t.records[i] = r
}

// Truncate drops every record at or after idx before appending r, per the
// truncate-flag semantics of a truncating write.
func (t *Table) Truncate(idx uint64, r Record) {
	i := sort.Search(len(t.records), func(i int) bool { return t.records[i].Idx >= idx })
	t.records = t.records[:i]
	t.Append(r)
}

// Get returns the record at idx, if present.
func (t *Table) Get(idx uint64) (Record, bool) {
	i := sort.Search(len(t.records), func(i int) bool { return t.records[i].Idx >= idx })
	if i < len(t.records) && t.records[i].Idx == idx {
		return t.records[i], true
	}
	return Record{}, false
}

// Range returns every record with Idx in [from, to].
func (t *Table) Range(from, to uint64) []Record {
	lo := sort.Search(len(t.records), func(i int) bool { return t.records[i].Idx >= from })
	var out []Record
	for i := lo; i < len(t.records) && t.records[i].Idx <= to; i++ {
		out = append(out, t.records[i])
	}
	return out
}

// Last returns the highest-indexed record, if any.
func (t *Table) Last() (Record, bool) {
	if len(t.records) == 0 {
		return Record{}, false
	}
	return t.records[len(t.records)-1], true
}

// Len reports the number of records currently held.
func (t *Table) Len() int { return len(t.records) }

// TrimBelow drops every record with Idx <= threshold, used when a
// snapshot has made those entries redundant.
func (t *Table) TrimBelow(threshold uint64) {
	i := sort.Search(len(t.records), func(i int) bool { return t.records[i].Idx > threshold })
	t.records = t.records[i:]
}
