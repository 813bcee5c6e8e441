package wal

import (
	"fmt"

	"github.com/cuemby/raftcore/pkg/memtable"
	"github.com/cuemby/raftcore/pkg/metrics"
)

// Run drives the sink's two-phase mailbox loop (spec.md §4.1 "Batching
// protocol") until Close is called. It must run in its own goroutine.
func (s *Sink) Run() {
	defer close(s.doneCh)
	for {
		select {
		case <-s.closeCh:
			s.drainRemaining()
			return
		case first := <-s.mailbox:
			batch := []writeRequest{first}
		batched:
			for len(batch) < s.maxBatch {
				select {
				case req := <-s.mailbox:
					batch = append(batch, req)
				default:
					break batched
				}
			}
			reachedCap := len(batch) >= s.maxBatch
			s.completeBatch(batch)
			s.adjustBatchSize(reachedCap)
		}
	}
}

func (s *Sink) drainRemaining() {
	for {
		select {
		case req := <-s.mailbox:
			s.completeBatch([]writeRequest{req})
		default:
			return
		}
	}
}

func (s *Sink) adjustBatchSize(reachedCap bool) {
	if reachedCap {
		s.maxBatch *= 2
		if s.maxBatch > MaxMaxBatch {
			s.maxBatch = MaxMaxBatch
		}
	} else {
		s.maxBatch /= 2
		if s.maxBatch < MinMaxBatch {
			s.maxBatch = MinMaxBatch
		}
	}
	metrics.WalBatchSize.Set(float64(s.maxBatch))
}

// completeBatch implements spec.md §4.1's per-batch policy: accept or
// drop each request per the out-of-sequence policy, mirror accepted
// writes into the mem-table registry and on-disk file, fsync once, then
// notify every contributing writer.
func (s *Sink) completeBatch(batch []writeRequest) {
	type span struct {
		from, to, term uint64
		any            bool
	}
	spans := map[string]*span{}

	for _, req := range batch {
		if req.forceRoll {
			s.rollover()
			continue
		}

		accepted, resendFrom := s.admit(req)
		if !accepted {
			if resendFrom > 0 {
				metrics.WalResendsTotal.Inc()
				s.notify <- ResendWrite{Writer: req.writer, FromIndex: resendFrom}
			}
			continue
		}

		if s.wouldExceed(req) {
			s.rollover()
		}

		if err := s.writeRecord(req); err != nil {
			panic("wal: fatal: write error: " + err.Error())
		}

		t := s.registry.OpenTable(req.writer)
		rec := memtable.Record{Idx: req.idx, Term: req.term, Entry: req.entry}
		if req.truncate {
			t.Truncate(req.idx, rec)
		} else {
			t.Append(rec)
		}

		sp, ok := spans[req.writer]
		if !ok {
			sp = &span{from: req.idx, to: req.idx, term: req.term}
			spans[req.writer] = sp
		}
		if req.idx < sp.from {
			sp.from = req.idx
		}
		if req.idx > sp.to {
			sp.to = req.idx
			sp.term = req.term
		}
		sp.any = true
	}

	fsyncTimer := metrics.NewTimer()
	if err := s.file.Sync(); err != nil {
		panic("wal: fatal: fsync error: " + err.Error())
	}
	fsyncTimer.ObserveDuration(metrics.WalFsyncDuration)

	for writer, sp := range spans {
		if !sp.any {
			continue
		}
		s.notify <- Written{Writer: writer, FromIdx: sp.from, ToIdx: sp.to, Term: sp.term}
	}
}

// admit applies the out-of-sequence policy (spec.md §4.1).
func (s *Sink) admit(req writeRequest) (accepted bool, resendFrom uint64) {
	ws, ok := s.writers[req.writer]
	if !ok {
		ws = &writerState{}
		s.writers[req.writer] = ws
	}

	if req.truncate {
		ws.outOfSeq = false
		ws.lastIndex = req.idx
		return true, 0
	}

	if ws.lastIndex == 0 || req.idx <= ws.lastIndex+1 {
		if req.idx > ws.lastIndex {
			ws.lastIndex = req.idx
		}
		return true, 0
	}

	if ws.outOfSeq {
		return false, 0
	}

	ws.outOfSeq = true
	return false, ws.lastIndex + 1
}

func (s *Sink) wouldExceed(req writeRequest) bool {
	if s.maxWalSize <= 0 {
		return false
	}
	return s.fileSize+int64(len(req.entry))+64 > s.maxWalSize
}

func (s *Sink) writeRecord(req writeRequest) error {
	ws := s.writers[req.writer]
	var n int
	var err error
	if !ws.introduced {
		if s.nextWriterRef > maxWriterRef {
			return fmt.Errorf("too many distinct writers in one segment")
		}
		ws.ref = s.nextWriterRef
		s.nextWriterRef++
		ws.introduced = true
		err = encodeIntro(s.file, req.truncate, ws.ref, []byte(req.writer), req.idx, req.term, req.entry, s.checksumEnabled)
		n = 2 + 2 + len(req.writer) + 24 + len(req.entry)
	} else {
		err = encodeReference(s.file, req.truncate, ws.ref, req.idx, req.term, req.entry, s.checksumEnabled)
		n = 2 + 24 + len(req.entry)
	}
	if err != nil {
		return err
	}
	s.fileSize += int64(n)
	return nil
}

// rollover implements spec.md §4.1 "Rollover": close the current file,
// atomically promote open tables to closed, notify the segment writer,
// and open a fresh file with no cached writer refs.
func (s *Sink) rollover() {
	metrics.WalRolloversTotal.Inc()
	finishedPath := s.file.Name()
	if err := s.file.Sync(); err != nil {
		panic("wal: fatal: fsync on rollover: " + err.Error())
	}
	if err := s.file.Close(); err != nil {
		panic("wal: fatal: close on rollover: " + err.Error())
	}

	s.registry.PromoteAll()
	s.segWriter.HandleClosed(s.registry.Closed(), finishedPath)

	for _, ws := range s.writers {
		ws.introduced = false
	}
	s.nextWriterRef = 0

	if err := s.openFreshSegment(); err != nil {
		panic("wal: fatal: open segment on rollover: " + err.Error())
	}
}

func (s *Sink) openFreshSegment() error {
	f, _, err := openSegmentForAppend(s.dir, s.nextSeq)
	if err != nil {
		return err
	}
	s.file = f
	s.fileSize = 0
	s.nextSeq++
	return nil
}
