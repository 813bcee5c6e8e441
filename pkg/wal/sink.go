package wal

import (
	"errors"
	"fmt"
	"os"

	"github.com/cuemby/raftcore/pkg/memtable"
)

// Adaptive batch size bounds (spec.md §4.1).
const (
	MinMaxBatch = 16
	MaxMaxBatch = 2048
)

// ErrDown is returned by Append/TruncateWrite once the sink has observed
// a fatal write error and stopped accepting work.
var ErrDown = errors.New("wal: sink is down")

// Written is delivered once a batch covering [FromIdx, ToIdx] for Writer
// has been fsynced.
type Written struct {
	Writer string
	FromIdx uint64
	ToIdx   uint64
	Term    uint64
}

// ResendWrite asks a writer to resend starting at FromIndex, issued when
// an out-of-sequence append is dropped.
type ResendWrite struct {
	Writer    string
	FromIndex uint64
}

// Notification is either a Written or a ResendWrite.
type Notification any

// SegmentWriter is handed the closed mem-tables and backing filename at
// every rollover, so a downstream indexer can persist them independent of
// the WAL's own record stream.
type SegmentWriter interface {
	HandleClosed(tables []memtable.Closed, filename string)
}

// NopSegmentWriter discards rollover notifications; a valid default for
// deployments that only need the recover-on-restart replay and serve
// reads straight out of the mem-table registry.
type NopSegmentWriter struct{}

func (NopSegmentWriter) HandleClosed([]memtable.Closed, string) {}

// Options configures a Sink.
type Options struct {
	Dir             string
	MaxWalSizeBytes int64
	SegmentWriter   SegmentWriter
	ChecksumEnabled bool
}

type writeRequest struct {
	writer    string
	idx       uint64
	term      uint64
	entry     []byte
	truncate  bool
	forceRoll bool
}

type writerState struct {
	lastIndex  uint64
	outOfSeq   bool
	ref        uint16
	introduced bool // introduced in the *current* segment file
}

// Sink is the single process-wide write-ahead log actor (spec.md §4.1,
// §5). It must be driven by calling Run in its own goroutine; Append and
// TruncateWrite are safe to call from any goroutine.
type Sink struct {
	dir             string
	maxWalSize      int64
	segWriter       SegmentWriter
	checksumEnabled bool
	registry        *memtable.Registry

	mailbox chan writeRequest
	notify  chan Notification
	closeCh chan struct{}
	doneCh  chan struct{}

	// fields below are only ever touched from the Run goroutine.
	file         *os.File
	fileSize     int64
	nextSeq      uint64
	nextWriterRef uint16
	writers      map[string]*writerState
	maxBatch     int
}

// Open recovers prior segments (if any) and opens a fresh WAL file. The
// returned Sink's Run method must be started before Append is useful.
func Open(opts Options) (*Sink, error) {
	if opts.SegmentWriter == nil {
		opts.SegmentWriter = NopSegmentWriter{}
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("wal: mkdir %s: %w", opts.Dir, err)
	}

	s := &Sink{
		dir:             opts.Dir,
		maxWalSize:      opts.MaxWalSizeBytes,
		segWriter:       opts.SegmentWriter,
		checksumEnabled: opts.ChecksumEnabled,
		registry:        memtable.NewRegistry(),
		mailbox:    make(chan writeRequest, 4096),
		notify:     make(chan Notification, 4096),
		closeCh:    make(chan struct{}),
		doneCh:     make(chan struct{}),
		writers:    map[string]*writerState{},
		maxBatch:   MinMaxBatch,
	}

	existing, err := listSegments(opts.Dir)
	if err != nil {
		return nil, err
	}
	if err := s.recover(existing); err != nil {
		panic("wal: fatal: recovery failed: " + err.Error())
	}

	s.nextSeq = nextSeqAfter(existing)
	if err := s.openFreshSegment(); err != nil {
		return nil, err
	}

	return s, nil
}

// Registry returns the live mem-table registry backing reads.
func (s *Sink) Registry() *memtable.Registry { return s.registry }

// Notifications returns the channel on which Written/ResendWrite
// notifications are delivered: one Written per writer per fsynced batch,
// and one ResendWrite when a writer's append is first dropped as out of
// sequence (further drops send nothing until a truncating write).
func (s *Sink) Notifications() <-chan Notification { return s.notify }

// Append enqueues a non-truncating write. The call returns immediately;
// the eventual Written (or ResendWrite) notification arrives on the
// Notifications channel.
func (s *Sink) Append(writer string, idx, term uint64, entry []byte) error {
	return s.enqueue(writeRequest{writer: writer, idx: idx, term: term, entry: entry})
}

// TruncateWrite enqueues a truncating write: readers must treat all
// entries at and after idx for writer as replaced by this one.
func (s *Sink) TruncateWrite(writer string, idx, term uint64, entry []byte) error {
	return s.enqueue(writeRequest{writer: writer, idx: idx, term: term, entry: entry, truncate: true})
}

func (s *Sink) enqueue(req writeRequest) error {
	select {
	case s.mailbox <- req:
		return nil
	case <-s.closeCh:
		return ErrDown
	}
}

// ForceRollOver closes the current file and opens a new one; a testing
// aid named directly in spec.md §4.1.
func (s *Sink) ForceRollOver() {
	s.mailbox <- writeRequest{forceRoll: true}
}

// Close stops the sink after its current batch completes.
func (s *Sink) Close() error {
	close(s.closeCh)
	<-s.doneCh
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}
