// Package wal implements the write-ahead log sink: a single process-wide
// actor that batches append requests from many local writers into a
// shared on-disk file, fsync-batched for throughput, mirroring each
// accepted record into a per-writer in-memory table (pkg/memtable).
package wal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"hash/adler32"
	"io"
)

// maxWriterRef bounds writer_ref to the 14 bits the on-disk header
// allocates it.
const maxWriterRef = 1<<14 - 1

// recordFlags packs the truncate flag, the intro/reference bit and the
// 14-bit writer_ref into one big-endian uint16, per the on-disk layout.
type recordFlags uint16

func packFlags(truncate bool, reference bool, writerRef uint16) recordFlags {
	var f uint16
	if truncate {
		f |= 1 << 15
	}
	if reference {
		f |= 1 << 14
	}
	f |= writerRef & maxWriterRef
	return recordFlags(f)
}

func (f recordFlags) truncate() bool     { return f&(1<<15) != 0 }
func (f recordFlags) reference() bool    { return f&(1<<14) != 0 }
func (f recordFlags) writerRef() uint16  { return uint16(f) & maxWriterRef }

// record is one decoded WAL entry, with enough of the header retained to
// drive replay (writer identity resolved via the writer_ref cache).
type record struct {
	Truncate  bool
	Reference bool
	WriterRef uint16
	WriterID  []byte // only populated on introduction records
	Checksum  uint32
	Idx       uint64
	Term      uint64
	Entry     []byte
}

// checksum returns the record's adler32 over (idx, term, entry), or 0 if
// checksumming is disabled for this sink. A stored checksum of 0 is what
// readRecord treats as "verification skipped" on the way back in.
func checksum(idx, term uint64, entry []byte, enabled bool) uint32 {
	if !enabled {
		return 0
	}
	h := adler32.New()
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], idx)
	binary.BigEndian.PutUint64(buf[8:16], term)
	h.Write(buf[:])
	h.Write(entry)
	return h.Sum32()
}

// encodeIntro writes a writer-introduction record: the first occurrence
// of writerRef in a file, carrying the opaque writer_id.
func encodeIntro(w io.Writer, truncate bool, writerRef uint16, writerID []byte, idx, term uint64, entry []byte, checksumEnabled bool) error {
	bw := bufio.NewWriter(w)
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(packFlags(truncate, false, writerRef)))
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}
	if err := writeUint16(bw, uint16(len(writerID))); err != nil {
		return err
	}
	if _, err := bw.Write(writerID); err != nil {
		return err
	}
	if err := writeBody(bw, checksum(idx, term, entry, checksumEnabled), idx, term, entry); err != nil {
		return err
	}
	return bw.Flush()
}

// encodeReference writes a subsequent record for a writer already
// introduced earlier in the file.
func encodeReference(w io.Writer, truncate bool, writerRef uint16, idx, term uint64, entry []byte, checksumEnabled bool) error {
	bw := bufio.NewWriter(w)
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(packFlags(truncate, true, writerRef)))
	if _, err := bw.Write(hdr[:]); err != nil {
		return err
	}
	if err := writeBody(bw, checksum(idx, term, entry, checksumEnabled), idx, term, entry); err != nil {
		return err
	}
	return bw.Flush()
}

func writeBody(w io.Writer, sum uint32, idx, term uint64, entry []byte) error {
	var buf [4 + 4 + 8 + 8]byte
	binary.BigEndian.PutUint32(buf[0:4], sum)
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(entry)))
	binary.BigEndian.PutUint64(buf[8:16], idx)
	binary.BigEndian.PutUint64(buf[16:24], term)
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}
	_, err := w.Write(entry)
	return err
}

func writeUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// readRecord decodes one record from r. io.EOF (clean, at a record
// boundary) signals end of file; any other error is a corrupt tail.
func readRecord(r io.Reader) (record, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return record{}, err
	}
	flags := recordFlags(binary.BigEndian.Uint16(hdr[:]))

	rec := record{
		Truncate:  flags.truncate(),
		Reference: flags.reference(),
		WriterRef: flags.writerRef(),
	}

	if !rec.Reference {
		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return record{}, fmt.Errorf("wal: truncated writer_id_len: %w", err)
		}
		idLen := binary.BigEndian.Uint16(lenBuf[:])
		rec.WriterID = make([]byte, idLen)
		if _, err := io.ReadFull(r, rec.WriterID); err != nil {
			return record{}, fmt.Errorf("wal: truncated writer_id: %w", err)
		}
	}

	var body [24]byte
	if _, err := io.ReadFull(r, body[:]); err != nil {
		return record{}, fmt.Errorf("wal: truncated record body: %w", err)
	}
	rec.Checksum = binary.BigEndian.Uint32(body[0:4])
	entryLen := binary.BigEndian.Uint32(body[4:8])
	rec.Idx = binary.BigEndian.Uint64(body[8:16])
	rec.Term = binary.BigEndian.Uint64(body[16:24])

	rec.Entry = make([]byte, entryLen)
	if _, err := io.ReadFull(r, rec.Entry); err != nil {
		return record{}, fmt.Errorf("wal: truncated entry bytes: %w", err)
	}

	if rec.Checksum != 0 {
		if got := checksum(rec.Idx, rec.Term, rec.Entry, true); got != rec.Checksum {
			return record{}, fmt.Errorf("wal: checksum mismatch: got %08x want %08x", got, rec.Checksum)
		}
	}

	return rec, nil
}
