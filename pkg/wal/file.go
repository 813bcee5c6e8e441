package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const walExt = ".wal"

// segmentName formats a zero-padded monotonic sequence as a WAL filename;
// zero-padding makes lexicographic and numeric file ordering coincide.
func segmentName(seq uint64) string {
	return fmt.Sprintf("%020d%s", seq, walExt)
}

// listSegments globs dir for existing WAL files, sorted in the order
// recovery must replay them (spec.md §4.1 "replays each into a temporary
// recover mem-table index").
func listSegments(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*"+walExt))
	if err != nil {
		return nil, fmt.Errorf("wal: glob %s: %w", dir, err)
	}
	sort.Strings(matches)
	return matches, nil
}

func openSegmentForAppend(dir string, seq uint64) (*os.File, string, error) {
	path := filepath.Join(dir, segmentName(seq))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("wal: open segment %s: %w", path, err)
	}
	return f, path, nil
}

// nextSeqAfter derives the sequence to use for a newly opened segment
// following the files already present in dir.
func nextSeqAfter(existing []string) uint64 {
	if len(existing) == 0 {
		return 0
	}
	last := filepath.Base(existing[len(existing)-1])
	var seq uint64
	if _, err := fmt.Sscanf(last, "%020d"+walExt, &seq); err != nil {
		return uint64(len(existing))
	}
	return seq + 1
}
