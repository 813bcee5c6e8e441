package raft

import "errors"

// ErrWalDown is returned by Log.Append/TruncateAppend when the underlying
// WAL sink is unavailable. A follower observing this on append transitions
// to await_condition with a wal-down predicate (spec.md §7).
var ErrWalDown = errors.New("raft: wal sink unavailable")

// ErrUnknownEntry is returned by Log.Take for a range that reaches past
// what has been appended.
var ErrUnknownEntry = errors.New("raft: requested entry not present in log")
