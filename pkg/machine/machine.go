// Package machine adapts user-supplied state machine functions into the
// raft.ApplyFunc shape the node core expects, per spec.md §9's polymorphic
// apply-function design note.
package machine

import "github.com/cuemby/raftcore/pkg/raft"

// ApplyFunc2 is the simple two-argument form: (cmd, state) -> new state.
// Most state machines only need this.
type ApplyFunc2 func(cmd raft.Command, state any) any

// ApplyFunc3 is the full three-argument form, for state machines that
// need the log index a command was committed at (e.g. for idempotency
// tracking) or that want to emit extra side effects alongside the new
// state.
type ApplyFunc3 func(idx raft.Index, cmd raft.Command, state any) raft.ApplyResult

// Normalize2 lifts a two-arg user function into a raft.ApplyFunc.
func Normalize2(fn ApplyFunc2) raft.ApplyFunc {
	return func(idx raft.Index, cmd raft.Command, state any) raft.ApplyResult {
		return raft.ApplyResult{NewState: fn(cmd, state)}
	}
}

// Normalize3 lifts a three-arg user function into a raft.ApplyFunc
// unchanged; it already matches the shape node.Config.ApplyFn expects.
func Normalize3(fn ApplyFunc3) raft.ApplyFunc {
	return raft.ApplyFunc(fn)
}

// Normalize accepts either ApplyFunc2 or ApplyFunc3 (or a bare
// raft.ApplyFunc) and returns the raft.ApplyFunc the node core calls,
// so callers can hand Config.ApplyFn whichever shape is most convenient.
func Normalize(fn any) raft.ApplyFunc {
	switch f := fn.(type) {
	case raft.ApplyFunc:
		return f
	case func(raft.Index, raft.Command, any) raft.ApplyResult:
		return f
	case ApplyFunc3:
		return Normalize3(f)
	case func(raft.Command, any) any:
		return Normalize2(f)
	case ApplyFunc2:
		return Normalize2(f)
	default:
		panic("machine: Normalize: unsupported apply function shape")
	}
}
