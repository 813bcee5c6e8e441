package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/raftcore/pkg/raft"
)

func marshalKV(t *testing.T, cmd kvCommand) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(cmd)
	require.NoError(t, err)
	return raw
}

func TestApplyKVSetOnEmptyState(t *testing.T) {
	payload := marshalKV(t, kvCommand{Op: "set", Key: "a", Value: "1"})
	next := applyKV(raft.Command{Payload: payload}, nil)

	state, ok := next.(kvState)
	require.True(t, ok)
	assert.Equal(t, "1", state["a"])
}

func TestApplyKVSetPreservesOtherKeys(t *testing.T) {
	initial := kvState{"a": "1"}
	payload := marshalKV(t, kvCommand{Op: "set", Key: "b", Value: "2"})
	next := applyKV(raft.Command{Payload: payload}, initial).(kvState)

	assert.Equal(t, "1", next["a"])
	assert.Equal(t, "2", next["b"])
	assert.Len(t, initial, 1, "previous state must not be mutated in place")
}

func TestApplyKVDeleteRemovesKey(t *testing.T) {
	initial := kvState{"a": "1", "b": "2"}
	payload := marshalKV(t, kvCommand{Op: "delete", Key: "a"})
	next := applyKV(raft.Command{Payload: payload}, initial).(kvState)

	_, stillThere := next["a"]
	assert.False(t, stillThere)
	assert.Equal(t, "2", next["b"])
}

func TestApplyKVAcceptsRawBytesPayload(t *testing.T) {
	payload := marshalKV(t, kvCommand{Op: "set", Key: "a", Value: "1"})
	next := applyKV(raft.Command{Payload: []byte(payload)}, nil).(kvState)
	assert.Equal(t, "1", next["a"])
}

func TestApplyKVUnknownOpLeavesStateUnchanged(t *testing.T) {
	initial := kvState{"a": "1"}
	payload := marshalKV(t, kvCommand{Op: "noop", Key: "a", Value: "x"})
	next := applyKV(raft.Command{Payload: payload}, initial).(kvState)

	assert.Equal(t, "1", next["a"])
}
