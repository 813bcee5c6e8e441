package rpcpeer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cuemby/raftcore/pkg/raft"
)

// Client is a thin gRPC client for the CLI-facing Propose call, used by
// cmd/raftnode to submit a command to whichever node it is pointed at
// (the leader, or a follower that forwards per spec.md's client-contact
// behaviour is out of scope here: callers must point at the leader).
type Client struct {
	cc *grpc.ClientConn
}

// Dial connects to a raftnode's rpcpeer listen address.
func Dial(address string) (*Client, error) {
	cc, err := grpc.NewClient(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("rpcpeer: dial %s: %w", address, err)
	}
	return &Client{cc: cc}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.cc.Close() }

// ProposeResult is the CLI-facing outcome of a Propose call: either an
// (index, term) pair (ReplyAfterLogAppend) or the applied machine state
// (ReplyAwaitConsensus).
type ProposeResult struct {
	Index raft.Index
	Term  raft.Term
	State any
}

// Propose submits payload to the node at the other end of c, waiting for
// mode's reply semantics server-side.
func (c *Client) Propose(ctx context.Context, payload any, mode raft.ReplyMode) (ProposeResult, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return ProposeResult{}, fmt.Errorf("rpcpeer: marshal payload: %w", err)
	}
	req := proposeRequest{Payload: data, ReplyMode: mode}
	var resp proposeResponse
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Propose", &req, &resp); err != nil {
		return ProposeResult{}, err
	}
	if resp.Error != "" {
		return ProposeResult{}, errors.New(resp.Error)
	}
	result := ProposeResult{Index: resp.Index, Term: resp.Term}
	if len(resp.State) > 0 {
		if err := json.Unmarshal(resp.State, &result.State); err != nil {
			return ProposeResult{}, fmt.Errorf("rpcpeer: unmarshal state: %w", err)
		}
	}
	return result, nil
}
