package rpcpeer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cuemby/raftcore/pkg/driver"
	"github.com/cuemby/raftcore/pkg/log"
	"github.com/cuemby/raftcore/pkg/metrics"
	"github.com/cuemby/raftcore/pkg/raft"
)

// callTimeout bounds a single outbound peer RPC; Raft's own retry-on-
// failure behavior (leaderAppendFailure's reconciliation) covers the
// case where a call never lands.
const callTimeout = 2 * time.Second

// Transport is a driver.Transport that reaches peers over gRPC, dialing
// lazily and caching connections by address.
type Transport struct {
	mu      sync.Mutex
	conns   map[raft.NodeId]*grpc.ClientConn
	dialers map[raft.NodeId]string
	locals  map[raft.NodeId]*driver.Driver
	log     zerolog.Logger
}

// NewTransport builds an empty Transport; call Register for every known
// peer and RegisterLocal for every node driven by this process before
// traffic starts flowing.
func NewTransport(log zerolog.Logger) *Transport {
	return &Transport{
		conns:   map[raft.NodeId]*grpc.ClientConn{},
		dialers: map[raft.NodeId]string{},
		locals:  map[raft.NodeId]*driver.Driver{},
		log:     log,
	}
}

// Register records the dial address for a peer id.
func (t *Transport) Register(id raft.NodeId, address string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dialers[id] = address
}

// RegisterLocal records the Driver that originates calls as id, so
// replies arriving as gRPC responses can be routed back into that
// node's own actor loop.
func (t *Transport) RegisterLocal(id raft.NodeId, drv *driver.Driver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.locals[id] = drv
}

func (t *Transport) localDriver(id raft.NodeId) *driver.Driver {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.locals[id]
}

func (t *Transport) conn(id raft.NodeId) (*grpc.ClientConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.conns[id]; ok {
		return c, nil
	}
	addr, ok := t.dialers[id]
	if !ok {
		return nil, fmt.Errorf("rpcpeer: no address registered for %s", id)
	}
	c, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, err
	}
	t.conns[id] = c
	return c, nil
}

func (t *Transport) invoke(ctx context.Context, to raft.NodeId, method string, args, reply any) error {
	cc, err := t.conn(to)
	if err != nil {
		return err
	}
	return cc.Invoke(ctx, "/"+serviceName+"/"+method, args, reply)
}

func (t *Transport) SendAppendEntries(from, to raft.NodeId, rpc raft.AppendEntriesRpc) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	timer := metrics.NewTimer()

	callLog := log.WithTerm(t.log, uint64(rpc.Term))
	req, err := toAppendEntriesRequest(rpc)
	if err != nil {
		callLog.Warn().Err(err).Str("to", string(to)).Msg("rpcpeer: encode AppendEntries")
		t.observeRPC("AppendEntries", "error", timer)
		return
	}
	var resp appendEntriesResponse
	if err := t.invoke(ctx, to, "AppendEntries", &req, &resp); err != nil {
		callLog.Warn().Err(err).Str("to", string(to)).Msg("rpcpeer: AppendEntries call failed")
		t.observeRPC("AppendEntries", "error", timer)
		return
	}
	t.observeRPC("AppendEntries", "success", timer)
	if drv := t.localDriver(from); drv != nil {
		drv.Inject(fromAppendEntriesResponse(resp))
	}
}

func (t *Transport) SendRequestVote(from, to raft.NodeId, rpc raft.RequestVoteRpc) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	timer := metrics.NewTimer()

	callLog := log.WithTerm(t.log, uint64(rpc.Term))
	req := requestVoteRequest{
		Term: rpc.Term, Candidate: rpc.Candidate,
		LastLogIndex: rpc.LastLogIndex, LastLogTerm: rpc.LastLogTerm,
	}
	var resp requestVoteResponse
	if err := t.invoke(ctx, to, "RequestVote", &req, &resp); err != nil {
		callLog.Warn().Err(err).Str("to", string(to)).Msg("rpcpeer: RequestVote call failed")
		t.observeRPC("RequestVote", "error", timer)
		return
	}
	t.observeRPC("RequestVote", "success", timer)
	if drv := t.localDriver(from); drv != nil {
		drv.Inject(raft.RequestVoteReply{From: resp.From, Term: resp.Term, Granted: resp.Granted})
	}
}

func (t *Transport) SendInstallSnapshot(from, to raft.NodeId, rpc raft.InstallSnapshotRpc) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	timer := metrics.NewTimer()

	callLog := log.WithTerm(t.log, uint64(rpc.Term))
	req, err := toInstallSnapshotRequest(rpc)
	if err != nil {
		callLog.Warn().Err(err).Str("to", string(to)).Msg("rpcpeer: encode InstallSnapshot")
		t.observeRPC("InstallSnapshot", "error", timer)
		return
	}
	var resp installSnapshotResponse
	if err := t.invoke(ctx, to, "InstallSnapshot", &req, &resp); err != nil {
		callLog.Warn().Err(err).Str("to", string(to)).Msg("rpcpeer: InstallSnapshot call failed")
		t.observeRPC("InstallSnapshot", "error", timer)
		return
	}
	t.observeRPC("InstallSnapshot", "success", timer)
	if drv := t.localDriver(from); drv != nil {
		drv.Inject(raft.InstallSnapshotReply{From: resp.From, Term: resp.Term, Success: resp.Success, LastIndex: resp.LastIndex})
	}
}

// observeRPC records the per-method outcome counter and round-trip
// histogram for one outbound call.
func (t *Transport) observeRPC(method, outcome string, timer *metrics.Timer) {
	metrics.RpcRequestsTotal.WithLabelValues(method, outcome).Inc()
	timer.ObserveDurationVec(metrics.RpcDuration, method)
}

// Deliver is a no-op over rpcpeer: replies to peer RPCs travel back as
// the gRPC response itself (see server.go's appendEntries/requestVote/
// installSnapshot), never as a second outbound call.
func (t *Transport) Deliver(raft.NodeId, any) {}

var _ driver.Transport = (*Transport)(nil)
