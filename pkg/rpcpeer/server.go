package rpcpeer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/cuemby/raftcore/pkg/driver"
	"github.com/cuemby/raftcore/pkg/raft"
)

// requestTimeout bounds how long a handler waits for the local node's
// actor loop to produce the effect it correlates with.
const requestTimeout = 5 * time.Second

// Server exposes one node's Driver over gRPC so remote peers can deliver
// RequestVote/AppendEntries/InstallSnapshot and remote clients can Propose.
type Server struct {
	drv      *driver.Driver
	listener net.Listener
	grpcSrv  *grpc.Server
	log      zerolog.Logger
}

// NewServer binds address and wraps drv. Call Serve to start accepting.
func NewServer(drv *driver.Driver, address string, log zerolog.Logger) (*Server, error) {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("rpcpeer: listen %s: %w", address, err)
	}
	s := &Server{drv: drv, listener: lis, grpcSrv: grpc.NewServer(), log: log}
	s.grpcSrv.RegisterService(&serviceDesc, peerServer(s))
	return s, nil
}

// Serve blocks accepting connections until Stop is called.
func (s *Server) Serve() error {
	s.log.Info().Str("addr", s.listener.Addr().String()).Msg("rpcpeer server listening")
	return s.grpcSrv.Serve(s.listener)
}

// Stop gracefully drains in-flight RPCs then shuts the listener down.
func (s *Server) Stop() {
	s.grpcSrv.GracefulStop()
}

// Addr returns the bound listen address, useful when address was ":0".
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

var _ peerServer = (*Server)(nil)

func (s *Server) appendEntries(ctx context.Context, req *appendEntriesRequest) (*appendEntriesResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	rpc := fromAppendEntriesRequest(*req)
	v, err := s.drv.SubmitAndAwait(ctx, rpc, rpc.LeaderId)
	if err != nil {
		return nil, err
	}
	reply, ok := v.(raft.AppendEntriesReply)
	if !ok {
		return nil, fmt.Errorf("rpcpeer: unexpected reply type %T for AppendEntries", v)
	}
	resp := toAppendEntriesResponse(reply)
	return &resp, nil
}

func (s *Server) requestVote(ctx context.Context, req *requestVoteRequest) (*requestVoteResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	rpc := raft.RequestVoteRpc{
		Term: req.Term, Candidate: req.Candidate,
		LastLogIndex: req.LastLogIndex, LastLogTerm: req.LastLogTerm,
	}
	v, err := s.drv.SubmitAndAwait(ctx, rpc, rpc.Candidate)
	if err != nil {
		return nil, err
	}
	reply, ok := v.(raft.RequestVoteReply)
	if !ok {
		return nil, fmt.Errorf("rpcpeer: unexpected reply type %T for RequestVote", v)
	}
	return &requestVoteResponse{From: reply.From, Term: reply.Term, Granted: reply.Granted}, nil
}

func (s *Server) installSnapshot(ctx context.Context, req *installSnapshotRequest) (*installSnapshotResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	rpc := fromInstallSnapshotRequest(*req)
	v, err := s.drv.SubmitAndAwait(ctx, rpc, rpc.LeaderId)
	if err != nil {
		return nil, err
	}
	reply, ok := v.(raft.InstallSnapshotReply)
	if !ok {
		return nil, fmt.Errorf("rpcpeer: unexpected reply type %T for InstallSnapshot", v)
	}
	return &installSnapshotResponse{From: reply.From, Term: reply.Term, Success: reply.Success, LastIndex: reply.LastIndex}, nil
}

func (s *Server) propose(ctx context.Context, req *proposeRequest) (*proposeResponse, error) {
	var payload any
	if len(req.Payload) > 0 {
		payload = req.Payload
	}
	v, err := s.drv.Propose(ctx, payload, req.ReplyMode)
	if err != nil {
		return &proposeResponse{Error: err.Error()}, nil
	}
	switch r := v.(type) {
	case raft.IndexTerm:
		return &proposeResponse{Index: r.Index, Term: r.Term}, nil
	case raft.AppliedAck:
		state, merr := json.Marshal(r.State)
		if merr != nil {
			return &proposeResponse{Error: merr.Error()}, nil
		}
		return &proposeResponse{Index: r.Index, State: state}, nil
	default:
		return nil, errors.New("rpcpeer: unexpected propose result type")
	}
}
