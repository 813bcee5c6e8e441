package rpcpeer

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "raftcore.rpcpeer.Peer"

// peerServer is the set of methods a Server must expose to back the
// hand-rolled ServiceDesc below. Implemented by Server in server.go.
type peerServer interface {
	appendEntries(ctx context.Context, req *appendEntriesRequest) (*appendEntriesResponse, error)
	requestVote(ctx context.Context, req *requestVoteRequest) (*requestVoteResponse, error)
	installSnapshot(ctx context.Context, req *installSnapshotRequest) (*installSnapshotResponse, error)
	propose(ctx context.Context, req *proposeRequest) (*proposeResponse, error)
}

// serviceDesc describes the Peer service by hand, the way a generated
// *_grpc.pb.go file would, since no .proto source exists for it here.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*peerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AppendEntries", Handler: appendEntriesHandler},
		{MethodName: "RequestVote", Handler: requestVoteHandler},
		{MethodName: "InstallSnapshot", Handler: installSnapshotHandler},
		{MethodName: "Propose", Handler: proposeHandler},
	},
	Metadata: "rpcpeer.proto",
}

func appendEntriesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(appendEntriesRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(peerServer).appendEntries(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/AppendEntries"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(peerServer).appendEntries(ctx, req.(*appendEntriesRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func requestVoteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(requestVoteRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(peerServer).requestVote(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/RequestVote"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(peerServer).requestVote(ctx, req.(*requestVoteRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func installSnapshotHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(installSnapshotRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(peerServer).installSnapshot(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/InstallSnapshot"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(peerServer).installSnapshot(ctx, req.(*installSnapshotRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func proposeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(proposeRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(peerServer).propose(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Propose"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(peerServer).propose(ctx, req.(*proposeRequest))
	}
	return interceptor(ctx, req, info, handler)
}
