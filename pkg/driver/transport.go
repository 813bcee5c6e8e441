package driver

import "github.com/cuemby/raftcore/pkg/raft"

// Transport carries outbound peer RPCs and generic deliveries (the
// payload of a Reply/Notify/SendMsg effect once it can't be satisfied by
// a locally pending correlation) to a destination node.
type Transport interface {
	SendAppendEntries(from, to raft.NodeId, rpc raft.AppendEntriesRpc)
	SendRequestVote(from, to raft.NodeId, rpc raft.RequestVoteRpc)
	SendInstallSnapshot(from, to raft.NodeId, rpc raft.InstallSnapshotRpc)
	Deliver(to raft.NodeId, payload any)
}

// Inbox is the minimal surface LocalTransport needs from a peer's
// driver: a channel accepting raw messages for that node's actor loop.
type Inbox interface {
	Inject(msg any)
}

// LocalTransport wires multiple in-process Drivers together by name,
// used for tests and the single-process demo command. Routing failures
// (unknown peer) are dropped, matching spec.md §7's "unknown-peer reply:
// log warning, ignore" policy.
type LocalTransport struct {
	peers map[raft.NodeId]Inbox
}

// NewLocalTransport returns an empty hub; Register each node's Driver
// (which satisfies Inbox) before starting traffic.
func NewLocalTransport() *LocalTransport {
	return &LocalTransport{peers: map[raft.NodeId]Inbox{}}
}

// Register makes a node's inbox reachable by its id.
func (t *LocalTransport) Register(id raft.NodeId, inbox Inbox) {
	t.peers[id] = inbox
}

func (t *LocalTransport) SendAppendEntries(_, to raft.NodeId, rpc raft.AppendEntriesRpc) {
	t.send(to, rpc)
}

func (t *LocalTransport) SendRequestVote(_, to raft.NodeId, rpc raft.RequestVoteRpc) {
	t.send(to, rpc)
}

func (t *LocalTransport) SendInstallSnapshot(_, to raft.NodeId, rpc raft.InstallSnapshotRpc) {
	t.send(to, rpc)
}

func (t *LocalTransport) Deliver(to raft.NodeId, payload any) {
	t.send(to, payload)
}

func (t *LocalTransport) send(to raft.NodeId, payload any) {
	if inbox, ok := t.peers[to]; ok {
		inbox.Inject(payload)
	}
}
