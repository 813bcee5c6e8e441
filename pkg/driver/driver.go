// Package driver adapts the pure raft.Node actor to the outside world: it
// owns the node's mailbox, arms/disarms timers on every role change,
// executes the effects Step returns against a Transport and MetricsSink,
// and folds WAL sink notifications back into the node's message stream.
package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/raftcore/pkg/metrics"
	"github.com/cuemby/raftcore/pkg/raft"
	"github.com/cuemby/raftcore/pkg/wal"
)

// ReleaseCursorSink receives ReleaseCursor effects; pkg/raftlog.Log
// implements it.
type ReleaseCursorSink interface {
	UpdateReleaseCursor(idx raft.Index, machineState any)
}

// Driver runs one Node's cooperative actor loop (spec.md §5).
type Driver struct {
	node      *raft.Node
	transport Transport
	metrics   MetricsSink
	cursor    ReleaseCursorSink
	log       zerolog.Logger

	broadcastTime time.Duration

	inbox     chan any
	walNotify <-chan wal.Notification

	electionTimer Timer
	awaitTimer    Timer

	pendingMu sync.Mutex
	pending   map[raft.NodeId]chan any
}

// Config wires a Driver to its Node and collaborators.
type Config struct {
	Node      *raft.Node
	Transport Transport
	Metrics   MetricsSink
	Cursor    ReleaseCursorSink
	Logger    zerolog.Logger
	WalNotify <-chan wal.Notification

	ElectionTimer Timer
	AwaitTimer    Timer
	BroadcastTime time.Duration
}

// New constructs a Driver. Call Run in its own goroutine to start it.
func New(cfg Config) *Driver {
	if cfg.Metrics == nil {
		cfg.Metrics = NopMetricsSink{}
	}
	return &Driver{
		node:                  cfg.Node,
		transport:             cfg.Transport,
		metrics:               cfg.Metrics,
		cursor:                cfg.Cursor,
		log:           cfg.Logger.With().Str("node_id", string(cfg.Node.ID())).Logger(),
		broadcastTime: cfg.BroadcastTime,
		inbox:         make(chan any, 1024),
		walNotify:     cfg.WalNotify,
		electionTimer: cfg.ElectionTimer,
		awaitTimer:    cfg.AwaitTimer,
		pending:       map[raft.NodeId]chan any{},
	}
}

// Inject delivers a raw message to this node's mailbox without waiting
// for a reply; used for peer RPCs/replies arriving from a Transport.
func (d *Driver) Inject(msg any) {
	d.inbox <- msg
}

// SubmitAndAwait enqueues msg and blocks until a Reply/Notify/SendMsg
// effect addressed to correlation is produced, or ctx is done. Used by
// local callers (CLI propose/query) that need the eventual result.
func (d *Driver) SubmitAndAwait(ctx context.Context, msg any, correlation raft.NodeId) (any, error) {
	ch := make(chan any, 1)
	d.pendingMu.Lock()
	d.pending[correlation] = ch
	d.pendingMu.Unlock()

	select {
	case d.inbox <- msg:
	case <-ctx.Done():
		d.pendingMu.Lock()
		delete(d.pending, correlation)
		d.pendingMu.Unlock()
		return nil, ctx.Err()
	}

	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		d.pendingMu.Lock()
		delete(d.pending, correlation)
		d.pendingMu.Unlock()
		return nil, ctx.Err()
	}
}

// Propose submits a user command for replication, returning once the
// mode-appropriate result is available.
func (d *Driver) Propose(ctx context.Context, payload any, mode raft.ReplyMode) (any, error) {
	timer := metrics.NewTimer()
	id := raft.NodeId("client:" + uuid.NewString())
	cmd := raft.Command{Kind: raft.CommandUser, From: id, Payload: payload, ReplyMode: mode}
	v, err := d.SubmitAndAwait(ctx, cmd, id)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.ProposeTotal.WithLabelValues(outcome).Inc()
	timer.ObserveDuration(metrics.ProposeDuration)
	return v, err
}

// Query submits a read-only query against the current machine state.
func (d *Driver) Query(ctx context.Context, queryFn func(state any) any) (any, error) {
	id := raft.NodeId("client:" + uuid.NewString())
	cmd := raft.Command{Kind: raft.CommandQuery, From: id, QueryFn: queryFn}
	return d.SubmitAndAwait(ctx, cmd, id)
}

// ProposeClusterChange submits a single-server membership change.
func (d *Driver) ProposeClusterChange(ctx context.Context, newCluster raft.Cluster, mode raft.ReplyMode) (any, error) {
	id := raft.NodeId("client:" + uuid.NewString())
	cmd := raft.Command{Kind: raft.CommandClusterChange, From: id, NewCluster: newCluster, ReplyMode: mode}
	return d.SubmitAndAwait(ctx, cmd, id)
}

// Run drives the actor loop until ctx is cancelled.
func (d *Driver) Run(ctx context.Context) {
	d.rearmTimers()
	for {
		select {
		case <-ctx.Done():
			d.electionTimer.Stop()
			d.awaitTimer.Stop()
			return

		case msg := <-d.inbox:
			d.step(msg)

		case note, ok := <-d.walNotify:
			if !ok {
				d.walNotify = nil
				continue
			}
			d.handleWalNotification(note)

		case <-d.electionTimer.C():
			d.step(raft.ElectionTimeout{})

		case <-d.awaitTimer.C():
			d.step(raft.AwaitConditionTimeout{})
		}
	}
}

func (d *Driver) handleWalNotification(note wal.Notification) {
	switch n := note.(type) {
	case wal.Written:
		if raft.NodeId(n.Writer) != d.node.ID() {
			return
		}
		d.step(raft.Written{FromIndex: raft.Index(n.FromIdx), ToIndex: raft.Index(n.ToIdx), Term: raft.Term(n.Term)})
	case wal.ResendWrite:
		if raft.NodeId(n.Writer) != d.node.ID() {
			return
		}
		d.log.Warn().Uint64("from_index", n.FromIndex).Msg("wal requested resend; out-of-sequence append dropped")
	}
}

func (d *Driver) step(msg any) {
	timer := metrics.NewTimer()
	effects := d.node.Step(msg)
	if appliedEntries(effects) {
		timer.ObserveDuration(metrics.ApplyDuration)
	}
	d.executeEffects(effects)
	d.rearmTimers()
}

// appliedEntries reports whether effects includes the apply loop's
// entries_applied increment, i.e. whether Step ran applyTo this round.
func appliedEntries(effects []raft.Effect) bool {
	for _, effect := range effects {
		im, ok := effect.(raft.IncrMetrics)
		if !ok || im.Table != "raft" {
			continue
		}
		for _, d := range im.Deltas {
			if d.Position == "entries_applied" {
				return true
			}
		}
	}
	return false
}

// executeEffects must never block the actor loop on network I/O: every
// transport.Send* call runs on its own goroutine, the same way the WAL
// sink never lets a slow writer stall another writer's batch. Replies
// re-enter the sending node's mailbox asynchronously via Driver.Inject,
// so ordering across peers was never guaranteed here to begin with.
func (d *Driver) executeEffects(effects []raft.Effect) {
	for _, effect := range effects {
		switch e := effect.(type) {
		case raft.Reply:
			d.deliver(e.To, e.Value)
		case raft.Notify:
			d.deliver(e.To, e.Value)
		case raft.SendMsg:
			d.deliver(e.Target, e.Payload)
		case raft.SendRpcs:
			for _, p := range e.To {
				id, peer, rpc := d.node.ID(), p.Peer, p.Rpc
				go d.transport.SendAppendEntries(id, peer, rpc)
			}
		case raft.SendVoteRequests:
			for _, v := range e.To {
				id, peer, rpc := d.node.ID(), v.Peer, v.Rpc
				go d.transport.SendRequestVote(id, peer, rpc)
			}
		case raft.SendInstallSnapshot:
			go d.transport.SendInstallSnapshot(d.node.ID(), e.Peer, e.Rpc)
		case raft.Monitor, raft.Demonitor:
			// Process monitoring has no counterpart in this single-OS-process
			// port: every local node's health is this process's health.
		case raft.NextEvent:
			d.inbox <- e.Msg
		case raft.IncrMetrics:
			d.metrics.Incr(e.Table, e.Deltas)
		case raft.ReleaseCursor:
			if d.cursor != nil {
				d.cursor.UpdateReleaseCursor(e.Index, e.MachineState)
			}
		default:
			d.log.Warn().Str("effect", fmt.Sprintf("%T", effect)).Msg("unhandled effect")
		}
	}
}

func (d *Driver) deliver(to raft.NodeId, payload any) {
	d.pendingMu.Lock()
	ch, ok := d.pending[to]
	if ok {
		delete(d.pending, to)
	}
	d.pendingMu.Unlock()

	if ok {
		ch <- payload
		return
	}
	d.transport.Deliver(to, payload)
}

func (d *Driver) rearmTimers() {
	switch d.node.Role() {
	case raft.RoleFollower:
		d.electionTimer.Reset(ElectionTimeoutDuration(d.broadcastTime, false))
		d.awaitTimer.Stop()
	case raft.RoleCandidate:
		d.electionTimer.Reset(ElectionTimeoutDuration(d.broadcastTime, true))
		d.awaitTimer.Stop()
	case raft.RoleLeader:
		d.electionTimer.Stop()
		d.awaitTimer.Stop()
	case raft.RoleAwaitCondition:
		d.electionTimer.Stop()
		d.awaitTimer.Reset(DefaultAwaitConditionTimeout)
	case raft.RoleStop:
		d.electionTimer.Stop()
		d.awaitTimer.Stop()
	}
}
