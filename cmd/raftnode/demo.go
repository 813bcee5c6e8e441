package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/raftcore/pkg/driver"
	"github.com/cuemby/raftcore/pkg/log"
	"github.com/cuemby/raftcore/pkg/machine"
	"github.com/cuemby/raftcore/pkg/raft"
	"github.com/cuemby/raftcore/pkg/raftlog"
	"github.com/cuemby/raftcore/pkg/store"
	"github.com/cuemby/raftcore/pkg/wal"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a three-node cluster in one process and propose a few commands",
	Long: `Demo wires three raft.Nodes together with driver.LocalTransport
(no network involved) so a reader can watch an election happen and a
handful of commands get replicated and applied without standing up a
real cluster.`,
	RunE: runDemo,
}

func runDemo(cmd *cobra.Command, args []string) error {
	ids := []raft.NodeId{"A", "B", "C"}
	cluster := raft.Cluster{}
	for _, id := range ids {
		cluster[id] = raft.PeerState{}
	}

	transport := driver.NewLocalTransport()
	drivers := map[raft.NodeId]*driver.Driver{}
	nodes := map[raft.NodeId]*raft.Node{}

	for _, id := range ids {
		dataDir, err := os.MkdirTemp("", "raftnode-demo-"+string(id)+"-")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dataDir)

		st, err := store.Open(dataDir)
		if err != nil {
			return err
		}
		defer st.Close()

		sink, err := wal.Open(wal.Options{Dir: dataDir, MaxWalSizeBytes: 64 * 1024 * 1024, ChecksumEnabled: true})
		if err != nil {
			return err
		}
		go sink.Run()
		defer sink.Close()

		raftLog, err := raftlog.Open(string(id), sink, st)
		if err != nil {
			return err
		}

		node, err := raft.Init(raft.Config{
			ID:                  id,
			Cluster:             cluster,
			Log:                 raftLog,
			ApplyFn:             machine.Normalize2(applyKV),
			InitialMachineState: kvState{},
		})
		if err != nil {
			return err
		}

		nodeLog := log.WithComponent("driver").With().Str("node_id", string(id)).Logger()
		drv := driver.New(driver.Config{
			Node:          node,
			Transport:     transport,
			Cursor:        raftLog,
			Logger:        nodeLog,
			WalNotify:     sink.Notifications(),
			ElectionTimer: driver.NewRealTimer(),
			AwaitTimer:    driver.NewRealTimer(),
			BroadcastTime: 20 * time.Millisecond,
		})
		transport.Register(id, drv)
		drivers[id] = drv
		nodes[id] = node
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, drv := range drivers {
		go drv.Run(ctx)
	}

	fmt.Println("waiting for a leader to be elected...")
	time.Sleep(500 * time.Millisecond)

	leader := findLeader(nodes)
	if leader == "" {
		fmt.Println("no leader elected within the demo window")
		return nil
	}
	fmt.Printf("%s is leader\n", leader)

	proposeCtx, proposeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer proposeCancel()

	commands := []kvCommand{
		{Op: "set", Key: "region", Value: "us-east"},
		{Op: "set", Key: "replicas", Value: "3"},
		{Op: "delete", Key: "replicas"},
	}
	for _, c := range commands {
		v, err := drivers[leader].Propose(proposeCtx, c, raft.ReplyAwaitConsensus)
		if err != nil {
			fmt.Printf("propose %+v failed: %v\n", c, err)
			continue
		}
		ack := v.(raft.AppliedAck)
		fmt.Printf("applied %+v at index %d -> state=%v\n", c, ack.Index, ack.State)
	}

	return nil
}

func findLeader(nodes map[raft.NodeId]*raft.Node) raft.NodeId {
	for id, n := range nodes {
		if n.Role() == raft.RoleLeader {
			return id
		}
	}
	return ""
}
