package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/raftcore/pkg/raft"
	"github.com/cuemby/raftcore/pkg/rpcpeer"
)

var proposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Submit a key-value command to a running node",
	Long: `Propose connects to a raftnode's rpcpeer address and submits a
set/delete command. Point --target at the current leader; a follower
returns an error rather than forwarding (spec.md's client-contact
behaviour is left to a future reverse-proxy layer).`,
	RunE: runPropose,
}

func init() {
	proposeCmd.Flags().String("target", "127.0.0.1:7000", "rpcpeer address of the node to contact")
	proposeCmd.Flags().String("op", "set", "Command: set or delete")
	proposeCmd.Flags().String("key", "", "Key (required)")
	proposeCmd.Flags().String("value", "", "Value (for --op set)")
	proposeCmd.Flags().Bool("wait", true, "Wait for the command to be applied before returning")
	_ = proposeCmd.MarkFlagRequired("key")
}

func runPropose(cmd *cobra.Command, args []string) error {
	target, _ := cmd.Flags().GetString("target")
	op, _ := cmd.Flags().GetString("op")
	key, _ := cmd.Flags().GetString("key")
	value, _ := cmd.Flags().GetString("value")
	wait, _ := cmd.Flags().GetBool("wait")

	c, err := rpcpeer.Dial(target)
	if err != nil {
		return err
	}
	defer c.Close()

	mode := raft.ReplyAfterLogAppend
	if wait {
		mode = raft.ReplyAwaitConsensus
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	result, err := c.Propose(ctx, kvCommand{Op: op, Key: key, Value: value}, mode)
	if err != nil {
		return fmt.Errorf("propose failed: %w", err)
	}

	if wait {
		fmt.Printf("applied at index %d: %v\n", result.Index, result.State)
	} else {
		fmt.Printf("appended at index=%d term=%d\n", result.Index, result.Term)
	}
	return nil
}
