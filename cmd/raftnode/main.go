// Command raftnode runs one Raft consensus core node: it wires together
// pkg/wal, pkg/raftlog, pkg/raft, pkg/driver, pkg/rpcpeer and pkg/metrics
// per a YAML cluster manifest (pkg/config), the way cmd/warren wires
// pkg/manager/pkg/scheduler/pkg/api together from flags.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/raftcore/pkg/log"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "raftnode",
	Short:   "A single Raft consensus core node",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("raftnode version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(proposeCmd)
	rootCmd.AddCommand(demoCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
		Output:     os.Stdout,
	})
}
