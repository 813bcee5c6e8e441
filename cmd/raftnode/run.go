package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/raftcore/pkg/config"
	"github.com/cuemby/raftcore/pkg/driver"
	"github.com/cuemby/raftcore/pkg/log"
	"github.com/cuemby/raftcore/pkg/machine"
	"github.com/cuemby/raftcore/pkg/metrics"
	"github.com/cuemby/raftcore/pkg/raft"
	"github.com/cuemby/raftcore/pkg/raftlog"
	"github.com/cuemby/raftcore/pkg/rpcpeer"
	"github.com/cuemby/raftcore/pkg/store"
	"github.com/cuemby/raftcore/pkg/wal"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run this node against a cluster manifest",
	Long: `Run starts one Raft consensus core node: it opens the node's WAL
and metadata store, initializes the node from whatever state was
persisted, and serves peer RPCs and client proposals over gRPC until
interrupted.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("config", "f", "", "cluster manifest YAML (required)")
	runCmd.Flags().String("metrics-addr", "127.0.0.1:9090", "Address for the metrics/health HTTP server")
	_ = runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	sink, err := wal.Open(wal.Options{
		Dir:             cfg.DataDir,
		MaxWalSizeBytes: cfg.WALMaxSizeBytes(),
		ChecksumEnabled: cfg.WALChecksumEnabled(),
	})
	if err != nil {
		return fmt.Errorf("open WAL: %w", err)
	}
	go sink.Run()
	defer sink.Close()

	nodeID := raft.NodeId(cfg.Cluster.Self)

	raftLog, err := raftlog.Open(cfg.Cluster.Self, sink, st)
	if err != nil {
		return fmt.Errorf("open raft log: %w", err)
	}

	node, err := raft.Init(raft.Config{
		ID:                  nodeID,
		Cluster:             cfg.RaftCluster(),
		Log:                 raftLog,
		ApplyFn:             machine.Normalize2(applyKV),
		InitialMachineState: kvState{},
	})
	if err != nil {
		return fmt.Errorf("init raft node: %w", err)
	}

	nodeLog := log.WithNodeID(cfg.Cluster.Self)
	rpcLog := log.WithComponent("rpcpeer").With().Str("node_id", cfg.Cluster.Self).Logger()

	transport := rpcpeer.NewTransport(rpcLog)
	for _, p := range cfg.Cluster.Peers {
		transport.Register(raft.NodeId(p.ID), p.Address)
	}

	drv := driver.New(driver.Config{
		Node:          node,
		Transport:     transport,
		Metrics:       metrics.Sink{},
		Cursor:        raftLog,
		Logger:        log.WithComponent("driver").With().Str("node_id", cfg.Cluster.Self).Logger(),
		WalNotify:     sink.Notifications(),
		ElectionTimer: driver.NewRealTimer(),
		AwaitTimer:    driver.NewRealTimer(),
		BroadcastTime: cfg.BroadcastTime(),
	})
	transport.RegisterLocal(nodeID, drv)

	server, err := rpcpeer.NewServer(drv, cfg.Listen, rpcLog)
	if err != nil {
		return fmt.Errorf("start rpcpeer server: %w", err)
	}

	collector := metrics.NewCollector(node)
	collector.Start()
	defer collector.Stop()

	metrics.SetVersion(Version)
	// "raft" is kept current by the Collector's tick, not registered here.
	metrics.RegisterComponent("wal", true, "running")
	metrics.RegisterComponent("rpcpeer", true, "serving")

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nodeLog.Error().Err(err).Msg("metrics server error")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go drv.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(); err != nil {
			errCh <- err
		}
	}()

	fmt.Printf("raftnode %s listening on %s (rpcpeer), %s (metrics)\n", cfg.Cluster.Self, cfg.Listen, metricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\nrpcpeer server error: %v\n", err)
	}

	cancel()
	server.Stop()
	_ = metricsSrv.Close()

	return nil
}
