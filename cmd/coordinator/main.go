package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cuemby/blockstore/pkg/coordinator"
	"github.com/cuemby/blockstore/pkg/events"
	"github.com/cuemby/blockstore/pkg/log"
	"github.com/cuemby/blockstore/pkg/metrics"
	"github.com/cuemby/blockstore/pkg/transport"
	"github.com/cuemby/blockstore/pkg/types"
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
	Use:     "coordinator",
	Short:   "Blockstore coordinator - namespace, placement and replication",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("coordinator version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(joinCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap a new coordinator cluster with this node as the first member",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := configFromFlags(cmd)
		coord, err := coordinator.NewCoordinator(cfg)
		if err != nil {
			return fmt.Errorf("create coordinator: %w", err)
		}
		if err := coord.Bootstrap(); err != nil {
			return fmt.Errorf("bootstrap cluster: %w", err)
		}
		return serve(cmd, coord)
	},
}

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join an existing coordinator cluster",
	RunE: func(cmd *cobra.Command, args []string) error {
		leader, _ := cmd.Flags().GetString("leader")
		if leader == "" {
			return fmt.Errorf("--leader is required")
		}
		cfg := configFromFlags(cmd)
		coord, err := coordinator.NewCoordinator(cfg)
		if err != nil {
			return fmt.Errorf("create coordinator: %w", err)
		}
		if err := coord.Join(leader); err != nil {
			return fmt.Errorf("join cluster: %w", err)
		}
		return serve(cmd, coord)
	},
}

func init() {
	for _, cmd := range []*cobra.Command{initCmd, joinCmd} {
		cmd.Flags().String("node-id", "coordinator-1", "Unique node ID")
		cmd.Flags().String("bind-addr", "127.0.0.1:7946", "Address for Raft communication")
		cmd.Flags().String("api-addr", "127.0.0.1:8080", "Address for the HTTP control plane")
		cmd.Flags().String("data-dir", "./coordinator-data", "Data directory for cluster state")
		cmd.Flags().Int("replication-factor", 3, "Default block replication factor")
	}
	joinCmd.Flags().String("leader", "", "Existing coordinator's HTTP control-plane address")
}

func configFromFlags(cmd *cobra.Command) coordinator.Config {
	nodeID, _ := cmd.Flags().GetString("node-id")
	bindAddr, _ := cmd.Flags().GetString("bind-addr")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	rf, _ := cmd.Flags().GetInt("replication-factor")
	return coordinator.Config{NodeID: nodeID, BindAddr: bindAddr, DataDir: dataDir, ReplicationFactor: rf}
}

func serve(cmd *cobra.Command, coord *coordinator.Coordinator) error {
	apiAddr, _ := cmd.Flags().GetString("api-addr")

	bus := events.NewBroker()
	bus.Start()
	defer bus.Stop()

	reconciler := coordinator.NewReconciler(coord, bus, replicateBlock)
	reconciler.Start()
	defer reconciler.Stop()

	balancer := coordinator.NewBalancer(coord, replicateBlock, dropBlock)
	balancer.Start()
	defer balancer.Stop()

	collector := metrics.NewCollector(coord)
	collector.Start()
	defer collector.Stop()

	server := coordinator.NewServer(coord)
	httpServer := &http.Server{Addr: apiAddr, Handler: server.Handler()}

	logger := log.WithComponent("coordinator-main")
	go func() {
		logger.Info().Str("addr", apiAddr).Msg("control plane listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("control plane server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	return coord.Close()
}

// replicateBlock asks the destination datanode to pull a block
// straight from the source datanode, so bytes never round-trip
// through the coordinator process.
func replicateBlock(blockID string, from, to *types.DataNode) error {
	client, closeFn, err := dialDatanode(to.Address())
	if err != nil {
		return err
	}
	defer closeFn()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	_, err = client.ReplicateBlock(ctx, &transport.ReplicateRequest{BlockID: blockID, SourceAddr: from.Address()})
	return err
}

func dropBlock(blockID string, node *types.DataNode) error {
	client, closeFn, err := dialDatanode(node.Address())
	if err != nil {
		return err
	}
	defer closeFn()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = client.DeleteBlock(ctx, &transport.DeleteRequest{BlockID: blockID})
	return err
}

func dialDatanode(addr string) (*transport.BlockServiceClient, func() error, error) {
	cc, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return nil, nil, err
	}
	return transport.NewBlockServiceClient(cc), cc.Close, nil
}
