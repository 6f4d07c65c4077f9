package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/blockstore/pkg/datanode"
	"github.com/cuemby/blockstore/pkg/log"
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
	Use:     "datanode",
	Short:   "Blockstore storage node - local block store, transfer service, heartbeats",
	Version: Version,
	RunE:    run,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("datanode version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.Flags().String("host", "127.0.0.1", "Advertised host for the block service")
	rootCmd.Flags().Int("port", 9000, "Port for the grpc block service")
	rootCmd.Flags().String("coordinator", "127.0.0.1:8080", "Coordinator's HTTP control-plane address")
	rootCmd.Flags().String("data-dir", "./datanode-data", "Directory for block storage")
	rootCmd.Flags().Int64("capacity", 10<<30, "Advertised storage capacity in bytes")
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOut, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOut})
}

func run(cmd *cobra.Command, args []string) error {
	host, _ := cmd.Flags().GetString("host")
	port, _ := cmd.Flags().GetInt("port")
	coordAddr, _ := cmd.Flags().GetString("coordinator")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	capacity, _ := cmd.Flags().GetInt64("capacity")

	node, err := datanode.NewNode(datanode.Config{
		Host:            host,
		Port:            port,
		CoordinatorAddr: coordAddr,
		DataDir:         dataDir,
		StorageCapacity: capacity,
	})
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- node.Start() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		node.Stop()
		return nil
	}
}
