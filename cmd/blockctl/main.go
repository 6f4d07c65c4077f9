package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/blockstore/pkg/client"
	"github.com/cuemby/blockstore/pkg/transport"
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
	Use:     "blockctl",
	Short:   "Command-line client for the blockstore coordinator",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("blockctl version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("coordinator", "127.0.0.1:8080", "Coordinator's HTTP control-plane address")

	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(applyCmd)
}

var putCmd = &cobra.Command{
	Use:   "put LOCAL_FILE REMOTE_PATH",
	Short: "Upload a local file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		coordAddr, _ := cmd.Flags().GetString("coordinator")
		owner, _ := cmd.Flags().GetString("owner")
		blockSize, _ := cmd.Flags().GetInt64("block-size")
		workers, _ := cmd.Flags().GetInt("workers")
		replicas, _ := cmd.Flags().GetInt("replicas")
		codec, _ := cmd.Flags().GetString("compression")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read local file: %w", err)
		}

		c := client.New(coordAddr,
			client.WithBlockSize(blockSize),
			client.WithWorkers(workers),
			client.WithReplicationFactor(replicas),
			client.WithCompression(transport.Codec(codec)),
		)
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		result, err := c.Upload(ctx, args[1], owner, data)
		if err != nil {
			return fmt.Errorf("upload: %w", err)
		}

		if result.Incomplete {
			fmt.Printf("upload incomplete: %d block(s) could not be placed on any node\n", len(result.MissingIDs))
			for _, id := range result.MissingIDs {
				fmt.Printf("  %s\n", id)
			}
			os.Exit(1)
		}
		fmt.Printf("✓ uploaded %s as %s (file_id=%s)\n", args[0], args[1], result.FileID)
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:   "get REMOTE_PATH LOCAL_FILE",
	Short: "Download a remote file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		coordAddr, _ := cmd.Flags().GetString("coordinator")
		codec, _ := cmd.Flags().GetString("compression")

		c := client.New(coordAddr, client.WithCompression(transport.Codec(codec)))
		defer c.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		data, incomplete, err := c.Download(ctx, args[0])
		if err != nil {
			return fmt.Errorf("download: %w", err)
		}
		if err := os.WriteFile(args[1], data, 0o644); err != nil {
			return fmt.Errorf("write local file: %w", err)
		}
		if incomplete {
			fmt.Printf("⚠ downloaded %s with one or more unreadable blocks (best-effort)\n", args[0])
			return nil
		}
		fmt.Printf("✓ downloaded %s to %s\n", args[0], args[1])
		return nil
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls PATH",
	Short: "List a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		coordAddr, _ := cmd.Flags().GetString("coordinator")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		control := client.NewControlClient(coordAddr)
		entries, err := control.ListDirectory(ctx, args[0])
		if err != nil {
			return fmt.Errorf("list directory: %w", err)
		}
		for _, e := range entries {
			fmt.Printf("%-10s %10d  %s\n", e.Type, e.Size, e.Name)
		}
		return nil
	},
}

var statCmd = &cobra.Command{
	Use:   "stat REMOTE_PATH",
	Short: "Show a file's blocks and locations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		coordAddr, _ := cmd.Flags().GetString("coordinator")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		control := client.NewControlClient(coordAddr)
		stats, err := control.FileInfo(ctx, args[0])
		if err != nil {
			return fmt.Errorf("file info: %w", err)
		}
		fmt.Printf("%s  size=%d  owner=%s\n", stats.Path, stats.Size, stats.Owner)
		for _, b := range stats.Blocks {
			locs := stats.Locations[b.ID]
			fmt.Printf("  block %d  id=%s  size=%d  replicas=%d\n", b.Index, b.ID, b.Size, len(locs))
		}
		return nil
	},
}

func init() {
	putCmd.Flags().String("owner", "blockctl", "File owner recorded in the namespace")
	putCmd.Flags().Int64("block-size", client.DefaultBlockSize, "Block size in bytes")
	putCmd.Flags().Int("workers", 4, "Upload worker pool size (capped at 16)")
	putCmd.Flags().Int("replicas", 3, "Replication factor")
	putCmd.Flags().String("compression", "", "Wire compression codec for chunk payloads: \"\", zlib, or gzip")
	getCmd.Flags().String("compression", "", "Wire compression codec to request on retrieve: \"\", zlib, or gzip")
}
