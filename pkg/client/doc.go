/*
Package client provides a Go client library for the blockstore cluster.

The client package wraps the coordinator's HTTP control plane and the
datanodes' gRPC block service with a convenient, idiomatic Go
interface. It handles file partitioning, block placement, replica
writes with per-node failover, and provides type-safe methods for
upload and download.

# Architecture

The client provides a high-level interface over two wire protocols:

	┌──────────────────── APPLICATION CODE ──────────────────────┐
	│                                                              │
	│  import "github.com/cuemby/blockstore/pkg/client"           │
	│                                                              │
	│  c := client.New("coordinator:8080")                        │
	│  result, err := c.Upload(ctx, "/data/file.bin", "me", data)  │
	│                                                              │
	└──────────────────┬───────────────────────────────────────┘
	                   │
	┌──────────────────▼──── pkg/client ─────────────────────────┐
	│                                                              │
	│  ┌──────────────────────────────────────────────┐          │
	│  │           Client                               │          │
	│  │  - Partition / reassemble                     │          │
	│  │  - Worker pool (bounded concurrency)          │          │
	│  │  - Placement retry on node failure            │          │
	│  └──────────────────┬───────────────────────────┘          │
	│                     │                                        │
	│       ┌─────────────┴─────────────┐                         │
	│       ▼                           ▼                         │
	│  ┌──────────┐              ┌─────────────────┐             │
	│  │ Control  │ HTTP/JSON    │ BlockService     │ gRPC/JSON   │
	│  │ Client   │─────────────▶│ Client           │────────────▶│
	│  └──────────┘              └─────────────────┘             │
	└─────────────────────┼────────────────────┬────────────────┘
	                      │                    │
	                      ▼                    ▼
	              Coordinator API         Datanode(s)

# Core Features

File Partitioning:
  - Splits uploads into fixed-size blocks (default 4 MiB)
  - Registers each block and its file in the coordinator's catalog
  - Reassembles blocks in order on download

Placement and Replication:
  - Requests a placement decision from the coordinator per block
  - Writes to the placed nodes one at a time, in placement order;
    the first node to store the block is recorded as its leader
  - Retries placement excluding any node that failed to store

Failover:
  - Download tries each known replica location in turn
  - Returns a partial file flagged incomplete when no more than 10%
    of blocks are unreadable (see Download)

# Usage

Creating a client:

	import "github.com/cuemby/blockstore/pkg/client"

	c := client.New("coordinator-1:8080",
		client.WithBlockSize(4<<20),
		client.WithReplicationFactor(3),
		client.WithWorkers(8),
	)
	defer c.Close()

Uploading a file:

	data, err := os.ReadFile("report.csv")
	if err != nil {
		log.Fatal(err)
	}
	result, err := c.Upload(ctx, "/reports/report.csv", "alice", data)
	if err != nil {
		log.Fatal(err)
	}
	if result.Incomplete {
		fmt.Printf("upload finished with missing blocks: %v\n", result.MissingIDs)
	}

Downloading a file:

	data, incomplete, err := c.Download(ctx, "/reports/report.csv")
	if err != nil {
		log.Fatal(err)
	}
	if incomplete {
		fmt.Println("some blocks were unreadable; file may be corrupt")
	}

# Control Plane Operations

ControlClient wraps the coordinator's HTTP API directly, for callers
that need namespace operations without a full upload/download:

	cc := client.NewControlClient("coordinator-1:8080")

	entries, err := cc.ListDirectory(ctx, "/reports")
	if err != nil {
		log.Fatal(err)
	}
	for _, e := range entries {
		fmt.Printf("- %s (%d bytes)\n", e.Name, e.Size)
	}

	stats, err := cc.FileInfo(ctx, "/reports/report.csv")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%d blocks, %d replica sets\n", len(stats.Blocks), len(stats.Locations))

# Error Handling

Upload and Download do not fail outright on a single unreachable
datanode; they retry placement or failover to another replica first.
Upload returns a non-nil UploadResult with Incomplete set (and the
offending block IDs in MissingIDs) when every excluded node has been
exhausted for some block. Download returns an error when more than
10% of a file's blocks could not be read from any replica; when some
blocks failed but no more than 10%, it returns the partial data with
incomplete=true.

Errors returned by ControlClient methods wrap the coordinator's JSON
error response body, so callers can match on the wrapped message for
conditions like "not found" or "already exists".

# Concurrency

Upload fans out per-block work across a bounded worker pool (default
4, capped at 16 via WithWorkers) using golang.org/x/sync/errgroup.
Client and ControlClient are safe for concurrent use by multiple
goroutines; gRPC connections to datanodes are cached and reused across
calls.

# See Also

  - pkg/coordinator for the control-plane server implementation
  - pkg/datanode for the storage-node block service
  - pkg/transport for the gRPC block service wire protocol
  - cmd/blockctl for a CLI built on this package
*/
package client
