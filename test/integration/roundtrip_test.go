// Package integration exercises a coordinator and two storage nodes
// together in-process: a client partitions a file, uploads it, and
// reads it back, covering §8's PUT/GET round-trip scenario.
package integration

import (
	"context"
	"net"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/blockstore/pkg/client"
	"github.com/cuemby/blockstore/pkg/coordinator"
	"github.com/cuemby/blockstore/pkg/datanode"
)

func freePort(t *testing.T) int {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()
	return lis.Addr().(*net.TCPAddr).Port
}

func startCoordinator(t *testing.T) (*coordinator.Coordinator, string) {
	t.Helper()
	cfg := coordinator.Config{
		NodeID:            "coord-1",
		BindAddr:          "127.0.0.1:0",
		DataDir:           filepath.Join(t.TempDir(), "coord"),
		ReplicationFactor: 2,
	}
	coord, err := coordinator.NewCoordinator(cfg)
	require.NoError(t, err)
	require.NoError(t, coord.Bootstrap())
	t.Cleanup(func() { _ = coord.Close() })

	require.Eventually(t, coord.IsLeader, 5*time.Second, 20*time.Millisecond)

	srv := coordinator.NewServer(coord)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return coord, ts.Listener.Addr().String()
}

func startDatanode(t *testing.T, coordAddr string) *datanode.Node {
	t.Helper()
	node, err := datanode.NewNode(datanode.Config{
		Host:            "127.0.0.1",
		Port:            freePort(t),
		CoordinatorAddr: coordAddr,
		DataDir:         filepath.Join(t.TempDir(), "blocks"),
		StorageCapacity: 1 << 30,
	})
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- node.Start() }()
	t.Cleanup(node.Stop)

	select {
	case err := <-errCh:
		t.Fatalf("datanode exited early: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
	return node
}

func TestUploadDownloadRoundTrip(t *testing.T) {
	_, coordAddr := startCoordinator(t)
	startDatanode(t, coordAddr)
	startDatanode(t, coordAddr)

	c := client.New(coordAddr,
		client.WithBlockSize(1<<10),
		client.WithReplicationFactor(2),
		client.WithWorkers(2),
	)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	payload := make([]byte, 5<<10) // spans several blocks at the 1KiB test block size
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	result, err := c.Upload(ctx, "/data/sample.bin", "tester", payload)
	require.NoError(t, err)
	require.False(t, result.Incomplete)

	got, incomplete, err := c.Download(ctx, "/data/sample.bin")
	require.NoError(t, err)
	require.False(t, incomplete)
	require.Equal(t, payload, got)
}

func TestDownloadSurvivesOneDeadReplica(t *testing.T) {
	_, coordAddr := startCoordinator(t)
	startDatanode(t, coordAddr)
	second := startDatanode(t, coordAddr)

	c := client.New(coordAddr, client.WithBlockSize(1<<10), client.WithReplicationFactor(2))
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	payload := []byte("small file that fits in one block")
	_, err := c.Upload(ctx, "/data/small.bin", "tester", payload)
	require.NoError(t, err)

	second.Stop()

	got, _, err := c.Download(ctx, "/data/small.bin")
	require.NoError(t, err)
	require.Equal(t, payload, got)
}
