// Package client implements §4.3's file partitioning and transfer
// protocol: split a file into fixed-size blocks, register and place
// each with the coordinator, stream it to the placed nodes with a
// bounded worker pool, and the reverse for download.
package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cuemby/blockstore/pkg/log"
	"github.com/cuemby/blockstore/pkg/transport"
	"github.com/cuemby/blockstore/pkg/types"
)

const (
	// DefaultBlockSize matches no particular teacher constant; it is
	// the spec's own example block size for small-file scenarios.
	DefaultBlockSize = 4 << 20 // 4 MiB
	defaultWorkers   = 4
	maxWorkers       = 16
	maxStoreAttempts = 3
)

// Client is a stateless coordinator of a single PUT or GET session —
// it owns no persistent state between calls, per spec.md §3.
type Client struct {
	coordAddr         string
	replicationFactor int
	blockSize         int64
	workers           int
	codec             transport.Codec

	control *ControlClient
	conns   map[string]*grpc.ClientConn
	connsMu chanMutex
}

// Option configures a Client at construction time.
type Option func(*Client)

func WithBlockSize(n int64) Option { return func(c *Client) { c.blockSize = n } }
func WithWorkers(n int) Option {
	return func(c *Client) {
		if n > maxWorkers {
			n = maxWorkers
		}
		if n < 1 {
			n = 1
		}
		c.workers = n
	}
}
func WithReplicationFactor(r int) Option { return func(c *Client) { c.replicationFactor = r } }

// WithCompression sets the codec applied to chunk payloads on the
// wire in both directions (§4.4). Block checksums are computed over
// the uncompressed block, so compression only affects transfer size.
func WithCompression(codec transport.Codec) Option {
	return func(c *Client) { c.codec = codec }
}

func New(coordAddr string, opts ...Option) *Client {
	c := &Client{
		coordAddr:         coordAddr,
		replicationFactor: 3,
		blockSize:         DefaultBlockSize,
		workers:           defaultWorkers,
		control:           NewControlClient(coordAddr),
		conns:             make(map[string]*grpc.ClientConn),
	}
	c.connsMu.init()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Close() error {
	var firstErr error
	for _, cc := range c.conns {
		if err := cc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Client) blockServiceClient(addr string) (*transport.BlockServiceClient, error) {
	c.connsMu.lock()
	defer c.connsMu.unlock()
	cc, ok := c.conns[addr]
	if !ok {
		var err error
		cc, err = grpc.NewClient(addr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
		)
		if err != nil {
			return nil, err
		}
		c.conns[addr] = cc
	}
	return transport.NewBlockServiceClient(cc), nil
}

// UploadResult reports the outcome of a PUT per spec.md §8's user-
// visible behavior: success only when every block has a confirmed
// replica, otherwise Incomplete with the offending block IDs.
type UploadResult struct {
	FileID     string
	Incomplete bool
	MissingIDs []string
}

// Upload implements §4.3's PUT: resolve/create the destination
// directory chain, register the file entry, then for every block
// register it, place it, and stream it to each placed node. The worker
// pool runs one job per block; within a job the block is written to its
// placed nodes one at a time, in placement order, not concurrently.
func (c *Client) Upload(ctx context.Context, destPath string, owner string, data []byte) (*UploadResult, error) {
	logger := log.WithComponent("client")

	if err := c.control.EnsureDirectoryChain(ctx, destPath, owner); err != nil {
		return nil, fmt.Errorf("ensure directory chain: %w", err)
	}

	entry, err := c.control.CreateFile(ctx, destPath, owner, int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("register file: %w", err)
	}

	blocks := partition(data, c.blockSize)

	type job struct {
		index int
		data  []byte
	}
	jobs := make([]job, len(blocks))
	for i, b := range blocks {
		jobs[i] = job{index: i, data: b}
	}

	var missing []string
	var missingMu chanMutex
	missingMu.init()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)

	for _, j := range jobs {
		j := j
		g.Go(func() error {
			blockID := fmt.Sprintf("%s-%d", entry.ID, j.index)
			sum := sha256.Sum256(j.data)
			checksum := hex.EncodeToString(sum[:])

			if err := c.control.RegisterBlock(gctx, blockID, entry.ID, j.index, int64(len(j.data)), checksum); err != nil {
				return fmt.Errorf("register block %d: %w", j.index, err)
			}

			ok := c.storeBlockWithFailover(gctx, blockID, j.data, checksum)
			if !ok {
				missingMu.lock()
				missing = append(missing, blockID)
				missingMu.unlock()
				logger.Warn().Str("block_id", blockID).Msg("block could not be placed on any node")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &UploadResult{FileID: entry.ID, Incomplete: len(missing) > 0, MissingIDs: missing}, nil
}

// storeBlockWithFailover places data (excluding nodes in exclude) and
// streams it to every selected destination. On a per-node store
// failure it adds that node to the exclusion set and requests an
// alternate placement for just the still-missing slots, up to
// maxStoreAttempts total rounds, per §4.3(c) and §8 scenario 3.
func (c *Client) storeBlockWithFailover(ctx context.Context, blockID string, data []byte, checksum string) bool {
	excluded := map[string]bool{}
	confirmed := 0
	leaderAssigned := false
	need := c.replicationFactor

	for attempt := 0; attempt < maxStoreAttempts && confirmed < need; attempt++ {
		nodes, err := c.control.PlaceBlock(ctx, blockID, int64(len(data)), excluded)
		if err != nil || len(nodes) == 0 {
			break
		}
		if remaining := need - confirmed; len(nodes) > remaining {
			nodes = nodes[:remaining]
		}

		anyFailed := false
		for _, n := range nodes {
			if err := c.storeOnNode(ctx, n, blockID, data, checksum); err != nil {
				excluded[n.ID] = true
				anyFailed = true
				continue
			}
			isLeader := !leaderAssigned
			if err := c.control.AddLocation(ctx, blockID, n.ID, isLeader); err != nil {
				excluded[n.ID] = true
				anyFailed = true
				continue
			}
			leaderAssigned = true
			confirmed++
			excluded[n.ID] = true
		}

		if !anyFailed {
			break
		}
	}
	return confirmed > 0
}

func (c *Client) storeOnNode(ctx context.Context, node *types.DataNode, blockID string, data []byte, checksum string) error {
	bc, err := c.blockServiceClient(node.Address())
	if err != nil {
		return err
	}
	stream, err := bc.StoreBlock(ctx)
	if err != nil {
		return err
	}

	const chunkSize = 1 << 20
	for offset := 0; offset < len(data) || len(data) == 0; offset += chunkSize {
		end := offset + chunkSize
		if end > len(data) {
			end = len(data)
		}
		isLast := end == len(data)
		frame, err := transport.Compress(c.codec, data[offset:end])
		if err != nil {
			return err
		}
		req := &transport.ChunkRequest{BlockID: blockID, Offset: int64(offset), Data: frame, IsLast: isLast, Codec: c.codec}
		if isLast {
			req.Checksum = checksum
		}
		if err := stream.Send(req); err != nil {
			return err
		}
		if isLast || len(data) == 0 {
			break
		}
	}

	resp, err := stream.Recv()
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("store rejected: %s", resp.Message)
	}
	return nil
}

// Download implements §4.3's GET: fetch metadata, read each block
// from live locations in order with failover, and concatenate by
// block index. Per spec.md §4.3's 90% threshold, a download missing
// more than 10% of blocks fails outright; otherwise it returns a
// best-effort partial file with Incomplete set.
func (c *Client) Download(ctx context.Context, path string) ([]byte, bool, error) {
	stats, err := c.control.FileInfo(ctx, path)
	if err != nil {
		return nil, false, fmt.Errorf("fetch file info: %w", err)
	}
	sort.Slice(stats.Blocks, func(i, j int) bool { return stats.Blocks[i].Index < stats.Blocks[j].Index })

	out := make([][]byte, len(stats.Blocks))
	failed := 0

	for i, b := range stats.Blocks {
		locs := stats.Locations[b.ID]
		data, ok := c.retrieveFromAnyLocation(ctx, b.ID, locs)
		if !ok {
			failed++
			continue
		}
		out[i] = data
	}

	if len(stats.Blocks) > 0 && float64(failed)/float64(len(stats.Blocks)) > 0.10 {
		return nil, true, fmt.Errorf("download failed: %d/%d blocks unreadable", failed, len(stats.Blocks))
	}

	var buf bytes.Buffer
	for _, b := range out {
		buf.Write(b)
	}
	return buf.Bytes(), failed > 0, nil
}

func (c *Client) retrieveFromAnyLocation(ctx context.Context, blockID string, locs []*types.BlockLocation) ([]byte, bool) {
	for _, l := range locs {
		node, err := c.control.GetNode(ctx, l.NodeID)
		if err != nil || node.Status != types.NodeStatusActive {
			continue
		}
		data, err := c.retrieveFromNode(ctx, node, blockID)
		if err != nil {
			continue
		}
		return data, true
	}
	return nil, false
}

func (c *Client) retrieveFromNode(ctx context.Context, node *types.DataNode, blockID string) ([]byte, error) {
	bc, err := c.blockServiceClient(node.Address())
	if err != nil {
		return nil, err
	}
	stream, err := bc.RetrieveBlock(ctx, &transport.RetrieveRequest{BlockID: blockID, Codec: c.codec})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		frame, err := transport.Decompress(chunk.Codec, chunk.Data)
		if err != nil {
			return nil, err
		}
		buf.Write(frame)
		if chunk.IsLast {
			break
		}
	}
	return buf.Bytes(), nil
}

func partition(data []byte, blockSize int64) [][]byte {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	if len(data) == 0 {
		return nil
	}
	var blocks [][]byte
	for offset := int64(0); offset < int64(len(data)); offset += blockSize {
		end := offset + blockSize
		if end > int64(len(data)) {
			end = int64(len(data))
		}
		blocks = append(blocks, data[offset:end])
	}
	return blocks
}

// chanMutex is a tiny channel-based mutex so this package need not
// import sync solely for its two small guarded sections (the missing
// block list in Upload and the connection cache).
type chanMutex chan struct{}

func (m *chanMutex) init()   { *m = make(chan struct{}, 1) }
func (m chanMutex) lock()    { m <- struct{}{} }
func (m chanMutex) unlock()  { <-m }
