package coordinator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/cuemby/blockstore/pkg/catalog"
	"github.com/cuemby/blockstore/pkg/log"
	"github.com/cuemby/blockstore/pkg/metrics"
	"github.com/cuemby/blockstore/pkg/types"
)

// Config configures a single coordinator node.
type Config struct {
	NodeID            string
	BindAddr          string // raft transport address, host:port
	DataDir           string
	ReplicationFactor int
}

// Coordinator is the namespace/metadata/placement authority (§4.1,
// §4.2, §4.6). Every mutation is routed through raft.Apply so the
// leader's FSM is the sole writer of committed state; reads go
// straight to the catalog and may lag the most recent commit by one
// write, matching the teacher's manager/FSM split.
type Coordinator struct {
	nodeID            string
	bindAddr          string
	dataDir           string
	replicationFactor int

	raft *raft.Raft
	fsm  *FSM
	cat  catalog.Catalog
}

// NewCoordinator opens the catalog and builds (but does not start) a
// coordinator. Call Bootstrap for a brand new cluster or Join to add
// this node to an existing one.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	cat, err := catalog.NewBoltCatalog(filepath.Join(cfg.DataDir, "catalog.db"))
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	rf := cfg.ReplicationFactor
	if rf <= 0 {
		rf = 3
	}
	return &Coordinator{
		nodeID:            cfg.NodeID,
		bindAddr:          cfg.BindAddr,
		dataDir:           cfg.DataDir,
		replicationFactor: rf,
		fsm:               NewFSM(cat),
		cat:               cat,
	}, nil
}

func (c *Coordinator) raftConfig() (*raft.Raft, raft.Transport, error) {
	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(c.nodeID)
	raftCfg.HeartbeatTimeout = 500 * time.Millisecond
	raftCfg.ElectionTimeout = 500 * time.Millisecond
	raftCfg.CommitTimeout = 50 * time.Millisecond
	raftCfg.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", c.bindAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve bind addr: %w", err)
	}
	transport, err := raft.NewTCPTransport(c.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("new tcp transport: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(c.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, nil, fmt.Errorf("new snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-log.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("new raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(c.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("new raft stable store: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, c.fsm, logStore, stableStore, snapshots, transport)
	if err != nil {
		return nil, nil, fmt.Errorf("new raft: %w", err)
	}
	return r, transport, nil
}

// Bootstrap starts raft as the sole member of a brand new cluster.
func (c *Coordinator) Bootstrap() error {
	r, transport, err := c.raftConfig()
	if err != nil {
		return err
	}
	cfg := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(c.nodeID), Address: transport.LocalAddr()},
		},
	}
	if f := r.BootstrapCluster(cfg); f.Error() != nil {
		return fmt.Errorf("bootstrap cluster: %w", f.Error())
	}
	c.raft = r
	return nil
}

// Join starts raft for this node and asks leaderAddr's control plane
// to add it as a voter. Unlike the teacher (which RPCs a generated
// grpc JoinCluster method), this project's control plane is plain
// HTTP, so joining is a POST to /cluster/join (see pkg/coordinator/http.go).
func (c *Coordinator) Join(leaderHTTPAddr string) error {
	r, _, err := c.raftConfig()
	if err != nil {
		return err
	}
	c.raft = r

	body, err := json.Marshal(joinRequest{NodeID: c.nodeID, RaftAddr: c.bindAddr})
	if err != nil {
		return fmt.Errorf("marshal join request: %w", err)
	}
	return postJoin(leaderHTTPAddr, body)
}

// postJoin POSTs a join request to the leader's control plane. The
// leader's http handler (see pkg/coordinator/http.go) calls AddVoter
// and reports failure as a non-2xx status.
func postJoin(leaderHTTPAddr string, body []byte) error {
	resp, err := http.Post("http://"+leaderHTTPAddr+"/cluster/join", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post join request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("join request rejected: status %d", resp.StatusCode)
	}
	return nil
}

type joinRequest struct {
	NodeID   string `json:"node_id"`
	RaftAddr string `json:"raft_addr"`
}

// AddVoter adds nodeID/raftAddr to the cluster. Only valid on the leader.
func (c *Coordinator) AddVoter(nodeID, raftAddr string) error {
	if !c.IsLeader() {
		return types.NewError(types.KindConflict, fmt.Sprintf("not leader, current leader: %s", c.LeaderAddr()), nil)
	}
	f := c.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(raftAddr), 0, 10*time.Second)
	if err := f.Error(); err != nil {
		return fmt.Errorf("add voter: %w", err)
	}
	return nil
}

// RemoveServer removes nodeID from the cluster. Only valid on the leader.
func (c *Coordinator) RemoveServer(nodeID string) error {
	if !c.IsLeader() {
		return types.NewError(types.KindConflict, "not leader", nil)
	}
	f := c.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second)
	if err := f.Error(); err != nil {
		return fmt.Errorf("remove server: %w", err)
	}
	return nil
}

func (c *Coordinator) IsLeader() bool { return c.raft != nil && c.raft.State() == raft.Leader }

func (c *Coordinator) LeaderAddr() string {
	if c.raft == nil {
		return ""
	}
	return string(c.raft.Leader())
}

func (c *Coordinator) RaftTerm() uint64 {
	if c.raft == nil {
		return 0
	}
	stats := c.raft.Stats()
	var term uint64
	fmt.Sscanf(stats["term"], "%d", &term)
	return term
}

func (c *Coordinator) Peers() ([]raft.Server, error) {
	f := c.raft.GetConfiguration()
	if err := f.Error(); err != nil {
		return nil, err
	}
	return f.Configuration().Servers, nil
}

// apply submits cmd to raft and blocks for its commit, returning the
// FSM's result. Reject up front if this node is not the leader so
// callers get a clear redirect rather than a raft timeout.
func (c *Coordinator) apply(op string, args interface{}) (interface{}, error) {
	if !c.IsLeader() {
		return nil, types.NewError(types.KindConflict, fmt.Sprintf("not leader, current leader: %s", c.LeaderAddr()), nil)
	}
	data, err := encodeCommand(op, args)
	if err != nil {
		return nil, err
	}
	timer := metrics.NewTimer()
	f := c.raft.Apply(data, 5*time.Second)
	timer.ObserveDuration(metrics.RaftApplyDuration)
	if err := f.Error(); err != nil {
		return nil, fmt.Errorf("raft apply: %w", err)
	}
	res, ok := f.Response().(fsmResult)
	if !ok {
		return nil, fmt.Errorf("unexpected fsm response type %T", f.Response())
	}
	return res.Value, res.Err
}

// Namespace operations (§4.1)

func (c *Coordinator) CreateEntry(path string, typ types.EntryType, owner string, size int64) (*types.FileEntry, error) {
	v, err := c.apply(opCreateEntry, createEntryArgs{Path: path, Type: typ, Owner: owner, Size: size})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*types.FileEntry), nil
}

func (c *Coordinator) GetByID(fileID string) (*types.FileEntry, error) { return c.cat.GetByID(fileID) }

func (c *Coordinator) GetByPath(path string) (*types.FileEntry, error) { return c.cat.GetByPath(path) }

func (c *Coordinator) ListDirectory(path string) ([]*types.FileEntry, error) {
	return c.cat.ListDirectory(path)
}

func (c *Coordinator) DeleteFile(fileID string) error {
	_, err := c.apply(opDeleteFile, deleteFileArgs{FileID: fileID})
	return err
}

func (c *Coordinator) DeleteDirectory(path string, recursive bool) error {
	_, err := c.apply(opDeleteDirectory, deleteDirectoryArgs{Path: path, Recursive: recursive})
	return err
}

// Block catalog operations (§4.1, §4.2)

func (c *Coordinator) RegisterBlock(blockID, fileID string, index int, size int64, checksum string) error {
	_, err := c.apply(opRegisterBlock, registerBlockArgs{BlockID: blockID, FileID: fileID, Index: index, Size: size, Checksum: checksum})
	return err
}

func (c *Coordinator) GetBlock(blockID string) (*types.BlockEntry, error) { return c.cat.GetBlock(blockID) }

func (c *Coordinator) ListBlocksForFile(fileID string) ([]*types.BlockEntry, error) {
	return c.cat.ListBlocksForFile(fileID)
}

func (c *Coordinator) AddLocation(blockID, nodeID string, isLeader bool) error {
	_, err := c.apply(opAddLocation, addLocationArgs{BlockID: blockID, NodeID: nodeID, IsLeader: isLeader})
	return err
}

func (c *Coordinator) RemoveLocation(blockID, nodeID string) error {
	_, err := c.apply(opRemoveLocation, removeLocationArgs{BlockID: blockID, NodeID: nodeID})
	return err
}

func (c *Coordinator) ListLocations(blockID string) ([]*types.BlockLocation, error) {
	return c.cat.ListLocations(blockID)
}

// ListOrphanBlocks returns registered blocks older than cutoff with no
// recorded locations, for the reconciler's best-effort reclamation
// sweep (§5).
func (c *Coordinator) ListOrphanBlocks(cutoff time.Time) ([]*types.BlockEntry, error) {
	return c.cat.ListOrphanBlocks(cutoff)
}

// DeleteBlockRecord removes an orphaned block's catalog entry.
func (c *Coordinator) DeleteBlockRecord(blockID string) error {
	_, err := c.apply(opDeleteBlock, deleteBlockArgs{BlockID: blockID})
	return err
}

// PlaceBlock picks destination nodes for a new block of the given size,
// excluding nodes already holding a replica (used by the re-replicator).
func (c *Coordinator) PlaceBlock(blockSize int64, exclude map[string]bool) ([]*types.DataNode, error) {
	nodes, err := c.cat.ListNodes(types.NodeStatusActive)
	if err != nil {
		return nil, err
	}
	return SelectPlacement(nodes, blockSize, exclude, c.replicationFactor, nil)
}

// DataNode registry operations (§4.1, §4.6)

func (c *Coordinator) RegisterNode(host string, port int, capacity, available int64) (*types.DataNode, error) {
	v, err := c.apply(opRegisterNode, registerNodeArgs{Host: host, Port: port, Capacity: capacity, Available: available})
	if err != nil {
		return nil, err
	}
	return v.(*types.DataNode), nil
}

func (c *Coordinator) Heartbeat(nodeID string, available int64, reportedBlocks []string) error {
	_, err := c.apply(opHeartbeat, heartbeatArgs{NodeID: nodeID, Available: available, ReportedBlocks: reportedBlocks})
	if err != nil {
		return err
	}
	for _, id := range reportedBlocks {
		if _, gerr := c.cat.GetBlock(id); types.IsNotFound(gerr) {
			log.WithComponent("coordinator").Warn().Str("node_id", nodeID).Str("block_id", id).Msg("heartbeat reported a block unknown to the catalog")
		}
	}
	return nil
}

func (c *Coordinator) GetNode(nodeID string) (*types.DataNode, error) { return c.cat.GetNode(nodeID) }

func (c *Coordinator) ListNodes(status types.NodeStatus) ([]*types.DataNode, error) {
	return c.cat.ListNodes(status)
}

func (c *Coordinator) MarkInactive(nodeID string) error {
	_, err := c.apply(opMarkInactive, nodeIDArgs{NodeID: nodeID})
	return err
}

func (c *Coordinator) EvictNode(nodeID string) error {
	_, err := c.apply(opEvictNode, nodeIDArgs{NodeID: nodeID})
	return err
}

// Stats aggregates the catalog's counters with raft's own and the
// live under-replication count (the supplemented /system/stats
// endpoint from SPEC_FULL.md).
func (c *Coordinator) Stats() (*types.SystemStats, error) {
	st, err := c.cat.Stats()
	if err != nil {
		return nil, err
	}
	st.RaftTerm = c.RaftTerm()
	st.RaftIsLeader = c.IsLeader()
	st.UnderReplicatedBlocks, err = c.countUnderReplicated()
	if err != nil {
		return nil, err
	}
	return st, nil
}

func (c *Coordinator) countUnderReplicated() (int, error) {
	count := 0
	queue := []string{"/"}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]
		entries, err := c.ListDirectory(dir)
		if err != nil {
			return 0, err
		}
		for _, e := range entries {
			if e.Type == types.EntryTypeDirectory {
				queue = append(queue, e.Path)
				continue
			}
			blocks, err := c.ListBlocksForFile(e.ID)
			if err != nil {
				return 0, err
			}
			for _, b := range blocks {
				locs, err := c.ListLocations(b.ID)
				if err != nil {
					return 0, err
				}
				if len(locs) < c.replicationFactor {
					count++
				}
			}
		}
	}
	return count, nil
}

func (c *Coordinator) Close() error {
	if c.raft != nil {
		if f := c.raft.Shutdown(); f.Error() != nil {
			return f.Error()
		}
	}
	return c.cat.Close()
}

func (c *Coordinator) NodeID() string { return c.nodeID }
