// Package catalog implements the coordinator's namespace and metadata
// store: the file/directory table, the block table, block locations,
// and the datanode registry, persisted transactionally in BoltDB.
package catalog

import (
	"time"

	"github.com/cuemby/blockstore/pkg/types"
)

// Catalog is the narrow capability the coordinator's FSM and HTTP
// handlers depend on. Defining it at the handler boundary (rather than
// depending on *BoltCatalog directly) keeps the FSM and the control
// plane decoupled from the storage engine, and makes both testable
// against an in-memory fake.
type Catalog interface {
	// Namespace
	CreateEntry(path string, typ types.EntryType, owner string, size int64) (*types.FileEntry, error)
	GetByID(fileID string) (*types.FileEntry, error)
	GetByPath(path string) (*types.FileEntry, error)
	ListDirectory(path string) ([]*types.FileEntry, error)
	DeleteFile(fileID string) error
	DeleteDirectory(path string, recursive bool) error

	// Blocks
	RegisterBlock(blockID, fileID string, index int, size int64, checksum string) error
	GetBlock(blockID string) (*types.BlockEntry, error)
	ListBlocksForFile(fileID string) ([]*types.BlockEntry, error)
	AddLocation(blockID, nodeID string, isLeader bool) error
	RemoveLocation(blockID, nodeID string) error
	ListLocations(blockID string) ([]*types.BlockLocation, error)
	// ListOrphanBlocks returns blocks registered before cutoff that
	// still have zero recorded locations — a block whose upload never
	// finished, per §5's "orphaned blocks are reclaimed (best effort)".
	ListOrphanBlocks(cutoff time.Time) ([]*types.BlockEntry, error)
	DeleteBlock(blockID string) error

	// DataNodes
	RegisterNode(host string, port int, capacity, available int64) (*types.DataNode, error)
	Heartbeat(nodeID string, available int64, reportedBlocks []string) error
	GetNode(nodeID string) (*types.DataNode, error)
	ListNodes(status types.NodeStatus) ([]*types.DataNode, error)
	MarkInactive(nodeID string) error
	EvictNode(nodeID string) error

	// Aggregate
	Stats() (*types.SystemStats, error)

	Close() error
}

// Snapshot is the self-describing, versioned payload the coordinator
// leader ships to followers (§4.6) and that the Raft FSM uses for log
// compaction. Version lets a future format change be detected instead
// of silently misread.
type Snapshot struct {
	Version   int                            `json:"version"`
	Files     []*types.FileEntry             `json:"files"`
	Blocks    []*types.BlockEntry             `json:"blocks"`
	Locations map[string][]*types.BlockLocation `json:"locations"`
	Nodes     []*types.DataNode               `json:"nodes"`
	Timestamp time.Time                        `json:"timestamp"`
}

const SnapshotVersion = 1
