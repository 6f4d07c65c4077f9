package types

import "time"

// EntryType distinguishes a namespace entry's kind.
type EntryType string

const (
	EntryTypeFile      EntryType = "file"
	EntryTypeDirectory EntryType = "directory"
)

// FileEntry is a namespace row: a file or a directory.
type FileEntry struct {
	ID         string
	Path       string
	Name       string
	Type       EntryType
	Size       int64
	Owner      string
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// BlockEntry is the catalog's record of one block of a file.
type BlockEntry struct {
	ID        string
	FileID    string
	Index     int
	Size      int64
	Checksum  string
	CreatedAt time.Time
}

// BlockLocation records that a block is stored on a datanode.
type BlockLocation struct {
	BlockID  string
	NodeID   string
	IsLeader bool
	AddedAt  time.Time
}

// NodeStatus is a datanode's liveness state.
type NodeStatus string

const (
	NodeStatusActive   NodeStatus = "active"
	NodeStatusInactive NodeStatus = "inactive"
)

// DataNode is a registered storage node.
type DataNode struct {
	ID              string
	Host            string
	Port            int
	Status          NodeStatus
	StorageCapacity int64
	AvailableSpace  int64
	LastHeartbeat   time.Time
	BlocksStored    int
	RegisteredAt    time.Time
}

// Address returns the dialable host:port for this node.
func (n *DataNode) Address() string {
	return JoinHostPort(n.Host, n.Port)
}

// PeerRole is a coordinator peer's Raft-derived role.
type PeerRole string

const (
	PeerRoleLeader    PeerRole = "leader"
	PeerRoleFollower  PeerRole = "follower"
	PeerRoleCandidate PeerRole = "candidate"
)

// CoordinatorPeer describes one member of the coordinator cluster.
type CoordinatorPeer struct {
	NodeID string
	Host   string
	Port   int
	Term   uint64
	Role   PeerRole
}

// FileStats is the extended metadata returned by /files/info/{path}.
type FileStats struct {
	FileEntry
	Blocks    []*BlockEntry
	Locations map[string][]*BlockLocation // block_id -> locations
}

// SystemStats is the payload of GET /system/stats.
type SystemStats struct {
	TotalFiles             int
	TotalDirectories       int
	TotalBlocks            int
	UnderReplicatedBlocks  int
	ActiveDataNodes        int
	InactiveDataNodes      int
	RaftTerm               uint64
	RaftIsLeader           bool
}
