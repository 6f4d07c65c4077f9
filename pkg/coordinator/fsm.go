package coordinator

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/cuemby/blockstore/pkg/catalog"
	"github.com/cuemby/blockstore/pkg/types"
)

// FSM implements the Raft finite state machine over a Catalog. Every
// namespace and block-catalog mutation is routed through Apply so the
// leader's writer is the only path that changes committed state; reads
// go directly to the catalog and may lag by at most one committed
// write, per §4.1's concurrency contract.
type FSM struct {
	mu  sync.RWMutex
	cat catalog.Catalog
}

func NewFSM(cat catalog.Catalog) *FSM {
	return &FSM{cat: cat}
}

// Command mirrors the teacher's {Op, Data} envelope: a tagged union of
// catalog mutations dispatched by Apply.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

type createEntryArgs struct {
	Path  string          `json:"path"`
	Type  types.EntryType `json:"type"`
	Owner string          `json:"owner"`
	Size  int64           `json:"size"`
}

type deleteFileArgs struct {
	FileID string `json:"file_id"`
}

type deleteDirectoryArgs struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

type registerBlockArgs struct {
	BlockID  string `json:"block_id"`
	FileID   string `json:"file_id"`
	Index    int    `json:"index"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum"`
}

type addLocationArgs struct {
	BlockID  string `json:"block_id"`
	NodeID   string `json:"node_id"`
	IsLeader bool   `json:"is_leader"`
}

type removeLocationArgs struct {
	BlockID string `json:"block_id"`
	NodeID  string `json:"node_id"`
}

type registerNodeArgs struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Capacity  int64  `json:"capacity"`
	Available int64  `json:"available"`
}

type heartbeatArgs struct {
	NodeID         string   `json:"node_id"`
	Available      int64    `json:"available"`
	ReportedBlocks []string `json:"reported_blocks"`
}

type nodeIDArgs struct {
	NodeID string `json:"node_id"`
}

type deleteBlockArgs struct {
	BlockID string `json:"block_id"`
}

const (
	opCreateEntry     = "create_entry"
	opDeleteFile      = "delete_file"
	opDeleteDirectory = "delete_directory"
	opRegisterBlock   = "register_block"
	opAddLocation     = "add_location"
	opRemoveLocation  = "remove_location"
	opRegisterNode    = "register_node"
	opHeartbeat       = "heartbeat"
	opMarkInactive    = "mark_inactive"
	opEvictNode       = "evict_node"
	opDeleteBlock     = "delete_block"
)

func encodeCommand(op string, args interface{}) ([]byte, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Command{Op: op, Data: data})
}

// Apply applies one committed Raft log entry to the catalog.
func (f *FSM) Apply(l *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(l.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opCreateEntry:
		var a createEntryArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return err
		}
		entry, err := f.cat.CreateEntry(a.Path, a.Type, a.Owner, a.Size)
		return fsmResult{entry, err}

	case opDeleteFile:
		var a deleteFileArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return err
		}
		return fsmResult{nil, f.cat.DeleteFile(a.FileID)}

	case opDeleteDirectory:
		var a deleteDirectoryArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return err
		}
		return fsmResult{nil, f.cat.DeleteDirectory(a.Path, a.Recursive)}

	case opRegisterBlock:
		var a registerBlockArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return err
		}
		return fsmResult{nil, f.cat.RegisterBlock(a.BlockID, a.FileID, a.Index, a.Size, a.Checksum)}

	case opAddLocation:
		var a addLocationArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return err
		}
		return fsmResult{nil, f.cat.AddLocation(a.BlockID, a.NodeID, a.IsLeader)}

	case opRemoveLocation:
		var a removeLocationArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return err
		}
		return fsmResult{nil, f.cat.RemoveLocation(a.BlockID, a.NodeID)}

	case opRegisterNode:
		var a registerNodeArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return err
		}
		node, err := f.cat.RegisterNode(a.Host, a.Port, a.Capacity, a.Available)
		return fsmResult{node, err}

	case opHeartbeat:
		var a heartbeatArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return err
		}
		return fsmResult{nil, f.cat.Heartbeat(a.NodeID, a.Available, a.ReportedBlocks)}

	case opMarkInactive:
		var a nodeIDArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return err
		}
		return fsmResult{nil, f.cat.MarkInactive(a.NodeID)}

	case opEvictNode:
		var a nodeIDArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return err
		}
		return fsmResult{nil, f.cat.EvictNode(a.NodeID)}

	case opDeleteBlock:
		var a deleteBlockArgs
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return err
		}
		return fsmResult{nil, f.cat.DeleteBlock(a.BlockID)}

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// fsmResult is the value raft.Apply's future resolves to; callers type
// assert it back out of ApplyFuture.Response().
type fsmResult struct {
	Value interface{}
	Err   error
}

// Snapshot captures the catalog state for Raft log compaction.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	bc, ok := f.cat.(*catalog.BoltCatalog)
	if !ok {
		return nil, fmt.Errorf("snapshot requires a BoltCatalog")
	}
	snap, err := bc.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	return &fsmSnapshot{snap: snap}, nil
}

// Restore replays a snapshot into the catalog on startup or rejoin.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap catalog.Snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	bc, ok := f.cat.(*catalog.BoltCatalog)
	if !ok {
		return fmt.Errorf("restore requires a BoltCatalog")
	}
	return bc.Restore(&snap)
}

type fsmSnapshot struct {
	snap *catalog.Snapshot
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.snap); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *fsmSnapshot) Release() {}
