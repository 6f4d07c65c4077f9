package catalog

import (
	"encoding/json"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/blockstore/pkg/types"
)

var (
	bucketFiles      = []byte("files")
	bucketPaths      = []byte("paths")
	bucketFileBlocks = []byte("file_blocks")
	bucketBlocks     = []byte("blocks")
	bucketLocations  = []byte("locations")
	bucketNodes      = []byte("datanodes")
)

// BoltCatalog implements Catalog on top of a single BoltDB file, one
// bucket per table, JSON-marshaled values keyed by primary ID — the
// same bucket-per-entity, marshal/unmarshal-on-access convention the
// teacher's BoltStore uses for its cluster state.
type BoltCatalog struct {
	db *bolt.DB
}

// NewBoltCatalog opens (creating if absent) the catalog database at
// dbPath and ensures the root directory entry exists.
func NewBoltCatalog(dbPath string) (*BoltCatalog, error) {
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketFiles, bucketPaths, bucketFileBlocks, bucketBlocks, bucketLocations, bucketNodes} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	c := &BoltCatalog{db: db}
	if err := c.ensureRoot(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *BoltCatalog) ensureRoot() error {
	return c.db.Update(func(tx *bolt.Tx) error {
		paths := tx.Bucket(bucketPaths)
		if paths.Get([]byte("/")) != nil {
			return nil
		}
		root := &types.FileEntry{
			ID:         uuid.NewString(),
			Path:       "/",
			Name:       "/",
			Type:       types.EntryTypeDirectory,
			CreatedAt:  time.Now(),
			ModifiedAt: time.Now(),
		}
		return putFile(tx, root)
	})
}

func putFile(tx *bolt.Tx, f *types.FileEntry) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if err := tx.Bucket(bucketFiles).Put([]byte(f.ID), data); err != nil {
		return err
	}
	return tx.Bucket(bucketPaths).Put([]byte(f.Path), []byte(f.ID))
}

func getFileByID(tx *bolt.Tx, id string) (*types.FileEntry, error) {
	data := tx.Bucket(bucketFiles).Get([]byte(id))
	if data == nil {
		return nil, types.NotFoundError("file not found: " + id)
	}
	var f types.FileEntry
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func getFileByPath(tx *bolt.Tx, p string) (*types.FileEntry, error) {
	id := tx.Bucket(bucketPaths).Get([]byte(p))
	if id == nil {
		return nil, types.NotFoundError("path not found: " + p)
	}
	return getFileByID(tx, string(id))
}

// CreateEntry implements Catalog.
func (c *BoltCatalog) CreateEntry(p string, typ types.EntryType, owner string, size int64) (*types.FileEntry, error) {
	p = normalizePath(p)
	if !strings.HasPrefix(p, "/") {
		return nil, types.ValidationError("path must be absolute: " + p)
	}

	var entry *types.FileEntry
	err := c.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketPaths).Get([]byte(p)) != nil {
			return types.ConflictError("already exists: " + p)
		}

		if p != "/" {
			parentPath := path.Dir(p)
			parent, err := getFileByPath(tx, parentPath)
			if err != nil {
				return types.NewError(types.KindValidation, "parent missing: "+parentPath, err)
			}
			if parent.Type != types.EntryTypeDirectory {
				return types.ValidationError("parent is not a directory: " + parentPath)
			}
		}

		now := time.Now()
		fileSize := size
		if typ == types.EntryTypeDirectory {
			fileSize = 0
		}
		entry = &types.FileEntry{
			ID:         uuid.NewString(),
			Path:       p,
			Name:       path.Base(p),
			Type:       typ,
			Size:       fileSize,
			Owner:      owner,
			CreatedAt:  now,
			ModifiedAt: now,
		}
		return putFile(tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean(p)
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	return cleaned
}

func (c *BoltCatalog) GetByID(fileID string) (*types.FileEntry, error) {
	var f *types.FileEntry
	err := c.db.View(func(tx *bolt.Tx) error {
		var err error
		f, err = getFileByID(tx, fileID)
		return err
	})
	return f, err
}

func (c *BoltCatalog) GetByPath(p string) (*types.FileEntry, error) {
	p = normalizePath(p)
	var f *types.FileEntry
	err := c.db.View(func(tx *bolt.Tx) error {
		var err error
		f, err = getFileByPath(tx, p)
		return err
	})
	return f, err
}

// ListDirectory returns direct children only; order is unspecified but
// stable within a call since it reflects BoltDB's sorted-by-key cursor.
func (c *BoltCatalog) ListDirectory(p string) ([]*types.FileEntry, error) {
	p = normalizePath(p)
	var children []*types.FileEntry
	err := c.db.View(func(tx *bolt.Tx) error {
		dir, err := getFileByPath(tx, p)
		if err != nil {
			return err
		}
		if dir.Type != types.EntryTypeDirectory {
			return types.ValidationError("not a directory: " + p)
		}
		return tx.Bucket(bucketFiles).ForEach(func(_, v []byte) error {
			var f types.FileEntry
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			if f.Path != "/" && path.Dir(f.Path) == p {
				children = append(children, &f)
			}
			return nil
		})
	})
	return children, err
}

func (c *BoltCatalog) DeleteFile(fileID string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		f, err := getFileByID(tx, fileID)
		if err != nil {
			return err
		}
		if f.Type == types.EntryTypeDirectory {
			return types.NewError(types.KindValidation, "is a directory: "+f.Path, nil)
		}
		return deleteFileLocked(tx, f)
	})
}

func deleteFileLocked(tx *bolt.Tx, f *types.FileEntry) error {
	blockIDs, err := listFileBlockIDs(tx, f.ID)
	if err != nil {
		return err
	}
	for _, bid := range blockIDs {
		if err := tx.Bucket(bucketBlocks).Delete([]byte(bid)); err != nil {
			return err
		}
		if err := tx.Bucket(bucketLocations).Delete([]byte(bid)); err != nil {
			return err
		}
	}
	if err := tx.Bucket(bucketFileBlocks).Delete([]byte(f.ID)); err != nil {
		return err
	}
	if err := tx.Bucket(bucketFiles).Delete([]byte(f.ID)); err != nil {
		return err
	}
	return tx.Bucket(bucketPaths).Delete([]byte(f.Path))
}

func (c *BoltCatalog) DeleteDirectory(p string, recursive bool) error {
	p = normalizePath(p)
	if p == "/" {
		return types.ValidationError("cannot remove root")
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		dir, err := getFileByPath(tx, p)
		if err != nil {
			return err
		}
		if dir.Type != types.EntryTypeDirectory {
			return types.ValidationError("not a directory: " + p)
		}

		children, err := directChildren(tx, p)
		if err != nil {
			return err
		}
		if len(children) == 0 {
			if err := tx.Bucket(bucketFiles).Delete([]byte(dir.ID)); err != nil {
				return err
			}
			return tx.Bucket(bucketPaths).Delete([]byte(dir.Path))
		}
		if !recursive {
			return types.ConflictError("directory not empty: " + p)
		}
		return deleteRecursive(tx, dir, children)
	})
}

func directChildren(tx *bolt.Tx, p string) ([]*types.FileEntry, error) {
	var children []*types.FileEntry
	err := tx.Bucket(bucketFiles).ForEach(func(_, v []byte) error {
		var f types.FileEntry
		if err := json.Unmarshal(v, &f); err != nil {
			return err
		}
		if f.Path != "/" && path.Dir(f.Path) == p {
			children = append(children, &f)
		}
		return nil
	})
	return children, err
}

// deleteRecursive removes files first, then directories bottom-up, as
// required by §4.1's delete_directory contract.
func deleteRecursive(tx *bolt.Tx, dir *types.FileEntry, children []*types.FileEntry) error {
	var subdirs []*types.FileEntry
	for _, ch := range children {
		if ch.Type == types.EntryTypeDirectory {
			subdirs = append(subdirs, ch)
			continue
		}
		if err := deleteFileLocked(tx, ch); err != nil {
			return err
		}
	}
	for _, sd := range subdirs {
		grandchildren, err := directChildren(tx, sd.Path)
		if err != nil {
			return err
		}
		if err := deleteRecursive(tx, sd, grandchildren); err != nil {
			return err
		}
	}
	if err := tx.Bucket(bucketFiles).Delete([]byte(dir.ID)); err != nil {
		return err
	}
	return tx.Bucket(bucketPaths).Delete([]byte(dir.Path))
}

func listFileBlockIDs(tx *bolt.Tx, fileID string) ([]string, error) {
	data := tx.Bucket(bucketFileBlocks).Get([]byte(fileID))
	if data == nil {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// RegisterBlock is idempotent: re-registering the same block_id with
// identical fields succeeds without error.
func (c *BoltCatalog) RegisterBlock(blockID, fileID string, index int, size int64, checksum string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if _, err := getFileByID(tx, fileID); err != nil {
			return types.NewError(types.KindNotFound, "file missing: "+fileID, err)
		}

		if existing := tx.Bucket(bucketBlocks).Get([]byte(blockID)); existing != nil {
			var be types.BlockEntry
			if err := json.Unmarshal(existing, &be); err != nil {
				return err
			}
			if be.FileID == fileID && be.Index == index && be.Size == size && be.Checksum == checksum {
				return nil
			}
			return types.ConflictError("block already registered with different fields: " + blockID)
		}

		entry := &types.BlockEntry{
			ID:        blockID,
			FileID:    fileID,
			Index:     index,
			Size:      size,
			Checksum:  checksum,
			CreatedAt: time.Now(),
		}
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := tx.Bucket(bucketBlocks).Put([]byte(blockID), data); err != nil {
			return err
		}

		ids, err := listFileBlockIDs(tx, fileID)
		if err != nil {
			return err
		}
		ids = append(ids, blockID)
		idsData, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketFileBlocks).Put([]byte(fileID), idsData)
	})
}

func (c *BoltCatalog) GetBlock(blockID string) (*types.BlockEntry, error) {
	var be types.BlockEntry
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBlocks).Get([]byte(blockID))
		if data == nil {
			return types.NotFoundError("block not found: " + blockID)
		}
		return json.Unmarshal(data, &be)
	})
	if err != nil {
		return nil, err
	}
	return &be, nil
}

func (c *BoltCatalog) ListBlocksForFile(fileID string) ([]*types.BlockEntry, error) {
	var blocks []*types.BlockEntry
	err := c.db.View(func(tx *bolt.Tx) error {
		ids, err := listFileBlockIDs(tx, fileID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			data := tx.Bucket(bucketBlocks).Get([]byte(id))
			if data == nil {
				continue
			}
			var be types.BlockEntry
			if err := json.Unmarshal(data, &be); err != nil {
				return err
			}
			blocks = append(blocks, &be)
		}
		return nil
	})
	return blocks, err
}

func getLocations(tx *bolt.Tx, blockID string) ([]*types.BlockLocation, error) {
	data := tx.Bucket(bucketLocations).Get([]byte(blockID))
	if data == nil {
		return nil, nil
	}
	var locs []*types.BlockLocation
	if err := json.Unmarshal(data, &locs); err != nil {
		return nil, err
	}
	return locs, nil
}

func putLocations(tx *bolt.Tx, blockID string, locs []*types.BlockLocation) error {
	data, err := json.Marshal(locs)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketLocations).Put([]byte(blockID), data)
}

// AddLocation enforces the single-leader-per-block invariant: if
// isLeader is true, any existing leader location is demoted.
func (c *BoltCatalog) AddLocation(blockID, nodeID string, isLeader bool) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketBlocks).Get([]byte(blockID)) == nil {
			return types.NotFoundError("block missing: " + blockID)
		}
		if tx.Bucket(bucketNodes).Get([]byte(nodeID)) == nil {
			return types.NotFoundError("node missing: " + nodeID)
		}

		locs, err := getLocations(tx, blockID)
		if err != nil {
			return err
		}

		found := false
		for _, l := range locs {
			if l.NodeID == nodeID {
				l.IsLeader = isLeader
				found = true
			} else if isLeader {
				l.IsLeader = false
			}
		}
		if !found {
			if isLeader {
				for _, l := range locs {
					l.IsLeader = false
				}
			}
			locs = append(locs, &types.BlockLocation{
				BlockID:  blockID,
				NodeID:   nodeID,
				IsLeader: isLeader,
				AddedAt:  time.Now(),
			})
		}
		return putLocations(tx, blockID, locs)
	})
}

func (c *BoltCatalog) RemoveLocation(blockID, nodeID string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		locs, err := getLocations(tx, blockID)
		if err != nil {
			return err
		}
		out := locs[:0]
		removed := false
		for _, l := range locs {
			if l.NodeID == nodeID {
				removed = true
				continue
			}
			out = append(out, l)
		}
		if !removed {
			return types.NotFoundError("location not found")
		}
		return putLocations(tx, blockID, out)
	})
}

func (c *BoltCatalog) ListLocations(blockID string) ([]*types.BlockLocation, error) {
	var locs []*types.BlockLocation
	err := c.db.View(func(tx *bolt.Tx) error {
		var err error
		locs, err = getLocations(tx, blockID)
		return err
	})
	return locs, err
}

// ListOrphanBlocks scans every registered block for one with zero
// locations whose CreatedAt is older than cutoff: a block a client
// registered but never finished uploading to any node.
func (c *BoltCatalog) ListOrphanBlocks(cutoff time.Time) ([]*types.BlockEntry, error) {
	var orphans []*types.BlockEntry
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketBlocks).ForEach(func(k, v []byte) error {
			var be types.BlockEntry
			if err := json.Unmarshal(v, &be); err != nil {
				return err
			}
			if !be.CreatedAt.Before(cutoff) {
				return nil
			}
			locs, err := getLocations(tx, be.ID)
			if err != nil {
				return err
			}
			if len(locs) == 0 {
				orphans = append(orphans, &be)
			}
			return nil
		})
	})
	return orphans, err
}

// DeleteBlock removes a block's catalog record and any locations, used
// by the reconciler's orphan sweep. It does not touch the owning
// file's block-ID list; only blocks with zero locations should reach
// this path, which ListOrphanBlocks already enforces.
func (c *BoltCatalog) DeleteBlock(blockID string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketBlocks).Get([]byte(blockID)) == nil {
			return types.NotFoundError("block not found: " + blockID)
		}
		if err := tx.Bucket(bucketBlocks).Delete([]byte(blockID)); err != nil {
			return err
		}
		return tx.Bucket(bucketLocations).Delete([]byte(blockID))
	})
}

func (c *BoltCatalog) RegisterNode(host string, port int, capacity, available int64) (*types.DataNode, error) {
	var node *types.DataNode
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		var existing *types.DataNode
		err := b.ForEach(func(_, v []byte) error {
			var n types.DataNode
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			if n.Host == host && n.Port == port && n.Status == types.NodeStatusActive {
				existing = &n
			}
			return nil
		})
		if err != nil {
			return err
		}
		if existing != nil {
			node = existing
			return nil
		}

		now := time.Now()
		node = &types.DataNode{
			ID:              uuid.NewString(),
			Host:            host,
			Port:            port,
			Status:          types.NodeStatusActive,
			StorageCapacity: capacity,
			AvailableSpace:  available,
			LastHeartbeat:   now,
			RegisteredAt:    now,
		}
		data, err := json.Marshal(node)
		if err != nil {
			return err
		}
		return b.Put([]byte(node.ID), data)
	})
	return node, err
}

// Heartbeat updates liveness and capacity. Reported block IDs unknown
// to the catalog are not created here; the coordinator logs them and
// leaves reconciliation of orphaned inventory to the operator.
func (c *BoltCatalog) Heartbeat(nodeID string, available int64, reportedBlocks []string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data := b.Get([]byte(nodeID))
		if data == nil {
			return types.NotFoundError("node not found: " + nodeID)
		}
		var n types.DataNode
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		n.AvailableSpace = available
		n.LastHeartbeat = time.Now()
		n.Status = types.NodeStatusActive
		n.BlocksStored = len(reportedBlocks)
		out, err := json.Marshal(&n)
		if err != nil {
			return err
		}
		return b.Put([]byte(nodeID), out)
	})
}

func (c *BoltCatalog) GetNode(nodeID string) (*types.DataNode, error) {
	var n types.DataNode
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketNodes).Get([]byte(nodeID))
		if data == nil {
			return types.NotFoundError("node not found: " + nodeID)
		}
		return json.Unmarshal(data, &n)
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (c *BoltCatalog) ListNodes(status types.NodeStatus) ([]*types.DataNode, error) {
	var nodes []*types.DataNode
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketNodes).ForEach(func(_, v []byte) error {
			var n types.DataNode
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			if status == "" || n.Status == status {
				nodes = append(nodes, &n)
			}
			return nil
		})
	})
	return nodes, err
}

func (c *BoltCatalog) MarkInactive(nodeID string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNodes)
		data := b.Get([]byte(nodeID))
		if data == nil {
			return types.NotFoundError("node not found: " + nodeID)
		}
		var n types.DataNode
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		n.Status = types.NodeStatusInactive
		out, err := json.Marshal(&n)
		if err != nil {
			return err
		}
		return b.Put([]byte(nodeID), out)
	})
}

func (c *BoltCatalog) EvictNode(nodeID string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketNodes).Delete([]byte(nodeID)); err != nil {
			return err
		}
		return tx.Bucket(bucketLocations).ForEach(func(k, v []byte) error {
			var locs []*types.BlockLocation
			if err := json.Unmarshal(v, &locs); err != nil {
				return err
			}
			out := locs[:0]
			changed := false
			for _, l := range locs {
				if l.NodeID == nodeID {
					changed = true
					continue
				}
				out = append(out, l)
			}
			if !changed {
				return nil
			}
			data, err := json.Marshal(out)
			if err != nil {
				return err
			}
			return tx.Bucket(bucketLocations).Put(k, data)
		})
	})
}

func (c *BoltCatalog) Stats() (*types.SystemStats, error) {
	stats := &types.SystemStats{}
	err := c.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketFiles).ForEach(func(_, v []byte) error {
			var f types.FileEntry
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			if f.Type == types.EntryTypeDirectory {
				stats.TotalDirectories++
			} else {
				stats.TotalFiles++
			}
			return nil
		}); err != nil {
			return err
		}
		stats.TotalBlocks = tx.Bucket(bucketBlocks).Stats().KeyN
		return tx.Bucket(bucketNodes).ForEach(func(_, v []byte) error {
			var n types.DataNode
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			if n.Status == types.NodeStatusActive {
				stats.ActiveDataNodes++
			} else {
				stats.InactiveDataNodes++
			}
			return nil
		})
	})
	return stats, err
}

// Snapshot produces the self-describing payload shipped to Raft
// followers and used for log compaction.
func (c *BoltCatalog) Snapshot() (*Snapshot, error) {
	snap := &Snapshot{Version: SnapshotVersion, Locations: map[string][]*types.BlockLocation{}, Timestamp: time.Now()}
	err := c.db.View(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketFiles).ForEach(func(_, v []byte) error {
			var f types.FileEntry
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			snap.Files = append(snap.Files, &f)
			return nil
		}); err != nil {
			return err
		}
		if err := tx.Bucket(bucketBlocks).ForEach(func(_, v []byte) error {
			var b types.BlockEntry
			if err := json.Unmarshal(v, &b); err != nil {
				return err
			}
			snap.Blocks = append(snap.Blocks, &b)
			return nil
		}); err != nil {
			return err
		}
		if err := tx.Bucket(bucketLocations).ForEach(func(k, v []byte) error {
			var locs []*types.BlockLocation
			if err := json.Unmarshal(v, &locs); err != nil {
				return err
			}
			snap.Locations[string(k)] = locs
			return nil
		}); err != nil {
			return err
		}
		return tx.Bucket(bucketNodes).ForEach(func(_, v []byte) error {
			var n types.DataNode
			if err := json.Unmarshal(v, &n); err != nil {
				return err
			}
			snap.Nodes = append(snap.Nodes, &n)
			return nil
		})
	})
	return snap, err
}

// Restore upserts every entry in snap, converging this catalog's state
// with the leader's — used both by Raft's FSM.Restore and by a
// follower applying a §4.6 metadata sync payload.
func (c *BoltCatalog) Restore(snap *Snapshot) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		for _, f := range snap.Files {
			if err := putFile(tx, f); err != nil {
				return err
			}
		}
		for _, b := range snap.Blocks {
			data, err := json.Marshal(b)
			if err != nil {
				return err
			}
			if err := tx.Bucket(bucketBlocks).Put([]byte(b.ID), data); err != nil {
				return err
			}
			ids, err := listFileBlockIDs(tx, b.FileID)
			if err != nil {
				return err
			}
			if !slices.Contains(ids, b.ID) {
				idsData, err := json.Marshal(append(ids, b.ID))
				if err != nil {
					return err
				}
				if err := tx.Bucket(bucketFileBlocks).Put([]byte(b.FileID), idsData); err != nil {
					return err
				}
			}
		}
		for blockID, locs := range snap.Locations {
			if err := putLocations(tx, blockID, locs); err != nil {
				return err
			}
		}
		for _, n := range snap.Nodes {
			data, err := json.Marshal(n)
			if err != nil {
				return err
			}
			if err := tx.Bucket(bucketNodes).Put([]byte(n.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *BoltCatalog) Close() error {
	return c.db.Close()
}
