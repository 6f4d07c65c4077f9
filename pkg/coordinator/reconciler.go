package coordinator

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/blockstore/pkg/events"
	"github.com/cuemby/blockstore/pkg/log"
	"github.com/cuemby/blockstore/pkg/metrics"
	"github.com/cuemby/blockstore/pkg/types"
)

// heartbeatTimeout is how long a datanode may go without a heartbeat
// before the failure detector marks it inactive (§4.5).
const heartbeatTimeout = 30 * time.Second

// evictTimeout is how long a node may sit inactive before the
// failure detector evicts it outright, per §4.5's T_evict.
const evictTimeout = 2 * time.Hour

// orphanGracePeriod is how long a block may sit registered with zero
// locations (an upload that never completed) before the reconciler
// reclaims its catalog entry, per §5's best-effort orphan sweep.
const orphanGracePeriod = 10 * time.Minute

// Reconciler is the failure detector and re-replicator from §4.5: it
// scans the datanode registry for missed heartbeats, marks stale nodes
// inactive, and drives any now-under-replicated block back up to its
// target replication factor by asking the placement policy for a new
// home and having that node pull a copy from a live replica (the
// replica itself does not push it).
type Reconciler struct {
	coord    *Coordinator
	bus      *events.Broker
	logger   zerolog.Logger
	mu       sync.Mutex
	stopCh   chan struct{}
	replicate func(blockID string, from *types.DataNode, to *types.DataNode) error
}

// NewReconciler builds a reconciler. replicate is called to copy a
// block from an existing replica to a newly placed node; it is
// injected so this package does not depend on pkg/datanode's grpc
// client directly.
func NewReconciler(coord *Coordinator, bus *events.Broker, replicate func(blockID string, from, to *types.DataNode) error) *Reconciler {
	return &Reconciler{
		coord:     coord,
		bus:       bus,
		logger:    log.WithComponent("reconciler"),
		stopCh:    make(chan struct{}),
		replicate: replicate,
	}
}

func (r *Reconciler) Start() { go r.run() }

func (r *Reconciler) Stop() { close(r.stopCh) }

func (r *Reconciler) run() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	r.logger.Info().Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			if err := r.reconcile(); err != nil {
				r.logger.Error().Err(err).Msg("reconciliation cycle failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

func (r *Reconciler) reconcile() error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	// only the leader drives replication decisions; followers still
	// run the loop so they're ready to take over without a cold start
	if !r.coord.IsLeader() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.detectFailedNodes()
	r.reclaimOrphanBlocks()
	return r.reReplicateUnderReplicated()
}

// reclaimOrphanBlocks deletes the catalog record of any block that was
// registered but never got a single confirmed location within
// orphanGracePeriod — the client that registered it died or gave up
// mid-upload. Nothing is stored anywhere for such a block, so there is
// no datanode-side delete to issue.
func (r *Reconciler) reclaimOrphanBlocks() {
	orphans, err := r.coord.ListOrphanBlocks(time.Now().Add(-orphanGracePeriod))
	if err != nil {
		r.logger.Error().Err(err).Msg("list orphan blocks failed")
		return
	}
	for _, b := range orphans {
		if err := r.coord.DeleteBlockRecord(b.ID); err != nil {
			r.logger.Error().Err(err).Str("block_id", b.ID).Msg("reclaim orphan block failed")
			continue
		}
		r.logger.Info().Str("block_id", b.ID).Str("file_id", b.FileID).Msg("reclaimed orphaned block")
	}
}

func (r *Reconciler) detectFailedNodes() {
	now := time.Now()

	active, err := r.coord.ListNodes(types.NodeStatusActive)
	if err != nil {
		r.logger.Error().Err(err).Msg("list nodes failed")
		return
	}
	for _, n := range active {
		if now.Sub(n.LastHeartbeat) > heartbeatTimeout {
			r.logger.Warn().
				Str("node_id", n.ID).
				Dur("since_heartbeat", now.Sub(n.LastHeartbeat)).
				Msg("node missed heartbeat deadline, marking inactive")
			if err := r.coord.MarkInactive(n.ID); err != nil {
				r.logger.Error().Err(err).Str("node_id", n.ID).Msg("mark inactive failed")
				continue
			}
			if r.bus != nil {
				r.bus.Publish(&events.Event{Type: events.EventNodeFailure, Metadata: map[string]string{"node_id": n.ID}})
			}
		}
	}

	inactive, err := r.coord.ListNodes(types.NodeStatusInactive)
	if err != nil {
		r.logger.Error().Err(err).Msg("list inactive nodes failed")
		return
	}
	for _, n := range inactive {
		if now.Sub(n.LastHeartbeat) > evictTimeout {
			r.logger.Warn().
				Str("node_id", n.ID).
				Dur("since_heartbeat", now.Sub(n.LastHeartbeat)).
				Msg("node inactive past eviction deadline, evicting")
			if err := r.coord.EvictNode(n.ID); err != nil {
				r.logger.Error().Err(err).Str("node_id", n.ID).Msg("evict node failed")
			}
		}
	}
}

// reReplicateUnderReplicated walks every block and, for any whose live
// location count is below the configured replication factor, places a
// new replica and has the new node copy it from a live holder.
func (r *Reconciler) reReplicateUnderReplicated() error {
	nodes, err := r.coord.ListNodes("")
	if err != nil {
		return err
	}
	byID := make(map[string]*types.DataNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	files, err := r.walkAllFiles()
	if err != nil {
		return err
	}

	for _, f := range files {
		blocks, err := r.coord.ListBlocksForFile(f.ID)
		if err != nil {
			r.logger.Error().Err(err).Str("file_id", f.ID).Msg("list blocks failed")
			continue
		}
		for _, b := range blocks {
			r.reReplicateBlock(b, byID)
		}
	}
	return nil
}

func (r *Reconciler) reReplicateBlock(b *types.BlockEntry, nodesByID map[string]*types.DataNode) {
	locs, err := r.coord.ListLocations(b.ID)
	if err != nil {
		r.logger.Error().Err(err).Str("block_id", b.ID).Msg("list locations failed")
		return
	}

	var live []*types.BlockLocation
	excluded := map[string]bool{}
	var source *types.DataNode
	for _, l := range locs {
		n, ok := nodesByID[l.NodeID]
		excluded[l.NodeID] = true
		if !ok || n.Status != types.NodeStatusActive {
			continue
		}
		live = append(live, l)
		if source == nil || l.IsLeader {
			source = n
		}
	}

	target := r.coord.replicationFactor
	if len(live) >= target {
		return
	}
	if source == nil {
		r.logger.Warn().Str("block_id", b.ID).Msg("block has no live replicas; cannot re-replicate")
		return
	}

	dests, err := r.coord.PlaceBlock(b.Size, excluded)
	if err != nil {
		metrics.PlacementFailuresTotal.Inc()
		r.logger.Warn().Err(err).Str("block_id", b.ID).Msg("no placement candidate for re-replication")
		return
	}

	for _, dest := range dests {
		if target-len(live) <= 0 {
			break
		}
		if err := r.replicate(b.ID, source, dest); err != nil {
			r.logger.Error().Err(err).Str("block_id", b.ID).Str("dest", dest.ID).Msg("replicate failed")
			continue
		}
		if err := r.coord.AddLocation(b.ID, dest.ID, false); err != nil {
			r.logger.Error().Err(err).Str("block_id", b.ID).Str("dest", dest.ID).Msg("add location failed")
			continue
		}
		live = append(live, &types.BlockLocation{BlockID: b.ID, NodeID: dest.ID})
		metrics.ReReplicationsTotal.WithLabelValues("success").Inc()
		if r.bus != nil {
			r.bus.Publish(&events.Event{Type: events.EventBlockReplicated, Metadata: map[string]string{"block_id": b.ID, "node_id": dest.ID}})
		}
	}
}

// walkAllFiles collects every file entry in the namespace by walking
// directories breadth-first from the root; the catalog has no flat
// "list all files" operation since that is not part of the §4.1
// contract used by the control plane.
func (r *Reconciler) walkAllFiles() ([]*types.FileEntry, error) {
	var files []*types.FileEntry
	queue := []string{"/"}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]
		entries, err := r.coord.ListDirectory(dir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Type == types.EntryTypeDirectory {
				queue = append(queue, e.Path)
			} else {
				files = append(files, e)
			}
		}
	}
	return files, nil
}
