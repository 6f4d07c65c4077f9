package coordinator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/blockstore/pkg/log"
	"github.com/cuemby/blockstore/pkg/metrics"
	"github.com/cuemby/blockstore/pkg/types"
)

// imbalanceThreshold is the largest gap in utilization fraction between
// the most and the least utilized active node that the balancer leaves
// alone (§4.7, optional load balancer). No mean-based band is computed.
const imbalanceThreshold = 0.20

// Balancer is the optional load balancer from §4.7: on a slow tick it
// looks for the most and least utilized active nodes, and if the gap
// between them exceeds imbalanceThreshold it migrates one block from
// the hot node to the cold one. It is strictly advisory — disabling it
// only affects long-run storage evenness, never correctness.
type Balancer struct {
	coord     *Coordinator
	logger    zerolog.Logger
	replicate func(blockID string, from, to *types.DataNode) error
	dropSrc   func(blockID string, node *types.DataNode) error

	running int32 // single-flight guard; set via atomic CAS
	mu      sync.Mutex
	stopCh  chan struct{}
}

func NewBalancer(coord *Coordinator, replicate func(blockID string, from, to *types.DataNode) error, dropSrc func(blockID string, node *types.DataNode) error) *Balancer {
	return &Balancer{
		coord:     coord,
		logger:    log.WithComponent("balancer"),
		replicate: replicate,
		dropSrc:   dropSrc,
		stopCh:    make(chan struct{}),
	}
}

func (b *Balancer) Start() { go b.run() }

func (b *Balancer) Stop() { close(b.stopCh) }

func (b *Balancer) run() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	b.logger.Info().Msg("balancer started")

	for {
		select {
		case <-ticker.C:
			b.tick()
		case <-b.stopCh:
			b.logger.Info().Msg("balancer stopped")
			return
		}
	}
}

// tick runs at most one balancing cycle at a time; a cycle that is
// still migrating a block when the next tick fires is skipped rather
// than queued.
func (b *Balancer) tick() {
	if !atomic.CompareAndSwapInt32(&b.running, 0, 1) {
		b.logger.Debug().Msg("balancer cycle already in flight, skipping tick")
		return
	}
	defer atomic.StoreInt32(&b.running, 0)

	if !b.coord.IsLeader() {
		return
	}

	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.BalancerCyclesTotal.Inc()
	}()

	if err := b.balanceOnce(); err != nil {
		b.logger.Error().Err(err).Msg("balancing cycle failed")
	}
}

func (b *Balancer) balanceOnce() error {
	nodes, err := b.coord.ListNodes(types.NodeStatusActive)
	if err != nil {
		return err
	}
	if len(nodes) < 2 {
		return nil
	}

	var totalUsed, mostUsedFrac float64
	var hottest, coldest *types.DataNode
	var coldestFrac = 2.0 // above any possible fraction, so the first node always wins
	for _, n := range nodes {
		if n.StorageCapacity <= 0 {
			continue
		}
		used := float64(n.StorageCapacity-n.AvailableSpace) / float64(n.StorageCapacity)
		totalUsed += used
		if used > mostUsedFrac {
			mostUsedFrac = used
			hottest = n
		}
		if used < coldestFrac {
			coldestFrac = used
			coldest = n
		}
	}
	if hottest == nil || coldest == nil || hottest.ID == coldest.ID {
		return nil
	}
	if mostUsedFrac-coldestFrac < imbalanceThreshold {
		return nil
	}

	block, err := b.pickBlockOn(hottest.ID)
	if err != nil {
		return err
	}
	if block == nil {
		b.logger.Debug().Str("node_id", hottest.ID).Msg("no movable block found on hottest node")
		return nil
	}

	b.logger.Info().
		Str("block_id", block.ID).
		Str("from", hottest.ID).
		Str("to", coldest.ID).
		Msg("migrating block to rebalance storage")

	if err := b.replicate(block.ID, hottest, coldest); err != nil {
		return err
	}
	if err := b.coord.AddLocation(block.ID, coldest.ID, false); err != nil {
		return err
	}
	if err := b.dropSrc(block.ID, hottest); err != nil {
		b.logger.Warn().Err(err).Msg("source cleanup after migration failed; block payload left on source node")
	}
	if err := b.coord.RemoveLocation(block.ID, hottest.ID); err != nil {
		return err
	}
	metrics.BalancerMovesTotal.Inc()
	return nil
}

// pickBlockOn returns an arbitrary block currently stored on nodeID
// that has at least one other live replica, so moving it does not
// create a temporary single point of failure.
func (b *Balancer) pickBlockOn(nodeID string) (*types.BlockEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	queue := []string{"/"}
	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]
		entries, err := b.coord.ListDirectory(dir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Type == types.EntryTypeDirectory {
				queue = append(queue, e.Path)
				continue
			}
			blocks, err := b.coord.ListBlocksForFile(e.ID)
			if err != nil {
				return nil, err
			}
			for _, blk := range blocks {
				locs, err := b.coord.ListLocations(blk.ID)
				if err != nil {
					return nil, err
				}
				onNode, otherLive := false, 0
				for _, l := range locs {
					if l.NodeID == nodeID {
						onNode = true
					} else if n, err := b.coord.GetNode(l.NodeID); err == nil && n.Status == types.NodeStatusActive {
						otherLive++
					}
				}
				if onNode && otherLive > 0 {
					return blk, nil
				}
			}
		}
	}
	return nil, nil
}
