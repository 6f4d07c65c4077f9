package metrics

import (
	"time"

	"github.com/cuemby/blockstore/pkg/types"
)

// StatsSource is the subset of *coordinator.Coordinator the collector
// needs. It is expressed as an interface, not an import of
// pkg/coordinator, since that package already imports pkg/metrics.
type StatsSource interface {
	Stats() (*types.SystemStats, error)
}

// Collector periodically snapshots the coordinator's namespace and
// Raft state into gauges, mirroring the teacher's own poll-on-a-
// ticker collector but over files/blocks/datanodes instead of
// services/tasks/secrets/volumes.
type Collector struct {
	source StatsSource
	stopCh chan struct{}
}

func NewCollector(source StatsSource) *Collector {
	return &Collector{source: source, stopCh: make(chan struct{})}
}

func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

func (c *Collector) Stop() { close(c.stopCh) }

func (c *Collector) collect() {
	stats, err := c.source.Stats()
	if err != nil {
		return
	}

	FilesTotal.Set(float64(stats.TotalFiles))
	DirectoriesTotal.Set(float64(stats.TotalDirectories))
	BlocksTotal.Set(float64(stats.TotalBlocks))
	UnderReplicatedBlocks.Set(float64(stats.UnderReplicatedBlocks))
	DataNodesTotal.WithLabelValues(string(types.NodeStatusActive)).Set(float64(stats.ActiveDataNodes))
	DataNodesTotal.WithLabelValues(string(types.NodeStatusInactive)).Set(float64(stats.InactiveDataNodes))

	if stats.RaftIsLeader {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}
	RaftTerm.Set(float64(stats.RaftTerm))
}
