package coordinator

import (
	"math/rand"
	"sort"

	"github.com/cuemby/blockstore/pkg/types"
)

// ErrInsufficientCapacity indicates no candidate nodes could satisfy a request.
var ErrInsufficientCapacity = types.NewError(types.KindCapacityExhausted, "insufficient capacity for placement", nil)

// candidate pairs a node with its noisy placement score.
type candidate struct {
	node  *types.DataNode
	score float64
}

// SelectPlacement implements §4.2: filter active nodes by available
// space and exclusion set, rank by a noisy capacity score, and return
// the top min(R, |candidates|) nodes with the first marked leader.
//
// The function is pure — it takes the candidate set as input rather
// than querying the catalog itself — so placement decisions are
// unit-testable without a running cluster, and so the re-replicator
// can reuse it with a different exclusion set.
func SelectPlacement(nodes []*types.DataNode, blockSize int64, exclude map[string]bool, replicationFactor int, rng *rand.Rand) ([]*types.DataNode, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}

	var candidates []candidate
	for _, n := range nodes {
		if n.Status != types.NodeStatusActive {
			continue
		}
		if exclude != nil && exclude[n.ID] {
			continue
		}
		if n.AvailableSpace < blockSize {
			continue
		}
		// noisy capacity score: available_space * U(0.8, 1.0)
		noise := 0.8 + rng.Float64()*0.2
		candidates = append(candidates, candidate{node: n, score: float64(n.AvailableSpace) * noise})
	}

	if len(candidates) == 0 {
		return nil, ErrInsufficientCapacity
	}

	// uniform random tiebreak: shuffle before the stable score sort so
	// exact score ties (possible with identical AvailableSpace and
	// noise draws) resolve randomly rather than by input order.
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	n := replicationFactor
	if n > len(candidates) {
		n = len(candidates)
	}

	selected := make([]*types.DataNode, n)
	for i := 0; i < n; i++ {
		selected[i] = candidates[i].node
	}
	return selected, nil
}
